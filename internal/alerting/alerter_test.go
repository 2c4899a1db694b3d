package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankguard-gateway/internal/data"
	"tankguard-gateway/internal/storage"
	"tankguard-gateway/internal/websocket"
)

func newTestAlerter(t *testing.T) (*Alerter, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))

	hub := websocket.NewHub()
	go hub.Run()

	return NewAlerter(store, hub), store
}

func agreedReading(tank data.TankRole, level float64) *data.Reading {
	return &data.Reading{
		DeviceID:        "dev-1",
		Tank:            tank,
		LevelPercent:    level,
		SensorHealthy:   true,
		SensorAgreement: true,
		Timestamp:       time.Now().UTC(),
	}
}

func TestCriticalLowRaisesHighSeverity(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.Evaluate(ctx, agreedReading(data.TankTop, 12))

	alert, err := store.UnresolvedAlert(ctx, "dev-1", data.AlertCriticalLow)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, data.SeverityHigh, alert.Severity)
}

func TestOverflowRiskRaisesHighSeverity(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.Evaluate(ctx, agreedReading(data.TankSump, 95))

	alert, err := store.UnresolvedAlert(ctx, "dev-1", data.AlertOverflowRisk)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, data.SeverityHigh, alert.Severity)
}

func TestDisagreementNeverAlerts(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	r := agreedReading(data.TankTop, 5)
	r.SensorAgreement = false
	a.Evaluate(ctx, r)

	alerts, err := store.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDuplicateConditionSuppressed(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.Evaluate(ctx, agreedReading(data.TankSump, 95))
	a.Evaluate(ctx, agreedReading(data.TankSump, 96))

	alerts, err := store.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestAlertAutoResolves(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.Evaluate(ctx, agreedReading(data.TankSump, 95))
	a.Evaluate(ctx, agreedReading(data.TankSump, 60))

	open, err := store.UnresolvedAlert(ctx, "dev-1", data.AlertOverflowRisk)
	require.NoError(t, err)
	assert.Nil(t, open)

	alerts, err := store.ListAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Resolved)

	// The condition returning opens a fresh alert.
	a.Evaluate(ctx, agreedReading(data.TankSump, 97))
	alerts, err = store.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestDisagreementDoesNotResolve(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.Evaluate(ctx, agreedReading(data.TankSump, 95))

	r := agreedReading(data.TankSump, 50)
	r.SensorAgreement = false
	a.Evaluate(ctx, r)

	open, err := store.UnresolvedAlert(ctx, "dev-1", data.AlertOverflowRisk)
	require.NoError(t, err)
	assert.NotNil(t, open)
}

func TestDeviceReportedAlertDedup(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.ReportDeviceAlert(ctx, "dev-1", "ultrasonic sensor fault", data.SeverityMedium)
	a.ReportDeviceAlert(ctx, "dev-1", "ultrasonic sensor fault", data.SeverityMedium)

	alerts, err := store.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestMotorOverrunRaisesAndResolves(t *testing.T) {
	a, store := newTestAlerter(t)
	ctx := context.Background()

	a.MotorOverrun(ctx, "dev-1", 31*time.Minute)
	open, err := store.UnresolvedAlert(ctx, "dev-1", data.AlertMotorOverrun)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, data.SeverityHigh, open.Severity)

	a.AcknowledgeMotorOverrun(ctx, "dev-1")
	open, err = store.UnresolvedAlert(ctx, "dev-1", data.AlertMotorOverrun)
	require.NoError(t, err)
	assert.Nil(t, open)
}
