package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankguard-gateway/internal/data"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestDeviceLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	device := &data.Device{
		ID:         "ESP32_SUMP_002",
		Role:       data.RoleLevelAndPump,
		HMACSecret: "secret",
		Active:     true,
	}
	require.NoError(t, s.UpsertDevice(ctx, device))

	got, err := s.DeviceByID(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, data.RoleLevelAndPump, got.Role)
	assert.Equal(t, "secret", got.HMACSecret)
	assert.True(t, got.Active)

	now := time.Now().UTC()
	require.NoError(t, s.TouchDevice(ctx, device.ID, now))
	got, err = s.DeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)
	assert.WithinDuration(t, now, got.LastSeen, time.Second)

	require.NoError(t, s.DeactivateDevice(ctx, device.ID))
	got, err = s.DeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.Online)

	// Deactivation never deletes.
	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDeviceByIDUnknownIsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.DeviceByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadingsAppendOnlyAndLatestAgreed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	readings := []*data.Reading{
		{DeviceID: "dev-1", Tank: data.TankSump, LevelPercent: 40, SensorAgreement: true, SensorHealthy: true, Timestamp: base},
		{DeviceID: "dev-1", Tank: data.TankSump, LevelPercent: 45, SensorAgreement: false, SensorHealthy: true, Timestamp: base.Add(10 * time.Second)},
		{DeviceID: "dev-1", Tank: data.TankSump, LevelPercent: 42, SensorAgreement: true, SensorHealthy: true, Timestamp: base.Add(5 * time.Second)},
	}
	for _, r := range readings {
		require.NoError(t, s.InsertReading(ctx, r))
		assert.NotZero(t, r.ID)
	}

	// Latest agreed skips the newer disagreeing sample.
	got, err := s.LatestAgreedReading(ctx, data.TankSump)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42.0, got.LevelPercent)

	none, err := s.LatestAgreedReading(ctx, data.TankTop)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReadingFloatSwitchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fs := true
	r := &data.Reading{
		DeviceID: "dev-1", Tank: data.TankTop, LevelPercent: 88,
		FloatSwitch: &fs, SensorAgreement: true, SensorHealthy: true,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, s.InsertReading(ctx, r))

	got, err := s.LatestAgreedReading(ctx, data.TankTop)
	require.NoError(t, err)
	require.NotNil(t, got.FloatSwitch)
	assert.True(t, *got.FloatSwitch)
}

func TestMotorEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertMotorEvent(ctx, &data.MotorEvent{
		DeviceID: "dev-1", Transition: data.MotorStarted, Timestamp: now.Add(-time.Minute),
	}))
	require.NoError(t, s.InsertMotorEvent(ctx, &data.MotorEvent{
		DeviceID: "dev-1", Transition: data.MotorStopped, Duration: 60, Timestamp: now,
	}))

	got, err := s.LastMotorEvent(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, data.MotorStopped, got.Transition)
	assert.Equal(t, 60.0, got.Duration)

	none, err := s.LastMotorEvent(ctx, "dev-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAlertDedupAndResolve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := &data.Alert{
		Kind: data.AlertCriticalLow, Severity: data.SeverityHigh,
		DeviceID: "dev-1", Message: "low", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAlert(ctx, alert))

	open, err := s.UnresolvedAlert(ctx, "dev-1", data.AlertCriticalLow)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, alert.ID, open.ID)

	require.NoError(t, s.ResolveAlert(ctx, alert.ID, time.Now().UTC()))
	open, err = s.UnresolvedAlert(ctx, "dev-1", data.AlertCriticalLow)
	require.NoError(t, err)
	assert.Nil(t, open)

	alerts, err := s.ListAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Resolved)
	assert.NotNil(t, alerts[0].ResolvedAt)
}

func TestCommandUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cmd := &data.Command{
		ID: "cmd-1", DeviceID: "dev-1", Type: data.CommandMotorStop,
		Payload: map[string]any{"reason": "safety_cutoff"},
		Status:  data.CommandPending, CreatedAt: now,
	}
	require.NoError(t, s.SaveCommand(ctx, cmd))

	cmd.Status = data.CommandAcknowledged
	cmd.AckedAt = now.Add(time.Second)
	cmd.AckStatus = "success"
	require.NoError(t, s.SaveCommand(ctx, cmd))
}
