// internal/alerting/alerter.go
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tankguard-gateway/internal/data"
	"tankguard-gateway/internal/storage"
	"tankguard-gateway/internal/websocket"
)

// Severity thresholds, percent of tank capacity.
const (
	topCriticalLevel = 15.0
	topLowLevel      = 25.0
	sumpOverflow     = 90.0
	sumpLowLevel     = 15.0
)

type rule struct {
	kind     string
	severity data.AlertSeverity
	matches  func(r *data.Reading) bool
	message  func(r *data.Reading) string
}

// Alerter evaluates agreed readings against the severity tables, deduplicates
// on unresolved (device, kind), and auto-resolves once a later agreed reading
// clears the condition. Every created or resolved alert is persisted and
// fanned out to observers.
type Alerter struct {
	store *storage.Store
	hub   *websocket.Hub
	rules []rule
}

func NewAlerter(store *storage.Store, hub *websocket.Hub) *Alerter {
	return &Alerter{
		store: store,
		hub:   hub,
		rules: []rule{
			{
				kind:     data.AlertCriticalLow,
				severity: data.SeverityHigh,
				matches:  func(r *data.Reading) bool { return r.Tank == data.TankTop && r.LevelPercent < topCriticalLevel },
				message: func(r *data.Reading) string {
					return fmt.Sprintf("Top tank critically low: %.1f%%", r.LevelPercent)
				},
			},
			{
				kind:     data.AlertLowLevel,
				severity: data.SeverityMedium,
				matches:  func(r *data.Reading) bool { return r.Tank == data.TankTop && r.LevelPercent < topLowLevel },
				message: func(r *data.Reading) string {
					return fmt.Sprintf("Top tank low: %.1f%%", r.LevelPercent)
				},
			},
			{
				kind:     data.AlertOverflowRisk,
				severity: data.SeverityHigh,
				matches:  func(r *data.Reading) bool { return r.Tank == data.TankSump && r.LevelPercent > sumpOverflow },
				message: func(r *data.Reading) string {
					return fmt.Sprintf("Sump tank overflow risk: %.1f%%", r.LevelPercent)
				},
			},
			{
				kind:     data.AlertSumpLow,
				severity: data.SeverityLow,
				matches:  func(r *data.Reading) bool { return r.Tank == data.TankSump && r.LevelPercent < sumpLowLevel },
				message: func(r *data.Reading) string {
					return fmt.Sprintf("Sump tank needs refill: %.1f%%", r.LevelPercent)
				},
			},
		},
	}
}

// Evaluate processes one reading. Readings without dual-sensor agreement are
// ignored entirely; they must not create or resolve alerts.
func (a *Alerter) Evaluate(ctx context.Context, r *data.Reading) {
	if !r.SensorAgreement {
		return
	}

	for _, rule := range a.rules {
		if rule.matches(r) {
			a.raise(ctx, rule, r)
		} else {
			a.clear(ctx, rule.kind, r)
		}
	}
}

func (a *Alerter) raise(ctx context.Context, rule rule, r *data.Reading) {
	existing, err := a.store.UnresolvedAlert(ctx, r.DeviceID, rule.kind)
	if err != nil {
		logrus.WithError(err).Warn("alert dedup lookup failed")
		return
	}
	if existing != nil {
		// Condition still true, alert already open. Suppress.
		return
	}

	alert := &data.Alert{
		Kind:      rule.kind,
		Severity:  rule.severity,
		DeviceID:  r.DeviceID,
		Message:   rule.message(r),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateAlert(ctx, alert); err != nil {
		logrus.WithError(err).Warn("alert persist failed, broadcasting anyway")
	}
	logrus.WithFields(logrus.Fields{
		"device_id": r.DeviceID,
		"kind":      alert.Kind,
		"severity":  alert.Severity,
	}).Info("alert raised")
	a.hub.Broadcast(websocket.EventAlert, alert)
}

func (a *Alerter) clear(ctx context.Context, kind string, r *data.Reading) {
	existing, err := a.store.UnresolvedAlert(ctx, r.DeviceID, kind)
	if err != nil || existing == nil {
		return
	}

	now := time.Now().UTC()
	if err := a.store.ResolveAlert(ctx, existing.ID, now); err != nil {
		logrus.WithError(err).Warn("alert resolve failed")
		return
	}
	existing.Resolved = true
	existing.ResolvedAt = &now
	logrus.WithFields(logrus.Fields{
		"device_id": r.DeviceID,
		"kind":      kind,
	}).Info("alert resolved")
	a.hub.Broadcast(websocket.EventAlert, existing)
}

// ReportDeviceAlert handles an alert posted by the firmware itself, e.g. a
// sensor fault the device detected locally. Same dedup contract as rule
// alerts; these resolve only by explicit acknowledgment.
func (a *Alerter) ReportDeviceAlert(ctx context.Context, deviceID, message string, severity data.AlertSeverity) {
	existing, err := a.store.UnresolvedAlert(ctx, deviceID, data.AlertDeviceReported)
	if err != nil {
		logrus.WithError(err).Warn("alert dedup lookup failed")
		return
	}
	if existing != nil {
		return
	}

	alert := &data.Alert{
		Kind:      data.AlertDeviceReported,
		Severity:  severity,
		DeviceID:  deviceID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateAlert(ctx, alert); err != nil {
		logrus.WithError(err).Warn("alert persist failed, broadcasting anyway")
	}
	a.hub.Broadcast(websocket.EventAlert, alert)
}

// MotorOverrun raises a high-severity alert when a pump runs past its
// configured limit.
func (a *Alerter) MotorOverrun(ctx context.Context, deviceID string, runtime time.Duration) {
	existing, err := a.store.UnresolvedAlert(ctx, deviceID, data.AlertMotorOverrun)
	if err != nil || existing != nil {
		return
	}

	alert := &data.Alert{
		Kind:      data.AlertMotorOverrun,
		Severity:  data.SeverityHigh,
		DeviceID:  deviceID,
		Message:   fmt.Sprintf("Motor running for %s, past configured limit", runtime.Round(time.Second)),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateAlert(ctx, alert); err != nil {
		logrus.WithError(err).Warn("alert persist failed, broadcasting anyway")
	}
	a.hub.Broadcast(websocket.EventAlert, alert)
}

// AcknowledgeMotorOverrun resolves an open overrun alert after the motor
// stops.
func (a *Alerter) AcknowledgeMotorOverrun(ctx context.Context, deviceID string) {
	existing, err := a.store.UnresolvedAlert(ctx, deviceID, data.AlertMotorOverrun)
	if err != nil || existing == nil {
		return
	}
	now := time.Now().UTC()
	if err := a.store.ResolveAlert(ctx, existing.ID, now); err != nil {
		return
	}
	existing.Resolved = true
	existing.ResolvedAt = &now
	a.hub.Broadcast(websocket.EventAlert, existing)
}
