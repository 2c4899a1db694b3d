// internal/data/telemetry.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidReading marks a payload that is malformed or out of range.
// Such payloads are rejected without being persisted.
var ErrInvalidReading = errors.New("invalid reading")

// TelemetryPayload is the wire shape posted by the firmware.
type TelemetryPayload struct {
	TankRole        TankRole `json:"tank_role"`
	LevelPercentage *float64 `json:"level_percentage"`
	LevelLiters     *float64 `json:"level_liters"`
	SensorHealth    bool     `json:"sensor_health"`
	FloatSwitch     *bool    `json:"float_switch"`
	MotorRunning    bool     `json:"motor_running"`
	ManualOverride  bool     `json:"manual_override"`
	AutoModeEnabled bool     `json:"auto_mode_enabled"`
	Timestamp       string   `json:"timestamp"`
	ProtocolVersion int      `json:"protocol_version"`
}

// Validator normalizes raw telemetry into Readings. Tolerance and the float
// switch mounting level come from configuration; capacities map tank role to
// full volume in liters.
type Validator struct {
	Tolerance        float64
	FloatSwitchLevel float64
	Capacities       map[TankRole]float64
}

// ParseReading validates a raw telemetry body from the given device and
// returns a normalized Reading with derived volume and the dual-sensor
// agreement flag computed. The reading timestamp falls back to the server
// clock when the payload carries none.
func (v *Validator) ParseReading(raw []byte, deviceID string) (*Reading, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrInvalidReading)
	}

	var p TelemetryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	if !p.TankRole.Valid() {
		return nil, fmt.Errorf("%w: unknown tank role %q", ErrInvalidReading, p.TankRole)
	}
	if p.LevelPercentage == nil {
		return nil, fmt.Errorf("%w: missing level_percentage", ErrInvalidReading)
	}
	pct := *p.LevelPercentage
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("%w: level_percentage %.2f out of range", ErrInvalidReading, pct)
	}

	r := &Reading{
		DeviceID:       deviceID,
		Tank:           p.TankRole,
		LevelPercent:   pct,
		SensorHealthy:  p.SensorHealth,
		FloatSwitch:    p.FloatSwitch,
		MotorRunning:   p.MotorRunning,
		ManualOverride: p.ManualOverride,
		AutoMode:       p.AutoModeEnabled,
		Timestamp:      time.Now().UTC(),
	}

	if p.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			r.Timestamp = t.UTC()
		}
	}

	// Derived volume prefers the server-side capacity table; the firmware's
	// own liters figure is only a fallback for unconfigured tanks.
	if capacity, ok := v.Capacities[p.TankRole]; ok && capacity > 0 {
		r.VolumeLiters = pct / 100 * capacity
	} else if p.LevelLiters != nil {
		r.VolumeLiters = *p.LevelLiters
	}

	r.SensorAgreement = v.agreement(pct, p.SensorHealth, p.FloatSwitch)
	return r, nil
}

// agreement decides whether the ultrasonic estimate and the float switch
// corroborate each other. An active switch means water sits at or above the
// switch mounting level; the percentage must land on the same side within
// the tolerance band. Without a switch the device's own sensor-health flag
// is all we have.
func (v *Validator) agreement(pct float64, healthy bool, floatSwitch *bool) bool {
	if !healthy {
		return false
	}
	if floatSwitch == nil {
		return true
	}
	if *floatSwitch {
		return pct >= v.FloatSwitchLevel-v.Tolerance
	}
	return pct <= v.FloatSwitchLevel+v.Tolerance
}
