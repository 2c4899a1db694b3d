// internal/data/models.go
package data

import "time"

// DeviceRole identifies what a device is capable of.
type DeviceRole string

const (
	RoleLevelSensor  DeviceRole = "level_sensor"   // top tank: level reporting only
	RoleLevelAndPump DeviceRole = "level_and_pump" // sump tank: level + motor relay
)

// TankRole tags which tank a reading describes.
type TankRole string

const (
	TankTop  TankRole = "top_tank"
	TankSump TankRole = "sump_tank"
)

// Valid reports whether the tank role is one of the two known tanks.
func (r TankRole) Valid() bool {
	return r == TankTop || r == TankSump
}

// Counterpart returns the other tank of the pair.
func (r TankRole) Counterpart() TankRole {
	if r == TankTop {
		return TankSump
	}
	return TankTop
}

// Device is a registered ESP32 node. Devices are never deleted, only
// deactivated.
type Device struct {
	ID         string     `json:"id"`
	Role       DeviceRole `json:"role"`
	HMACSecret string     `json:"-"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	Firmware   string     `json:"firmware,omitempty"`
	Active     bool       `json:"active"`
	Online     bool       `json:"online"`
	LastSeen   time.Time  `json:"last_seen"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Reading is one validated telemetry sample. Immutable once stored.
type Reading struct {
	ID              int64     `json:"id,omitempty"`
	DeviceID        string    `json:"device_id"`
	Tank            TankRole  `json:"tank_role"`
	LevelPercent    float64   `json:"level_percentage"`
	VolumeLiters    float64   `json:"level_liters"`
	SensorHealthy   bool      `json:"sensor_health"`
	FloatSwitch     *bool     `json:"float_switch,omitempty"`
	SensorAgreement bool      `json:"dual_sensor_agreement"`
	MotorRunning    bool      `json:"motor_running"`
	ManualOverride  bool      `json:"manual_override"`
	AutoMode        bool      `json:"auto_mode_enabled"`
	Timestamp       time.Time `json:"timestamp"`
}

// MotorEvent records a confirmed pump state transition.
type MotorEvent struct {
	ID          int64     `json:"id,omitempty"`
	DeviceID    string    `json:"device_id"`
	Transition  string    `json:"transition"` // "started" or "stopped"
	Duration    float64   `json:"duration_seconds,omitempty"`
	CurrentDraw *float64  `json:"current_draw_amps,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	MotorStarted = "started"
	MotorStopped = "stopped"
)

// AlertSeverity levels, lowest to highest.
type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// Alert kinds produced by the dispatcher.
const (
	AlertCriticalLow    = "critical_low"
	AlertLowLevel       = "low_level"
	AlertOverflowRisk   = "overflow_risk"
	AlertSumpLow        = "sump_low"
	AlertMotorOverrun   = "motor_overrun"
	AlertDeviceReported = "device_reported"
)

// Alert is a safety notification keyed by (device, kind) while unresolved.
type Alert struct {
	ID         int64         `json:"id,omitempty"`
	Kind       string        `json:"kind"`
	Severity   AlertSeverity `json:"severity"`
	DeviceID   string        `json:"device_id"`
	Message    string        `json:"message"`
	Resolved   bool          `json:"resolved"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// CommandStatus is the delivery lifecycle state of a Command.
type CommandStatus string

const (
	CommandPending      CommandStatus = "pending"
	CommandDelivered    CommandStatus = "delivered"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandExpired      CommandStatus = "expired"
)

// Command types understood by the firmware.
const (
	CommandMotorStart   = "motor_start"
	CommandMotorStop    = "motor_stop"
	CommandSetAutoMode  = "set_auto_mode"
	CommandConfigUpdate = "config_update"
	CommandReboot       = "reboot"
)

// Command is a control or config instruction bound for one device.
// Delivery is at-least-once; devices de-duplicate by ID.
type Command struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"device_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      CommandStatus  `json:"status"`
	Critical    bool           `json:"critical,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt time.Time      `json:"delivered_at,omitempty"`
	AckedAt     time.Time      `json:"acked_at,omitempty"`
	AckStatus   string         `json:"ack_status,omitempty"`
}
