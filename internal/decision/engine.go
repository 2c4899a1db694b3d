// internal/decision/engine.go
package decision

import (
	"time"

	"tankguard-gateway/internal/config"
	"tankguard-gateway/internal/data"
)

// Action is the control output for the pump.
type Action string

const (
	Start    Action = "start"
	Stop     Action = "stop"
	Maintain Action = "maintain"
)

// Decision pairs an action with the rule that produced it.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Reason tags emitted by Decide.
const (
	ReasonAutoFill      = "auto_fill"
	ReasonSafetyCutoff  = "safety_cutoff"
	ReasonSourceLow     = "source_low"
	ReasonOverflowGuard = "overflow_guard"
	ReasonMaxRuntime    = "max_runtime"
	ReasonMotorResting  = "motor_resting"
	ReasonInBand        = "in_band"
)

// Thresholds hold the hysteresis band and runtime guards. Start and Stop
// deliberately use different crossing points so oscillation around a single
// value cannot toggle the pump.
type Thresholds struct {
	Low         float64 // start filling below this
	Refill      float64 // counterpart must exceed this to start
	High        float64 // stop filling above this
	SafetyFloor float64 // stop when the source drops below this
	Overflow    float64 // stop when the source exceeds this
	MaxRuntime  time.Duration
	MinRest     time.Duration
}

// FromConfig builds Thresholds from the loaded configuration.
func FromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Low:         cfg.Motor.LowThreshold,
		Refill:      cfg.Motor.RefillThreshold,
		High:        cfg.Motor.HighThreshold,
		SafetyFloor: cfg.Motor.SafetyFloor,
		Overflow:    cfg.Motor.OverflowThreshold,
		MaxRuntime:  time.Duration(cfg.Motor.MaxRuntimeMinutes) * time.Minute,
		MinRest:     time.Duration(cfg.Motor.MinRestMinutes) * time.Minute,
	}
}

// DefaultCounterpartLevel is assumed for a tank that has never reported.
const DefaultCounterpartLevel = 50.0

// Input is everything Decide looks at. The caller supplies the latest agreed
// reading for the reporting tank, the last known counterpart level, and the
// motor's runtime bookkeeping; Decide itself holds no state.
type Input struct {
	Tank             data.TankRole
	Level            float64
	CounterpartLevel float64
	MotorRunning     bool
	RunningSince     time.Time // zero when the motor is off
	LastStoppedAt    time.Time // zero when it has never run
	Now              time.Time
}

// Decide maps current tank state to a control action. Pure function: same
// input, same output. Callers invoke it at most once per accepted reading
// and apply the cooldown tracker before emitting commands.
func Decide(in Input, th Thresholds) Decision {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	// Runtime guard trumps level policy: a pump running past its limit is
	// stopped regardless of tank levels.
	if in.MotorRunning && !in.RunningSince.IsZero() && th.MaxRuntime > 0 &&
		in.Now.Sub(in.RunningSince) > th.MaxRuntime {
		return Decision{Stop, ReasonMaxRuntime}
	}

	// Stop conditions are checked first so a full or starved system always
	// wins over a pending start. Stop is emitted even when the motor is
	// believed off; the command is idempotent and the cooldown tracker
	// keeps repeats from becoming a storm.
	switch in.Tank {
	case data.TankTop:
		if in.Level > th.High {
			return Decision{Stop, ReasonSafetyCutoff}
		}
		// Source-low stops only an actively pumping motor; an idle motor
		// with a low source is the in-band state, not a fault.
		if in.MotorRunning && in.CounterpartLevel < th.SafetyFloor {
			return Decision{Stop, ReasonSourceLow}
		}
	case data.TankSump:
		if in.Level > th.Overflow {
			return Decision{Stop, ReasonOverflowGuard}
		}
	}

	if !in.MotorRunning && in.Level < th.Low && in.CounterpartLevel > th.Refill {
		if th.MinRest > 0 && !in.LastStoppedAt.IsZero() && in.Now.Sub(in.LastStoppedAt) < th.MinRest {
			return Decision{Maintain, ReasonMotorResting}
		}
		return Decision{Start, ReasonAutoFill}
	}

	return Decision{Maintain, ReasonInBand}
}
