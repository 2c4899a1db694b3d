package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tankguard-gateway/internal/data"
)

func testThresholds() Thresholds {
	return Thresholds{
		Low:         20,
		Refill:      30,
		High:        90,
		SafetyFloor: 20,
		Overflow:    90,
		MaxRuntime:  30 * time.Minute,
		MinRest:     5 * time.Minute,
	}
}

func TestStartWhenStorageLowAndSourceHasWater(t *testing.T) {
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            18,
		CounterpartLevel: 40,
		MotorRunning:     false,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Start, d.Action)
	assert.Equal(t, ReasonAutoFill, d.Reason)
}

func TestStopWhenStorageFull(t *testing.T) {
	for _, source := range []float64{5, 50, 95} {
		d := Decide(Input{
			Tank:             data.TankTop,
			Level:            92,
			CounterpartLevel: source,
			MotorRunning:     true,
			Now:              time.Now(),
		}, testThresholds())

		assert.Equal(t, Stop, d.Action, "source=%v", source)
		assert.Equal(t, ReasonSafetyCutoff, d.Reason)
	}
}

func TestStopWhenSourceStarved(t *testing.T) {
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            50,
		CounterpartLevel: 10,
		MotorRunning:     true,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Stop, d.Action)
	assert.Equal(t, ReasonSourceLow, d.Reason)
}

func TestSourceLowIgnoredWhenMotorOff(t *testing.T) {
	// A low source with the motor already off is in band; no redundant Stop.
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            50,
		CounterpartLevel: 10,
		MotorRunning:     false,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Maintain, d.Action)
	assert.Equal(t, ReasonInBand, d.Reason)
}

func TestSumpOverflowStops(t *testing.T) {
	d := Decide(Input{
		Tank:             data.TankSump,
		Level:            95,
		CounterpartLevel: 50,
		MotorRunning:     false,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Stop, d.Action)
	assert.Equal(t, ReasonOverflowGuard, d.Reason)
}

func TestMaintainInsideBand(t *testing.T) {
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            55,
		CounterpartLevel: 55,
		MotorRunning:     true,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Maintain, d.Action)
}

func TestCounterpartDefaultsToNeutral(t *testing.T) {
	// A never-seen counterpart is assumed half full, which satisfies the
	// refill condition.
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            10,
		CounterpartLevel: DefaultCounterpartLevel,
		Now:              time.Now(),
	}, testThresholds())

	assert.Equal(t, Start, d.Action)
}

func TestHysteresisNoChatterAroundLowThreshold(t *testing.T) {
	// Oscillating 19 -> 21 -> 19 inside the 20-90 band must not produce more
	// than one Start per crossing: the 21% sample maps to Maintain, and the
	// cooldown tracker blocks an identical repeat Start.
	th := testThresholds()
	tracker := NewCooldownTracker(10 * time.Second)
	now := time.Now()

	emitted := 0
	levels := []float64{19, 21, 19}
	running := false
	for i, level := range levels {
		d := Decide(Input{
			Tank:             data.TankTop,
			Level:            level,
			CounterpartLevel: 50,
			MotorRunning:     running,
			Now:              now.Add(time.Duration(i) * time.Second),
		}, th)
		if d.Action == Maintain {
			continue
		}
		if tracker.Allow("pump-1", d.Action, now.Add(time.Duration(i)*time.Second)) {
			emitted++
		}
	}

	assert.Equal(t, 1, emitted)
}

func TestMaxRuntimeForcesStop(t *testing.T) {
	now := time.Now()
	d := Decide(Input{
		Tank:             data.TankSump,
		Level:            50,
		CounterpartLevel: 50,
		MotorRunning:     true,
		RunningSince:     now.Add(-31 * time.Minute),
		Now:              now,
	}, testThresholds())

	assert.Equal(t, Stop, d.Action)
	assert.Equal(t, ReasonMaxRuntime, d.Reason)
}

func TestMinRestSuppressesRestart(t *testing.T) {
	now := time.Now()
	d := Decide(Input{
		Tank:             data.TankTop,
		Level:            15,
		CounterpartLevel: 60,
		MotorRunning:     false,
		LastStoppedAt:    now.Add(-2 * time.Minute),
		Now:              now,
	}, testThresholds())

	assert.Equal(t, Maintain, d.Action)
	assert.Equal(t, ReasonMotorResting, d.Reason)
}

func TestDecideIsPure(t *testing.T) {
	in := Input{
		Tank:             data.TankTop,
		Level:            18,
		CounterpartLevel: 40,
		Now:              time.Unix(1700000000, 0),
	}
	th := testThresholds()

	first := Decide(in, th)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Decide(in, th))
	}
}

func TestCooldownBlocksIdenticalCommand(t *testing.T) {
	tracker := NewCooldownTracker(10 * time.Second)
	now := time.Now()

	assert.True(t, tracker.Allow("pump-1", Start, now))
	assert.False(t, tracker.Allow("pump-1", Start, now.Add(5*time.Second)))
	assert.True(t, tracker.Allow("pump-1", Stop, now.Add(6*time.Second)))
	assert.True(t, tracker.Allow("pump-1", Start, now.Add(20*time.Second)))
}

func TestCooldownIsPerDevice(t *testing.T) {
	tracker := NewCooldownTracker(10 * time.Second)
	now := time.Now()

	assert.True(t, tracker.Allow("pump-1", Start, now))
	assert.True(t, tracker.Allow("pump-2", Start, now))
}

func TestCooldownNeverEmitsMaintain(t *testing.T) {
	tracker := NewCooldownTracker(10 * time.Second)
	assert.False(t, tracker.Allow("pump-1", Maintain, time.Now()))
}
