package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetVol = 0.15

func TestReEntryCooldownRequiresConsecutiveCalmDays(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{Level: LevelEmergency})
	require.Equal(t, PhaseCooldown, st.RecoveryPhase)

	// Four calm days, then a breach: the streak restarts from zero.
	for i := 0; i < 4; i++ {
		st, _ = rc.Step(st, 0.10, targetVol)
	}
	assert.Equal(t, 4, st.CalmStreak)

	st, _ = rc.Step(st, 0.30, targetVol)
	assert.Equal(t, 0, st.CalmStreak)
	assert.Equal(t, PhaseCooldown, st.RecoveryPhase)

	// A full run of five calm days unlocks the first ramp stage.
	for i := 0; i < 5; i++ {
		st, _ = rc.Step(st, 0.10, targetVol)
	}
	assert.Equal(t, PhaseRamp25, st.RecoveryPhase)
	assert.Equal(t, 0, st.TicksInPhase)
}

func TestReEntryCalmIsStrictlyBelowTarget(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{})

	// Exactly at target is not calm.
	st, _ = rc.Step(st, targetVol, targetVol)
	assert.Equal(t, 0, st.CalmStreak)

	st, _ = rc.Step(st, targetVol-1e-9, targetVol)
	assert.Equal(t, 1, st.CalmStreak)
}

func TestReEntryNonFiniteVolIsBreach(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{})

	st, _ = rc.Step(st, 0.10, targetVol)
	require.Equal(t, 1, st.CalmStreak)

	st, _ = rc.Step(st, math.NaN(), targetVol)
	assert.Equal(t, 0, st.CalmStreak)
}

func TestReEntryFullRampProgression(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{})

	for i := 0; i < 5; i++ {
		st, _ = rc.Step(st, 0.10, targetVol)
	}
	require.Equal(t, PhaseRamp25, st.RecoveryPhase)
	assert.Equal(t, 0.25, st.RecoveryPhase.ExposureFraction())

	// Each ramp stage takes seven calm ticks and bumps the week counter.
	wantPhases := []RecoveryPhase{PhaseRamp50, PhaseRamp75}
	for stage, want := range wantPhases {
		var exited bool
		for i := 0; i < 7; i++ {
			st, exited = rc.Step(st, 0.10, targetVol)
			assert.False(t, exited)
		}
		assert.Equal(t, want, st.RecoveryPhase)
		assert.Equal(t, stage+1, st.WeeksInRecovery)
	}

	// Completing RAMP_75 reaches full exposure and exits recovery.
	var exited bool
	for i := 0; i < 7; i++ {
		st, exited = rc.Step(st, 0.10, targetVol)
	}
	assert.True(t, exited)
	assert.False(t, st.RecoveryMode)
	assert.Equal(t, PhaseNone, st.RecoveryPhase)
	assert.Equal(t, 0, st.WeeksInRecovery) // reset on exit
}

func TestReEntryBreachDuringRampReturnsToCooldown(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{})

	for i := 0; i < 5; i++ {
		st, _ = rc.Step(st, 0.10, targetVol)
	}
	for i := 0; i < 3; i++ {
		st, _ = rc.Step(st, 0.10, targetVol)
	}
	require.Equal(t, PhaseRamp25, st.RecoveryPhase)
	require.Equal(t, 3, st.TicksInPhase)

	st, exited := rc.Step(st, 0.40, targetVol)
	assert.False(t, exited)
	assert.Equal(t, PhaseCooldown, st.RecoveryPhase)
	assert.Equal(t, 0, st.CalmStreak)
	assert.Equal(t, 0, st.TicksInPhase)
	assert.Equal(t, 0.0, st.RecoveryPhase.ExposureFraction())
}

func TestReEntryForceResume(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := rc.Enter(State{})

	next, err := rc.ForceResume(st)
	require.NoError(t, err)
	assert.False(t, next.RecoveryMode)
	assert.True(t, next.ForcedResume)

	// A second resume fails once recovery has already exited.
	_, err = rc.ForceResume(next)
	assert.ErrorIs(t, err, ErrNotInRecovery)
}

func TestReEntryLeverageCaps(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())

	inRecovery := rc.Enter(State{})
	assert.Equal(t, 1.0, rc.MaxLeverage(inRecovery))
	assert.Equal(t, 1.5, rc.MaxLeverage(State{}))
}

func TestReEntryStepOutsideRecoveryIsNoop(t *testing.T) {
	rc := NewReEntryController(DefaultReEntryConfig())
	st := State{Level: LevelNormal}

	next, exited := rc.Step(st, 0.10, targetVol)
	assert.False(t, exited)
	assert.Equal(t, st, next)
}
