package risk

import "math"

// RecoveryPhase is the position of the post-emergency ramp state machine.
type RecoveryPhase string

const (
	PhaseNone     RecoveryPhase = ""
	PhaseCooldown RecoveryPhase = "COOLDOWN"
	PhaseRamp25   RecoveryPhase = "RAMP_25"
	PhaseRamp50   RecoveryPhase = "RAMP_50"
	PhaseRamp75   RecoveryPhase = "RAMP_75"
	PhaseRamp100  RecoveryPhase = "RAMP_100" // = exit recovery
)

// ExposureFraction is the share of normal target exposure permitted in a
// phase. Cooldown holds at zero; exiting recovery restores full exposure.
func (p RecoveryPhase) ExposureFraction() float64 {
	switch p {
	case PhaseCooldown:
		return 0.0
	case PhaseRamp25:
		return 0.25
	case PhaseRamp50:
		return 0.50
	case PhaseRamp75:
		return 0.75
	default:
		return 1.0
	}
}

func (p RecoveryPhase) next() RecoveryPhase {
	switch p {
	case PhaseCooldown:
		return PhaseRamp25
	case PhaseRamp25:
		return PhaseRamp50
	case PhaseRamp50:
		return PhaseRamp75
	case PhaseRamp75:
		return PhaseRamp100
	default:
		return PhaseRamp100
	}
}

// ReEntryConfig tunes the recovery controller.
type ReEntryConfig struct {
	CalmDaysRequired int     `yaml:"calm_days_required"` // consecutive calm days to leave cooldown
	RampStageTicks   int     `yaml:"ramp_stage_ticks"`   // daily ticks per ramp stage (one week)
	RecoveryLeverage float64 `yaml:"recovery_leverage"`  // leverage cap while ramping
	NormalLeverage   float64 `yaml:"normal_leverage"`    // leverage cap outside recovery
}

// DefaultReEntryConfig returns the 5-day cooldown / 7-tick weekly ramp.
func DefaultReEntryConfig() ReEntryConfig {
	return ReEntryConfig{
		CalmDaysRequired: 5,
		RampStageTicks:   7,
		RecoveryLeverage: 1.0,
		NormalLeverage:   1.5,
	}
}

// ReEntryController governs the cooldown and staged ramp back to full
// exposure after a level-4 event. Pure: state in, state out.
type ReEntryController struct {
	config ReEntryConfig
}

// NewReEntryController creates a controller; zero config fields fall back
// to defaults.
func NewReEntryController(cfg ReEntryConfig) *ReEntryController {
	def := DefaultReEntryConfig()
	if cfg.CalmDaysRequired <= 0 {
		cfg.CalmDaysRequired = def.CalmDaysRequired
	}
	if cfg.RampStageTicks <= 0 {
		cfg.RampStageTicks = def.RampStageTicks
	}
	if cfg.RecoveryLeverage <= 0 {
		cfg.RecoveryLeverage = def.RecoveryLeverage
	}
	if cfg.NormalLeverage <= 0 {
		cfg.NormalLeverage = def.NormalLeverage
	}
	return &ReEntryController{config: cfg}
}

// Enter initializes recovery state after a level-4 event.
func (rc *ReEntryController) Enter(st State) State {
	st.RecoveryMode = true
	st.RecoveryPhase = PhaseCooldown
	st.CalmStreak = 0
	st.TicksInPhase = 0
	st.WeeksInRecovery = 0
	return st
}

// Step advances the recovery machine by one daily tick. realizedVol is the
// realized portfolio volatility for the tick; calm means strictly below
// targetVol. A non-finite realizedVol counts as a breach: recovery never
// progresses on data we cannot trust.
//
// Returns the updated state and whether recovery exited this tick.
func (rc *ReEntryController) Step(st State, realizedVol, targetVol float64) (State, bool) {
	if !st.RecoveryMode {
		return st, false
	}

	calm := isCalm(realizedVol, targetVol)

	switch st.RecoveryPhase {
	case PhaseCooldown, PhaseNone:
		st.RecoveryPhase = PhaseCooldown
		if !calm {
			// No partial credit: one breach restarts the streak.
			st.CalmStreak = 0
			return st, false
		}
		st.CalmStreak++
		if st.CalmStreak >= rc.config.CalmDaysRequired {
			st.RecoveryPhase = PhaseRamp25
			st.CalmStreak = 0
			st.TicksInPhase = 0
		}
		return st, false

	case PhaseRamp25, PhaseRamp50, PhaseRamp75:
		if !calm {
			// Breach during any ramp stage: straight back to cooldown.
			st.RecoveryPhase = PhaseCooldown
			st.CalmStreak = 0
			st.TicksInPhase = 0
			return st, false
		}
		st.TicksInPhase++
		if st.TicksInPhase >= rc.config.RampStageTicks {
			st.WeeksInRecovery++
			st.RecoveryPhase = st.RecoveryPhase.next()
			st.TicksInPhase = 0
			if st.RecoveryPhase == PhaseRamp100 {
				return rc.exit(st), true
			}
		}
		return st, false

	case PhaseRamp100:
		return rc.exit(st), true

	default:
		return st, false
	}
}

// ForceResume is the operator override: jump straight to RAMP_100 and exit
// recovery regardless of the automatic criteria. The ForcedResume flag is
// left set so the next assessment records the override as a violation.
func (rc *ReEntryController) ForceResume(st State) (State, error) {
	if !st.RecoveryMode {
		return st, ErrNotInRecovery
	}
	st = rc.exit(st)
	st.ForcedResume = true
	return st, nil
}

// MaxLeverage is the leverage ceiling in effect for a state.
func (rc *ReEntryController) MaxLeverage(st State) float64 {
	if st.RecoveryMode {
		return rc.config.RecoveryLeverage
	}
	return rc.config.NormalLeverage
}

func (rc *ReEntryController) exit(st State) State {
	st.RecoveryMode = false
	st.RecoveryPhase = PhaseNone
	st.CalmStreak = 0
	st.TicksInPhase = 0
	st.WeeksInRecovery = 0
	return st
}

func isCalm(realizedVol, targetVol float64) bool {
	if math.IsNaN(realizedVol) || math.IsInf(realizedVol, 0) {
		return false
	}
	if targetVol <= 0 {
		return false
	}
	return realizedVol < targetVol
}
