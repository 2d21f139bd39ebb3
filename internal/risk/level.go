package risk

// Level is the portfolio-wide risk level, 0 (normal) through 4 (emergency).
type Level int

const (
	LevelNormal     Level = 0
	LevelWarning    Level = 1
	LevelReduced    Level = 2
	LevelRestricted Level = 3
	LevelEmergency  Level = 4
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelReduced:
		return "reduced"
	case LevelRestricted:
		return "restricted"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Action identifies one entry of a level's action set. The position manager
// translates these into target-weight changes; the engine only emits them.
type Action string

const (
	ActionAlertWarning        Action = "ALERT_WARNING"
	ActionRaiseEntryThreshold Action = "RAISE_ENTRY_CONFIDENCE"
	ActionBlockBTCEntries     Action = "BLOCK_BTC_NEW"
	ActionReduceAll25         Action = "REDUCE_ALL_25PCT"
	ActionCloseBTC            Action = "CLOSE_BTC"
	ActionSellOnly            Action = "SELL_ONLY"
	ActionReduceToHalfTarget  Action = "REDUCE_TO_50PCT_TARGET"
	ActionSafeHavenOnly       Action = "SAFE_HAVEN_ONLY"
	ActionManualReview        Action = "MANUAL_REVIEW"
	ActionLiquidateRisk       Action = "EMERGENCY_LIQUIDATION"
	ActionRequireConfirm      Action = "REQUIRE_MANUAL_CONFIRM"
)

// LevelThresholds are the lower-inclusive drawdown boundaries for levels
// 1 through 4. Level 0 covers everything below Warn.
type LevelThresholds struct {
	Warn      float64 `yaml:"warn"`      // level 1
	Reduce    float64 `yaml:"reduce"`    // level 2
	Restrict  float64 `yaml:"restrict"`  // level 3
	Emergency float64 `yaml:"emergency"` // level 4
}

// DefaultLevelThresholds returns the 5/8/12/15 ladder.
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{
		Warn:      0.05,
		Reduce:    0.08,
		Restrict:  0.12,
		Emergency: 0.15,
	}
}

// LevelForDrawdown maps a drawdown fraction onto the level ladder.
// Boundaries are lower-inclusive, so level is non-decreasing in drawdown.
func (t LevelThresholds) LevelForDrawdown(dd float64) Level {
	switch {
	case dd >= t.Emergency:
		return LevelEmergency
	case dd >= t.Restrict:
		return LevelRestricted
	case dd >= t.Reduce:
		return LevelReduced
	case dd >= t.Warn:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Actions returns the action set for a level, in emission order.
func (l Level) Actions() []Action {
	switch l {
	case LevelWarning:
		return []Action{ActionAlertWarning, ActionRaiseEntryThreshold, ActionBlockBTCEntries}
	case LevelReduced:
		return []Action{ActionReduceAll25, ActionCloseBTC, ActionSellOnly}
	case LevelRestricted:
		return []Action{ActionReduceToHalfTarget, ActionSafeHavenOnly, ActionManualReview}
	case LevelEmergency:
		return []Action{ActionLiquidateRisk, ActionRequireConfirm}
	default:
		return nil
	}
}

// ReductionFactor is the multiplier applied to current position size at a
// given level. Levels 0 and 1 leave sizing alone.
func (l Level) ReductionFactor() float64 {
	switch l {
	case LevelReduced:
		return 0.75
	case LevelRestricted:
		return 0.50
	case LevelEmergency:
		return 0.0
	default:
		return 1.0
	}
}

// SellOnly reports whether new orders are restricted to sell/reduce.
func (l Level) SellOnly() bool { return l >= LevelReduced }

// BlocksNewEntries reports whether all new entries are blocked.
func (l Level) BlocksNewEntries() bool { return l >= LevelReduced }

func maxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
