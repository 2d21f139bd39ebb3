package risk

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the only mutable process state in the subsystem. It is owned by
// the engine, passed in explicitly each tick, and persisted by the state
// store between runs. Everything else is recomputed fresh.
type State struct {
	Level           Level         `json:"level"`
	LevelEnteredAt  time.Time     `json:"level_entered_at"`
	RecoveryMode    bool          `json:"recovery_mode"`
	RecoveryPhase   RecoveryPhase `json:"recovery_phase"`
	CalmStreak      int           `json:"calm_streak"`       // consecutive calm days in cooldown
	TicksInPhase    int           `json:"ticks_in_phase"`    // daily ticks into the current ramp stage
	WeeksInRecovery int           `json:"weeks_in_recovery"` // completed ramp stages
	ForcedResume    bool          `json:"forced_resume"`     // operator override pending audit
	UpdatedAt       time.Time     `json:"updated_at"`        // snapshot as-of of the last commit
}

// InitialState is the state of a book that has never breached level 0.
func InitialState(now time.Time) State {
	return State{Level: LevelNormal, LevelEnteredAt: now, UpdatedAt: now}
}

// Assessment is the immutable output of one evaluation tick.
type Assessment struct {
	ID                 string             `json:"id"`
	AsOf               time.Time          `json:"as_of"`
	Level              Level              `json:"level"`
	PortfolioDrawdown  float64            `json:"portfolio_drawdown"`
	Correlation        *CorrelationMatrix `json:"correlation,omitempty"`
	CorrelationAlerts  []CorrelationAlert `json:"correlation_alerts,omitempty"`
	StopEvents         []StopEvent        `json:"stop_events,omitempty"`
	Violations         []string           `json:"violations"`
	Actions            []Action           `json:"actions"`
	RecoveryMode       bool               `json:"recovery_mode"`
	RecoveryPhase      RecoveryPhase      `json:"recovery_phase,omitempty"`
	WeeksInRecovery    int                `json:"weeks_in_recovery"`
	RealizedVolatility float64            `json:"realized_volatility"`
	FailClosed         bool               `json:"fail_closed"`
}

// DirectiveKind classifies a position-adjustment directive.
type DirectiveKind string

const (
	DirectiveStopReduce      DirectiveKind = "STOP_REDUCE"      // reduce symbol to half size
	DirectiveStopExit        DirectiveKind = "STOP_EXIT"        // exit symbol entirely
	DirectivePortfolioAction DirectiveKind = "PORTFOLIO_ACTION" // level action set entry
	DirectiveExposureCap     DirectiveKind = "EXPOSURE_CAP"     // recovery ramp fraction
	DirectiveLeverageCap     DirectiveKind = "LEVERAGE_CAP"
	DirectivePairWeightCap   DirectiveKind = "PAIR_WEIGHT_CAP" // correlated pair combined-weight cut
)

// Directive is one concrete instruction handed to the position manager.
// The engine only emits; translation into orders is the manager's job.
type Directive struct {
	Kind    DirectiveKind `json:"kind"`
	Symbol  string        `json:"symbol,omitempty"`
	Symbols []string      `json:"symbols,omitempty"` // for pair caps
	Action  Action        `json:"action,omitempty"`
	Value   float64       `json:"value,omitempty"`
	Reason  string        `json:"reason"`
}

// assessmentID derives a ULID from the snapshot time alone, so evaluating
// twice over identical inputs yields identical output.
func assessmentID(asOf time.Time) string {
	src := rand.New(rand.NewSource(asOf.UnixNano()))
	return ulid.MustNew(ulid.Timestamp(asOf.UTC()), src).String()
}
