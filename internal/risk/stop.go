package risk

import "math"

// StopAction is the directive produced by a single-asset stop breach.
type StopAction string

const (
	StopReduceToHalf StopAction = "REDUCE_TO_HALF"
	StopFullExit     StopAction = "FULL_EXIT"
)

// StopEvent records a per-symbol stop-loss trigger. These fire independently
// of the portfolio level; a symbol can stop out while the book is at level 0.
type StopEvent struct {
	Symbol            string     `json:"symbol"`
	DrawdownFromEntry float64    `json:"drawdown_from_entry"`
	Action            StopAction `json:"action"`
}

// StopThresholds are the per-asset drawdown-from-entry triggers. Both are
// strict greater-than comparisons.
type StopThresholds struct {
	ReducePct float64 `yaml:"reduce_pct"` // > this -> REDUCE_TO_HALF
	ExitPct   float64 `yaml:"exit_pct"`   // > this -> FULL_EXIT
}

// DefaultStopThresholds returns the 12%/18% ladder.
func DefaultStopThresholds() StopThresholds {
	return StopThresholds{ReducePct: 0.12, ExitPct: 0.18}
}

// StopMonitor evaluates per-symbol stops. Pure; it holds configuration only.
type StopMonitor struct {
	thresholds StopThresholds
}

// NewStopMonitor creates a stop monitor with the given thresholds.
func NewStopMonitor(t StopThresholds) *StopMonitor {
	return &StopMonitor{thresholds: t}
}

// Evaluate checks one symbol's drawdown from entry. Returns nil when no
// stop fires or when the prices cannot support a decision: zero or negative
// entry or current price, or non-finite values.
func (m *StopMonitor) Evaluate(symbol string, entryPrice, currentPrice float64) *StopEvent {
	if entryPrice <= 0 || currentPrice <= 0 {
		return nil
	}
	if math.IsNaN(entryPrice) || math.IsInf(entryPrice, 0) ||
		math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return nil
	}

	dd := (entryPrice - currentPrice) / entryPrice

	// Exit is authoritative over reduce; both boundaries are strict.
	if dd > m.thresholds.ExitPct {
		return &StopEvent{Symbol: symbol, DrawdownFromEntry: dd, Action: StopFullExit}
	}
	if dd > m.thresholds.ReducePct {
		return &StopEvent{Symbol: symbol, DrawdownFromEntry: dd, Action: StopReduceToHalf}
	}
	return nil
}
