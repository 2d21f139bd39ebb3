package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Snapshot is an immutable view of the book at one evaluation tick. The
// caller builds a fresh Snapshot per tick; nothing in the risk engine
// mutates it.
type Snapshot struct {
	AsOf             time.Time          `json:"as_of"`
	Positions        map[string]float64 `json:"positions"`   // symbol -> quantity
	Cash             float64            `json:"cash"`
	NAV              float64            `json:"nav"`
	PeakNAV          float64            `json:"peak_nav"`
	Weights          map[string]float64 `json:"weights"`     // symbol -> fraction of NAV
	CostBasis        map[string]float64 `json:"cost_basis"`  // symbol -> avg entry price
	Prices           map[string]float64 `json:"prices"`      // symbol -> last mark
	UnrealizedPnL    float64            `json:"unrealized_pnl"`
	TargetVolatility float64            `json:"target_volatility"`
}

// InvalidSnapshotError reports a snapshot the risk engine must not trust.
// Callers treat it as fatal for the tick and fail closed.
type InvalidSnapshotError struct {
	Field  string
	Symbol string
	Value  float64
}

func (e *InvalidSnapshotError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("invalid snapshot: %s[%s]=%v", e.Field, e.Symbol, e.Value)
	}
	return fmt.Sprintf("invalid snapshot: %s=%v", e.Field, e.Value)
}

// Drawdown returns the fractional decline from peak NAV, floored at zero.
// Always recomputed from the snapshot, never cached.
func (s *Snapshot) Drawdown() float64 {
	if s.PeakNAV <= 0 {
		return 0
	}
	dd := (s.PeakNAV - s.NAV) / s.PeakNAV
	if dd < 0 {
		return 0
	}
	return dd
}

// WithPeak returns a copy of the snapshot with the peak NAV ratcheted up to
// the current NAV if the book made a new high. Peak NAV never decreases.
func (s *Snapshot) WithPeak() *Snapshot {
	out := *s
	if out.NAV > out.PeakNAV {
		out.PeakNAV = out.NAV
	}
	return &out
}

// Validate checks every numeric field the engine depends on for NaN/Inf.
// A failure here is the fail-closed trigger: the engine reports Level 4
// rather than guessing.
func (s *Snapshot) Validate() error {
	if !isFinite(s.NAV) {
		return &InvalidSnapshotError{Field: "nav", Value: s.NAV}
	}
	if !isFinite(s.PeakNAV) {
		return &InvalidSnapshotError{Field: "peak_nav", Value: s.PeakNAV}
	}
	if !isFinite(s.Cash) || s.Cash < 0 {
		return &InvalidSnapshotError{Field: "cash", Value: s.Cash}
	}
	for sym, px := range s.Prices {
		if !isFinite(px) {
			return &InvalidSnapshotError{Field: "price", Symbol: sym, Value: px}
		}
	}
	for sym, cb := range s.CostBasis {
		if !isFinite(cb) {
			return &InvalidSnapshotError{Field: "cost_basis", Symbol: sym, Value: cb}
		}
	}
	for sym, w := range s.Weights {
		if !isFinite(w) {
			return &InvalidSnapshotError{Field: "weight", Symbol: sym, Value: w}
		}
	}
	return nil
}

// HeldSymbols returns the symbols with a non-zero open position, in
// deterministic (sorted) order.
func (s *Snapshot) HeldSymbols() []string {
	syms := make([]string, 0, len(s.Positions))
	for sym, qty := range s.Positions {
		if qty != 0 {
			syms = append(syms, sym)
		}
	}
	sort.Strings(syms)
	return syms
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
