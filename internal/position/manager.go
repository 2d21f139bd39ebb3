package position

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

// Manager turns the engine's directives into target portfolio weights.
// It owns no market logic: given current weights and an assessment, it
// applies reductions, exits, caps, and eligibility rules, and remembers the
// result as the current target book.
type Manager struct {
	log        zerolog.Logger
	safeHavens map[string]bool
	btcClass   map[string]bool

	mu      sync.RWMutex
	targets map[string]float64
}

// NewManager builds a manager with the symbol classes the risk actions
// reference.
func NewManager(log zerolog.Logger, safeHavens, btcClass []string) *Manager {
	m := &Manager{
		log:        log.With().Str("component", "position").Logger(),
		safeHavens: toSet(safeHavens),
		btcClass:   toSet(btcClass),
		targets:    make(map[string]float64),
	}
	return m
}

// Targets returns a copy of the current target weights.
func (m *Manager) Targets() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.targets))
	for k, v := range m.targets {
		out[k] = v
	}
	return out
}

// EntryAllowed reports whether a new entry in symbol is permitted under the
// assessment. Level 1 blocks BTC-class entries only; level 2 and above block
// all new entries; level 3 exempts safe havens; recovery ramps allow entries
// scaled by the exposure cap, which Apply enforces on size rather than here.
func (m *Manager) EntryAllowed(a *risk.Assessment, symbol string) bool {
	if a.FailClosed || a.Level >= risk.LevelEmergency {
		return false
	}
	if a.Level == risk.LevelRestricted {
		return m.safeHavens[symbol]
	}
	if a.Level.BlocksNewEntries() {
		return false
	}
	if a.Level == risk.LevelWarning && m.btcClass[symbol] {
		return false
	}
	return true
}

// Apply computes target weights from the current weights and the tick's
// directives, stores them, and returns them. Order of application: symbol
// stops, level reduction, symbol-class exits, pair caps, exposure cap,
// leverage cap. The result is always the same for the same inputs.
func (m *Manager) Apply(current map[string]float64, a *risk.Assessment, directives []risk.Directive) map[string]float64 {
	targets := make(map[string]float64, len(current))
	for sym, w := range current {
		targets[sym] = w
	}

	// Stop directives first: a per-asset stop binds regardless of level.
	for _, d := range directives {
		switch d.Kind {
		case risk.DirectiveStopExit:
			targets[d.Symbol] = 0
		case risk.DirectiveStopReduce:
			targets[d.Symbol] *= 0.5
		}
	}

	// Level-wide sizing. The emergency zero-factor flattens risk assets
	// only; safe havens are retained through a liquidation.
	if f := a.Level.ReductionFactor(); f < 1.0 {
		for sym := range targets {
			if a.Level >= risk.LevelEmergency && m.safeHavens[sym] {
				continue
			}
			targets[sym] *= f
		}
	}
	for _, act := range a.Actions {
		switch act {
		case risk.ActionCloseBTC:
			for sym := range targets {
				if m.btcClass[sym] {
					targets[sym] = 0
				}
			}
		case risk.ActionSafeHavenOnly:
			// Existing non-haven positions stay at reduced size; the flag
			// binds new entries, via EntryAllowed.
		case risk.ActionLiquidateRisk:
			for sym := range targets {
				if !m.safeHavens[sym] {
					targets[sym] = 0
				}
			}
		}
	}

	// Correlated pairs: cap the combined weight at the directive value.
	for _, d := range directives {
		if d.Kind != risk.DirectivePairWeightCap || len(d.Symbols) != 2 {
			continue
		}
		m.capPair(targets, d.Symbols[0], d.Symbols[1], d.Value)
	}

	// Recovery ramp exposure and leverage, applied to gross exposure.
	for _, d := range directives {
		switch d.Kind {
		case risk.DirectiveExposureCap:
			scaleGross(targets, d.Value)
		case risk.DirectiveLeverageCap:
			if gross(targets) > d.Value {
				scaleGross(targets, d.Value)
			}
		}
	}

	m.mu.Lock()
	m.targets = targets
	m.mu.Unlock()

	m.log.Debug().
		Int("symbols", len(targets)).
		Float64("gross", gross(targets)).
		Str("level", a.Level.String()).
		Msg("targets updated")

	return targets
}

// capPair scales both legs proportionally so |a|+|b| does not exceed limit.
func (m *Manager) capPair(targets map[string]float64, sa, sb string, limit float64) {
	combined := math.Abs(targets[sa]) + math.Abs(targets[sb])
	if combined <= limit || combined == 0 {
		return
	}
	f := limit / combined
	targets[sa] *= f
	targets[sb] *= f
}

// gross is the sum of absolute weights.
func gross(targets map[string]float64) float64 {
	var g float64
	for _, w := range targets {
		g += math.Abs(w)
	}
	return g
}

// scaleGross caps gross exposure at limit by scaling every weight. A limit
// of zero flattens the book.
func scaleGross(targets map[string]float64, limit float64) {
	g := gross(targets)
	if g <= limit {
		return
	}
	if limit <= 0 {
		for sym := range targets {
			targets[sym] = 0
		}
		return
	}
	f := limit / g
	for sym := range targets {
		targets[sym] *= f
	}
}

// Symbols returns the target book's symbols in sorted order.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.targets))
	for sym := range m.targets {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func toSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}
