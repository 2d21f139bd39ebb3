package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/portfolio"
)

// EngineConfig assembles the tunables of all four risk components.
type EngineConfig struct {
	Levels            LevelThresholds       `yaml:"levels"`
	Stops             StopThresholds        `yaml:"stops"`
	Correlation       CorrelationThresholds `yaml:"correlation"`
	CorrelationWindow int                   `yaml:"correlation_window"`
	VolatilityWindow  int                   `yaml:"volatility_window"`
	ReEntry           ReEntryConfig         `yaml:"reentry"`
	SafeHavens        []string              `yaml:"safe_havens"`     // e.g. GLD, TLT
	BTCClass          []string              `yaml:"btc_class"`       // e.g. BTC-USD
	PairWeightCap     float64               `yaml:"pair_weight_cap"` // combined cap for a breached pair
}

// DefaultEngineConfig returns the production ladder: 5/8/12/15 levels,
// 12/18 stops, 0.70/0.50/0.80 correlation over a 60-observation window.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Levels:            DefaultLevelThresholds(),
		Stops:             DefaultStopThresholds(),
		Correlation:       DefaultCorrelationThresholds(),
		CorrelationWindow: 60,
		VolatilityWindow:  20,
		ReEntry:           DefaultReEntryConfig(),
		SafeHavens:        []string{"GLD", "TLT"},
		BTCClass:          []string{"BTC-USD"},
		PairWeightCap:     0.25,
	}
}

// Engine is the hierarchical risk controller: drawdown leveling, systemic
// correlation monitoring, per-asset stops and post-emergency re-entry,
// combined over one shared snapshot per tick.
//
// The engine performs no I/O and holds no mutable state; prior state is
// passed in and the successor returned. One evaluation per portfolio may be
// logically in flight at a time; the store enforces that on commit.
type Engine struct {
	config      EngineConfig
	stops       *StopMonitor
	correlation *CorrelationMonitor
	reentry     *ReEntryController
	safeHavens  map[string]bool
	btcClass    map[string]bool
	volWindow   int
}

// NewEngine builds an engine; zero-valued config sections fall back to
// defaults.
func NewEngine(cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.Levels == (LevelThresholds{}) {
		cfg.Levels = def.Levels
	}
	if cfg.Stops == (StopThresholds{}) {
		cfg.Stops = def.Stops
	}
	if cfg.Correlation == (CorrelationThresholds{}) {
		cfg.Correlation = def.Correlation
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = def.CorrelationWindow
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = def.VolatilityWindow
	}
	if len(cfg.SafeHavens) == 0 {
		cfg.SafeHavens = def.SafeHavens
	}
	if len(cfg.BTCClass) == 0 {
		cfg.BTCClass = def.BTCClass
	}
	if cfg.PairWeightCap <= 0 {
		cfg.PairWeightCap = def.PairWeightCap
	}

	return &Engine{
		config:      cfg,
		stops:       NewStopMonitor(cfg.Stops),
		correlation: NewCorrelationMonitor(cfg.CorrelationWindow, cfg.Correlation),
		reentry:     NewReEntryController(cfg.ReEntry),
		safeHavens:  toSet(cfg.SafeHavens),
		btcClass:    toSet(cfg.BTCClass),
		volWindow:   cfg.VolatilityWindow,
	}
}

// IsSafeHaven reports whether a symbol is a designated safe-haven holding.
func (e *Engine) IsSafeHaven(symbol string) bool { return e.safeHavens[symbol] }

// IsBTCClass reports whether a symbol belongs to the BTC asset class.
func (e *Engine) IsBTCClass(symbol string) bool { return e.btcClass[symbol] }

// Evaluate runs one risk tick: snapshot plus return-series window in,
// assessment plus successor state plus position directives out.
//
// On an invalid snapshot the engine fails closed: the returned assessment
// carries Level 4 with FailClosed set, the error is surfaced, and no normal
// state transition is derived from the bad inputs.
func (e *Engine) Evaluate(snap *portfolio.Snapshot, returns map[string][]float64, prior State) (*Assessment, State, []Directive, error) {
	if err := snap.Validate(); err != nil {
		return e.failClosed(snap, prior, err)
	}

	snap = snap.WithPeak()
	dd := snap.Drawdown()

	matrix, corrAlerts := e.correlation.Assess(returns)
	realizedVol := e.realizedVolatility(snap, returns)

	var violations []string
	if matrix.Empty() && len(returns) > 0 {
		// Degraded: no correlation alerts this tick. Drawdown leveling is
		// unaffected, but the gap is recorded for audit.
		violations = append(violations, "correlation_window_insufficient")
	}

	// Per-asset stops run regardless of the portfolio level.
	stopEvents, stopDirectives := e.evaluateStops(snap)

	ddLevel := e.config.Levels.LevelForDrawdown(dd)
	corrLevel := correlationLevel(corrAlerts)
	level := maxLevel(ddLevel, corrLevel)

	next := prior
	next.UpdatedAt = snap.AsOf
	exitedRecovery := false
	inRamp := false

	if prior.ForcedResume {
		violations = append(violations, "manual_resume_override")
		next.ForcedResume = false
	}

	if prior.RecoveryMode {
		// Recovery path: level stays pinned at 4 until the re-entry
		// controller authorizes exit.
		next, exitedRecovery = e.reentry.Step(next, realizedVol, snap.TargetVolatility)
		if exitedRecovery {
			violations = append(violations, "recovery_complete")
		} else {
			level = LevelEmergency
			inRamp = true
		}
	}

	if level == LevelEmergency && !next.RecoveryMode && !exitedRecovery {
		next = e.reentry.Enter(next)
		violations = append(violations, "recovery_started")
	}

	if level != prior.Level {
		violations = append(violations, fmt.Sprintf("risk_level_%d_to_%d", prior.Level, level))
		next.LevelEnteredAt = snap.AsOf
	}
	next.Level = level

	for _, a := range corrAlerts {
		violations = append(violations, correlationViolation(a))
	}
	for _, ev := range stopEvents {
		violations = append(violations, fmt.Sprintf("stop_%s_%s", ev.Action, ev.Symbol))
	}

	// While ramping back up the level stays pinned at 4 but the emergency
	// action set must not re-fire; the exposure and leverage cap directives
	// govern instead.
	actions := level.Actions()
	if inRamp {
		actions = []Action{ActionRequireConfirm}
	}

	assessment := &Assessment{
		ID:                 assessmentID(snap.AsOf),
		AsOf:               snap.AsOf,
		Level:              level,
		PortfolioDrawdown:  dd,
		Correlation:        matrix,
		CorrelationAlerts:  corrAlerts,
		StopEvents:         stopEvents,
		Violations:         violations,
		Actions:            actions,
		RecoveryMode:       next.RecoveryMode,
		RecoveryPhase:      next.RecoveryPhase,
		WeeksInRecovery:    next.WeeksInRecovery,
		RealizedVolatility: realizedVol,
	}

	directives := e.buildDirectives(assessment, next, stopDirectives, corrAlerts)
	return assessment, next, directives, nil
}

// ForceResume applies the operator override during recovery: jump straight
// to full exposure. Recorded as a violation on the next assessment via the
// returned state; callers must also audit the call site.
func (e *Engine) ForceResume(prior State) (State, error) {
	return e.reentry.ForceResume(prior)
}

// MaxLeverage returns the leverage ceiling in effect for a state.
func (e *Engine) MaxLeverage(st State) float64 { return e.reentry.MaxLeverage(st) }

func (e *Engine) failClosed(snap *portfolio.Snapshot, prior State, cause error) (*Assessment, State, []Directive, error) {
	next := prior
	next.Level = LevelEmergency
	next.UpdatedAt = snap.AsOf

	assessment := &Assessment{
		ID:                assessmentID(snap.AsOf),
		AsOf:              snap.AsOf,
		Level:             LevelEmergency,
		PortfolioDrawdown: math.NaN(),
		Violations:        []string{"fail_closed: " + cause.Error()},
		Actions:           LevelEmergency.Actions(),
		RecoveryMode:      prior.RecoveryMode,
		RecoveryPhase:     prior.RecoveryPhase,
		WeeksInRecovery:   prior.WeeksInRecovery,
		FailClosed:        true,
	}
	directives := []Directive{{
		Kind:   DirectivePortfolioAction,
		Action: ActionRequireConfirm,
		Reason: "fail_closed_invalid_input",
	}}
	return assessment, next, directives, cause
}

func (e *Engine) evaluateStops(snap *portfolio.Snapshot) ([]StopEvent, []Directive) {
	var events []StopEvent
	var directives []Directive
	for _, sym := range snap.HeldSymbols() {
		entry, okEntry := snap.CostBasis[sym]
		price, okPrice := snap.Prices[sym]
		if !okEntry || !okPrice {
			continue // no cost basis or mark: no-op per contract
		}
		ev := e.stops.Evaluate(sym, entry, price)
		if ev == nil {
			continue
		}
		events = append(events, *ev)
		switch ev.Action {
		case StopFullExit:
			directives = append(directives, Directive{
				Kind:   DirectiveStopExit,
				Symbol: sym,
				Value:  ev.DrawdownFromEntry,
				Reason: "single_asset_stop_exit",
			})
		case StopReduceToHalf:
			directives = append(directives, Directive{
				Kind:   DirectiveStopReduce,
				Symbol: sym,
				Value:  ev.DrawdownFromEntry,
				Reason: "single_asset_stop_reduce",
			})
		}
	}
	return events, directives
}

func (e *Engine) buildDirectives(a *Assessment, st State, stops []Directive, corrAlerts []CorrelationAlert) []Directive {
	directives := make([]Directive, 0, len(stops)+len(a.Actions)+2)
	directives = append(directives, stops...)

	for _, action := range a.Actions {
		directives = append(directives, Directive{
			Kind:   DirectivePortfolioAction,
			Action: action,
			Reason: fmt.Sprintf("risk_level_%d", a.Level),
		})
	}
	for _, alert := range corrAlerts {
		if alert.Kind == AlertPairwise {
			directives = append(directives, Directive{
				Kind:    DirectivePairWeightCap,
				Symbols: alert.Symbols,
				Value:   e.config.PairWeightCap,
				Reason:  fmt.Sprintf("pairwise_correlation_%.3f", alert.Value),
			})
		}
	}
	if st.RecoveryMode {
		directives = append(directives, Directive{
			Kind:   DirectiveExposureCap,
			Value:  st.RecoveryPhase.ExposureFraction(),
			Reason: "recovery_" + string(st.RecoveryPhase),
		})
	}
	directives = append(directives, Directive{
		Kind:   DirectiveLeverageCap,
		Value:  e.reentry.MaxLeverage(st),
		Reason: "leverage_ceiling",
	})
	return directives
}

// realizedVolatility computes annualized volatility of the weighted
// portfolio return series over the trailing volatility window. NaN when
// the window cannot be filled; the re-entry controller treats that as a
// breach.
func (e *Engine) realizedVolatility(snap *portfolio.Snapshot, returns map[string][]float64) float64 {
	symbols := make([]string, 0, len(returns))
	for sym, series := range returns {
		w := snap.Weights[sym]
		if w == 0 || len(series) < e.volWindow {
			continue
		}
		if !finiteTail(series, e.volWindow) {
			continue
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return math.NaN()
	}
	sort.Strings(symbols)

	port := make([]float64, e.volWindow)
	for _, sym := range symbols {
		series := returns[sym]
		tail := series[len(series)-e.volWindow:]
		w := snap.Weights[sym]
		for i, r := range tail {
			port[i] += w * r
		}
	}

	var mean float64
	for _, r := range port {
		mean += r
	}
	mean /= float64(len(port))

	var variance float64
	for _, r := range port {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(port) - 1)

	// Daily cadence, annualized over trading days.
	return math.Sqrt(variance) * math.Sqrt(252)
}

func correlationLevel(alerts []CorrelationAlert) Level {
	level := LevelNormal
	for _, a := range alerts {
		switch a.Kind {
		case AlertExtreme:
			level = maxLevel(level, LevelReduced)
		case AlertPortfolioAverage:
			level = maxLevel(level, LevelWarning)
		}
	}
	return level
}

func correlationViolation(a CorrelationAlert) string {
	switch a.Kind {
	case AlertPairwise:
		return fmt.Sprintf("correlation_pair_%s_%s", a.Symbols[0], a.Symbols[1])
	case AlertExtreme:
		return fmt.Sprintf("correlation_extreme_%s_%s", a.Symbols[0], a.Symbols[1])
	default:
		return "correlation_portfolio_average"
	}
}

func toSet(syms []string) map[string]bool {
	set := make(map[string]bool, len(syms))
	for _, s := range syms {
		set[s] = true
	}
	return set
}
