package risk

import (
	"math"
	"sort"
)

// CorrelationAlertKind classifies a correlation breach.
type CorrelationAlertKind string

const (
	// AlertPairwise: one off-diagonal |r| above the pair threshold. The
	// position manager reduces the combined weight cap for that pair.
	AlertPairwise CorrelationAlertKind = "PAIRWISE"
	// AlertPortfolioAverage: mean of unique off-diagonal |r| above the
	// portfolio threshold. Forces at least level 1.
	AlertPortfolioAverage CorrelationAlertKind = "PORTFOLIO_AVERAGE"
	// AlertExtreme: one off-diagonal |r| above the extreme threshold,
	// read as all-assets-moving-together stress. Forces at least level 2.
	AlertExtreme CorrelationAlertKind = "EXTREME"
)

// CorrelationAlert is one breach emitted by the monitor.
type CorrelationAlert struct {
	Kind    CorrelationAlertKind `json:"kind"`
	Symbols []string             `json:"symbols,omitempty"` // pair; empty for PORTFOLIO_AVERAGE
	Value   float64              `json:"value"`
}

// CorrelationMatrix is a symmetric pairwise correlation matrix with a fixed
// symbol order.
type CorrelationMatrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"values"`
}

// Empty reports whether the matrix covers fewer than two symbols.
func (m *CorrelationMatrix) Empty() bool { return len(m.Symbols) < 2 }

// At returns the correlation between two symbols, or NaN if either is not
// in the matrix.
func (m *CorrelationMatrix) At(a, b string) float64 {
	ia, ib := -1, -1
	for i, s := range m.Symbols {
		if s == a {
			ia = i
		}
		if s == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return math.NaN()
	}
	return m.Values[ia][ib]
}

// CorrelationThresholds configure the monitor's breach levels. All
// comparisons are strict greater-than on absolute correlation.
type CorrelationThresholds struct {
	PairWarning      float64 `yaml:"pair_warning"`      // 0.70
	PortfolioWarning float64 `yaml:"portfolio_warning"` // 0.50
	Extreme          float64 `yaml:"extreme"`           // 0.80
}

// DefaultCorrelationThresholds returns the 0.70/0.50/0.80 set.
func DefaultCorrelationThresholds() CorrelationThresholds {
	return CorrelationThresholds{PairWarning: 0.70, PortfolioWarning: 0.50, Extreme: 0.80}
}

// CorrelationMonitor computes a rolling-window correlation matrix over
// per-symbol return series and classifies systemic risk. Stateless per call:
// the window is supplied by the caller each tick.
type CorrelationMonitor struct {
	window     int
	thresholds CorrelationThresholds
}

// NewCorrelationMonitor creates a monitor over a fixed-size rolling window.
func NewCorrelationMonitor(window int, t CorrelationThresholds) *CorrelationMonitor {
	if window <= 0 {
		window = 60
	}
	return &CorrelationMonitor{window: window, thresholds: t}
}

// Window returns the required number of observations per symbol.
func (cm *CorrelationMonitor) Window() int { return cm.window }

// Assess computes the pairwise correlation matrix over the trailing window
// and returns any breaches. Symbols with fewer than window observations, or
// with non-finite values inside the window, are excluded from this tick's
// matrix rather than zero-filled. Fewer than two usable symbols yields an
// empty matrix and no alerts.
//
// Identical windows always produce identical output: symbols are processed
// in sorted order and summation order is fixed.
func (cm *CorrelationMonitor) Assess(returns map[string][]float64) (*CorrelationMatrix, []CorrelationAlert) {
	symbols := make([]string, 0, len(returns))
	for sym, series := range returns {
		if len(series) >= cm.window && finiteTail(series, cm.window) {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	if len(symbols) < 2 {
		return &CorrelationMatrix{}, nil
	}

	// Trailing window per symbol.
	windows := make([][]float64, len(symbols))
	for i, sym := range symbols {
		series := returns[sym]
		windows[i] = series[len(series)-cm.window:]
	}

	n := len(symbols)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := pearson(windows[i], windows[j])
			values[i][j] = r
			values[j][i] = r
		}
	}
	matrix := &CorrelationMatrix{Symbols: symbols, Values: values}

	var alerts []CorrelationAlert
	var sumAbs float64
	var count int
	extremeSeen := false
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := values[i][j]
			if math.IsNaN(r) {
				continue
			}
			abs := math.Abs(r)
			sumAbs += abs
			count++
			if abs > cm.thresholds.PairWarning {
				alerts = append(alerts, CorrelationAlert{
					Kind:    AlertPairwise,
					Symbols: []string{symbols[i], symbols[j]},
					Value:   r,
				})
			}
			if abs > cm.thresholds.Extreme && !extremeSeen {
				extremeSeen = true
				alerts = append(alerts, CorrelationAlert{
					Kind:    AlertExtreme,
					Symbols: []string{symbols[i], symbols[j]},
					Value:   r,
				})
			}
		}
	}
	if count > 0 {
		avg := sumAbs / float64(count)
		if avg > cm.thresholds.PortfolioWarning {
			alerts = append(alerts, CorrelationAlert{Kind: AlertPortfolioAverage, Value: avg})
		}
	}

	return matrix, alerts
}

// pearson computes the sample correlation of two equal-length series.
// Returns NaN when either series has zero variance.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

func finiteTail(series []float64, window int) bool {
	for _, v := range series[len(series)-window:] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
