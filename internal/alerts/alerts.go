package alerts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/metrics"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

// Severity orders alert urgency. Level 0 maps to INFO, 1-2 to WARNING,
// 3 to CRITICAL, 4 to EMERGENCY.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// SeverityForLevel maps a risk level to the alert severity used for its
// notifications.
func SeverityForLevel(l risk.Level) Severity {
	switch {
	case l >= risk.LevelEmergency:
		return SeverityEmergency
	case l >= risk.LevelRestricted:
		return SeverityCritical
	case l >= risk.LevelWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert is one notification fanned out to all channels.
type Alert struct {
	Severity Severity
	Title    string
	Body     string
	Symbol   string
	AsOf     time.Time
}

// Channel delivers alerts to one destination. Implementations must be safe
// for concurrent use and must not block the evaluation loop; slow transports
// queue internally.
type Channel interface {
	Deliver(a Alert)
	Name() string
}

// Manager fans alerts out to its channels and suppresses repeats of the
// same alert inside a dedupe window. EMERGENCY alerts are never deduped.
type Manager struct {
	log          zerolog.Logger
	channels     []Channel
	dedupeWindow time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewManager wires a manager over the given channels. A zero dedupeWindow
// disables suppression.
func NewManager(log zerolog.Logger, dedupeWindow time.Duration, channels ...Channel) *Manager {
	return &Manager{
		log:          log,
		channels:     channels,
		dedupeWindow: dedupeWindow,
		lastSent:     make(map[string]time.Time),
	}
}

// Send delivers the alert to every channel, subject to dedupe.
func (m *Manager) Send(a Alert) {
	if m.suppressed(a) {
		m.log.Debug().Str("title", a.Title).Msg("alert suppressed by dedupe window")
		return
	}
	metrics.RecordAlert(a.Severity.String())
	for _, ch := range m.channels {
		ch.Deliver(a)
	}
}

// NotifyAssessment emits the alerts an assessment warrants: a level-change
// alert when the level moved, stop alerts per stop event, correlation
// alerts per breach, and a distinct EMERGENCY alert when the engine failed
// closed on bad input.
func (m *Manager) NotifyAssessment(a *risk.Assessment, prevLevel risk.Level) {
	if a.FailClosed {
		m.Send(Alert{
			Severity: SeverityEmergency,
			Title:    "risk engine fail-closed",
			Body:     "snapshot rejected; holding at emergency level until inputs are repaired: " + strings.Join(a.Violations, "; "),
			AsOf:     a.AsOf,
		})
		return
	}

	if a.Level != prevLevel {
		m.Send(Alert{
			Severity: SeverityForLevel(a.Level),
			Title:    fmt.Sprintf("risk level %d -> %d", int(prevLevel), int(a.Level)),
			Body: fmt.Sprintf("portfolio drawdown %.2f%%, actions: %s",
				a.PortfolioDrawdown*100, joinActions(a.Actions)),
			AsOf: a.AsOf,
		})
	}

	for _, ev := range a.StopEvents {
		sev := SeverityWarning
		if ev.Action == risk.StopFullExit {
			sev = SeverityCritical
		}
		m.Send(Alert{
			Severity: sev,
			Title:    fmt.Sprintf("stop-loss %s %s", ev.Action, ev.Symbol),
			Body:     fmt.Sprintf("%s down %.2f%% from entry", ev.Symbol, ev.DrawdownFromEntry*100),
			Symbol:   ev.Symbol,
			AsOf:     a.AsOf,
		})
	}

	for _, ca := range a.CorrelationAlerts {
		sev := SeverityWarning
		if ca.Kind == risk.AlertExtreme {
			sev = SeverityCritical
		}
		body := fmt.Sprintf("%s correlation %.3f", ca.Kind, ca.Value)
		if len(ca.Symbols) == 2 {
			body = fmt.Sprintf("%s/%s correlation %.3f", ca.Symbols[0], ca.Symbols[1], ca.Value)
		}
		m.Send(Alert{
			Severity: sev,
			Title:    "correlation breach: " + string(ca.Kind),
			Body:     body,
			AsOf:     a.AsOf,
		})
	}
}

func (m *Manager) suppressed(a Alert) bool {
	if m.dedupeWindow <= 0 || a.Severity >= SeverityEmergency {
		return false
	}
	key := fmt.Sprintf("%d:%s:%s", a.Severity, a.Title, a.Symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.dedupeWindow {
		return true
	}
	m.lastSent[key] = now

	// Opportunistic sweep so the map does not grow without bound.
	if len(m.lastSent) > 1024 {
		cutoff := now.Add(-m.dedupeWindow)
		for k, t := range m.lastSent {
			if t.Before(cutoff) {
				delete(m.lastSent, k)
			}
		}
	}
	return false
}

func joinActions(actions []risk.Action) string {
	if len(actions) == 0 {
		return "none"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

// LogChannel writes alerts to the structured log. Always registered so the
// audit trail survives even when outbound transports are down.
type LogChannel struct {
	log zerolog.Logger
}

func NewLogChannel(log zerolog.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(a Alert) {
	var ev *zerolog.Event
	switch a.Severity {
	case SeverityEmergency, SeverityCritical:
		ev = c.log.Error()
	case SeverityWarning:
		ev = c.log.Warn()
	default:
		ev = c.log.Info()
	}
	ev = ev.Str("severity", a.Severity.String()).Str("title", a.Title)
	if a.Symbol != "" {
		ev = ev.Str("symbol", a.Symbol)
	}
	if !a.AsOf.IsZero() {
		ev = ev.Time("as_of", a.AsOf)
	}
	ev.Msg(a.Body)
}
