package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

type captureChannel struct {
	mu     sync.Mutex
	alerts []Alert
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Deliver(a Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
}

func (c *captureChannel) all() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func TestSeverityForLevel(t *testing.T) {
	assert.Equal(t, SeverityInfo, SeverityForLevel(risk.LevelNormal))
	assert.Equal(t, SeverityWarning, SeverityForLevel(risk.LevelWarning))
	assert.Equal(t, SeverityWarning, SeverityForLevel(risk.LevelReduced))
	assert.Equal(t, SeverityCritical, SeverityForLevel(risk.LevelRestricted))
	assert.Equal(t, SeverityEmergency, SeverityForLevel(risk.LevelEmergency))
}

func TestManagerDedupesWithinWindow(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), time.Minute, capture)

	a := Alert{Severity: SeverityWarning, Title: "stop-loss REDUCE_TO_HALF AAPL", Symbol: "AAPL"}
	m.Send(a)
	m.Send(a)
	assert.Len(t, capture.all(), 1)

	// A different symbol is a different alert.
	b := a
	b.Symbol = "NVDA"
	b.Title = "stop-loss REDUCE_TO_HALF NVDA"
	m.Send(b)
	assert.Len(t, capture.all(), 2)
}

func TestManagerNeverDedupesEmergencies(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), time.Minute, capture)

	a := Alert{Severity: SeverityEmergency, Title: "risk engine fail-closed"}
	m.Send(a)
	m.Send(a)
	assert.Len(t, capture.all(), 2)
}

func TestNotifyAssessmentLevelChange(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), 0, capture)

	a := &risk.Assessment{
		AsOf:              time.Now().UTC(),
		Level:             risk.LevelReduced,
		PortfolioDrawdown: 0.09,
		Actions:           risk.LevelReduced.Actions(),
	}
	m.NotifyAssessment(a, risk.LevelNormal)

	got := capture.all()
	require.Len(t, got, 1)
	assert.Equal(t, SeverityWarning, got[0].Severity)
	assert.Contains(t, got[0].Title, "risk level 0 -> 2")
	assert.Contains(t, got[0].Body, "REDUCE_ALL_25PCT")
}

func TestNotifyAssessmentUnchangedLevelIsQuiet(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), 0, capture)

	a := &risk.Assessment{AsOf: time.Now().UTC(), Level: risk.LevelWarning}
	m.NotifyAssessment(a, risk.LevelWarning)
	assert.Empty(t, capture.all())
}

func TestNotifyAssessmentStopAndCorrelationAlerts(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), 0, capture)

	a := &risk.Assessment{
		AsOf:  time.Now().UTC(),
		Level: risk.LevelNormal,
		StopEvents: []risk.StopEvent{
			{Symbol: "NVDA", DrawdownFromEntry: 0.20, Action: risk.StopFullExit},
		},
		CorrelationAlerts: []risk.CorrelationAlert{
			{Kind: risk.AlertExtreme, Symbols: []string{"AAA", "BBB"}, Value: 0.85},
		},
	}
	m.NotifyAssessment(a, risk.LevelNormal)

	got := capture.all()
	require.Len(t, got, 2)
	assert.Equal(t, SeverityCritical, got[0].Severity)
	assert.Equal(t, "NVDA", got[0].Symbol)
	assert.Equal(t, SeverityCritical, got[1].Severity)
	assert.Contains(t, got[1].Body, "AAA/BBB")
}

func TestNotifyAssessmentFailClosedIsEmergencyOnly(t *testing.T) {
	capture := &captureChannel{}
	m := NewManager(zerolog.Nop(), 0, capture)

	a := &risk.Assessment{
		AsOf:       time.Now().UTC(),
		Level:      risk.LevelEmergency,
		FailClosed: true,
		Violations: []string{"fail_closed: invalid snapshot: nav=NaN"},
		StopEvents: []risk.StopEvent{
			{Symbol: "NVDA", Action: risk.StopFullExit},
		},
	}
	m.NotifyAssessment(a, risk.LevelNormal)

	// Fail-closed short-circuits: one EMERGENCY alert, nothing derived
	// from the untrusted snapshot.
	got := capture.all()
	require.Len(t, got, 1)
	assert.Equal(t, SeverityEmergency, got[0].Severity)
	assert.Contains(t, got[0].Title, "fail-closed")
}
