package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

var (
	riskLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_level",
		Help: "Current portfolio risk level (0 normal through 4 emergency).",
	})
	portfolioDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_portfolio_drawdown",
		Help: "Portfolio drawdown from peak NAV, as a fraction.",
	})
	realizedVolatility = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_realized_volatility",
		Help: "Annualized realized portfolio volatility over the trailing window.",
	})
	recoveryMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_recovery_mode",
		Help: "1 while the re-entry controller is active, else 0.",
	})
	weeksInRecovery = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_weeks_in_recovery",
		Help: "Completed ramp stages in the current recovery.",
	})
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_evaluations_total",
		Help: "Evaluation ticks completed.",
	})
	failClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_fail_closed_total",
		Help: "Evaluations that failed closed on invalid input.",
	})
	staleCommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_stale_commits_total",
		Help: "State commits rejected as older than the committed state.",
	})
	stopEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_stop_events_total",
		Help: "Per-asset stop triggers by action.",
	}, []string{"action"})
	correlationAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_correlation_alerts_total",
		Help: "Correlation breaches by kind.",
	}, []string{"kind"})
	alertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_alerts_sent_total",
		Help: "Alerts emitted by severity.",
	}, []string{"severity"})
)

// RecordAssessment publishes one tick's results.
func RecordAssessment(a *risk.Assessment) {
	evaluationsTotal.Inc()
	riskLevel.Set(float64(a.Level))
	if a.FailClosed {
		failClosedTotal.Inc()
	} else {
		portfolioDrawdown.Set(a.PortfolioDrawdown)
		realizedVolatility.Set(a.RealizedVolatility)
	}
	if a.RecoveryMode {
		recoveryMode.Set(1)
	} else {
		recoveryMode.Set(0)
	}
	weeksInRecovery.Set(float64(a.WeeksInRecovery))
	for _, ev := range a.StopEvents {
		stopEventsTotal.WithLabelValues(string(ev.Action)).Inc()
	}
	for _, ca := range a.CorrelationAlerts {
		correlationAlertsTotal.WithLabelValues(string(ca.Kind)).Inc()
	}
}

// RecordAlert counts one outbound alert.
func RecordAlert(severity string) {
	alertsSentTotal.WithLabelValues(severity).Inc()
}

// RecordStaleCommit counts one rejected commit.
func RecordStaleCommit() {
	staleCommitsTotal.Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
