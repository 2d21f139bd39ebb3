package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/alerts"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/config"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/feed"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/journal"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/metrics"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/position"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic risk evaluation loop",
	Long: `Run evaluates the portfolio on a fixed cadence: fetch the snapshot
and return windows from the feed, evaluate all risk components, commit the
successor state, journal directives, and emit alerts.

Example:
  sharkrisk run -f configs/risk.yaml --feed data/portfolio.json`,
	RunE: runRun,
}

var feedPath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&feedPath, "feed", "data/portfolio.json", "path to the portfolio feed file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)

	store, err := state.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	jnl, err := journal.Open(cfg.State.JournalPath)
	if err != nil {
		return fmt.Errorf("open directive journal: %w", err)
	}

	engine := risk.NewEngine(cfg.Engine.ToEngineConfig())
	positions := position.NewManager(log, cfg.Engine.SafeHavens, cfg.Engine.BTCClass)

	channels := []alerts.Channel{alerts.NewLogChannel(log)}
	if cfg.Alerts.Slack.Enabled {
		slack := alerts.NewSlackChannel(cfg.Alerts.Slack, log)
		defer slack.Close()
		channels = append(channels, slack)
	}
	alerter := alerts.NewManager(log, cfg.DedupeWindow(), channels...)

	src := feed.NewFileFeed(feedPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("portfolio", cfg.PortfolioID).
		Dur("interval", cfg.EvalInterval()).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("risk engine started")

	ticker := time.NewTicker(cfg.EvalInterval())
	defer ticker.Stop()

	// First evaluation immediately, then on the ticker.
	if err := evaluateOnce(ctx, cfg, log, engine, store, jnl, alerter, positions, src); err != nil {
		log.Error().Err(err).Msg("evaluation failed")
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			if err := evaluateOnce(ctx, cfg, log, engine, store, jnl, alerter, positions, src); err != nil {
				log.Error().Err(err).Msg("evaluation failed")
			}
		}
	}
}

func evaluateOnce(
	ctx context.Context,
	cfg config.Root,
	log zerolog.Logger,
	engine *risk.Engine,
	store *state.Store,
	jnl *journal.Journal,
	alerter *alerts.Manager,
	positions *position.Manager,
	src feed.Feed,
) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	snap, returns, err := src.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	if snap.TargetVolatility == 0 {
		snap.TargetVolatility = cfg.Engine.TargetVolatility
	}

	prior, err := store.Load(cfg.PortfolioID, snap.AsOf)
	if err != nil {
		// Fail closed on unavailable state: no evaluation can trust a book
		// whose prior level is unknown. Operators must intervene.
		alerter.Send(alerts.Alert{
			Severity: alerts.SeverityEmergency,
			Title:    "risk state unavailable",
			Body:     err.Error(),
			AsOf:     snap.AsOf,
		})
		return err
	}

	assessment, next, directives, evalErr := engine.Evaluate(snap, returns, prior)

	if err := store.Commit(cfg.PortfolioID, next, assessment); err != nil {
		if errors.Is(err, risk.ErrStaleAssessment) {
			metrics.RecordStaleCommit()
			log.Warn().Time("as_of", snap.AsOf).Msg("assessment older than committed state, discarded")
			return nil
		}
		return fmt.Errorf("commit state: %w", err)
	}

	metrics.RecordAssessment(assessment)
	alerter.NotifyAssessment(assessment, prior.Level)
	if err := jnl.Append(assessment, directives); err != nil {
		log.Error().Err(err).Msg("journal append failed")
	}
	positions.Apply(snap.Weights, assessment, directives)

	log.Info().
		Str("assessment", assessment.ID).
		Int("level", int(assessment.Level)).
		Float64("drawdown", assessment.PortfolioDrawdown).
		Bool("recovery", assessment.RecoveryMode).
		Int("directives", len(directives)).
		Msg("tick evaluated")

	// A fail-closed tick is committed and alerted above, then surfaced.
	return evalErr
}
