package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/state"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Force-exit the recovery ramp (operator override)",
	Long: `Resume overrides the automatic re-entry controller and restores
full exposure immediately. The override is recorded in the audit trail and
surfaces as a violation on the next assessment.

Only valid while the book is in recovery.`,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
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

	now := time.Now().UTC()
	st, err := store.Load(cfg.PortfolioID, now)
	if err != nil {
		return err
	}

	engine := risk.NewEngine(cfg.Engine.ToEngineConfig())
	next, err := engine.ForceResume(st)
	if errors.Is(err, risk.ErrNotInRecovery) {
		return fmt.Errorf("portfolio %s is not in recovery", cfg.PortfolioID)
	}
	if err != nil {
		return err
	}
	next.UpdatedAt = now

	if err := store.SaveState(cfg.PortfolioID, next); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	log.Warn().
		Str("portfolio", cfg.PortfolioID).
		Str("phase_before", string(st.RecoveryPhase)).
		Msg("recovery force-resumed by operator")
	fmt.Printf("Recovery override applied for %s (was %s). Full exposure restored.\n",
		cfg.PortfolioID, st.RecoveryPhase)
	return nil
}
