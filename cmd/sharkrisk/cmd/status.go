package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current risk state and recent assessments",
	RunE:  runStatus,
}

var statusEventCount int

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVarP(&statusEventCount, "events", "n", 10, "number of recent assessments to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := state.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	st, err := store.Load(cfg.PortfolioID, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Printf("Portfolio:  %s\n", cfg.PortfolioID)
	fmt.Printf("Level:      %d (%s), entered %s\n",
		int(st.Level), st.Level, st.LevelEnteredAt.Format(time.RFC3339))
	if st.RecoveryMode {
		fmt.Printf("Recovery:   %s (calm streak %d, ticks in phase %d, weeks %d)\n",
			st.RecoveryPhase, st.CalmStreak, st.TicksInPhase, st.WeeksInRecovery)
	} else {
		fmt.Println("Recovery:   inactive")
	}
	fmt.Printf("Updated:    %s\n", st.UpdatedAt.Format(time.RFC3339))

	events, err := store.RecentEvents(cfg.PortfolioID, statusEventCount)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("\nNo assessments recorded.")
		return nil
	}

	fmt.Printf("\nRecent assessments:\n")
	for _, ev := range events {
		marker := " "
		if ev.FailClosed {
			marker = "!"
		}
		fmt.Printf("%s %s  level=%d  dd=%.2f%%  %s\n",
			marker, ev.AsOf.Format("2006-01-02 15:04:05"), int(ev.Level),
			ev.Drawdown*100, joinShort(ev.Violations, 3))
	}
	return nil
}

func joinShort(items []string, limit int) string {
	if len(items) == 0 {
		return ""
	}
	out := ""
	for i, s := range items {
		if i == limit {
			out += fmt.Sprintf(" (+%d more)", len(items)-limit)
			break
		}
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
