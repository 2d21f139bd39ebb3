package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "sharkrisk",
	Short: "Hierarchical risk control engine for the multi-asset book",
	Long: `sharkrisk runs the portfolio risk controller: drawdown-driven risk
levels, rolling-correlation systemic monitoring, per-asset stop losses and
the staged re-entry ramp after an emergency liquidation.

The engine evaluates on a fixed cadence, persists its state and audit trail
to SQLite, journals position directives as JSONL for the execution layer,
and exposes Prometheus metrics.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to YAML config (defaults apply when omitted)")
}

func loadConfig() (config.Root, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
}

func newLogger(cfg config.Root) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
