package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/alerts"
	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

type Engine struct {
	Levels            risk.LevelThresholds       `yaml:"levels"`
	Stops             risk.StopThresholds        `yaml:"stops"`
	Correlation       risk.CorrelationThresholds `yaml:"correlation"`
	CorrelationWindow int                        `yaml:"correlation_window"`
	VolatilityWindow  int                        `yaml:"volatility_window"`
	ReEntry           risk.ReEntryConfig         `yaml:"reentry"`
	SafeHavens        []string                   `yaml:"safe_havens"`
	BTCClass          []string                   `yaml:"btc_class"`
	PairWeightCap     float64                    `yaml:"pair_weight_cap"`
	TargetVolatility  float64                    `yaml:"target_volatility"`
}

// ToEngineConfig maps the config section onto the engine's tunables.
func (e Engine) ToEngineConfig() risk.EngineConfig {
	return risk.EngineConfig{
		Levels:            e.Levels,
		Stops:             e.Stops,
		Correlation:       e.Correlation,
		CorrelationWindow: e.CorrelationWindow,
		VolatilityWindow:  e.VolatilityWindow,
		ReEntry:           e.ReEntry,
		SafeHavens:        e.SafeHavens,
		BTCClass:          e.BTCClass,
		PairWeightCap:     e.PairWeightCap,
	}
}

type State struct {
	DBPath      string `yaml:"db_path"`
	JournalPath string `yaml:"journal_path"`
}

type Server struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

type Alerts struct {
	DedupeWindowSecs int                `yaml:"dedupe_window_seconds"`
	Slack            alerts.SlackConfig `yaml:"slack"`
}

type Root struct {
	PortfolioID   string `yaml:"portfolio_id"`
	EvalIntervalS int    `yaml:"eval_interval_seconds"`
	Engine        Engine `yaml:"engine"`
	State         State  `yaml:"state"`
	Server        Server `yaml:"server"`
	Alerts        Alerts `yaml:"alerts"`
	LogLevel      string `yaml:"log_level"`
}

// Load reads and validates the YAML config, filling defaults for anything
// left unset.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("validate %s: %w", path, err)
	}
	return c, nil
}

// Default returns the config used when no file is supplied.
func Default() Root {
	var c Root
	c.applyDefaults()
	return c
}

func (c *Root) applyDefaults() {
	if c.PortfolioID == "" {
		c.PortfolioID = "main"
	}
	if c.EvalIntervalS == 0 {
		c.EvalIntervalS = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Engine.Levels == (risk.LevelThresholds{}) {
		c.Engine.Levels = risk.DefaultLevelThresholds()
	}
	if c.Engine.Stops == (risk.StopThresholds{}) {
		c.Engine.Stops = risk.DefaultStopThresholds()
	}
	if c.Engine.Correlation == (risk.CorrelationThresholds{}) {
		c.Engine.Correlation = risk.DefaultCorrelationThresholds()
	}
	if c.Engine.CorrelationWindow == 0 {
		c.Engine.CorrelationWindow = 60
	}
	if c.Engine.VolatilityWindow == 0 {
		c.Engine.VolatilityWindow = 20
	}
	if c.Engine.ReEntry == (risk.ReEntryConfig{}) {
		c.Engine.ReEntry = risk.DefaultReEntryConfig()
	}
	if len(c.Engine.SafeHavens) == 0 {
		c.Engine.SafeHavens = []string{"GLD", "TLT"}
	}
	if len(c.Engine.BTCClass) == 0 {
		c.Engine.BTCClass = []string{"BTC-USD"}
	}
	if c.Engine.PairWeightCap == 0 {
		c.Engine.PairWeightCap = 0.25
	}
	if c.Engine.TargetVolatility == 0 {
		c.Engine.TargetVolatility = 0.15
	}

	if c.State.DBPath == "" {
		c.State.DBPath = "data/risk_state.db"
	}
	if c.State.JournalPath == "" {
		c.State.JournalPath = "data/directives.jsonl"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9109"
	}
	if c.Alerts.DedupeWindowSecs == 0 {
		c.Alerts.DedupeWindowSecs = 60
	}
}

func (c *Root) validate() error {
	t := c.Engine.Levels
	if !(t.Warn < t.Reduce && t.Reduce < t.Restrict && t.Restrict < t.Emergency) {
		return fmt.Errorf("level thresholds must be strictly increasing: %+v", t)
	}
	if c.Engine.Stops.ReducePct >= c.Engine.Stops.ExitPct {
		return fmt.Errorf("stop reduce threshold %.3f must be below exit threshold %.3f",
			c.Engine.Stops.ReducePct, c.Engine.Stops.ExitPct)
	}
	if c.Engine.TargetVolatility <= 0 {
		return fmt.Errorf("target_volatility must be positive")
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		return fmt.Errorf("slack enabled without webhook_url")
	}
	return nil
}

// EvalInterval is the evaluation cadence as a duration.
func (c *Root) EvalInterval() time.Duration {
	return time.Duration(c.EvalIntervalS) * time.Second
}

// DedupeWindow is the alert suppression window as a duration.
func (c *Root) DedupeWindow() time.Duration {
	return time.Duration(c.Alerts.DedupeWindowSecs) * time.Second
}
