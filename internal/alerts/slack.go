package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// SlackConfig configures the webhook channel.
type SlackConfig struct {
	Enabled         bool   `yaml:"enabled"`
	WebhookURL      string `yaml:"webhook_url"`
	ChannelDefault  string `yaml:"channel_default"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	QueueSize       int    `yaml:"queue_size"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

// SlackChannel delivers alerts to a Slack incoming webhook. Deliveries are
// queued and sent by a single worker; the webhook sits behind a rate limiter
// and a circuit breaker so a broken endpoint cannot stall or spam. Alerts
// dropped because the queue is full are logged, never blocked on.
type SlackChannel struct {
	cfg     SlackConfig
	log     zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	queue   chan Alert
	cancel  context.CancelFunc
}

// NewSlackChannel starts the delivery worker. Call Close on shutdown.
func NewSlackChannel(cfg SlackConfig, log zerolog.Logger) *SlackChannel {
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 30
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &SlackChannel{
		cfg:     cfg,
		log:     log.With().Str("channel", "slack").Logger(),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), cfg.RateLimitPerMin),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "slack-webhook",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		queue:  make(chan Alert, cfg.QueueSize),
		cancel: cancel,
	}
	go c.worker(ctx)
	return c
}

func (c *SlackChannel) Name() string { return "slack" }

// Deliver enqueues without blocking. Emergencies evict the oldest queued
// alert rather than being dropped themselves.
func (c *SlackChannel) Deliver(a Alert) {
	if !c.cfg.Enabled {
		return
	}
	select {
	case c.queue <- a:
	default:
		if a.Severity >= SeverityEmergency {
			select {
			case <-c.queue:
			default:
			}
			select {
			case c.queue <- a:
				return
			default:
			}
		}
		c.log.Warn().Str("title", a.Title).Msg("slack queue full, alert dropped")
	}
}

// Close stops the worker. Queued alerts are abandoned.
func (c *SlackChannel) Close() { c.cancel() }

func (c *SlackChannel) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.queue:
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := c.breaker.Execute(func() (any, error) {
				return nil, c.post(ctx, a)
			}); err != nil {
				c.log.Error().Err(err).Str("title", a.Title).Msg("slack delivery failed")
			}
		}
	}
}

func (c *SlackChannel) post(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(c.format(a))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}

func (c *SlackChannel) format(a Alert) slackMessage {
	color := "good"
	switch a.Severity {
	case SeverityWarning:
		color = "warning"
	case SeverityCritical, SeverityEmergency:
		color = "danger"
	}

	fields := []slackField{
		{Title: "Severity", Value: a.Severity.String(), Short: true},
		{Title: "Time", Value: a.AsOf.UTC().Format("15:04:05 MST"), Short: true},
	}
	if a.Symbol != "" {
		fields = append(fields, slackField{Title: "Symbol", Value: a.Symbol, Short: true})
	}

	return slackMessage{
		Channel: c.cfg.ChannelDefault,
		Text:    fmt.Sprintf("[%s] %s", a.Severity, a.Title),
		Attachments: []slackAttachment{{
			Color: color,
			Fields: append(fields, slackField{
				Title: "Detail", Value: a.Body, Short: false,
			}),
		}},
	}
}
