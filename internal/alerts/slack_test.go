package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackChannelDelivers(t *testing.T) {
	var mu sync.Mutex
	var payloads []slackMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg slackMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		mu.Lock()
		payloads = append(payloads, msg)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel(SlackConfig{
		Enabled:        true,
		WebhookURL:     srv.URL,
		ChannelDefault: "#risk-alerts",
	}, zerolog.Nop())
	defer ch.Close()

	ch.Deliver(Alert{
		Severity: SeverityCritical,
		Title:    "stop-loss FULL_EXIT NVDA",
		Body:     "NVDA down 20.00% from entry",
		Symbol:   "NVDA",
		AsOf:     time.Now().UTC(),
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	msg := payloads[0]
	assert.Equal(t, "#risk-alerts", msg.Channel)
	assert.Contains(t, msg.Text, "[CRITICAL]")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "danger", msg.Attachments[0].Color)
}

func TestSlackChannelDisabledDropsSilently(t *testing.T) {
	ch := NewSlackChannel(SlackConfig{Enabled: false}, zerolog.Nop())
	defer ch.Close()

	// Must not block or panic with no webhook configured.
	ch.Deliver(Alert{Severity: SeverityInfo, Title: "noop"})
}

func TestSlackChannelQueueOverflowPrefersEmergencies(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(block)

	ch := NewSlackChannel(SlackConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		QueueSize:  1,
	}, zerolog.Nop())
	defer ch.Close()

	// Fill the queue, then force an emergency in: the emergency must evict
	// rather than be dropped.
	ch.Deliver(Alert{Severity: SeverityInfo, Title: "first"})
	ch.Deliver(Alert{Severity: SeverityInfo, Title: "second"})
	ch.Deliver(Alert{Severity: SeverityEmergency, Title: "emergency"})

	// No assertion on delivery order; the point is Deliver never blocks.
}
