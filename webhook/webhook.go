// Package webhook delivers completed helper actions to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/browserkit/helper"
	"github.com/use-agent/browserkit/models"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Browserkit-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "action.completed" or "action.failed"
	Action    string `json:"action"`
	Payload   string `json:"payload"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Timestamp int64  `json:"timestamp"`

	Error *models.ErrorDetail `json:"error,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends one event synchronously.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Browserkit-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifier is a helper.Observer that forwards response events to a URL in
// the background. Request events are ignored.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewNotifier returns a Notifier posting to url. Failed deliveries are
// retried after 1s, 5s and 30s.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		logger: slog.Default(),
	}
}

// Observe implements helper.Observer.
func (n *Notifier) Observe(e helper.Event) {
	if e.Phase != helper.PhaseResponse {
		return
	}
	event := &Event{
		ID:        uuid.NewString(),
		Type:      "action.completed",
		Action:    e.Action,
		Payload:   e.Payload,
		ElapsedMs: e.Elapsed.Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
	if e.Err != nil {
		event.Type = "action.failed"
		event.Error = &models.ErrorDetail{Code: models.CodeOf(e.Err), Message: e.Err.Error()}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetry(event)
	}()
}

func (n *Notifier) deliverWithRetry(event *Event) {
	for attempt, delay := range n.delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		err := Deliver(ctx, n.client, n.url, n.secret, event)
		cancel()
		if err == nil {
			n.logger.Debug("webhook delivered",
				"event", event.Type,
				"id", event.ID,
				"attempt", attempt+1,
			)
			return
		}
		n.logger.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"id", event.ID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	n.logger.Error("webhook delivery exhausted all retries",
		"url", n.url,
		"event", event.Type,
		"id", event.ID,
	)
}

// Close waits for pending deliveries until ctx ends.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
