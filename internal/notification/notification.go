// Package notification delivers outbox records to the external notification
// collaborator. Delivery is best effort: a failed send is logged and retried
// on the next poll, and never affects the registration state that produced
// the record.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverfold/event-registration/internal/model"
)

// Sink accepts one notification for delivery.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
}

// LogSink writes notifications to the log. Used when no collaborator URL is
// configured, typically in local development.
type LogSink struct{}

// Send logs the notification.
func (LogSink) Send(_ context.Context, n model.Notification) error {
	slog.Info("notification",
		"type", n.Type,
		"eventId", n.EventID,
		"recipientType", n.RecipientType,
		"title", n.Title,
		"createdBy", n.CreatedBy,
	)
	return nil
}

// HTTPSink POSTs notifications as JSON to the collaborator endpoint.
type HTTPSink struct {
	URL    string
	Client *http.Client
}

// NewHTTPSink constructs an HTTPSink with a bounded request timeout.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one notification. Non-2xx responses count as failures.
func (s *HTTPSink) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification sink returned %d", resp.StatusCode)
	}
	return nil
}

// OutboxSource is the dispatcher's view of pending notifications.
type OutboxSource interface {
	FetchPending(ctx context.Context, limit int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

// Dispatcher polls the outbox and pushes pending records to the sink.
type Dispatcher struct {
	outbox   OutboxSource
	sink     Sink
	interval time.Duration
	batch    int
	clock    func() time.Time
}

// NewDispatcher constructs a Dispatcher polling at the given interval.
func NewDispatcher(outbox OutboxSource, sink Sink, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		sink:     sink,
		interval: interval,
		batch:    50,
		clock:    time.Now,
	}
}

// Run polls until ctx is cancelled. Intended to run in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush delivers one batch of pending notifications. A send failure stops
// the batch; the remaining records stay pending for the next poll.
func (d *Dispatcher) Flush(ctx context.Context) {
	pending, err := d.outbox.FetchPending(ctx, d.batch)
	if err != nil {
		slog.Warn("fetch pending notifications failed", "error", err)
		return
	}
	for _, n := range pending {
		if err := d.sink.Send(ctx, n); err != nil {
			slog.Warn("notification delivery failed",
				"id", n.ID, "type", n.Type, "error", err)
			return
		}
		if err := d.outbox.MarkSent(ctx, n.ID, d.clock()); err != nil {
			slog.Warn("mark notification sent failed", "id", n.ID, "error", err)
			return
		}
	}
}
