package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riverfold/event-registration/internal/model"
)

type fakeOutbox struct {
	pending []model.Notification
	sent    []string
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]model.Notification, error) {
	n := len(f.pending)
	if n > limit {
		n = limit
	}
	out := make([]model.Notification, n)
	copy(out, f.pending[:n])
	return out, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string, _ time.Time) error {
	f.sent = append(f.sent, id)
	for i, n := range f.pending {
		if n.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return nil
}

type recordingSink struct {
	delivered []model.Notification
	failAfter int // fail every Send once this many have been delivered
}

func (s *recordingSink) Send(_ context.Context, n model.Notification) error {
	if s.failAfter > 0 && len(s.delivered) >= s.failAfter {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func note(id string) model.Notification {
	return model.Notification{
		ID:      id,
		EventID: "ev1",
		Type:    model.NotificationRegistrationConfirmed,
	}
}

func TestFlushDeliversAndMarksSent(t *testing.T) {
	outbox := &fakeOutbox{pending: []model.Notification{note("n1"), note("n2"), note("n3")}}
	sink := &recordingSink{}
	d := NewDispatcher(outbox, sink, time.Second)

	d.Flush(context.Background())

	if len(sink.delivered) != 3 {
		t.Fatalf("delivered = %d, want 3", len(sink.delivered))
	}
	if len(outbox.sent) != 3 || outbox.sent[0] != "n1" || outbox.sent[2] != "n3" {
		t.Errorf("sent order = %v, want [n1 n2 n3]", outbox.sent)
	}
	if len(outbox.pending) != 0 {
		t.Errorf("pending = %d, want 0", len(outbox.pending))
	}
}

func TestFlushLeavesUndeliveredPending(t *testing.T) {
	outbox := &fakeOutbox{pending: []model.Notification{note("n1"), note("n2"), note("n3")}}
	sink := &recordingSink{failAfter: 1}
	d := NewDispatcher(outbox, sink, time.Second)

	d.Flush(context.Background())
	if len(outbox.pending) != 2 {
		t.Fatalf("pending after failed flush = %d, want 2", len(outbox.pending))
	}

	// The sink recovers; the next flush drains the rest.
	sink.failAfter = 0
	d.Flush(context.Background())
	if len(outbox.pending) != 0 {
		t.Errorf("pending after recovery = %d, want 0", len(outbox.pending))
	}
	if len(sink.delivered) != 3 {
		t.Errorf("delivered = %d, want 3", len(sink.delivered))
	}
}

func TestHTTPSinkPostsJSON(t *testing.T) {
	var got model.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	n := model.Notification{
		ID:             "n1",
		EventID:        "ev1",
		Type:           model.NotificationWaitlistPromoted,
		RecipientType:  "participant",
		Title:          "A spot opened up",
		RecipientCount: 1,
		CreatedBy:      "u3",
	}
	if err := sink.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.ID != "n1" || got.Type != model.NotificationWaitlistPromoted || got.CreatedBy != "u3" {
		t.Errorf("posted notification = %+v", got)
	}
}

func TestHTTPSinkRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	if err := sink.Send(context.Background(), note("n1")); err == nil {
		t.Error("expected error for 500 response")
	}
}
