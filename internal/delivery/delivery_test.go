package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testMessage() Message {
	return Message{
		ID:       "5c1f7f5e-2f4b-4c3e-9d7a-0e6a1b2c3d4e",
		Name:     "Ada",
		Email:    "ada@example.com",
		Category: "Work",
		Subject:  SubjectFor("Work", "Ada"),
		Body:     "Hello there, general kenobi",
	}
}

func TestSubjectFor(t *testing.T) {
	if got := SubjectFor("Study", "Bo"); got != "New Study enquiry - Bo" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestLogSenderOmitsAddress(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))
	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "5c1f7f5e") {
		t.Fatalf("expected message id in log, got %s", out)
	}
	if strings.Contains(out, "ada@example.com") {
		t.Fatalf("log must not contain the sender address: %s", out)
	}
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got Message
	var idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		idem = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := testMessage()
	if err := NewWebhookSender(srv.URL, 10, 1, srv.Client()).Send(context.Background(), m); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.ID != m.ID || got.Email != m.Email || got.Subject != m.Subject {
		t.Fatalf("unexpected payload %+v", got)
	}
	if idem != m.ID {
		t.Fatalf("expected idempotency key %q, got %q", m.ID, idem)
	}
}

func TestWebhookSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, 10, 1, srv.Client()).Send(context.Background(), testMessage())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestWebhookSenderThrottles(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, 0.001, 1, srv.Client())
	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected second send to be throttled past the deadline")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 delivered call, got %d", calls.Load())
	}
}
