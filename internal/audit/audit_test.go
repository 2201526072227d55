package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesTables(t *testing.T) {
	s := newTestStore(t)
	for _, table := range []string{"inputs", "extracted_fields", "meta"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	s, err := Open(Config{DBPath: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	id, err := s.LogInput(ctx, "api", "json", "json", "invoice")
	if err != nil {
		t.Fatalf("LogInput: %v", err)
	}
	s.Close()

	// Reopening must keep earlier rows and not rerun destructive DDL.
	s, err = Open(Config{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	ev, err := s.GetInput(ctx, id)
	if err != nil {
		t.Fatalf("GetInput after reopen: %v", err)
	}
	if ev.Intent != "invoice" {
		t.Errorf("intent = %q, want invoice", ev.Intent)
	}
}

func TestLogInputIDsIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.LogInput(ctx, "api", "email", "email", "rfq")
		if err != nil {
			t.Fatalf("LogInput #%d: %v", i, err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestInputTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	id, err := s.LogInput(ctx, "api", "file", "pdf", "unknown")
	if err != nil {
		t.Fatalf("LogInput: %v", err)
	}
	ts, err := s.InputTimestamp(ctx, id)
	if err != nil {
		t.Fatalf("InputTimestamp: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("timestamp %v outside expected window", ts)
	}

	again, err := s.InputTimestamp(ctx, id)
	if err != nil {
		t.Fatalf("InputTimestamp again: %v", err)
	}
	if !again.Equal(ts) {
		t.Errorf("timestamp changed between reads: %v vs %v", ts, again)
	}
}

func TestInputTimestampNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InputTimestamp(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogExtractedFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.LogInput(ctx, "api", "email", "email", "rfq")
	if err != nil {
		t.Fatalf("LogInput: %v", err)
	}
	payload := map[string]any{"sender": "alice@x.com", "urgency": "high"}
	if err := s.LogExtractedFields(ctx, id, "email_agent", payload, "email_1"); err != nil {
		t.Fatalf("LogExtractedFields: %v", err)
	}
	if err := s.LogExtractedFields(ctx, id, "email_agent", map[string]any{"n": 2}, "email_1"); err != nil {
		t.Fatalf("LogExtractedFields second: %v", err)
	}

	events, err := s.GetExtractedFields(ctx, id)
	if err != nil {
		t.Fatalf("GetExtractedFields: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	first := events[0]
	if first.Agent != "email_agent" || first.CorrelationID != "email_1" || first.InputID != id {
		t.Errorf("unexpected event: %+v", first)
	}
	var got map[string]any
	if err := json.Unmarshal(first.Payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got["sender"] != "alice@x.com" {
		t.Errorf("sender = %v", got["sender"])
	}
	if events[1].ID <= first.ID {
		t.Errorf("events not in insertion order")
	}
}

func TestLogExtractedFieldsUnknownInput(t *testing.T) {
	s := newTestStore(t)
	err := s.LogExtractedFields(context.Background(), 42, "json_agent", map[string]any{}, "thread_42")
	if err == nil {
		t.Fatal("expected foreign key violation for unknown input")
	}
}

func TestGetExtractedFieldsEmpty(t *testing.T) {
	s := newTestStore(t)
	events, err := s.GetExtractedFields(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetExtractedFields: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", events)
	}
}

func TestGetInputNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetInput(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.LogInput(ctx, "api", "json", "json", "inquiry")
	_ = s.LogExtractedFields(ctx, id, "json_agent", map[string]any{"a": 1}, "thread_1")

	inputs, extracted, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if inputs != 1 || extracted != 1 {
		t.Errorf("stats = (%d, %d), want (1, 1)", inputs, extracted)
	}
}

func TestIsBusy(t *testing.T) {
	cases := map[string]bool{
		"SQLITE_BUSY: locked":      true,
		"database is locked":       true,
		"database table is locked": true,
		"no such table":            false,
	}
	for msg, want := range cases {
		if got := isBusy(errors.New(msg)); got != want {
			t.Errorf("isBusy(%q) = %v, want %v", msg, got, want)
		}
	}
	if isBusy(nil) {
		t.Error("isBusy(nil) = true")
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
