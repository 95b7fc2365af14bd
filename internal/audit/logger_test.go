package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	l := NewLogger(path)
	l.nowFunc = func() time.Time { return time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC) }

	if err := l.Record(Event{Actor: "a@x.com", Action: "auth.connect", Outcome: OutcomeSuccess, RequestID: "rid-1"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := l.Record(Event{Action: "auth.connect", Outcome: OutcomeFailure}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode audit line: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := events[0]
	if first.Actor != "a@x.com" || first.Action != "auth.connect" || first.Outcome != OutcomeSuccess || first.At != "2026-02-16T00:00:00Z" {
		t.Fatalf("unexpected audit event content: %+v", first)
	}
	if _, err := ulid.Parse(first.ID); err != nil {
		t.Fatalf("expected ULID event id, got %q: %v", first.ID, err)
	}
	if first.ID == events[1].ID {
		t.Fatalf("expected distinct event ids")
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Record(Event{Action: "auth.connect"}); err != nil {
		t.Fatalf("Record() on nil logger: %v", err)
	}
	if err := NewLogger("").Record(Event{Action: "auth.connect"}); err != nil {
		t.Fatalf("Record() with empty path: %v", err)
	}
}
