package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLogger(t *testing.T, opts ...Option) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := NewLogger(dir, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, dir
}

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	details := map[string]any{
		"password":      "hunter2",
		"api_token":     "tok-123",
		"Authorization": "Bearer abc",
		"nested": map[string]any{
			"client_secret": "шш",
			"query":         "select 1",
		},
		"rows": []any{
			map[string]any{"credit_card": "4111"},
			"plain",
		},
		"count": 42,
	}

	got := Sanitize(details)

	for _, key := range []string{"password", "api_token", "Authorization"} {
		if got[key] != redactedPlaceholder {
			t.Fatalf("%s = %v, want redacted", key, got[key])
		}
	}
	nested := got["nested"].(map[string]any)
	if nested["client_secret"] != redactedPlaceholder {
		t.Fatalf("nested secret = %v", nested["client_secret"])
	}
	if nested["query"] != "select 1" {
		t.Fatalf("benign nested value altered: %v", nested["query"])
	}
	rows := got["rows"].([]any)
	if rows[0].(map[string]any)["credit_card"] != redactedPlaceholder {
		t.Fatalf("card in list = %v", rows[0])
	}
	if rows[1] != "plain" || got["count"] != 42 {
		t.Fatal("benign values altered")
	}

	// Original map untouched.
	if details["password"] != "hunter2" {
		t.Fatal("input mutated")
	}
}

func TestSanitizeTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 1500)
	got := Sanitize(map[string]any{"sql": long})
	s := got["sql"].(string)
	if !strings.HasSuffix(s, truncationSuffix) {
		t.Fatalf("missing truncation suffix: %q", s[len(s)-30:])
	}
	if len(s) != maxDetailString+len(truncationSuffix) {
		t.Fatalf("truncated length = %d", len(s))
	}
	exact := strings.Repeat("y", maxDetailString)
	if got := Sanitize(map[string]any{"sql": exact}); got["sql"] != exact {
		t.Fatal("string at the limit must not be truncated")
	}
}

func TestRecordWritesDailyPartition(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, WithNow(func() time.Time { return fixed }))

	event := l.Record(Event{
		Type:     EventQueryExecuted,
		Actor:    "u-alice",
		Resource: "SELECT * FROM employees",
		Details:  map[string]any{"password": "x", "rows": 3},
		Success:  true,
	})
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Fatalf("incomplete event: %+v", event)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "audit_2026-03-14.jsonl"))
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	var stored Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &stored); err != nil {
		t.Fatalf("partition line not JSON: %v", err)
	}
	if stored.ID != event.ID || stored.Type != EventQueryExecuted {
		t.Fatalf("stored = %+v", stored)
	}
	if stored.Details["password"] != redactedPlaceholder {
		t.Fatalf("persisted secret: %v", stored.Details["password"])
	}
}

func TestRecordRotatesAtMidnight(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	clock := &now
	l, dir := newTestLogger(t, WithNow(func() time.Time { return *clock }))

	l.Record(Event{Type: EventLoginSuccess, Actor: "u-1", Success: true})
	next := now.Add(2 * time.Minute)
	clock = &next
	l.Record(Event{Type: EventLogout, Actor: "u-1", Success: true})

	for _, name := range []string{"audit_2026-03-14.jsonl", "audit_2026-03-15.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing partition %s: %v", name, err)
		}
	}
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	now := base
	clock := &now
	l, _ := newTestLogger(t, WithNow(func() time.Time { return *clock }))

	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		clock = &tick
		actor := "u-alice"
		if i%2 == 1 {
			actor = "u-bob"
		}
		l.Record(Event{Type: EventQueryExecuted, Actor: actor, Success: true})
	}
	tick := base.Add(10 * time.Minute)
	clock = &tick
	l.Record(Event{Type: EventQueryBlocked, Actor: "u-alice", Success: false})

	all, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("len=%d, want 6", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatal("results not newest first")
		}
	}

	alice, err := l.Query(Filter{Actor: "u-alice"})
	if err != nil {
		t.Fatalf("query actor: %v", err)
	}
	if len(alice) != 4 {
		t.Fatalf("alice events=%d, want 4", len(alice))
	}

	blocked, err := l.Query(Filter{Type: EventQueryBlocked})
	if err != nil {
		t.Fatalf("query type: %v", err)
	}
	if len(blocked) != 1 || blocked[0].Success {
		t.Fatalf("blocked = %+v", blocked)
	}

	page, err := l.Query(Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("query page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page len=%d", len(page))
	}
	if page[0].ID != all[2].ID || page[1].ID != all[3].ID {
		t.Fatal("pagination out of order")
	}

	empty, err := l.Query(Filter{Offset: 100})
	if err != nil || len(empty) != 0 {
		t.Fatalf("past-the-end page: %v %v", empty, err)
	}

	since, err := l.Query(Filter{Since: base.Add(9 * time.Minute)})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if len(since) != 1 || since[0].Type != EventQueryBlocked {
		t.Fatalf("since = %+v", since)
	}
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, WithNow(func() time.Time { return fixed }))

	l.Record(Event{Type: EventLoginSuccess, Actor: "u-1", Success: true})

	path := filepath.Join(dir, "audit_2026-03-14.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open partition: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("corrupt partition: %v", err)
	}
	_ = f.Close()
	l.Record(Event{Type: EventLogout, Actor: "u-1", Success: true})

	events, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len=%d, want 2 surviving events", len(events))
	}
}
