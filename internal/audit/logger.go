package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"moatgate.org/internal/ids"
)

const partitionLayout = "2006-01-02"

// Logger appends events to one JSONL file per UTC day under dir. Writes are
// serialized; a write failure is logged and swallowed so an audit outage
// never takes user traffic down with it.
type Logger struct {
	dir string
	log zerolog.Logger
	now func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string
}

// Option configures a Logger.
type Option func(*Logger)

// WithNow overrides the time source. Test hook.
func WithNow(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLogger(dir string, log zerolog.Logger, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	l := &Logger{dir: dir, log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record assigns ID and timestamp if absent, sanitizes the details, and
// appends the event to the current day's partition. The completed event is
// returned so callers can correlate it with their response.
func (l *Logger) Record(event Event) Event {
	now := l.now().UTC()
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.Details = Sanitize(event.Details)

	line, err := json.Marshal(event)
	if err != nil {
		l.log.Error().Err(err).Str("event_type", event.Type).Msg("audit event not serializable")
		return event
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.appendLocked(now, line); err != nil {
		l.log.Error().Err(err).Str("event_type", event.Type).Msg("audit write failed")
	}
	return event
}

func (l *Logger) appendLocked(now time.Time, line []byte) error {
	day := now.Format(partitionLayout)
	if l.file == nil || l.day != day {
		if l.file != nil {
			_ = l.file.Close()
		}
		f, err := os.OpenFile(l.partitionPath(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.file = nil
			return err
		}
		l.file = f
		l.day = day
	}
	_, err := l.file.Write(append(line, '\n'))
	return err
}

// Close releases the current partition file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) partitionPath(day string) string {
	return filepath.Join(l.dir, "audit_"+day+".jsonl")
}

// Query scans the partitions overlapping the filter's time range and returns
// matching events newest first. Lines that fail to parse are skipped; a
// partially corrupted partition should not hide the rest of the trail.
func (l *Logger) Query(filter Filter) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	days, err := l.partitionDays(filter)
	if err != nil {
		return nil, err
	}

	var matched []Event
	for _, day := range days {
		events, err := l.readPartition(day)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			if filter.matches(event) {
				matched = append(matched, event)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if filter.Offset >= len(matched) {
		return []Event{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (f Filter) matches(event Event) bool {
	if f.Actor != "" && event.Actor != f.Actor {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && event.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && event.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// partitionDays lists on-disk partition dates inside the filter range, newest
// first.
func (l *Logger) partitionDays(filter Filter) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read audit dir: %w", err)
	}
	var days []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "audit_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, "audit_"), ".jsonl")
		date, err := time.Parse(partitionLayout, day)
		if err != nil {
			continue
		}
		if !filter.Since.IsZero() && date.Before(filter.Since.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if !filter.Until.IsZero() && date.After(filter.Until.UTC()) {
			continue
		}
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

func (l *Logger) readPartition(day string) ([]Event, error) {
	raw, err := os.ReadFile(l.partitionPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var events []Event
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			l.log.Warn().Str("partition", day).Msg("skipping malformed audit line")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
