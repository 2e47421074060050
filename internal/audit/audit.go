// Package audit keeps a JSONL log of dispatched commands and aggregates it
// into the counters the console and the audit command display.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klytics/sheetkit/internal/dispatch"
)

const defaultMaxSize = 10 * 1024 * 1024

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Machine    string    `json:"machine,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Command    string    `json:"command"`
	Action     string    `json:"action"`
	Response   string    `json:"response"`
	Fault      bool      `json:"fault,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	DraftID    string    `json:"draft_id,omitempty"`
}

// Logger appends entries to a file. Writes are serialized and best-effort:
// a failing audit log never blocks a command.
type Logger struct {
	path    string
	channel string
	machine string
	maxSize int64
	mu      sync.Mutex
}

// NewLogger creates a Logger writing to path. channel names the surface
// producing the entries ("http", "shell", "cli").
func NewLogger(path, channel string) *Logger {
	host, _ := os.Hostname()
	return &Logger{path: path, channel: channel, machine: host, maxSize: defaultMaxSize}
}

// DefaultPath returns ~/.sheetkit/audit.jsonl.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sheetkit", "audit.jsonl")
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Log writes a single audit entry. The log is truncated first when it has
// grown past its size limit.
func (l *Logger) Log(_ context.Context, entry Entry) error {
	if l == nil || l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	if info, err := os.Stat(l.path); err == nil && l.maxSize > 0 && info.Size() > l.maxSize {
		_ = os.Truncate(l.path, 0)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Observe implements dispatch.Observer.
func (l *Logger) Observe(ctx context.Context, ev dispatch.Event) {
	_ = l.Log(ctx, Entry{
		Timestamp:  ev.Time,
		Actor:      ev.Actor,
		Machine:    l.machine,
		Channel:    l.channel,
		Command:    RedactText(ev.Command),
		Action:     string(ev.Intent.Action),
		Response:   string(ev.Kind),
		Fault:      ev.Fault,
		DurationMs: ev.Duration.Milliseconds(),
		DraftID:    ev.DraftID,
	})
}

// ReadEntries reads all audit entries from the log file. Malformed lines
// are skipped; a missing file yields no entries.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Since  time.Time
	Until  time.Time
	Actor  string
	Action string
}

// FilterEntries returns entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var result []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Actor != "" && !strings.EqualFold(e.Actor, f.Actor) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Stats aggregates a set of entries.
type Stats struct {
	Commands    int            `json:"commands"`
	EmailDrafts int            `json:"email_drafts"`
	Exports     int            `json:"exports"`
	Faults      int            `json:"faults"`
	ByAction    map[string]int `json:"by_action"`
	ByActor     map[string]int `json:"by_actor"`
	AvgDuration float64        `json:"avg_duration_ms"`
	First       time.Time      `json:"first,omitempty"`
	Last        time.Time      `json:"last,omitempty"`
}

// Summarize aggregates entries.
func Summarize(entries []Entry) Stats {
	s := Stats{ByAction: map[string]int{}, ByActor: map[string]int{}}
	var total int64
	for _, e := range entries {
		s.Commands++
		s.ByAction[e.Action]++
		s.ByActor[e.Actor]++
		total += e.DurationMs
		if e.Response == string(dispatch.KindEmail) {
			s.EmailDrafts++
		}
		if e.Response == string(dispatch.KindDownload) {
			s.Exports++
		}
		if e.Fault {
			s.Faults++
		}
		if s.First.IsZero() || e.Timestamp.Before(s.First) {
			s.First = e.Timestamp
		}
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}
	}
	if s.Commands > 0 {
		s.AvgDuration = float64(total) / float64(s.Commands)
	}
	return s
}

// TopActions returns action names ordered by descending count.
func (s Stats) TopActions() []string {
	names := make([]string, 0, len(s.ByAction))
	for k := range s.ByAction {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.ByAction[names[i]] != s.ByAction[names[j]] {
			return s.ByAction[names[i]] > s.ByAction[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// LogSize returns the size of the audit log in bytes, or 0 if not found.
func LogSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the audit log file.
func Clear(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Truncate(path, 0)
}

// sensitivePatterns are value prefixes that indicate secrets.
var sensitivePatterns = []string{"sk-ant-", "sk-", "ghp_", "xox"}

// sensitiveWords are words whose following value should be redacted.
var sensitiveWords = map[string]bool{
	"password": true, "password:": true, "token": true, "token:": true,
	"secret": true, "secret:": true, "key": true, "key:": true, "bearer": true,
}

// RedactText masks secret-looking words in a command before it is logged.
func RedactText(command string) string {
	words := strings.Fields(command)
	redactNext := false
	for i, w := range words {
		if redactNext {
			words[i] = "[REDACTED]"
			redactNext = false
			continue
		}
		if sensitiveWords[strings.ToLower(w)] {
			redactNext = true
			continue
		}
		for _, pat := range sensitivePatterns {
			if strings.HasPrefix(w, pat) && len(w) > len(pat)+8 {
				words[i] = "[REDACTED]"
				break
			}
		}
	}
	return strings.Join(words, " ")
}
