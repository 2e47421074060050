// Package intent maps a free-text command onto one of a fixed set of
// actions. Resolution never fails: anything that cannot be understood
// becomes ActionUnknown.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Action identifies the operation a command asks for.
type Action string

const (
	ActionShowTable  Action = "show_table"
	ActionSearch     Action = "search"
	ActionExport     Action = "export"
	ActionStats      Action = "stats"
	ActionSummary    Action = "summary"
	ActionEmailDraft Action = "email_draft"
	ActionHelp       Action = "help"
	ActionUnknown    Action = "unknown"
)

// Actions lists every action in a stable order.
var Actions = []Action{
	ActionShowTable, ActionSearch, ActionExport, ActionStats,
	ActionSummary, ActionEmailDraft, ActionHelp, ActionUnknown,
}

// Placeholder values for drafts that name no recipient or subject. They are
// not meant to be sent as-is.
const (
	PlaceholderRecipient = "recipient@example.com"
	PlaceholderSubject   = "Message from AI Agent"
)

// MaxRows is the largest row count a table request can ask for.
const MaxRows = 200

// ParseAction returns the action named by s, or ActionUnknown.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a
		}
	}
	return ActionUnknown
}

// Params carries the action-specific parameters. Unused fields stay zero.
// A zero MaxRows means no row count was requested; Normalize maps any
// explicit count into [1, MaxRows].
type Params struct {
	Term    string `json:"term,omitempty"`
	MaxRows int    `json:"maxRows,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Intent is a resolved command.
type Intent struct {
	Action Action `json:"action"`
	Params Params `json:"params"`
}

// Unknown is the intent for commands nobody understood.
func Unknown() Intent {
	return Intent{Action: ActionUnknown}
}

// Resolver turns a command into an Intent.
type Resolver interface {
	Resolve(ctx context.Context, command string) Intent
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, command string) Intent

func (f ResolverFunc) Resolve(ctx context.Context, command string) Intent { return f(ctx, command) }

// Normalize trims every parameter, clamps an explicit row count into
// [1, MaxRows] and fills the placeholder recipient and subject of an email
// draft.
func Normalize(in Intent) Intent {
	out := Intent{Action: ParseAction(string(in.Action)), Params: in.Params}
	p := &out.Params
	p.Term = trimQuotes(p.Term)
	p.To = strings.TrimSpace(p.To)
	p.Subject = strings.TrimSpace(p.Subject)
	switch {
	case p.MaxRows < 0:
		p.MaxRows = 1
	case p.MaxRows > MaxRows:
		p.MaxRows = MaxRows
	}
	if out.Action == ActionEmailDraft {
		if p.To == "" {
			p.To = PlaceholderRecipient
		}
		if p.Subject == "" {
			p.Subject = PlaceholderSubject
		}
	}
	return out
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'“”‘’`))
}

// ErrClassification matches every *ClassificationError.
var ErrClassification = errors.New("intent classification failed")

// ClassificationError reports why a classifier reply was rejected. It is
// logged and then coerced to ActionUnknown; callers never see it.
type ClassificationError struct {
	Reply string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

type wireIntent struct {
	Action *string `json:"action"`
	Params *struct {
		Term    json.RawMessage `json:"term"`
		MaxRows json.RawMessage `json:"maxRows"`
		To      json.RawMessage `json:"to"`
		Subject json.RawMessage `json:"subject"`
	} `json:"params"`
}

// Decode parses a classifier reply. Markdown code fences and text around the
// JSON object are tolerated. A reply without a recognised action, or with
// parameters of the wrong type, is a *ClassificationError.
func Decode(reply string) (Intent, error) {
	raw := extractObject(reply)
	if raw == "" {
		return Unknown(), &ClassificationError{Reply: reply, Err: errors.New("reply contains no JSON object")}
	}

	var w wireIntent
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if w.Action == nil {
		return Unknown(), &ClassificationError{Reply: reply, Err: errors.New(`missing "action"`)}
	}
	action := ParseAction(*w.Action)
	if action == ActionUnknown && !strings.EqualFold(strings.TrimSpace(*w.Action), string(ActionUnknown)) {
		return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("unsupported action %q", *w.Action)}
	}

	in := Intent{Action: action}
	if w.Params != nil {
		var err error
		if in.Params.Term, err = decodeString(w.Params.Term); err != nil {
			return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("params.term: %w", err)}
		}
		if in.Params.To, err = decodeString(w.Params.To); err != nil {
			return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("params.to: %w", err)}
		}
		if in.Params.Subject, err = decodeString(w.Params.Subject); err != nil {
			return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("params.subject: %w", err)}
		}
		if in.Params.MaxRows, err = decodeRowCount(w.Params.MaxRows); err != nil {
			return Unknown(), &ClassificationError{Reply: reply, Err: fmt.Errorf("params.maxRows: %w", err)}
		}
	}
	return Normalize(in), nil
}

// extractObject returns the outermost {...} span of s, or "".
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected a string, got %s", raw)
	}
	return s, nil
}

// decodeRowCount accepts a JSON number or a numeric string. An absent, null
// or blank value is 0 (unspecified); an explicit value is at least 1.
func decodeRowCount(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("expected a number, got %s", raw)
		}
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", s)
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	switch {
	case f < 1:
		return 1, nil
	case f > MaxRows:
		return MaxRows, nil
	}
	return int(f), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
