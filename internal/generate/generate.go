// Package generate produces narrative text (dataset summaries and email
// bodies) through a language model.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klytics/sheetkit/internal/ai"
	"github.com/klytics/sheetkit/internal/table"
)

const (
	SummarySampleSize = 50
	EmailSampleSize   = 10

	defaultTimeout = 45 * time.Second
)

const (
	summaryPrompt = "Analyze tabular business data. Output: 3-5 bullet insights + 3 short recommendations. Be concise."
	emailPrompt   = "Write a brief, professional email body. Clear, actionable, no fluff."
)

// ErrGeneration matches every *GenerationError.
var ErrGeneration = errors.New("text generation failed")

// GenerationError reports a failed or empty generation.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// SummaryRequest is the context handed to the summary model.
type SummaryRequest struct {
	Headers []string
	Sample  []table.Row
	Total   int
}

// EmailRequest is the context handed to the email model.
type EmailRequest struct {
	To      string
	Subject string
	Actor   string
	Headers []string
	Sample  []table.Row
}

// Generator writes prose about a dataset.
type Generator interface {
	Summary(ctx context.Context, req SummaryRequest) (string, error)
	EmailBody(ctx context.Context, req EmailRequest) (string, error)
}

// AIGenerator implements Generator with an ai.Provider.
type AIGenerator struct {
	provider ai.Provider
	timeout  time.Duration
}

// NewAIGenerator returns a generator bounded by timeout per call; zero
// selects 45s.
func NewAIGenerator(provider ai.Provider, timeout time.Duration) *AIGenerator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AIGenerator{provider: provider, timeout: timeout}
}

// Summary asks for bullet insights and recommendations about the sample.
func (g *AIGenerator) Summary(ctx context.Context, req SummaryRequest) (string, error) {
	rows, err := rowsJSON(req.Sample)
	if err != nil {
		return "", &GenerationError{Op: "summary", Err: err}
	}
	user := fmt.Sprintf("Headers: %s\nSample rows (JSON): %s\nTotal rows: %d",
		strings.Join(req.Headers, ", "), rows, req.Total)
	return g.infer(ctx, "summary", summaryPrompt, user, 0.3)
}

// EmailBody asks for the body of an email referencing the sample.
func (g *AIGenerator) EmailBody(ctx context.Context, req EmailRequest) (string, error) {
	rows, err := rowsJSON(req.Sample)
	if err != nil {
		return "", &GenerationError{Op: "email", Err: err}
	}
	user := fmt.Sprintf("Recipient: %s\nSubject: %s\nContext: Admin %s with reference to data.\nHeaders: %s\nSample rows: %s\nWrite only the body.",
		req.To, req.Subject, req.Actor, strings.Join(req.Headers, ", "), rows)
	return g.infer(ctx, "email", emailPrompt, user, 0.4)
}

func (g *AIGenerator) infer(ctx context.Context, op, system, user string, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.provider.Infer(ctx, system, []ai.Message{{Role: "user", Content: user}}, ai.InferOptions{
		Temperature: ai.Temperature(temperature),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", g.timeout)
		}
		return "", &GenerationError{Op: op, Err: err}
	}

	text := strings.TrimSpace(res.Content)
	if text == "" {
		return "", &GenerationError{Op: op, Err: errors.New("model returned an empty response")}
	}
	return text, nil
}

// rowsJSON renders rows as a JSON array, keeping the row identifier the way
// the table view shows it.
func rowsJSON(rows []table.Row) (string, error) {
	if rows == nil {
		rows = []table.Row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("could not encode sample rows: %w", err)
	}
	return string(b), nil
}
