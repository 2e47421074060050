package intent

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/klytics/sheetkit/internal/ai"
	"github.com/klytics/sheetkit/internal/logging"
)

// ClassifierPrompt is the system prompt sent with every classification.
const ClassifierPrompt = `
You convert any admin command into a strict JSON intent. Return ONLY JSON.

Schema:
{
  "action": "show_table" | "search" | "export" | "stats" | "summary" | "email_draft" | "help" | "unknown",
  "params": {
    "term": string?,
    "maxRows": number?,
    "to": string?,
    "subject": string?
  }
}

Examples:
"show sheet data" -> {"action":"show_table","params":{"maxRows":20}}
"find acme in sheet" -> {"action":"search","params":{"term":"acme"}}
"export data" -> {"action":"export","params":{}}
"how many records" -> {"action":"stats","params":{}}
"generate summary and insights" -> {"action":"summary","params":{}}
"create email to a@b.com subject Weekly Update" -> {"action":"email_draft","params":{"to":"a@b.com","subject":"Weekly Update"}}
"help" -> {"action":"help","params":{}}

If unclear -> {"action":"unknown","params":{}}
`

const (
	defaultClassifyTimeout = 20 * time.Second
	defaultCacheTTL        = 10 * time.Minute
)

// ClassifierConfig tunes a ClassifierResolver. Zero values pick defaults;
// a negative CacheTTL disables caching.
type ClassifierConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	// Fallback resolves the command when classification fails. When nil a
	// failed classification yields ActionUnknown.
	Fallback Resolver
}

// ClassifierResolver delegates resolution to a language model.
type ClassifierResolver struct {
	provider ai.Provider
	timeout  time.Duration
	fallback Resolver
	cache    *cache.Cache
}

// NewClassifierResolver creates a resolver backed by provider.
func NewClassifierResolver(provider ai.Provider, cfg ClassifierConfig) *ClassifierResolver {
	r := &ClassifierResolver{
		provider: provider,
		timeout:  cfg.Timeout,
		fallback: cfg.Fallback,
	}
	if r.timeout <= 0 {
		r.timeout = defaultClassifyTimeout
	}
	if cfg.CacheTTL >= 0 {
		ttl := cfg.CacheTTL
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve implements Resolver. Failures are logged and never returned.
func (r *ClassifierResolver) Resolve(ctx context.Context, command string) Intent {
	command = strings.TrimSpace(command)
	if command == "" {
		return Unknown()
	}

	key := strings.ToLower(command)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.(Intent)
		}
	}

	in, err := r.classify(ctx, command)
	if err != nil {
		logging.FromContext(ctx).Warn("intent classification failed",
			"provider", r.provider.Name(),
			"command", command,
			"error", err,
		)
		if r.fallback != nil {
			return r.fallback.Resolve(ctx, command)
		}
		return Unknown()
	}

	if r.cache != nil {
		r.cache.Set(key, in, cache.DefaultExpiration)
	}
	return in
}

// Classify returns the model's intent for command together with the reason
// it was rejected, if it was.
func (r *ClassifierResolver) Classify(ctx context.Context, command string) (Intent, error) {
	return r.classify(ctx, strings.TrimSpace(command))
}

func (r *ClassifierResolver) classify(ctx context.Context, command string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.provider.Infer(ctx, ClassifierPrompt, []ai.Message{
		{Role: "user", Content: command},
	}, ai.InferOptions{
		Temperature: ai.Temperature(0),
		MaxTokens:   200,
		JSON:        true,
	})
	if err != nil {
		return Unknown(), &ClassificationError{Err: err}
	}

	in, err := Decode(res.Content)
	if err != nil {
		return Unknown(), err
	}
	logging.FromContext(ctx).Debug("intent classified",
		"action", in.Action,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return in, nil
}
