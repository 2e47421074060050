package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/klytics/sheetkit/internal/email"
)

// Rule maps a keyword set onto an action. Extract derives the parameters
// from the original command; it may be nil. When, if set, is an extra
// condition on the original command.
type Rule struct {
	Action   Action
	Keywords []string
	Extract  func(command string) Params
	When     func(command string) bool

	pattern *regexp.Regexp
}

// NewRule compiles a rule matching any of keywords as whole words, ignoring
// case. A keyword may contain spaces ("how many") and regexp fragments.
func NewRule(action Action, keywords []string, extract func(string) Params) Rule {
	return Rule{
		Action:   action,
		Keywords: keywords,
		Extract:  extract,
		pattern:  wordPattern(keywords),
	}
}

// Match reports whether the rule applies to command. Email addresses are
// not scanned for keywords, so "find ops@mail.com" does not look like an
// email command.
func (r Rule) Match(command string) bool {
	if !r.pattern.MatchString(email.StripAddresses(command)) {
		return false
	}
	return r.When == nil || r.When(command)
}

func wordPattern(keywords []string) *regexp.Regexp {
	parts := make([]string, len(keywords))
	for i, k := range keywords {
		parts[i] = strings.ReplaceAll(k, " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

var (
	emailKeywords   = []string{"e-?mail", "draft", "compose", "mail", "write to"}
	searchKeywords  = []string{"search", "find", "lookup", "look up", "look for", "filter", "where is"}
	exportKeywords  = []string{"export", "download", "csv"}
	summaryKeywords = []string{"summary", "summari[sz]e", "report", "analy[sz]e", "analysis", "insights?"}
	statsKeywords   = []string{"count", "how many", "stats", "statistics", "total"}
	helpKeywords    = []string{"help", "commands", "what can you do"}
	showKeywords    = []string{"show", "display", "view", "list", "table", "open", "sheet data"}

	// stopwords are dropped from an extracted search term.
	stopwords = []string{"for", "in", "the", "sheet", "data", "rows", "records", "please", "me"}

	searchStrip  = wordPattern(append(append([]string{}, searchKeywords...), stopwords...))
	subjectRegex = regexp.MustCompile(`(?i)\bsubject\b\s*[:=]?\s*(.+)$`)
	toClause     = regexp.MustCompile(`(?i)\s+to\s*$`)
	numberRegex  = regexp.MustCompile(`\b(\d{1,6})\b`)
	spaceRegex   = regexp.MustCompile(`\s+`)

	// emailLead matches a command that opens by asking for an email, as in
	// "email the team" or "please draft a note".
	emailLead = regexp.MustCompile(`(?i)^\W*(?:(?:please|can you|could you)\s+)?` +
		`(?:(?:create|write|send|compose|draft|prepare|make)\s+(?:me\s+)?(?:an?\s+|the\s+|new\s+)*)?` +
		`(?:e-?mails?|mail|draft|message|note)\b`)
	emailVerb = regexp.MustCompile(`(?i)\b(?:compose|write to)\b`)
)

// addressed reports whether command names a recipient or a subject line.
func addressed(command string) bool {
	return email.FindAddress(command) != "" || subjectRegex.MatchString(command)
}

// asksForEmail reports whether command is phrased as an email request rather
// than a mention of an email column.
func asksForEmail(command string) bool {
	return emailLead.MatchString(command) || emailVerb.MatchString(command)
}

// DefaultRules is the built-in rule table. An email request that names a
// recipient or subject comes first so words in the subject line cannot
// select a later rule. Otherwise data commands win over a passing mention
// of email, as in "export email list".
func DefaultRules() []Rule {
	addressedEmail := NewRule(ActionEmailDraft, emailKeywords, extractEmail)
	addressedEmail.When = addressed
	plainEmail := NewRule(ActionEmailDraft, emailKeywords, extractEmail)
	plainEmail.When = asksForEmail

	return []Rule{
		addressedEmail,
		NewRule(ActionSearch, searchKeywords, extractSearch),
		NewRule(ActionExport, exportKeywords, nil),
		NewRule(ActionStats, statsKeywords, nil),
		plainEmail,
		NewRule(ActionSummary, summaryKeywords, nil),
		NewRule(ActionHelp, helpKeywords, nil),
		NewRule(ActionShowTable, showKeywords, extractMaxRows),
	}
}

// RuleResolver resolves commands with an ordered rule table. The first
// matching rule wins; no match yields ActionUnknown.
type RuleResolver struct {
	rules []Rule
}

// NewRuleResolver returns a resolver over rules, or DefaultRules when none
// are given.
func NewRuleResolver(rules ...Rule) *RuleResolver {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleResolver{rules: rules}
}

// Resolve implements Resolver.
func (r *RuleResolver) Resolve(_ context.Context, command string) Intent {
	command = strings.TrimSpace(command)
	if command == "" {
		return Unknown()
	}
	for _, rule := range r.rules {
		if !rule.Match(command) {
			continue
		}
		in := Intent{Action: rule.Action}
		if rule.Extract != nil {
			in.Params = rule.Extract(command)
		}
		return Normalize(in)
	}
	return Unknown()
}

// Rules returns the resolver's rule table.
func (r *RuleResolver) Rules() []Rule {
	return r.rules
}

func extractSearch(command string) Params {
	term := searchStrip.ReplaceAllString(command, " ")
	term = spaceRegex.ReplaceAllString(term, " ")
	term = strings.Trim(strings.TrimSpace(term), ":,.?!")
	return Params{Term: trimQuotes(term)}
}

func extractEmail(command string) Params {
	p := Params{To: email.FindAddress(command)}
	if m := subjectRegex.FindStringSubmatch(command); m != nil {
		subject := email.StripAddresses(m[1])
		subject = toClause.ReplaceAllString(strings.TrimSpace(subject), "")
		p.Subject = trimQuotes(spaceRegex.ReplaceAllString(subject, " "))
	}
	return p
}

func extractMaxRows(command string) Params {
	m := numberRegex.FindStringSubmatch(command)
	if m == nil {
		return Params{}
	}
	n, _ := strconv.Atoi(m[1])
	if n < 1 {
		n = 1
	}
	return Params{MaxRows: n}
}
