// Package dispatch runs a resolved command against a dataset and packages
// the outcome as a Response. Dispatch never fails: expected problems become
// text responses and unexpected ones become a fault response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klytics/sheetkit/internal/generate"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/logging"
	"github.com/klytics/sheetkit/internal/query"
	"github.com/klytics/sheetkit/internal/table"
)

// DefaultActor is used when a request names no actor.
const DefaultActor = "Admin"

// TimestampLayout formats timestamps shown to the operator.
const TimestampLayout = "Jan 2, 2006, 3:04:05 PM"

var errNoGenerator = errors.New("no AI provider configured")

// Request is one command against a dataset snapshot.
type Request struct {
	Command string
	Actor   string
	Dataset *table.Dataset
}

// Event describes a completed dispatch for observers such as the audit log.
type Event struct {
	Time     time.Time
	Command  string
	Actor    string
	Intent   intent.Intent
	Kind     Kind
	Fault    bool
	Duration time.Duration
	DraftID  string
}

// Observer is notified after every dispatch.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Config wires a Dispatcher. Only Resolver is required; a nil Generator
// makes summary and email commands degrade to their fallback messages.
type Config struct {
	Resolver  intent.Resolver
	Generator generate.Generator
	Observers []Observer
	Now       func() time.Time
	NewID     func() string
}

// Dispatcher executes commands.
type Dispatcher struct {
	resolver  intent.Resolver
	generator generate.Generator
	observers []Observer
	now       func() time.Time
	newID     func() string
}

// New creates a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		resolver:  cfg.Resolver,
		generator: cfg.Generator,
		observers: cfg.Observers,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if d.resolver == nil {
		d.resolver = intent.NewRuleResolver()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

// Resolve resolves command with the dispatcher's resolver.
func (d *Dispatcher) Resolve(ctx context.Context, command string) intent.Intent {
	return d.resolver.Resolve(ctx, command)
}

// Dispatch resolves req.Command and executes it.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	start := d.now()
	in := intent.Unknown()
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("dispatch panic",
				"command", req.Command,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = FaultResponse(r)
		}
		d.notify(ctx, req, in, resp, start)
	}()

	in = d.resolver.Resolve(ctx, req.Command)
	return d.execute(ctx, req, in)
}

// Execute runs an already resolved intent.
func (d *Dispatcher) Execute(ctx context.Context, req Request, in intent.Intent) (resp Response) {
	start := d.now()
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("dispatch panic", "command", req.Command, "panic", r)
			resp = FaultResponse(r)
		}
		d.notify(ctx, req, in, resp, start)
	}()
	return d.execute(ctx, req, in)
}

func (d *Dispatcher) execute(ctx context.Context, req Request, in intent.Intent) Response {
	ds := req.Dataset
	if ds == nil {
		ds = table.Empty()
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = DefaultActor
	}
	in = intent.Normalize(in)

	switch in.Action {
	case intent.ActionShowTable:
		return d.showTable(ds, in.Params.MaxRows)
	case intent.ActionSearch:
		return d.search(ds, in.Params.Term)
	case intent.ActionExport:
		return d.export(ds)
	case intent.ActionStats:
		return d.stats(ds, actor)
	case intent.ActionSummary:
		return d.summary(ctx, ds, actor)
	case intent.ActionEmailDraft:
		return d.emailDraft(ctx, ds, actor, in.Params)
	case intent.ActionHelp:
		return TextResponse(helpText)
	default:
		return TextResponse(unknownText(req.Command))
	}
}

func (d *Dispatcher) showTable(ds *table.Dataset, maxRows int) Response {
	page := query.Paginate(ds, maxRows)
	return Response{Kind: KindTable, Table: &TablePayload{
		Title:   "Live Sheet Data",
		Headers: headersOf(ds),
		Rows:    page.Rows,
		Total:   page.Total,
		Summary: fmt.Sprintf("Loaded %d total records.", page.Total),
	}}
}

func (d *Dispatcher) search(ds *table.Dataset, term string) Response {
	page, err := query.Search(ds, term)
	if errors.Is(err, query.ErrEmptyTerm) {
		return TextResponse("Please provide something to search for.")
	}
	if page.Total == 0 {
		return TextResponse(fmt.Sprintf("No results found for %q. Try another term.", term))
	}
	return Response{Kind: KindTable, Table: &TablePayload{
		Title:   fmt.Sprintf("Search Results for %q", term),
		Headers: headersOf(ds),
		Rows:    page.Rows,
		Total:   page.Total,
		Summary: fmt.Sprintf("Found %d matching record(s).", page.Total),
	}}
}

func (d *Dispatcher) export(ds *table.Dataset) Response {
	csv, err := query.ExportCSV(ds)
	if errors.Is(err, query.ErrNothingToExport) {
		return TextResponse("No data to export.")
	}
	return Response{Kind: KindDownload, Download: &DownloadPayload{
		Content:          csv,
		Filename:         fmt.Sprintf("sheet-export-%d.csv", d.now().UnixMilli()),
		ConfirmationText: fmt.Sprintf("Ready to download! %d records prepared as CSV file.", ds.Len()),
	}}
}

func (d *Dispatcher) stats(ds *table.Dataset, actor string) Response {
	return TextResponse(statsText(query.Stats(ds, d.now()), actor))
}

func (d *Dispatcher) summary(ctx context.Context, ds *table.Dataset, actor string) Response {
	if d.generator == nil {
		return TextResponse(fmt.Sprintf("Summary unavailable: %v", errNoGenerator))
	}
	text, err := d.generator.Summary(ctx, generate.SummaryRequest{
		Headers: headersOf(ds),
		Sample:  query.SampleRows(ds, generate.SummarySampleSize),
		Total:   ds.Len(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("summary generation failed", "error", err)
		return TextResponse(fmt.Sprintf("Summary unavailable: %v", err))
	}
	return TextResponse(fmt.Sprintf("**Executive Summary**\n\n%s\n\n*Generated %s by %s*",
		text, d.now().Format(TimestampLayout), actor))
}

func (d *Dispatcher) emailDraft(ctx context.Context, ds *table.Dataset, actor string, p intent.Params) Response {
	if d.generator == nil {
		return TextResponse(fmt.Sprintf("Email draft unavailable: %v", errNoGenerator))
	}
	body, err := d.generator.EmailBody(ctx, generate.EmailRequest{
		To:      p.To,
		Subject: p.Subject,
		Actor:   actor,
		Headers: headersOf(ds),
		Sample:  query.SampleRows(ds, generate.EmailSampleSize),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("email generation failed", "error", err)
		return TextResponse(fmt.Sprintf("Email draft unavailable: %v", err))
	}
	return Response{Kind: KindEmail, Email: &EmailDraft{
		DraftID:   d.newID(),
		To:        p.To,
		Subject:   p.Subject,
		Body:      fmt.Sprintf("%s\n\nBest regards,\n%s", body, actor),
		CreatedBy: actor,
		Timestamp: d.now().Format(TimestampLayout),
	}}
}

func (d *Dispatcher) notify(ctx context.Context, req Request, in intent.Intent, resp Response, start time.Time) {
	if len(d.observers) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("dispatch observer panic", "panic", r)
		}
	}()
	ev := Event{
		Time:     start,
		Command:  req.Command,
		Actor:    req.Actor,
		Intent:   in,
		Kind:     resp.Kind,
		Fault:    resp.Fault,
		Duration: d.now().Sub(start),
	}
	if ev.Actor == "" {
		ev.Actor = DefaultActor
	}
	if resp.Email != nil {
		ev.DraftID = resp.Email.DraftID
	}
	for _, o := range d.observers {
		o.Observe(ctx, ev)
	}
}

func headersOf(ds *table.Dataset) []string {
	if ds.Headers == nil {
		return []string{}
	}
	return ds.Headers
}
