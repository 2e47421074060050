package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klytics/sheetkit/internal/ai"
	"github.com/klytics/sheetkit/internal/generate"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/table"
)

var fixedNow = time.Date(2026, 10, 14, 15, 4, 5, 0, time.UTC)

type stubGenerator struct {
	summary    string
	email      string
	err        error
	panicWith  any
	lastEmail  generate.EmailRequest
	lastSample int
}

func (g *stubGenerator) Summary(_ context.Context, req generate.SummaryRequest) (string, error) {
	if g.panicWith != nil {
		panic(g.panicWith)
	}
	g.lastSample = len(req.Sample)
	return g.summary, g.err
}

func (g *stubGenerator) EmailBody(_ context.Context, req generate.EmailRequest) (string, error) {
	g.lastEmail = req
	g.lastSample = len(req.Sample)
	return g.email, g.err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func newDispatcher(gen generate.Generator, observers ...Observer) *Dispatcher {
	return New(Config{
		Resolver:  intent.NewRuleResolver(),
		Generator: gen,
		Observers: observers,
		Now:       func() time.Time { return fixedNow },
		NewID:     func() string { return "draft-1" },
	})
}

func dataset(n int) *table.Dataset {
	var b strings.Builder
	b.WriteString("name,company,amount\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "person %d,Company %d,%d\n", i, i%3, i*5)
	}
	return table.Parse(b.String())
}

func TestShowSheetData(t *testing.T) {
	d := newDispatcher(nil)
	resp := d.Dispatch(context.Background(), Request{Command: "show sheet data", Dataset: dataset(50)})

	if resp.Kind != KindTable || resp.Table == nil {
		t.Fatalf("kind = %q, want table", resp.Kind)
	}
	if len(resp.Table.Rows) != 20 || resp.Table.Total != 50 {
		t.Errorf("rows=%d total=%d, want 20/50", len(resp.Table.Rows), resp.Table.Total)
	}
	if resp.Table.Summary != "Loaded 50 total records." {
		t.Errorf("summary = %q", resp.Table.Summary)
	}
	if strings.Join(resp.Table.Headers, ",") != "name,company,amount" {
		t.Errorf("headers = %v", resp.Table.Headers)
	}
}

func TestShowTableClamps(t *testing.T) {
	d := newDispatcher(nil)
	ds := dataset(300)
	in := intent.Intent{Action: intent.ActionShowTable, Params: intent.Params{MaxRows: 5000}}
	resp := d.Execute(context.Background(), Request{Dataset: ds}, in)
	if len(resp.Table.Rows) != 200 || resp.Table.Total != 300 {
		t.Errorf("rows=%d total=%d", len(resp.Table.Rows), resp.Table.Total)
	}
}

func TestShowTableExplicitRowCounts(t *testing.T) {
	d := newDispatcher(nil)
	ds := dataset(50)
	tests := []struct {
		reply string
		want  int
	}{
		{`{"action":"show_table","params":{"maxRows":0}}`, 1},
		{`{"action":"show_table","params":{"maxRows":-5}}`, 1},
		{`{"action":"show_table","params":{"maxRows":7}}`, 7},
		{`{"action":"show_table","params":{}}`, 20},
		{`{"action":"show_table"}`, 20},
	}
	for _, tt := range tests {
		in, err := intent.Decode(tt.reply)
		if err != nil {
			t.Fatalf("Decode(%s): %v", tt.reply, err)
		}
		resp := d.Execute(context.Background(), Request{Dataset: ds}, in)
		if len(resp.Table.Rows) != tt.want || resp.Table.Total != 50 {
			t.Errorf("%s: rows=%d total=%d, want rows=%d", tt.reply, len(resp.Table.Rows), resp.Table.Total, tt.want)
		}
	}
}

func TestSearch(t *testing.T) {
	d := newDispatcher(nil)
	ctx := context.Background()
	ds := dataset(9)

	resp := d.Dispatch(ctx, Request{Command: "search zzz-no-match", Dataset: ds})
	if resp.Kind != KindText || !strings.Contains(resp.Text, "No results") {
		t.Errorf("no-match response = %+v", resp)
	}

	resp = d.Dispatch(ctx, Request{Command: "search", Dataset: ds})
	if resp.Kind != KindText || resp.Text != "Please provide something to search for." {
		t.Errorf("empty-term response = %+v", resp)
	}

	resp = d.Dispatch(ctx, Request{Command: "find company 1", Dataset: ds})
	if resp.Kind != KindTable {
		t.Fatalf("kind = %q, want table", resp.Kind)
	}
	if resp.Table.Total != 3 || len(resp.Table.Rows) != 3 {
		t.Errorf("total=%d rows=%d", resp.Table.Total, len(resp.Table.Rows))
	}
	if resp.Table.Title != `Search Results for "company 1"` || resp.Table.Summary != "Found 3 matching record(s)." {
		t.Errorf("title=%q summary=%q", resp.Table.Title, resp.Table.Summary)
	}
}

func TestSearchTotalCountsAllMatches(t *testing.T) {
	d := newDispatcher(nil)
	resp := d.Dispatch(context.Background(), Request{Command: "search person", Dataset: dataset(130)})
	if resp.Table.Total != 130 || len(resp.Table.Rows) != 100 {
		t.Errorf("total=%d rows=%d", resp.Table.Total, len(resp.Table.Rows))
	}
}

func TestExport(t *testing.T) {
	d := newDispatcher(nil)
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Command: "export data", Dataset: table.Empty()})
	if resp.Kind != KindText || !strings.Contains(resp.Text, "No data to export") {
		t.Errorf("empty export = %+v", resp)
	}
	resp = d.Dispatch(ctx, Request{Command: "export data"})
	if resp.Kind != KindText {
		t.Errorf("nil dataset export kind = %q", resp.Kind)
	}

	resp = d.Dispatch(ctx, Request{Command: "export data", Dataset: dataset(4)})
	if resp.Kind != KindDownload {
		t.Fatalf("kind = %q, want download", resp.Kind)
	}
	dl := resp.Download
	if dl.Filename != fmt.Sprintf("sheet-export-%d.csv", fixedNow.UnixMilli()) {
		t.Errorf("filename = %q", dl.Filename)
	}
	if dl.ConfirmationText != "Ready to download! 4 records prepared as CSV file." {
		t.Errorf("confirmation = %q", dl.ConfirmationText)
	}
	if !strings.HasPrefix(dl.Content, "name,company,amount\nperson 1,Company 1,5\n") {
		t.Errorf("content = %q", dl.Content)
	}
}

func TestStats(t *testing.T) {
	d := newDispatcher(nil)
	resp := d.Dispatch(context.Background(), Request{Command: "how many records", Actor: "Dana", Dataset: dataset(4)})
	if resp.Kind != KindText {
		t.Fatalf("kind = %q", resp.Kind)
	}
	for _, want := range []string{
		"**Total Records:** 4",
		"**Columns:** 3 (name, company, amount)",
		"**Admin:** Dana",
		"**Last Updated:** Oct 14, 2026, 3:04:05 PM",
		"• amount: min 5, max 20, mean 12.50, median 12.50, sum 50",
	} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("stats missing %q:\n%s", want, resp.Text)
		}
	}
}

func TestSummary(t *testing.T) {
	gen := &stubGenerator{summary: "- Sales are up"}
	d := newDispatcher(gen)
	resp := d.Dispatch(context.Background(), Request{Command: "generate summary", Dataset: dataset(80)})

	if resp.Kind != KindText || !strings.HasPrefix(resp.Text, "**Executive Summary**\n\n- Sales are up") {
		t.Errorf("summary = %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "by Admin*") {
		t.Errorf("summary should credit the default actor: %q", resp.Text)
	}
	if gen.lastSample != generate.SummarySampleSize {
		t.Errorf("sample size = %d", gen.lastSample)
	}
}

func TestGenerationFailureFallbacks(t *testing.T) {
	failure := &generate.GenerationError{Op: "summary", Err: errors.New("quota exceeded")}
	d := newDispatcher(&stubGenerator{err: failure})
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Command: "generate summary", Dataset: dataset(3)})
	if resp.Kind != KindText || !strings.HasPrefix(resp.Text, "Summary unavailable:") || !strings.Contains(resp.Text, "quota exceeded") {
		t.Errorf("summary fallback = %+v", resp)
	}

	resp = d.Dispatch(ctx, Request{Command: "email a@b.com subject Hi", Dataset: dataset(3)})
	if resp.Kind != KindText || !strings.HasPrefix(resp.Text, "Email draft unavailable:") {
		t.Errorf("email fallback = %+v", resp)
	}
	if resp.Fault {
		t.Error("generation failures are not faults")
	}

	noAI := newDispatcher(nil)
	resp = noAI.Dispatch(ctx, Request{Command: "summarize", Dataset: dataset(3)})
	if !strings.Contains(resp.Text, "no AI provider configured") {
		t.Errorf("no-generator summary = %q", resp.Text)
	}
}

func TestEmailDraft(t *testing.T) {
	gen := &stubGenerator{email: "Please review the attached numbers."}
	d := newDispatcher(gen)
	resp := d.Dispatch(context.Background(), Request{
		Command: "create email to a@b.com subject Weekly Update",
		Actor:   "Dana",
		Dataset: dataset(30),
	})
	if resp.Kind != KindEmail || resp.Email == nil {
		t.Fatalf("kind = %q, want email", resp.Kind)
	}
	want := EmailDraft{
		DraftID:   "draft-1",
		To:        "a@b.com",
		Subject:   "Weekly Update",
		Body:      "Please review the attached numbers.\n\nBest regards,\nDana",
		CreatedBy: "Dana",
		Timestamp: "Oct 14, 2026, 3:04:05 PM",
	}
	if *resp.Email != want {
		t.Errorf("draft = %+v\nwant %+v", *resp.Email, want)
	}
	if gen.lastSample != generate.EmailSampleSize || gen.lastEmail.Actor != "Dana" {
		t.Errorf("email request = %+v", gen.lastEmail)
	}
}

func TestEmailDraftPlaceholders(t *testing.T) {
	gen := &stubGenerator{email: "Body"}
	d := newDispatcher(gen)
	resp := d.Dispatch(context.Background(), Request{Command: "compose an update"})
	if resp.Email.To != intent.PlaceholderRecipient || resp.Email.Subject != intent.PlaceholderSubject {
		t.Errorf("draft = %+v", resp.Email)
	}
}

func TestDraftIDsAreUnique(t *testing.T) {
	d := New(Config{Generator: &stubGenerator{email: "b"}})
	a := d.Dispatch(context.Background(), Request{Command: "draft email"})
	b := d.Dispatch(context.Background(), Request{Command: "draft email"})
	if a.Email.DraftID == "" || a.Email.DraftID == b.Email.DraftID {
		t.Errorf("ids %q and %q", a.Email.DraftID, b.Email.DraftID)
	}
}

func TestHelpAndUnknown(t *testing.T) {
	d := newDispatcher(nil)
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Command: "help"})
	if resp.Kind != KindText || !strings.Contains(resp.Text, "AI Agent Commands") {
		t.Errorf("help = %+v", resp)
	}

	resp = d.Dispatch(ctx, Request{Command: "make me a sandwich"})
	if resp.Kind != KindText || !strings.Contains(resp.Text, `I received: "make me a sandwich"`) {
		t.Errorf("unknown = %+v", resp)
	}
}

type badJSONProvider struct{}

func (badJSONProvider) Name() string { return "bad" }

func (badJSONProvider) Infer(context.Context, string, []ai.Message, ai.InferOptions) (*ai.InferResult, error) {
	return &ai.InferResult{Content: "this is definitely not JSON"}, nil
}

func TestInvalidClassifierReplyFallsBackToUnknown(t *testing.T) {
	d := New(Config{Resolver: intent.NewClassifierResolver(badJSONProvider{}, intent.ClassifierConfig{})})
	for _, command := range []string{"show sheet data", "export everything", "xyzzy"} {
		resp := d.Dispatch(context.Background(), Request{Command: command, Dataset: dataset(5)})
		if resp.Kind != KindText || !strings.Contains(resp.Text, command) {
			t.Errorf("%q: response = %+v", command, resp)
		}
		if !strings.HasPrefix(resp.Text, "I received:") {
			t.Errorf("%q: expected default reply, got %q", command, resp.Text)
		}
	}
}

func TestPanicsBecomeFaultResponses(t *testing.T) {
	d := newDispatcher(&stubGenerator{panicWith: "boom"})
	resp := d.Dispatch(context.Background(), Request{Command: "generate summary", Dataset: dataset(2)})
	if resp.Kind != KindText || !resp.Fault || resp.Text != "Server error: boom" {
		t.Errorf("response = %+v", resp)
	}

	panicky := New(Config{Resolver: intent.ResolverFunc(func(context.Context, string) intent.Intent {
		panic(errors.New("resolver exploded"))
	})})
	resp = panicky.Dispatch(context.Background(), Request{Command: "anything"})
	if !resp.Fault || !strings.Contains(resp.Text, "resolver exploded") {
		t.Errorf("response = %+v", resp)
	}
}

func TestObserversSeeEveryDispatch(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(&stubGenerator{email: "b", panicWith: nil}, rec)
	ctx := context.Background()

	d.Dispatch(ctx, Request{Command: "export data", Dataset: dataset(2), Actor: "Lin"})
	d.Dispatch(ctx, Request{Command: "draft email to a@b.com"})

	if len(rec.events) != 2 {
		t.Fatalf("events = %d", len(rec.events))
	}
	first := rec.events[0]
	if first.Command != "export data" || first.Actor != "Lin" || first.Intent.Action != intent.ActionExport || first.Kind != KindDownload {
		t.Errorf("first event = %+v", first)
	}
	second := rec.events[1]
	if second.Actor != DefaultActor || second.Kind != KindEmail || second.DraftID != "draft-1" {
		t.Errorf("second event = %+v", second)
	}
}

func TestResponseJSON(t *testing.T) {
	d := newDispatcher(&stubGenerator{email: "Body"})
	ctx := context.Background()
	ds := table.Parse("name,age\nAda,30\nLin,25\n")

	tests := []struct {
		command string
		want    string
	}{
		{"show sheet data", `{"type":"table","message":{"title":"Live Sheet Data","headers":["name","age"],"rows":[{"__row_id":1,"age":"30","name":"Ada"},{"__row_id":2,"age":"25","name":"Lin"}],"total":2,"summary":"Loaded 2 total records."}}`},
		{"help", ""},
		{"export data", ""},
		{"email a@b.com", ""},
	}
	for _, tt := range tests {
		resp := d.Dispatch(ctx, Request{Command: tt.command, Dataset: ds})
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("%q: marshal: %v", tt.command, err)
		}
		if tt.want != "" && string(data) != tt.want {
			t.Errorf("%q:\n got %s\nwant %s", tt.command, data, tt.want)
		}

		var back Response
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%q: unmarshal: %v", tt.command, err)
		}
		if back.Kind != resp.Kind {
			t.Errorf("%q: kind %q -> %q", tt.command, resp.Kind, back.Kind)
		}
	}

	var wire map[string]any
	data, _ := json.Marshal(d.Dispatch(ctx, Request{Command: "email a@b.com subject Hi", Dataset: ds}))
	json.Unmarshal(data, &wire)
	msg := wire["message"].(map[string]any)
	for _, key := range []string{"draftId", "to", "subject", "body", "createdBy", "timestamp"} {
		if _, ok := msg[key]; !ok {
			t.Errorf("email payload missing %q: %s", key, data)
		}
	}

	data, _ = json.Marshal(d.Dispatch(ctx, Request{Command: "export data", Dataset: ds}))
	json.Unmarshal(data, &wire)
	msg = wire["message"].(map[string]any)
	for _, key := range []string{"content", "filename", "confirmationText"} {
		if _, ok := msg[key]; !ok {
			t.Errorf("download payload missing %q: %s", key, data)
		}
	}
}

func TestTableRowsRoundTripThroughJSON(t *testing.T) {
	d := newDispatcher(nil)
	resp := d.Dispatch(context.Background(), Request{Command: "show data", Dataset: table.Parse("a,b\n1,2\n")})
	data, _ := json.Marshal(resp)

	var back Response
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	row := back.Table.Rows[0]
	if row.ID != 1 || row.Get("a") != "1" || row.Get("b") != "2" {
		t.Errorf("row = %+v", row)
	}
}

func TestTableRowsKeepHeaderOrder(t *testing.T) {
	d := newDispatcher(nil)
	resp := d.Dispatch(context.Background(), Request{Command: "show data", Dataset: table.Parse("zeta,alpha\n1,2\n")})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `{"`+table.IDKey+`":1,"zeta":"1","alpha":"2"}`) {
		t.Errorf("json = %s", data)
	}

	var back Response
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	again, err := json.Marshal(back.Table.Rows[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"` + table.IDKey + `":1,"zeta":"1","alpha":"2"}`; string(again) != want {
		t.Errorf("decoded row JSON = %s, want %s", again, want)
	}
}

func TestEmptyTableMarshalsEmptyArrays(t *testing.T) {
	d := newDispatcher(nil)
	data, err := json.Marshal(d.Dispatch(context.Background(), Request{Command: "show data"}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"headers":[]`) || !strings.Contains(string(data), `"rows":[]`) {
		t.Errorf("json = %s", data)
	}
}
