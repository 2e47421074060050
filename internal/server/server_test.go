package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/store"
	"github.com/klytics/sheetkit/internal/table"
)

type stubSource struct {
	csv string
	err error
}

func (s *stubSource) Fetch(context.Context) (*table.Dataset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return table.Parse(s.csv), nil
}

func (s *stubSource) String() string { return "stub.csv" }

func newTestServer(t *testing.T, src *stubSource, resolver intent.Resolver) *Server {
	t.Helper()
	st := store.New(src)
	if _, err := st.Load(context.Background()); err != nil && src.err == nil {
		t.Fatal(err)
	}
	d := dispatch.New(dispatch.Config{Resolver: resolver})
	return NewServer(d, st, Options{Version: "test"})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dispatch.Response {
	t.Helper()
	var resp dispatch.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, w.Body.String())
	}
	return resp
}

const people = "name,company\nAda,Acme\nLin,Globex\n"

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	w := do(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var h healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Records != 2 || !h.Loaded || h.Version != "test" || h.Source != "stub.csv" {
		t.Errorf("health = %+v", h)
	}
}

func TestAIUsesPostedSheetData(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	body := `{"command":"search zed","currentAdmin":"Dana","sheetData":[{"__row_id":7,"name":"Zed","company":"Initech"}]}`
	w := do(t, s, http.MethodPost, "/api/ai", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp.Kind != dispatch.KindTable || resp.Table == nil {
		t.Fatalf("kind = %q", resp.Kind)
	}
	if resp.Table.Total != 1 || resp.Table.Rows[0].ID != 7 {
		t.Errorf("table = %+v", resp.Table)
	}
}

func TestAIFallsBackToStore(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	for _, body := range []string{
		`{"command":"show sheet data"}`,
		`{"command":"show sheet data","sheetData":null}`,
	} {
		resp := decodeResponse(t, do(t, s, http.MethodPost, "/api/ai", body))
		if resp.Table == nil || resp.Table.Total != 2 {
			t.Errorf("%s: table = %+v", body, resp.Table)
		}
	}
}

func TestAIActor(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	resp := decodeResponse(t, do(t, s, http.MethodPost, "/api/ai", `{"command":"how many records","actor":"Lee"}`))
	if !strings.Contains(resp.Text, "Lee") {
		t.Errorf("actor alias ignored: %q", resp.Text)
	}
	resp = decodeResponse(t, do(t, s, http.MethodPost, "/api/ai", `{"command":"how many records","currentAdmin":"Dana","actor":"Lee"}`))
	if !strings.Contains(resp.Text, "Dana") {
		t.Errorf("currentAdmin not preferred: %q", resp.Text)
	}
}

func TestAIBadRequests(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"command":`, "Invalid request"},
		{"bad sheet data", `{"command":"show","sheetData":"nope"}`, "Invalid sheet data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/ai", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			resp := decodeResponse(t, w)
			if resp.Kind != dispatch.KindText || !strings.HasPrefix(resp.Text, tt.want) {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestAIFaultReturns500(t *testing.T) {
	boom := intent.ResolverFunc(func(context.Context, string) intent.Intent {
		panic("resolver exploded")
	})
	s := newTestServer(t, &stubSource{csv: people}, boom)
	w := do(t, s, http.MethodPost, "/api/ai", `{"command":"show"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Kind != dispatch.KindText || !strings.Contains(resp.Text, "Server error") {
		t.Errorf("response = %+v", resp)
	}
}

func TestSheet(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	w := do(t, s, http.MethodGet, "/api/sheet", "")
	var got sheetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 2 || len(got.Headers) != 2 || got.LoadedAt == "" || got.Error != "" {
		t.Errorf("sheet = %+v", got)
	}
}

func TestRefresh(t *testing.T) {
	src := &stubSource{csv: people}
	s := newTestServer(t, src, nil)

	src.csv = people + "Sam,Acme Labs\n"
	w := do(t, s, http.MethodPost, "/api/sheet/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	src.err = errors.New("status 503")
	w = do(t, s, http.MethodPost, "/api/sheet/refresh", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed refresh status = %d", w.Code)
	}
	var got sheetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 3 || !strings.Contains(got.Error, "status 503") {
		t.Errorf("failed refresh kept = %+v", got)
	}
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, &stubSource{csv: people}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/ai", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}
