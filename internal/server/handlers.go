package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/logging"
	"github.com/klytics/sheetkit/internal/store"
	"github.com/klytics/sheetkit/internal/table"
)

// aiRequest is the body of POST /api/ai. currentAdmin and sheetData are the
// browser console's names; actor and dataset are accepted as aliases.
type aiRequest struct {
	Command      string          `json:"command"`
	CurrentAdmin string          `json:"currentAdmin"`
	Actor        string          `json:"actor"`
	SheetData    json.RawMessage `json:"sheetData"`
	Dataset      json.RawMessage `json:"dataset"`
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, dispatch.TextResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	ds, err := s.requestDataset(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dispatch.TextResponse(fmt.Sprintf("Invalid sheet data: %v", err)))
		return
	}

	actor := req.CurrentAdmin
	if actor == "" {
		actor = req.Actor
	}
	resp := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Command: req.Command,
		Actor:   actor,
		Dataset: ds,
	})

	status := http.StatusOK
	if resp.Fault {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// requestDataset prefers rows posted with the request and falls back to the
// store when the request carries none.
func (s *Server) requestDataset(req aiRequest) (*table.Dataset, error) {
	raw := req.SheetData
	if isAbsent(raw) {
		raw = req.Dataset
	}
	if isAbsent(raw) {
		return s.store.Current(), nil
	}
	return table.DecodeRecords(raw)
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// sheetResponse is the body of GET /api/sheet and POST /api/sheet/refresh.
type sheetResponse struct {
	Headers  []string    `json:"headers"`
	Rows     []table.Row `json:"rows"`
	Total    int         `json:"total"`
	Source   string      `json:"source"`
	LoadedAt string      `json:"loadedAt,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func newSheetResponse(ds *table.Dataset, info store.Info) sheetResponse {
	resp := sheetResponse{
		Headers: []string{},
		Rows:    []table.Row{},
		Source:  info.Source,
	}
	if ds != nil {
		resp.Headers = append(resp.Headers, ds.Headers...)
		resp.Rows = append(resp.Rows, ds.Rows...)
		resp.Total = ds.Len()
	}
	if !info.LoadedAt.IsZero() {
		resp.LoadedAt = info.LoadedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSheetResponse(s.store.Current(), s.store.Info()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	_, err := s.store.Load(r.Context())
	resp := newSheetResponse(s.store.Current(), s.store.Info())
	if err != nil {
		logging.FromContext(r.Context()).Warn("sheet refresh failed", "error", err)
		resp.Error = err.Error()
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrSourceFetch) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Records int    `json:"records"`
	Source  string `json:"source"`
	Loaded  bool   `json:"loaded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.store.Info()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Records: info.Records,
		Source:  info.Source,
		Loaded:  !info.LoadedAt.IsZero(),
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
