package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/klytics/sheetkit/internal/table"
)

// Kind tags a Response.
type Kind string

const (
	KindTable    Kind = "table"
	KindText     Kind = "text"
	KindDownload Kind = "download"
	KindEmail    Kind = "email"
)

// TablePayload is a page of rows.
type TablePayload struct {
	Title   string      `json:"title"`
	Headers []string    `json:"headers"`
	Rows    []table.Row `json:"rows"`
	Total   int         `json:"total"`
	Summary string      `json:"summary"`
}

// DownloadPayload is a generated file offered to the caller.
type DownloadPayload struct {
	Content          string `json:"content"`
	Filename         string `json:"filename"`
	ConfirmationText string `json:"confirmationText"`
}

// EmailDraft is a composed, unsent email.
type EmailDraft struct {
	DraftID   string `json:"draftId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CreatedBy string `json:"createdBy"`
	Timestamp string `json:"timestamp"`
}

// Response is the result of one command. Exactly one payload matching Kind
// is set. Fault marks an internal failure that transports may report with
// an error status.
type Response struct {
	Kind     Kind
	Text     string
	Table    *TablePayload
	Download *DownloadPayload
	Email    *EmailDraft
	Fault    bool
}

// TextResponse returns a text Response.
func TextResponse(text string) Response {
	return Response{Kind: KindText, Text: text}
}

// FaultResponse returns the generic error Response for an internal failure.
func FaultResponse(err any) Response {
	return Response{Kind: KindText, Text: fmt.Sprintf("Server error: %v", err), Fault: true}
}

type wireResponse struct {
	Type    Kind `json:"type"`
	Message any  `json:"message"`
}

// MarshalJSON encodes the response as {"type": ..., "message": payload}.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{Type: r.Kind}
	switch r.Kind {
	case KindTable:
		w.Message = r.Table
	case KindDownload:
		w.Message = r.Download
	case KindEmail:
		w.Message = r.Email
	case KindText:
		w.Message = r.Text
	default:
		return nil, fmt.Errorf("unknown response kind %q", r.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w struct {
		Type    Kind            `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Response{Kind: w.Type}
	var err error
	switch w.Type {
	case KindTable:
		out.Table = &TablePayload{}
		err = decodeTable(w.Message, out.Table)
	case KindDownload:
		out.Download = &DownloadPayload{}
		err = json.Unmarshal(w.Message, out.Download)
	case KindEmail:
		out.Email = &EmailDraft{}
		err = json.Unmarshal(w.Message, out.Email)
	case KindText:
		err = json.Unmarshal(w.Message, &out.Text)
	default:
		return fmt.Errorf("unknown response type %q", w.Type)
	}
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", w.Type, err)
	}
	*r = out
	return nil
}

// decodeTable reads a table payload, rebuilding rows from their flat form.
func decodeTable(data []byte, p *TablePayload) error {
	var raw struct {
		Title   string          `json:"title"`
		Headers []string        `json:"headers"`
		Rows    json.RawMessage `json:"rows"`
		Total   int             `json:"total"`
		Summary string          `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Title, p.Headers, p.Total, p.Summary = raw.Title, raw.Headers, raw.Total, raw.Summary

	var rows []map[string]any
	if len(raw.Rows) > 0 {
		if err := json.Unmarshal(raw.Rows, &rows); err != nil {
			return err
		}
	}
	p.Rows = make([]table.Row, 0, len(rows))
	for _, m := range rows {
		id := 0
		fields := make(map[string]string, len(m))
		for k, v := range m {
			if k == table.IDKey {
				if f, ok := v.(float64); ok {
					id = int(f)
				}
				continue
			}
			if s, ok := v.(string); ok {
				fields[k] = s
			} else if v != nil {
				fields[k] = fmt.Sprint(v)
			}
		}
		p.Rows = append(p.Rows, table.NewRow(id, p.Headers, fields))
	}
	return nil
}
