// Package output renders dispatcher responses for terminals and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/klytics/sheetkit/internal/dispatch"
)

// Format represents an output format.
type Format int

const (
	// FormatText is human-readable terminal output.
	FormatText Format = iota
	// FormatJSON is the wire JSON of a response.
	FormatJSON
)

// maxCellWidth keeps wide spreadsheet cells from breaking the table layout.
const maxCellWidth = 40

// Writer handles formatted output to a destination.
type Writer struct {
	dest   io.Writer
	format Format
}

// NewWriter creates a writer for dest. A nil dest means stdout.
func NewWriter(dest io.Writer, format Format) *Writer {
	if dest == nil {
		dest = os.Stdout
	}
	return &Writer{dest: dest, format: format}
}

// WriteJSON encodes a value as pretty-printed JSON.
func (w *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(w.dest)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteLn writes a line of text.
func (w *Writer) WriteLn(s string) error {
	_, err := fmt.Fprintln(w.dest, s)
	return err
}

// WriteResponse renders resp in the writer's format.
func (w *Writer) WriteResponse(resp dispatch.Response) error {
	if w.format == FormatJSON {
		return w.WriteJSON(resp)
	}
	switch resp.Kind {
	case dispatch.KindTable:
		return w.writeTable(resp.Table)
	case dispatch.KindDownload:
		return w.writeDownload(resp.Download)
	case dispatch.KindEmail:
		return w.writeEmail(resp.Email)
	default:
		if resp.Fault {
			return w.WriteLn(color.RedString(resp.Text))
		}
		return w.WriteLn(resp.Text)
	}
}

func (w *Writer) writeTable(p *dispatch.TablePayload) error {
	if p == nil {
		return nil
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w.dest, bold(p.Title))

	if len(p.Rows) == 0 {
		fmt.Fprintln(w.dest, "(0 rows)")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w.dest)
		t.SetStyle(table.StyleLight)

		header := table.Row{"#"}
		configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}}
		for i, h := range p.Headers {
			header = append(header, h)
			configs = append(configs, table.ColumnConfig{Number: i + 2, WidthMax: maxCellWidth})
		}
		t.AppendHeader(header)
		t.SetColumnConfigs(configs)

		for _, r := range p.Rows {
			row := table.Row{r.ID}
			for _, v := range r.Values(p.Headers) {
				row = append(row, v)
			}
			t.AppendRow(row)
		}
		t.Render()
	}

	shown := fmt.Sprintf("Showing %d of %d records.", len(p.Rows), p.Total)
	if p.Summary != "" {
		shown = p.Summary + " " + shown
	}
	fmt.Fprintln(w.dest, color.New(color.Faint).Sprint(shown))
	return nil
}

func (w *Writer) writeDownload(p *dispatch.DownloadPayload) error {
	if p == nil {
		return nil
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w.dest, "%s %s\n", green("✓"), p.ConfirmationText)
	fmt.Fprintf(w.dest, "  File:  %s\n", p.Filename)
	fmt.Fprintf(w.dest, "  Size:  %d bytes\n", len(p.Content))
	return nil
}

func (w *Writer) writeEmail(e *dispatch.EmailDraft) error {
	if e == nil {
		return nil
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(w.dest, cyan("Email Draft"))
	fmt.Fprintf(w.dest, "  To:       %s\n", e.To)
	fmt.Fprintf(w.dest, "  Subject:  %s\n", e.Subject)
	fmt.Fprintf(w.dest, "  Draft:    %s\n", faint(e.DraftID))
	fmt.Fprintln(w.dest, strings.Repeat("─", 60))
	fmt.Fprintln(w.dest, e.Body)
	fmt.Fprintln(w.dest, strings.Repeat("─", 60))
	fmt.Fprintln(w.dest, faint(fmt.Sprintf("Created by %s at %s", e.CreatedBy, e.Timestamp)))
	return nil
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, color.RedString("Error: ")+format+"\n", args...)
}
