// Package shell provides the interactive sheetkit console: every line is a
// natural-language command dispatched against the live dataset, plus a few
// colon-prefixed built-ins for session control.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/output"
	"github.com/klytics/sheetkit/internal/store"
	"github.com/klytics/sheetkit/internal/table"
)

// Dataset is the part of the store the console needs.
type Dataset interface {
	Current() *table.Dataset
	Load(ctx context.Context) (int, error)
	Info() store.Info
}

// Session manages an interactive console session.
type Session struct {
	Actor          string
	CommandHistory []string
	HistoryFile    string
	StartTime      time.Time
	LastDownload   *dispatch.DownloadPayload

	dispatcher *dispatch.Dispatcher
	data       Dataset
}

// builtins are the console commands handled without the dispatcher.
var builtins = []string{":sync", ":info", ":actor", ":save", ":history", "help", "exit", "quit"}

// examples seed tab completion with commands the dispatcher understands.
var examples = []string{
	"show sheet data", "search for ", "export to csv", "generate summary",
	"how many records", "email ", "help",
}

// NewSession creates a session dispatching against data.
func NewSession(d *dispatch.Dispatcher, data Dataset, actor string) *Session {
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".sheetkit", "shell_history")
	os.MkdirAll(filepath.Dir(histFile), 0755)

	if actor == "" {
		actor = dispatch.DefaultActor
	}
	return &Session{
		Actor:       actor,
		HistoryFile: histFile,
		StartTime:   time.Now(),
		dispatcher:  d,
		data:        data,
	}
}

// Run starts the REPL loop. Blocks until 'exit', Ctrl+D or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(s.buildCompleter()...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	info := s.data.Info()
	fmt.Println("sheetkit interactive console")
	fmt.Printf("Source: %s (%d records)\n", info.Source, info.Records)
	fmt.Println("Type 'help' for commands, 'exit' to quit.")
	fmt.Println()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Printf("\nSession ended. %d commands run in %s.\n",
				len(s.CommandHistory), formatDuration(time.Since(s.StartTime)))
			return nil
		}

		out, err := s.Eval(ctx, line)
		if err != nil {
			output.WriteError("%s", err)
		} else if out != "" {
			fmt.Print(out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Println()
			}
		}
		rl.SetPrompt(s.prompt())
	}
	return nil
}

// Eval runs one console line and returns the rendered output.
func (s *Session) Eval(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	s.CommandHistory = append(s.CommandHistory, line)

	var buf bytes.Buffer
	switch {
	case line == ":sync":
		n, err := s.data.Load(ctx)
		if err != nil {
			return "", fmt.Errorf("sync failed, keeping previous data: %w", err)
		}
		fmt.Fprintf(&buf, "Synced %d records.\n", n)
	case line == ":info":
		s.writeInfo(&buf)
	case line == ":actor" || strings.HasPrefix(line, ":actor "):
		name := strings.TrimSpace(strings.TrimPrefix(line, ":actor"))
		if name == "" {
			fmt.Fprintf(&buf, "Acting as %s\n", s.Actor)
			break
		}
		s.Actor = name
		fmt.Fprintf(&buf, "Now acting as %s\n", s.Actor)
	case line == ":save" || strings.HasPrefix(line, ":save "):
		path, err := s.save(strings.TrimSpace(strings.TrimPrefix(line, ":save")))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "Saved %s\n", path)
	case line == ":history":
		for i, cmd := range s.CommandHistory[:len(s.CommandHistory)-1] {
			fmt.Fprintf(&buf, "  %d  %s\n", i+1, cmd)
		}
	case line == "help":
		resp := s.dispatch(ctx, "help")
		buf.WriteString(resp.Text)
		buf.WriteString("\n\n")
		writeBuiltinHelp(&buf)
	case strings.HasPrefix(line, ":"):
		return "", fmt.Errorf("unknown console command %q (try 'help')", line)
	default:
		resp := s.dispatch(ctx, line)
		if resp.Kind == dispatch.KindDownload {
			s.LastDownload = resp.Download
		}
		if err := output.NewWriter(&buf, output.FormatText).WriteResponse(resp); err != nil {
			return "", err
		}
		if resp.Kind == dispatch.KindDownload {
			buf.WriteString("Use :save <file> to write it (.csv or .xlsx).\n")
		}
	}
	return buf.String(), nil
}

func (s *Session) dispatch(ctx context.Context, command string) dispatch.Response {
	return s.dispatcher.Dispatch(ctx, dispatch.Request{
		Command: command,
		Actor:   s.Actor,
		Dataset: s.data.Current(),
	})
}

// save writes the last export. An .xlsx path converts the CSV to a workbook.
func (s *Session) save(path string) (string, error) {
	if s.LastDownload == nil {
		return "", fmt.Errorf("nothing to save: run an export first")
	}
	if path == "" {
		path = s.LastDownload.Filename
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		ds := table.Parse(s.LastDownload.Content)
		if err := ds.WriteXLSXFile(path, ""); err != nil {
			return "", fmt.Errorf("could not write %s: %w", path, err)
		}
		return path, nil
	}
	if err := os.WriteFile(path, []byte(s.LastDownload.Content), 0644); err != nil {
		return "", fmt.Errorf("could not write %s: %w", path, err)
	}
	return path, nil
}

func (s *Session) writeInfo(buf *bytes.Buffer) {
	info := s.data.Info()
	fmt.Fprintf(buf, "Source:    %s\n", info.Source)
	fmt.Fprintf(buf, "Records:   %d\n", info.Records)
	fmt.Fprintf(buf, "Columns:   %s\n", strings.Join(s.data.Current().Headers, ", "))
	if !info.LoadedAt.IsZero() {
		fmt.Fprintf(buf, "Loaded at: %s\n", info.LoadedAt.Format(dispatch.TimestampLayout))
	}
	fmt.Fprintf(buf, "Loads:     %d\n", info.Loads)
	if info.LastError != "" {
		fmt.Fprintf(buf, "Last error: %s\n", color.RedString(info.LastError))
	}
	fmt.Fprintf(buf, "Actor:     %s\n", s.Actor)
}

func writeBuiltinHelp(buf *bytes.Buffer) {
	buf.WriteString("Console commands:\n")
	buf.WriteString("  :sync           reload the sheet from its source\n")
	buf.WriteString("  :info           show what is loaded\n")
	buf.WriteString("  :actor <name>   set who commands run as\n")
	buf.WriteString("  :save [file]    write the last export (.csv or .xlsx)\n")
	buf.WriteString("  :history        show commands run this session\n")
	buf.WriteString("  exit            leave the console\n")
}

func (s *Session) prompt() string {
	return fmt.Sprintf("sheetkit (%s)> ", s.Actor)
}

func (s *Session) buildCompleter() []readline.PrefixCompleterInterface {
	var items []readline.PrefixCompleterInterface
	for _, b := range builtins {
		items = append(items, readline.PcItem(b))
	}
	for _, e := range examples {
		items = append(items, readline.PcItem(e))
	}
	return items
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}
