// Package audit provides the "sheetkit audit" commands for the command log.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	auditpkg "github.com/klytics/sheetkit/internal/audit"
	"github.com/klytics/sheetkit/internal/config"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View and manage the command audit log",
		Long:  "Show dispatched commands, usage totals, and manage the audit log file.",
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func auditLogPath() string {
	cfg, err := config.Load()
	if err != nil || cfg.Audit.Path == "" {
		return auditpkg.DefaultPath()
	}
	return cfg.Audit.Path
}

func newLogCmd() *cobra.Command {
	var (
		last   int
		action string
		since  string
		actor  string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(since, actor, action)
			if err != nil {
				return err
			}
			path := auditLogPath()
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			filtered := auditpkg.FilterEntries(entries, filter)
			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(filtered)
			}

			if len(filtered) == 0 {
				fmt.Println("No audit log entries found.")
				return nil
			}

			fmt.Printf("Audit Log: %d entries\n", len(filtered))
			fmt.Printf("File: %s\n\n", path)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Timestamp", "Actor", "Channel", "Action", "Command", "Duration"})
			for _, e := range filtered {
				actorName := e.Actor
				if actorName == "" {
					actorName = "-"
				}
				act := e.Action
				if e.Fault {
					act += " (fault)"
				}
				t.AppendRow(table.Row{
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					actorName, e.Channel, act, e.Command, formatDuration(e.DurationMs),
				})
			}
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 5, WidthMax: 50},
				{Number: 6, Align: text.AlignRight},
			})
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (search, export, email_draft, ...)")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&actor, "by", "", "Filter by acting admin")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize commands, drafts and exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(since, "", "")
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(auditLogPath())
			if err != nil {
				return err
			}
			stats := auditpkg.Summarize(auditpkg.FilterEntries(entries, filter))

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			if stats.Commands == 0 {
				fmt.Println("No commands recorded yet.")
				return nil
			}

			fmt.Printf("Commands:      %d\n", stats.Commands)
			fmt.Printf("Email drafts:  %d\n", stats.EmailDrafts)
			fmt.Printf("Exports:       %d\n", stats.Exports)
			fmt.Printf("Faults:        %d\n", stats.Faults)
			fmt.Printf("Avg duration:  %s\n", formatDuration(int64(stats.AvgDuration)))
			fmt.Printf("Period:        %s to %s\n\n",
				stats.First.Local().Format("2006-01-02"), stats.Last.Local().Format("2006-01-02"))

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Action", "Count"})
			for _, name := range stats.TopActions() {
				t.AppendRow(table.Row{name, stats.ByAction[name]})
			}
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only count entries since date (YYYY-MM-DD)")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := auditLogPath()
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"cleared": path})
			}
			fmt.Printf("Audit log cleared: %s\n", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show audit log path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := auditLogPath()
			size := auditpkg.LogSize(path)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"path": path,
					"size": size,
				})
			}

			fmt.Printf("Audit log: %s\n", path)
			if size == 0 {
				fmt.Println("Size:      empty (no entries)")
			} else {
				fmt.Printf("Size:      %s\n", formatSize(size))
			}

			entries, _ := auditpkg.ReadEntries(path)
			fmt.Printf("Entries:   %d\n", len(entries))
			return nil
		},
	}
}

func buildFilter(since, actor, action string) (auditpkg.Filter, error) {
	f := auditpkg.Filter{Actor: actor, Action: action}
	if since != "" {
		t, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
		}
		f.Since = t
	}
	return f, nil
}

func formatDuration(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
