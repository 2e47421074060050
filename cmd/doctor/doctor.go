// Package doctor provides the "sheetkit doctor" command for checking setup health.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, source and provider",
		Long:  "Run diagnostic checks to verify sheetkit can load the sheet and reach its AI provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			checks := runChecks(cmd.Context(), cfg)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(checks)
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			fmt.Println("sheetkit doctor")
			fmt.Println("===============")
			fmt.Println()

			okCount, warnCount, errCount := 0, 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
					errCount++
				}
				fmt.Printf("  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Println()
			fmt.Printf("  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfg *config.Config) []Check {
	var checks []Check

	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	if _, err := os.Stat(config.ConfigPath()); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: config.ConfigPath()})
	} else {
		checks = append(checks, Check{
			Name:    "Config File",
			Status:  "warning",
			Message: "Not found — run 'sheetkit config init'",
		})
	}

	for _, issue := range config.Validate() {
		if issue.Severity == "info" {
			continue
		}
		checks = append(checks, Check{Name: "Config " + issue.Key, Status: issue.Severity, Message: issue.Message})
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		checks = append(checks, Check{Name: "Wiring", Status: "error", Message: err.Error()})
		return checks
	}

	switch {
	case a.Store.SourceName() == "":
		checks = append(checks, Check{
			Name:    "Sheet Source",
			Status:  "warning",
			Message: "No source configured — set source.url or pass --source",
		})
	default:
		if n, err := a.Store.Load(ctx); err != nil {
			checks = append(checks, Check{Name: "Sheet Source", Status: "error", Message: err.Error()})
		} else {
			checks = append(checks, Check{
				Name:    "Sheet Source",
				Status:  "ok",
				Message: fmt.Sprintf("%d records, %d columns from %s", n, len(a.Store.Current().Headers), a.Store.SourceName()),
			})
		}
	}

	if a.Provider != nil {
		checks = append(checks, Check{
			Name:    "AI Provider",
			Status:  "ok",
			Message: fmt.Sprintf("%s (resolver: %s)", a.Provider.Name(), cfg.Resolver),
		})
	} else {
		checks = append(checks, Check{
			Name:    "AI Provider",
			Status:  "warning",
			Message: "Not configured — keyword rules only, summaries and email bodies use fallbacks",
		})
	}

	if cfg.SMTP.Configured() {
		checks = append(checks, Check{Name: "SMTP", Status: "ok", Message: cfg.SMTP.Host})
	}

	if cfg.Audit.Enabled {
		dir := filepath.Dir(cfg.Audit.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			checks = append(checks, Check{Name: "Audit Log", Status: "error", Message: err.Error()})
		} else {
			checks = append(checks, Check{Name: "Audit Log", Status: "ok", Message: cfg.Audit.Path})
		}
	}

	return checks
}
