// Package resolve provides the "sheetkit resolve" command, which shows how a
// command would be interpreted without running it.
package resolve

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/output"
)

type result struct {
	Command  string        `json:"command"`
	Resolver string        `json:"resolver"`
	Intent   intent.Intent `json:"intent"`
}

// NewCommand returns the resolve command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <command>",
		Short: "Show the intent a command resolves to",
		Long: `Resolve a command to its intent and parameters without touching the sheet.

With resolver=rules only the keyword rules are consulted; with resolver=ai
the configured model classifies the command and the rules are the fallback.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			command := strings.Join(args, " ")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// The resolver alone needs no source; skip the fetch and the audit log.
			cfg.Source.URL = ""
			cfg.Audit.Enabled = false
			a, err := app.New(cfg, app.Options{})
			if err != nil {
				return err
			}

			in := a.Resolver.Resolve(cmd.Context(), command)
			res := result{Command: command, Resolver: cfg.Resolver, Intent: in}
			if jsonFlag {
				return output.PrintJSON(os.Stdout, "resolve", res)
			}
			printResult(res)
			return nil
		},
	}
}

func printResult(res result) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("Command: "), res.Command)
	fmt.Printf("%s %s\n", bold("Resolver:"), res.Resolver)
	fmt.Printf("%s %s\n", bold("Action:  "), color.CyanString(string(res.Intent.Action)))
	p := res.Intent.Params
	if p.Term != "" {
		fmt.Printf("  search term: %q\n", p.Term)
	}
	if p.To != "" {
		fmt.Printf("  to:          %s\n", p.To)
	}
	if p.Subject != "" {
		fmt.Printf("  subject:     %s\n", p.Subject)
	}
	if p.MaxRows > 0 {
		fmt.Printf("  max rows:    %d\n", p.MaxRows)
	}
}
