// Package cmd contains all CLI commands for the sheetkit binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klytics/sheetkit/cmd/ask"
	cmdaudit "github.com/klytics/sheetkit/cmd/audit"
	"github.com/klytics/sheetkit/cmd/completion"
	cmdconfig "github.com/klytics/sheetkit/cmd/config"
	"github.com/klytics/sheetkit/cmd/doctor"
	"github.com/klytics/sheetkit/cmd/org"
	"github.com/klytics/sheetkit/cmd/resolve"
	"github.com/klytics/sheetkit/cmd/serve"
	cmdshell "github.com/klytics/sheetkit/cmd/shell"
	"github.com/klytics/sheetkit/cmd/version"
	cmdwatch "github.com/klytics/sheetkit/cmd/watch"
	"github.com/klytics/sheetkit/internal/config"
	"github.com/klytics/sheetkit/internal/logging"
)

var (
	jsonOutput bool
	verbose    bool
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sheetkit",
		Short: "AI admin agent for spreadsheet data",
		Long: `sheetkit — talk to your spreadsheet.

Load a published sheet or a local .csv/.xlsx file and run plain-English
commands against it: show, search, export, count, summarize and draft emails.
Serve it to a browser console, use it from an interactive shell, or run a
single command from scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			level := "info"
			format := "text"
			if cfg, err := config.Load(); err == nil {
				level, format = cfg.Log.Level, cfg.Log.Format
			}
			if verbose {
				level = "debug"
			}
			logging.Setup(level, format)
		},
	}

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	flags.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flags.BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	flags.String("provider", "", "AI provider: openai | anthropic | ollama")
	flags.String("model", "", "AI model name override")
	flags.String("source", "", "Sheet URL or local .csv/.tsv/.xlsx file")
	flags.String("resolver", "", "Command resolver: ai | rules")
	flags.String("actor", "", "Name recorded as the acting admin")
	_ = viper.BindPFlag("provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("source.url", flags.Lookup("source"))
	_ = viper.BindPFlag("resolver", flags.Lookup("resolver"))
	_ = viper.BindPFlag("actor", flags.Lookup("actor"))

	// Register subcommands
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(ask.NewCommand())
	rootCmd.AddCommand(cmdshell.NewCommand())
	rootCmd.AddCommand(resolve.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(org.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
