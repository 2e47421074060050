// Package shell provides the "sheetkit shell" interactive console command.
package shell

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
	shellpkg "github.com/klytics/sheetkit/internal/shell"
)

// NewCommand creates the "shell" command.
func NewCommand() *cobra.Command {
	var evalCmd string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive sheetkit console",
		Long: `Start an interactive console over the loaded sheet.

Every line is a natural-language command ("search for acme", "export to csv").
Console commands start with a colon: :sync reloads the sheet, :save writes
the last export, :actor changes who commands run as.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{Channel: "shell"})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.Load(ctx); err != nil {
				if evalCmd != "" {
					return err
				}
				color.New(color.FgYellow).Printf("! %s (use :sync to retry)\n", err)
			}

			session := shellpkg.NewSession(a.Dispatcher, a.Store, cfg.Actor)
			if evalCmd != "" {
				out, err := session.Eval(ctx, evalCmd)
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			}
			return session.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&evalCmd, "eval", "", "Run a single console line and exit")
	return cmd
}
