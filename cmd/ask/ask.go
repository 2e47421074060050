// Package ask provides the "sheetkit ask" one-shot command.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/email"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/output"
	"github.com/klytics/sheetkit/internal/table"
)

// NewCommand returns the ask command.
func NewCommand() *cobra.Command {
	var (
		outPath   string
		send      bool
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "ask <command>",
		Short: "Run one natural-language command against the sheet",
		Long: `Run a single command and print the result.

Examples:
  sheetkit ask "show sheet data"
  sheetkit ask "search for acme" --json
  sheetkit ask "export to csv" --out people.xlsx
  sheetkit ask "email ops@example.com about the weekly numbers" --send
  sheetkit ask "how many records" --server http://localhost:8787`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			command := strings.Join(args, " ")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var resp dispatch.Response
			if serverURL != "" {
				client := &http.Client{Timeout: cfg.Server.RequestTimeout}
				resp, err = askRemote(ctx, client, serverURL, command, cfg.Actor)
				if err != nil {
					return err
				}
			} else {
				a, err := app.New(cfg, app.Options{Channel: "cli"})
				if err != nil {
					return err
				}
				if err := a.Load(ctx); err != nil {
					return err
				}
				resp = a.Dispatcher.Dispatch(ctx, dispatch.Request{
					Command: command,
					Actor:   cfg.Actor,
					Dataset: a.Store.Current(),
				})
			}

			if jsonFlag {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			} else if err := output.NewWriter(os.Stdout, output.FormatText).WriteResponse(resp); err != nil {
				return err
			}

			if resp.Fault {
				return fmt.Errorf("command failed")
			}
			if outPath != "" {
				if resp.Kind != dispatch.KindDownload {
					return fmt.Errorf("--out needs an export command, got a %s response", resp.Kind)
				}
				if err := saveDownload(resp.Download, outPath); err != nil {
					return err
				}
				if !jsonFlag {
					color.New(color.FgGreen).Printf("✓ Saved %s\n", outPath)
				}
			}
			if send {
				if resp.Kind != dispatch.KindEmail {
					return fmt.Errorf("--send needs an email command, got a %s response", resp.Kind)
				}
				sender, err := email.NewSMTPSender(cfg.SMTP)
				if err != nil {
					return err
				}
				if err := sendDraft(sender, resp.Email); err != nil {
					return err
				}
				if !jsonFlag {
					color.New(color.FgGreen).Printf("✓ Sent to %s\n", resp.Email.To)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write an export to this file (.csv or .xlsx)")
	cmd.Flags().BoolVar(&send, "send", false, "Deliver an email draft through the configured SMTP relay")
	cmd.Flags().StringVar(&serverURL, "server", "", "Run the command on a sheetkit server instead of locally")
	return cmd
}

// saveDownload writes an export. An .xlsx path converts the CSV to a workbook.
func saveDownload(p *dispatch.DownloadPayload, path string) error {
	if p == nil {
		return fmt.Errorf("response carries no file")
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		if err := table.Parse(p.Content).WriteXLSXFile(path, ""); err != nil {
			return fmt.Errorf("could not write %s: %w", path, err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(p.Content), 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

// sendDraft delivers d. Drafts still addressed to the placeholder are refused.
func sendDraft(sender email.Sender, d *dispatch.EmailDraft) error {
	if d == nil {
		return fmt.Errorf("response carries no draft")
	}
	if d.To == "" || d.To == intent.PlaceholderRecipient {
		return fmt.Errorf("draft has no recipient — name an address in the command, e.g. \"email ops@example.com about ...\"")
	}
	return sender.Send(email.Message{
		To:      []string{d.To},
		Subject: d.Subject,
		Body:    d.Body,
	})
}

// askRemote posts command to a running server's /api/ai endpoint. The
// server's own store supplies the rows.
func askRemote(ctx context.Context, client *http.Client, baseURL, command, actor string) (dispatch.Response, error) {
	var resp dispatch.Response

	body, err := json.Marshal(map[string]string{"command": command, "currentAdmin": actor})
	if err != nil {
		return resp, err
	}
	url := strings.TrimRight(baseURL, "/") + "/api/ai"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return resp, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	httpResp, err := client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("could not reach %s: %w", baseURL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return resp, fmt.Errorf("could not read server response: %w", err)
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("server returned %d with an unreadable body: %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		resp.Fault = true
	}
	return resp, nil
}
