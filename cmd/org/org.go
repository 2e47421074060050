// Package org provides the "sheetkit org" commands for organization policy.
package org

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetkit/internal/config"
)

// NewCommand creates the "org" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organization-wide policy",
		Long: `View, validate, and generate the org-wide sheetkit policy.
The policy is deployed by IT admins to set defaults, pin the AI provider
and sheet source, and force audit logging for all users.`,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the org policy in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrgConfig()
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")

			if cfg == nil {
				if jsonOut {
					return json.NewEncoder(os.Stdout).Encode(map[string]string{
						"status": "none",
						"path":   config.OrgConfigPath(),
					})
				}
				fmt.Printf("No org policy found at %s\n", config.OrgConfigPath())
				return nil
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			fmt.Printf("Organization: %s (%s)\n", cfg.OrgName, cfg.OrgDomain)
			fmt.Printf("Policy:       %s\n", config.OrgConfigPath())
			fmt.Println()
			if cfg.AI.Provider != "" {
				fmt.Printf("AI Provider:  %s%s\n", cfg.AI.Provider, lockedTag(cfg.Locked.AIProvider))
			}
			if cfg.Source.URL != "" {
				fmt.Printf("Source:       %s%s\n", cfg.Source.URL, lockedTag(cfg.Locked.Source))
			}
			if cfg.Audit.Enabled != nil {
				state := "disabled"
				if *cfg.Audit.Enabled {
					state = "enabled"
				}
				fmt.Printf("Audit:        %s%s\n", state, lockedTag(cfg.Locked.Audit))
			}
			return nil
		},
	}
}

func lockedTag(locked bool) string {
	if locked {
		return "  [LOCKED]"
	}
	return ""
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate an org policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrgConfigFrom(args[0])
			if err != nil {
				return err
			}
			if cfg == nil {
				return fmt.Errorf("file not found: %s", args[0])
			}

			issues := config.ValidateOrgConfig(cfg)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"valid":  len(issues) == 0,
					"issues": issues,
				})
			}

			if len(issues) == 0 {
				fmt.Printf("Valid org policy: %s (%s)\n", cfg.OrgName, cfg.OrgDomain)
				return nil
			}

			fmt.Printf("Validation failed (%d issues):\n", len(issues))
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
			return fmt.Errorf("%d validation issues found", len(issues))
		},
	}
}

func newInitCmd() *cobra.Command {
	var (
		orgName string
		domain  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print an org policy template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgName == "" {
				orgName = "My Organization"
			}
			if domain == "" {
				domain = "example.com"
			}
			fmt.Print(config.GenerateOrgTemplate(orgName, domain))
			return nil
		},
	}

	cmd.Flags().StringVar(&orgName, "org-name", "", "Organization name")
	cmd.Flags().StringVar(&domain, "domain", "", "Organization domain")
	return cmd
}
