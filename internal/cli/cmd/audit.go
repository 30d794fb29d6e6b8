package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/seccore/internal/models"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
	Long:  "Query and export the audit trail",
}

func auditFilterFromFlags(cmd *cobra.Command) (*models.AuditFilter, error) {
	userID, _ := cmd.Flags().GetString("user")
	action, _ := cmd.Flags().GetString("action")
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := &models.AuditFilter{
		UserID: userID,
		Action: models.Action(action),
		Page:   page,
		Limit:  limit,
	}

	if s, _ := cmd.Flags().GetString("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid --since, expected RFC3339: %w", err)
		}
		filter.StartDate = &t
	}
	if s, _ := cmd.Flags().GetString("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid --until, expected RFC3339: %w", err)
		}
		filter.EndDate = &t
	}
	return filter, nil
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	Long:  "Display audit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		page, err := apiClient(cmd).QueryAudit(filter)
		if err != nil {
			return fmt.Errorf("failed to query audit events: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		}

		fmt.Printf("Audit events (page %d/%d, %d total):\n\n", page.Page, page.TotalPages, page.TotalCount)
		fmt.Printf("%-36s %-20s %-24s %-8s %-20s\n", "ID", "USER", "ACTION", "RESULT", "CREATED")
		for _, event := range page.Events {
			result := "success"
			if !event.Success {
				result = "failure"
			}
			fmt.Printf("%-36s %-20s %-24s %-8s %-20s\n",
				event.ID, event.UserID, event.Action, result,
				event.CreatedAt.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events",
	Long:  "Export the matching audit events as JSON or CSV to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		out, err := apiClient(cmd).ExportAudit(filter, format)
		if err != nil {
			return fmt.Errorf("failed to export audit events: %w", err)
		}

		fmt.Print(out)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().String("user", "", "filter by user ID")
		c.Flags().String("action", "", "filter by action")
		c.Flags().String("since", "", "events at or after this RFC3339 time")
		c.Flags().String("until", "", "events at or before this RFC3339 time")
	}
	auditListCmd.Flags().Int("page", 1, "page number")
	auditListCmd.Flags().Int("limit", 50, "events per page")
	auditExportCmd.Flags().String("format", "json", "export format: json, csv")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}
