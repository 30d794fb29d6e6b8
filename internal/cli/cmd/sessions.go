package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session management commands",
	Long:  "List and revoke the calling user's sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Long:  "Display the calling user's active sessions, most recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := apiClient(cmd).ListSessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}

		fmt.Printf("Active sessions (%d total):\n\n", len(sessions))
		fmt.Printf("%-36s %-8s %-20s %-20s %-16s\n", "ID", "CURRENT", "LAST USED", "EXPIRES", "IP")
		for _, s := range sessions {
			current := ""
			if s.Current {
				current = "yes"
			}
			fmt.Printf("%-36s %-8s %-20s %-20s %-16s\n",
				s.ID, current,
				s.UpdatedAt.UTC().Format(time.RFC3339),
				s.ExpiresAt.UTC().Format(time.RFC3339),
				s.IPAddress)
		}
		return nil
	},
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke [session-id]",
	Short: "Revoke a session by ID",
	Long:  "Revoke one of the calling user's other sessions. The current session cannot be revoked this way.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).RevokeSession(args[0]); err != nil {
			return fmt.Errorf("failed to revoke session: %w", err)
		}
		fmt.Printf("session %s revoked\n", args[0])
		return nil
	},
}

var sessionsRevokeOthersCmd = &cobra.Command{
	Use:   "revoke-others",
	Short: "Revoke all sessions except the current one",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := apiClient(cmd).RevokeOtherSessions()
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		fmt.Printf("%d session(s) revoked\n", count)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRevokeCmd)
	sessionsCmd.AddCommand(sessionsRevokeOthersCmd)
	rootCmd.AddCommand(sessionsCmd)
}
