package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Rate limit commands",
	Long:  "Check and reset rate limit state",
}

var limitsCheckCmd = &cobra.Command{
	Use:   "check [identifier] [action]",
	Short: "Check whether an action is currently allowed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient(cmd).CheckLimit(args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to check limit: %w", err)
		}

		if result.Allowed {
			fmt.Println("allowed")
			return nil
		}
		fmt.Printf("blocked: %s (retry after %d seconds)\n", result.Message, result.RetryAfterSeconds)
		return nil
	},
}

var limitsResetCmd = &cobra.Command{
	Use:   "reset [identifier]",
	Short: "Reset rate limit state for an identifier",
	Long:  "Clear rate limit counters and blocks. With --action, only that action is cleared.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		if err := apiClient(cmd).ResetLimit(args[0], action); err != nil {
			return fmt.Errorf("failed to reset limit: %w", err)
		}
		fmt.Printf("rate limits reset for %s\n", args[0])
		return nil
	},
}

func init() {
	limitsResetCmd.Flags().String("action", "", "reset only this action")

	limitsCmd.AddCommand(limitsCheckCmd)
	limitsCmd.AddCommand(limitsResetCmd)
	rootCmd.AddCommand(limitsCmd)
}
