package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/seccore/internal/cli/client"
)

var rootCmd = &cobra.Command{
	Use:   "secctl",
	Short: "Security core CLI",
	Long: `secctl is the command-line interface for the security core service.

Inspect the audit trail, manage sessions and reset rate limits from
your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8084", "seccore server URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("SECCORE_TOKEN"), "session credential (default: $SECCORE_TOKEN)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func apiClient(cmd *cobra.Command) *client.SecurityClient {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	return client.NewSecurityClient(server, token)
}
