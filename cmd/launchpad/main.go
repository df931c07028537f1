// Command launchpad serves the onboarding API and carries the operator
// tooling around it.
package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Onboarding service for new workspace accounts",
	Long: `launchpad runs the onboarding flow that takes a signed-up user from email
verification to a configured organization.

Examples:
  launchpad serve                      # Run the HTTP server
  launchpad migrate                    # Apply database migrations
  launchpad migrate version            # Print the applied migration version
  launchpad progress show 1234567890   # Print a user's stored progress
  launchpad progress reset 1234567890  # Clear a user's stored progress`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var snowflakeNode int64

func init() {
	rootCmd.PersistentFlags().Int64Var(&snowflakeNode, "node", 1, "Snowflake node id for generated ids")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(progressCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(snowflakeNode)
}
