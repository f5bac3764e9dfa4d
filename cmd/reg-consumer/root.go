package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reg-consumer",
	Short: "User-space consumer for a single voltage/current regulator",
	Long: `reg-consumer binds one regulator supply and exposes its on/off state as a
text attribute over HTTP.

Reads return "enabled" or "disabled". Writes accept "enabled"/"1" and
"disabled"/"0". A write always succeeds; a refused transition is logged and
reported by /api/status.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(versionCmd)
}
