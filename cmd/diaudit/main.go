package main

import (
	"os"

	"github.com/spf13/cobra"

	"diaudit/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "diaudit",
	Short: "Definite-initialization checker for the air intermediate representation",
	Long:  `diaudit checks that every address-taken local in an air module is fully initialized before it is read, mutated, or destroyed, and promotes loads it can prove are redundant.`,
}

// main wires up diaudit's subcommands and runs the CLI, exiting 1 if the
// chosen command returns an error.
func main() {
	rootCmd.Version = version.Version
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show pass counters (loads promoted, assigns rewritten, diagnostics, cache hits)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
