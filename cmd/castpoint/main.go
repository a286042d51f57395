// Castpoint is a UPnP control point for the local network.
//
// It discovers devices with SSDP, fetches and parses their description
// documents, and invokes service actions over SOAP. An interactive
// browser, a passive announcement listener and a device-side announcer
// round out the toolbox.
//
// Usage:
//
//	castpoint [command] [flags]
//
// Running without arguments launches the interactive device browser.
// See 'castpoint --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tverberg/castpoint/internal/logging"
	"github.com/tverberg/castpoint/internal/version"
)

func main() {
	if err := logging.InitializeFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "castpoint",
	Short: "UPnP device discovery and control",
	Long: `A control point for UPnP devices on the local network.

Discovers devices via SSDP multicast search, builds typed device and
service models from their description documents, and invokes service
actions over SOAP.

If no command is specified, the interactive device browser launches.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBrowse(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("castpoint %s (commit: %s)\n", version.Version, version.Commit)
	},
}
