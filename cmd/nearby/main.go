package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nearby",
		Short: "Bluetooth proximity detection",
		Long: `Bluetooth Low Energy proximity detection between devices running nearby.

Each node advertises a small payload (an identity plus its transmit power),
scans for other nodes, exchanges payloads over short-lived connections and
reports calibrated signal strength readings for every peer it hears.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolP("verbose", "V", false, "Verbose output (same as --log-level debug)")
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCalibrateCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
