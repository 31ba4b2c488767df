package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tangible",
		Short: "Haptic peripheral companion",
		Long: `Companion tool for the tangible haptic peripheral:

- Scan for and pair with the peripheral
- Check whether the paired peripheral is reachable
- Classify touch gestures into interaction codes
- Send interactions over the Nordic UART service
- Serve the connection over HTTP with Prometheus metrics`,
		Version: formatVersion(version),
	}
	root.SetVersionTemplate(fmt.Sprintf("tangible {{.Version}} (commit %s, built %s)\n", commit, date))

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	root.AddCommand(
		newScanCmd(),
		newPairCmd(),
		newUnpairCmd(),
		newStatusCmd(),
		newSendCmd(),
		newClassifyCmd(),
		newServeCmd(),
	)

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "Path to a YAML config file")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

// run executes args and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	// Ctrl+C is a normal exit, not an error - exit silently
	if errors.Is(err, context.Canceled) {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(stderr, exit.msg)
		}
		return exit.code
	}

	fmt.Fprintf(stderr, "ERROR: %s\n", FormatUserError(err))
	return 1
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
