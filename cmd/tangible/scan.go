package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/pairing"
	"github.com/srg/tangible/internal/scanner"
)

var validFormats = []string{"table", "json"}

func newScanCmd() *cobra.Command {
	var (
		duration time.Duration
		format   string
		named    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby peripherals",
		Long: `Scan for Bluetooth Low Energy peripherals and list each one once with
its address, advertised name and signal strength. The paired peripheral is
marked with '*'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(format) {
				return fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			// All arguments validated - don't show usage on runtime errors
			cmd.SilenceUsage = true

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if err := e.requirePermission(ctx); err != nil {
				return err
			}

			s := scanner.New(e.radio, e.logger, &scanner.Options{NamedOnly: named})

			progress := NewProgressPrinter(cmd.OutOrStdout(), "Scanning for peripherals", duration)
			progress.Start()
			found, err := collect(ctx, s, duration)
			progress.Stop()
			if err != nil {
				return err
			}

			paired, _ := e.store.Get(ctx)
			if format == "json" {
				return printPeripheralsJSON(cmd.OutOrStdout(), found)
			}
			return printPeripheralsTable(cmd.OutOrStdout(), found, paired)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "Scan duration")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().BoolVar(&named, "named", false, "Only list peripherals that advertise a name")
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

// collect ranges over one scan. Ctrl+C ends the scan early and keeps what
// was found.
func collect(ctx context.Context, s *scanner.Scanner, duration time.Duration) ([]scanner.Peripheral, error) {
	var found []scanner.Peripheral
	for p, err := range s.Scan(ctx, duration) {
		if err != nil {
			return found, err
		}
		found = append(found, p)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return found, err
	}
	return found, nil
}

func printPeripheralsTable(out io.Writer, found []scanner.Peripheral, paired string) error {
	if len(found) == 0 {
		fmt.Fprintln(out, "No peripherals discovered")
		return nil
	}

	sorted := append([]scanner.Peripheral(nil), found...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RSSI > sorted[j].RSSI })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, p := range sorted {
		mark := ""
		if paired != "" && pairing.SameAddress(p.Address, paired) {
			mark = "*"
		}
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\n", mark, name, p.Address, p.RSSI)
	}
	return w.Flush()
}

func printPeripheralsJSON(out io.Writer, found []scanner.Peripheral) error {
	if found == nil {
		found = []scanner.Peripheral{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(found)
}
