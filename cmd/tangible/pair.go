package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/pairing"
	"github.com/srg/tangible/internal/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func newPairCmd() *cobra.Command {
	var (
		duration time.Duration
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "pair [address]",
		Short: "Remember the peripheral to use",
		Long: `Pair with a peripheral. With an address, it is stored as is. Without one,
named peripherals are scanned for and listed; pick one by number or address.
Pairing replaces any previously paired peripheral.`,
		Example: `  tangible pair AA:BB:CC:DD:EE:FF
  tangible pair --duration 10s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			cmd.SilenceUsage = true

			ctx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				addr, err := pairing.ValidateAddress(args[0])
				if err != nil {
					return err
				}
				if err := e.store.Set(ctx, addr); err != nil {
					return err
				}
				fmt.Fprintf(out, "Paired with %s\n", addr)
				return nil
			}

			if err := e.requirePermission(ctx); err != nil {
				return err
			}

			s := scanner.New(e.radio, e.logger, &scanner.Options{NamedOnly: true})
			progress := NewProgressPrinter(out, "Looking for peripherals", duration)
			progress.Start()
			found, err := collect(ctx, s, duration)
			progress.Stop()
			if err != nil {
				return err
			}

			candidates := orderedmap.New[string, scanner.Peripheral]()
			for _, p := range found {
				candidates.Set(strings.ToUpper(p.Address), p)
			}
			if candidates.Len() == 0 {
				return &exitError{code: 1, msg: "No named peripherals found. Is the peripheral powered on and advertising?"}
			}

			var chosen scanner.Peripheral
			if yes && candidates.Len() == 1 {
				chosen = candidates.Oldest().Value
			} else {
				printCandidates(out, candidates)
				chosen, err = promptCandidate(cmd.InOrStdin(), out, candidates)
				if err != nil {
					return err
				}
			}

			if err := e.store.Set(ctx, chosen.Address); err != nil {
				return err
			}
			fmt.Fprintf(out, "Paired with %s (%s)\n", chosen.Name, chosen.Address)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "Scan duration")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Pair without asking when exactly one peripheral is found")
	return cmd
}

func printCandidates(out io.Writer, candidates *orderedmap.OrderedMap[string, scanner.Peripheral]) {
	i := 1
	for pair := candidates.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(out, "%2d) %-24s %s  %d dBm\n", i, pair.Value.Name, pair.Value.Address, pair.Value.RSSI)
		i++
	}
}

// promptCandidate reads a 1-based index or an address.
func promptCandidate(in io.Reader, out io.Writer, candidates *orderedmap.OrderedMap[string, scanner.Peripheral]) (scanner.Peripheral, error) {
	fmt.Fprintf(out, "Select a peripheral [1-%d]: ", candidates.Len())

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return scanner.Peripheral{}, fmt.Errorf("no selection: %w", err)
	}
	answer := strings.TrimSpace(line)

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > candidates.Len() {
			return scanner.Peripheral{}, fmt.Errorf("selection %d out of range 1-%d", n, candidates.Len())
		}
		pair := candidates.Oldest()
		for ; n > 1; n-- {
			pair = pair.Next()
		}
		return pair.Value, nil
	}

	if p, ok := candidates.Get(strings.ToUpper(answer)); ok {
		return p, nil
	}
	return scanner.Peripheral{}, fmt.Errorf("%q is neither a listed number nor a listed address", answer)
}
