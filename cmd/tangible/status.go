package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/permission"
)

// status exit codes
const (
	exitNotPaired    = 2
	exitNotFound     = 3
	exitNoPermission = 4
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
)

type statusReport struct {
	Availability connection.Availability `json:"availability"`
	Address      string                  `json:"address,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the paired peripheral is reachable",
		Long: `Check whether the paired peripheral can be reached right now.

Exit codes:
  0  available
  2  no peripheral is paired
  3  the paired peripheral was not found
  4  Bluetooth permission is missing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			cmd.SilenceUsage = true

			ctx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			m := e.manager()
			a, err := m.CheckAvailability(ctx)
			if errors.Is(err, device.ErrPermission) {
				errColor.Fprintln(out, "Bluetooth permission missing")
				for _, r := range permission.Required() {
					fmt.Fprintf(out, "  %-16s %s\n", r.Name, r.Description)
				}
				msg := ""
				if reqErr := e.perms.RequestRadioPermission(ctx); reqErr != nil {
					msg = FormatUserError(reqErr)
				}
				return &exitError{code: exitNoPermission, msg: msg}
			}
			if err != nil {
				return err
			}

			addr, _ := e.store.Get(ctx)
			if asJSON {
				if err := json.NewEncoder(out).Encode(statusReport{Availability: a, Address: addr}); err != nil {
					return err
				}
			} else {
				printAvailability(cmd, a, addr)
			}

			switch a {
			case connection.NotPaired:
				return &exitError{code: exitNotPaired}
			case connection.NotFound:
				return &exitError{code: exitNotFound}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printAvailability(cmd *cobra.Command, a connection.Availability, addr string) {
	out := cmd.OutOrStdout()
	switch a {
	case connection.Available:
		okColor.Fprint(out, "available")
		fmt.Fprintf(out, "  %s\n", addr)
	case connection.NotFound:
		warnColor.Fprint(out, "not found")
		fmt.Fprintf(out, "  %s is not advertising\n", addr)
	case connection.NotPaired:
		warnColor.Fprint(out, "not paired")
		fmt.Fprintln(out, "  run 'tangible pair' first")
	default:
		fmt.Fprintln(out, a)
	}
}
