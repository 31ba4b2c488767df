package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/device"
)

func newUnpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Forget the paired peripheral",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			cmd.SilenceUsage = true

			ctx := cmd.Context()
			addr, err := e.store.Get(ctx)
			if errors.Is(err, device.ErrNoPairedPeripheral) {
				fmt.Fprintln(cmd.OutOrStdout(), "No peripheral is paired")
				return nil
			}
			if err != nil {
				return err
			}
			if err := e.store.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", addr)
			return nil
		},
	}
}
