package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/interaction"
)

func newSendCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "send <code>...",
		Short: "Send interactions to the paired peripheral",
		Long: `Connect to the paired peripheral and send each interaction in order,
waiting for its acknowledgment. Codes are case-insensitive (FLUP, dtbr, ...).
With --raw, arguments are complete frames in hex and are checked before
being sent.`,
		Example: `  tangible send FLUP
  tangible send DTBR LPFL
  tangible send --raw 21464c5550a7`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := parseFrames(args, raw)
			if err != nil {
				return err
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			cmd.SilenceUsage = true

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if err := e.requirePermission(ctx); err != nil {
				return err
			}

			m := e.manager()
			if err := m.Connect(ctx); err != nil {
				return err
			}
			defer func() {
				if err := m.Disconnect(); err != nil {
					e.logger.WithError(err).Warn("Disconnect failed")
				}
			}()

			out := cmd.OutOrStdout()
			for _, f := range frames {
				ack, err := m.SendFrame(ctx, f)
				if err != nil {
					return fmt.Errorf("%s: %w", frameCode(f), err)
				}
				printAck(out, f, ack)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Arguments are hex-encoded frames")
	return cmd
}

// parseFrames validates every argument before anything is sent.
func parseFrames(args []string, raw bool) ([]codec.Frame, error) {
	frames := make([]codec.Frame, 0, len(args))
	for _, arg := range args {
		if raw {
			b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(arg), "0x"))
			if err != nil {
				return nil, fmt.Errorf("invalid hex frame %q: %w", arg, err)
			}
			if _, err := codec.Decode(b); err != nil {
				return nil, fmt.Errorf("invalid frame %q: %w", arg, err)
			}
			frames = append(frames, codec.Frame(b))
			continue
		}

		i, err := interaction.Parse(arg)
		if err != nil {
			return nil, err
		}
		f, err := codec.EncodeInteraction(i)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func frameCode(f codec.Frame) string {
	code, err := codec.Decode(f)
	if err != nil {
		return f.Hex()
	}
	return string(code)
}

func printAck(out io.Writer, f codec.Frame, ack connection.Ack) {
	fmt.Fprintf(out, "%s\t%s\tack %q\t%s\n", frameCode(f), f.Hex(), ack.Data, ack.RTT.Round(time.Millisecond))
}
