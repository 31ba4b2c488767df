package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/gesture"
	"github.com/srg/tangible/internal/interaction"
)

func newClassifyCmd() *cobra.Command {
	var decode bool

	cmd := &cobra.Command{
		Use:   "classify <kind> <coordinates...> <width> <height>",
		Short: "Classify a gesture into its interaction code",
		Long: `Classify a touch gesture on a width x height surface and print its
interaction code and frame. Taps and long presses take one point, flings take
the start and end points. With --decode, arguments are hex frames to decode
instead.`,
		Example: `  tangible classify double_tap 900 100 1000 900
  tangible classify fling 500 800 510 100 1000 900
  tangible classify --decode 21464c5550a7`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if decode {
				for _, arg := range args {
					b, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
					if err != nil {
						return fmt.Errorf("invalid hex frame %q: %w", arg, err)
					}
					i, err := codec.DecodeInteraction(b)
					if err != nil {
						return fmt.Errorf("%s: %w", arg, err)
					}
					fmt.Fprintf(out, "%s\t%s\n", i.Code(), describe(i))
				}
				return nil
			}

			e, err := parseGesture(args)
			if err != nil {
				return err
			}
			i := gesture.Classify(e)
			frame, err := codec.EncodeInteraction(i)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", i.Code(), frame.Hex(), describe(i))
			return nil
		},
	}

	cmd.Flags().BoolVar(&decode, "decode", false, "Decode hex frames instead of classifying")
	return cmd
}

func parseGesture(args []string) (gesture.Event, error) {
	kind, err := interaction.ParseKind(args[0])
	if err != nil {
		return gesture.Event{}, err
	}

	want := 5
	if kind == interaction.KindFling {
		want = 7
	}
	if len(args) != want {
		return gesture.Event{}, fmt.Errorf("%s takes %d numbers, got %d", kind, want-1, len(args)-1)
	}

	nums := make([]float64, 0, want-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return gesture.Event{}, fmt.Errorf("invalid number %q", a)
		}
		nums = append(nums, v)
	}

	e := gesture.Event{Kind: kind, Start: interaction.Point{X: nums[0], Y: nums[1]}}
	if kind == interaction.KindFling {
		e.End = interaction.Point{X: nums[2], Y: nums[3]}
	}
	e.Extent = interaction.ScreenExtent{Width: nums[len(nums)-2], Height: nums[len(nums)-1]}
	return e, e.Validate()
}

func describe(i interaction.Interaction) string {
	if z, ok := i.Zone(); ok {
		return i.Kind().String() + " " + z.String()
	}
	return i.String()
}
