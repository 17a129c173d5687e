package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/AfterAILab/flaps-esp/internal/app"
	"github.com/AfterAILab/flaps-esp/internal/commit"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Print every unit the gateway reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			view, err := loadUnits(ctx, s)
			if err != nil {
				return err
			}
			return printUnits(cmd.OutOrStdout(), view)
		})
	},
}

var offsetCmd = &cobra.Command{
	Use:   "offset",
	Short: "Read or write a single unit offset",
}

var offsetSetCmd = &cobra.Command{
	Use:   "set <address> <offset>",
	Short: "Write an offset to one unit and read it back",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := parseInt("offset", args[1])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			view, err := loadUnits(ctx, s)
			if err != nil {
				return err
			}
			row, err := findUnit(view, args[0])
			if err != nil {
				return err
			}
			if err := s.Console.StageOffset(row.Key, offset); err != nil {
				return err
			}
			res, err := s.Console.Commit(ctx, row.Key)
			return reportCommit(cmd.OutOrStdout(), res, err)
		})
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <address> <letter>",
	Short: "Set the calibration mark of one unit",
	Long: `calibrate tells a unit which flap letter sits at its magnetic zero and
writes the firmware's suggested offset for that letter. Use "offset set"
afterwards to fine-tune. Requires firmware that reports calibration marks.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mark, err := parseLetter(args[1])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			view, err := loadUnits(ctx, s)
			if err != nil {
				return err
			}
			row, err := findUnit(view, args[0])
			if err != nil {
				return err
			}
			if err := s.Console.StageCalibration(row.Key, mark); err != nil {
				return err
			}
			res, err := s.Console.Commit(ctx, row.Key)
			return reportCommit(cmd.OutOrStdout(), res, err)
		})
	},
}

func init() {
	offsetCmd.AddCommand(offsetSetCmd)
	rootCmd.AddCommand(unitsCmd, offsetCmd, calibrateCmd)
}

// parseLetter accepts a single flap letter; "space" names the blank flap.
func parseLetter(arg string) (int, error) {
	if arg == "space" {
		arg = " "
	}
	r, size := utf8.DecodeRuneInString(arg)
	if size == 0 || size != len(arg) {
		return 0, fmt.Errorf("letter %q must be a single character", arg)
	}
	idx := device.LetterIndex(r)
	if idx < 0 {
		return 0, fmt.Errorf("letter %q is not on the flap drum", arg)
	}
	return idx, nil
}

func printUnits(w io.Writer, view reconcile.ViewModel) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDR\tMARK\tOFFSET\tROTATING\tAGE")
	for _, r := range view.Rows {
		mark := "-"
		if m, ok := r.Unit.Mark(); ok {
			mark = device.MarkLabel(m)
		}
		age := "-"
		if r.Unit.LastResponseAgeMillis >= 0 {
			age = fmt.Sprintf("%dms", r.Unit.LastResponseAgeMillis)
		}
		rotating := "no"
		if r.Unit.Rotating {
			rotating = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.BusAddress(), mark, r.Unit.Offset, rotating, age)
	}
	return tw.Flush()
}

func reportCommit(w io.Writer, res commit.Result, err error) error {
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	fmt.Fprintf(w, "committed %d unit(s) [%s]\n", len(res.Written), res.ID)
	if res.RefetchErr != nil {
		fmt.Fprintf(w, "warning: read-back failed: %v\n", res.RefetchErr)
	}
	return nil
}
