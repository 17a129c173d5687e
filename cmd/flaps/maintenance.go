package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AfterAILab/flaps-esp/internal/app"
	"github.com/AfterAILab/flaps-esp/internal/backup"
	"github.com/AfterAILab/flaps-esp/internal/commit"
	"github.com/AfterAILab/flaps-esp/internal/config"
	"github.com/AfterAILab/flaps-esp/internal/console"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/history"
	"github.com/AfterAILab/flaps-esp/internal/logtail"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

var (
	restartYes     bool
	historyAddress int
	historyLimit   int
	exportPath     string
	importDryRun   bool
	logLines       int
	logRaw         bool
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Reboot the gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !restartYes {
			return fmt.Errorf("restart needs --yes: %w", errAborted)
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if err := s.Client.Restart(ctx); err != nil {
				return fmt.Errorf("restart gateway: %w", err)
			}
			s.Logger.Info("gateway restart requested")
			fmt.Fprintln(cmd.OutOrStdout(), "restart requested; the gateway is back in a few seconds")
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded unit state changes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if s.History == nil {
				return fmt.Errorf("history is disabled; set history_path in the config")
			}
			samples, err := s.History.Recent(ctx, historyAddress, historyLimit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), samples)
		})
	},
}

var offsetsCmd = &cobra.Command{
	Use:   "offsets",
	Short: "Back up or restore every unit's calibration",
}

var offsetsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the fetched offsets and marks as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			view, err := loadUnits(ctx, s)
			if err != nil {
				return err
			}
			if exportPath == "" || exportPath == "-" {
				return backup.Export(cmd.OutOrStdout(), s.Client.Address(), view, time.Now())
			}
			f, err := os.Create(exportPath)
			if err != nil {
				return fmt.Errorf("create backup: %w", err)
			}
			if err := backup.Export(f, s.Client.Address(), view, time.Now()); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d unit(s) to %s\n", len(view.Rows), exportPath)
			return nil
		})
	},
}

var offsetsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Stage every unit from a backup and commit them together",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open backup: %w", err)
			}
			doc, err := backup.Import(f, s.Console.MaxOffset())
			_ = f.Close()
			if err != nil {
				return err
			}
			view, err := loadUnits(ctx, s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			staged, err := stageBackup(out, s.Console, view, doc)
			if err != nil {
				s.Console.DiscardAll()
				return err
			}
			if importDryRun {
				fmt.Fprintf(out, "dry run: %d unit(s) would change\n", staged)
				s.Console.DiscardAll()
				return nil
			}
			res, err := s.Console.CommitAll(ctx)
			if errors.Is(err, commit.ErrNothingStaged) {
				fmt.Fprintln(out, "every unit already matches the backup")
				return nil
			}
			return reportCommit(out, res, err)
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the tail of the console log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.LogPath == "" {
			return fmt.Errorf("logging is disabled; set log_path in the config")
		}
		lines, err := logtail.Read(cfg.LogPath, logLines)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, line := range lines {
			if logRaw {
				fmt.Fprintln(out, line)
				continue
			}
			fmt.Fprintln(out, logtail.Format(logtail.Parse(line)))
		}
		return nil
	},
}

func init() {
	restartCmd.Flags().BoolVarP(&restartYes, "yes", "y", false, "confirm the reboot")

	historyCmd.Flags().IntVarP(&historyAddress, "address", "a", -1, "only this unit address")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum samples to print")

	offsetsExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "write to a file instead of stdout")
	offsetsImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "print what would change without writing")
	offsetsCmd.AddCommand(offsetsExportCmd, offsetsImportCmd)

	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of lines, 0 for all")
	logsCmd.Flags().BoolVar(&logRaw, "raw", false, "print JSON records unformatted")

	rootCmd.AddCommand(restartCmd, historyCmd, offsetsCmd, logsCmd)
}

// stageBackup stages every entry that differs from the fetched view and
// returns how many units changed. Entries for absent units are skipped.
func stageBackup(w io.Writer, c *console.Console, view reconcile.ViewModel, doc backup.File) (int, error) {
	changed := 0
	for _, e := range doc.Units {
		row, err := findUnit(view, strconv.Itoa(e.Address))
		if err != nil {
			fmt.Fprintf(w, "skip unit %d: not on the bus\n", e.Address)
			continue
		}
		markDiffers := false
		if e.CalibrationMark != nil {
			cur, ok := row.Fetched.Mark()
			markDiffers = !ok || cur != *e.CalibrationMark
		}
		if !markDiffers && row.Fetched.Offset == e.Offset {
			continue
		}
		if markDiffers {
			if c.MarksSupported() {
				if err := c.StageCalibration(row.Key, *e.CalibrationMark); err != nil {
					return changed, fmt.Errorf("unit %d: %w", e.Address, err)
				}
			} else {
				fmt.Fprintf(w, "unit %d: gateway cannot write marks, restoring offset only\n", e.Address)
			}
		}
		if err := c.StageOffset(row.Key, e.Offset); err != nil {
			return changed, fmt.Errorf("unit %d: %w", e.Address, err)
		}
		fmt.Fprintf(w, "unit %d: offset %d -> %d\n", e.Address, row.Fetched.Offset, e.Offset)
		changed++
	}
	return changed, nil
}

func printHistory(w io.Writer, samples []history.Sample) error {
	if len(samples) == 0 {
		fmt.Fprintln(w, "no history recorded yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tADDR\tOFFSET\tMARK\tROTATING")
	for _, s := range samples {
		mark := "-"
		if s.CalibrationMark != nil {
			mark = device.MarkLabel(*s.CalibrationMark)
		}
		rotating := "no"
		if s.Rotating {
			rotating = "yes"
		}
		addr := strconv.Itoa(s.Address)
		if !s.HasAddress {
			addr = "#" + strconv.Itoa(s.Position)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.RecordedAt.Format("2006-01-02 15:04:05"), addr, s.Offset, mark, rotating)
	}
	return tw.Flush()
}
