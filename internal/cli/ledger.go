package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fmueller/voxnote/internal/ledger"
	"github.com/fmueller/voxnote/internal/platform"
	"github.com/fmueller/voxnote/internal/watch"
	"github.com/spf13/cobra"
)

type ledgerOptions struct {
	dbPath string
	vault  string
}

func newLedgerCmd(app *appState) *cobra.Command {
	var opts ledgerOptions

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the processing ledger",
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db-path", "", "Ledger file to operate on")
	cmd.PersistentFlags().StringVar(&opts.vault, "vault", "", "Use the ledger of this vault")
	cmd.MarkFlagsMutuallyExclusive("db-path", "vault")

	cmd.AddCommand(newLedgerStatsCmd(app, &opts))
	cmd.AddCommand(newLedgerListCmd(app, &opts))
	cmd.AddCommand(newLedgerSweepCmd(app, &opts))
	cmd.AddCommand(newLedgerRepairCmd(app, &opts))
	cmd.AddCommand(newLedgerForgetCmd(app, &opts))
	return cmd
}

func (a *appState) ledgerFor(opts *ledgerOptions) (*ledger.Ledger, error) {
	path := opts.dbPath
	switch {
	case path != "":
	case opts.vault != "":
		path = ledger.PathForVault(absPath(opts.vault))
	default:
		var err error
		path, err = platform.ResolveLedgerPath(a.cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
	}
	return a.openLedger(path)
}

func newLedgerStatsCmd(app *appState, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals and the status breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, err := app.ledgerFor(opts)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), led.Path(), led.Report())
			return nil
		},
	}
}

func writeReport(w io.Writer, path string, r ledger.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Ledger:\t%s\n", path)
	fmt.Fprintf(tw, "Version:\t%s\n", r.Version)
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(r.CreatedAt))
	fmt.Fprintf(tw, "Last updated:\t%s\n", formatTime(r.LastUpdated))
	fmt.Fprintf(tw, "Files:\t%d\n", r.TotalFiles)
	fmt.Fprintf(tw, "  completed:\t%d\n", r.StatusBreakdown[ledger.StatusCompleted])
	fmt.Fprintf(tw, "  failed:\t%d\n", r.StatusBreakdown[ledger.StatusFailed])
	fmt.Fprintf(tw, "  pending:\t%d\n", r.StatusBreakdown[ledger.StatusPending])
	fmt.Fprintf(tw, "Audio processed:\t%.2f GB, %.2f hours\n", r.TotalSizeGB, r.TotalHours)
	_ = tw.Flush()
}

func newLedgerListCmd(app *appState, opts *ledgerOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter []ledger.Status
			if status != "" {
				s := ledger.Status(status)
				if !s.Valid() {
					return fmt.Errorf("unknown status %q (use completed, failed or pending)", status)
				}
				filter = append(filter, s)
			}

			led, err := app.ledgerFor(opts)
			if err != nil {
				return err
			}
			entries := led.Entries(filter...)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STATUS\tUPDATED\tPATH\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Status, formatTime(e.UpdatedAt), e.Path, e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show entries with this status")
	return cmd
}

func newLedgerSweepCmd(app *appState, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove entries whose audio files are gone",
		Long: `Remove entries whose audio files are gone. With --vault, entries for files
outside the vault's audio files are removed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, err := app.ledgerFor(opts)
			if err != nil {
				return err
			}

			var removed []ledger.Entry
			if opts.vault != "" {
				files, err := watch.Scan(absPath(opts.vault))
				if err != nil {
					return err
				}
				removed, err = led.SweepOrphans(files)
				if err != nil {
					return err
				}
			} else {
				removed, err = led.SweepMissing()
				if err != nil {
					return err
				}
			}

			for _, e := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", e.Path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries removed\n", len(removed))
			return nil
		},
	}
}

func newLedgerRepairCmd(app *appState, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Recompute the ledger statistics from its entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, err := app.ledgerFor(opts)
			if err != nil {
				return err
			}
			stats, err := led.Repair()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, failed %d, %d bytes, %.1f seconds\n",
				stats.TotalProcessed, stats.TotalFailed, stats.TotalSizeBytes, stats.TotalDurationSeconds)
			return nil
		},
	}
}

func newLedgerForgetCmd(app *appState, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <audio-file>",
		Short: "Drop the entry of an audio file so it is processed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := app.ledgerFor(opts)
			if err != nil {
				return err
			}
			removed, err := led.Forget(absPath(args[0]))
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no ledger entry for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
