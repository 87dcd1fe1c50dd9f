package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

func newCleanupCmd(g *globalFlags) *cobra.Command {
	var (
		days   int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete events older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var counts models.CleanupCounts
			if dryRun {
				counts, err = a.Recorder.PendingCleanup(cmd.Context(), days)
			} else {
				counts, err = a.Recorder.Cleanup(cmd.Context(), days)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, map[string]interface{}{"dry_run": dryRun, "counts": counts, "total": counts.Total()})
			}
			verb := "Deleted"
			if dryRun {
				verb = "Would delete"
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s %d events older than %d days\n", verb, counts.Total(), days)
			fmt.Fprintf(w, "  install attempts:\t%d\n", counts.InstallAttempts)
			fmt.Fprintf(w, "  health checks:\t%d\n", counts.HealthChecks)
			fmt.Fprintf(w, "  user feedback:\t%d\n", counts.UserFeedback)
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.IntVar(&days, "days", 90, "retention window in days")
	f.BoolVar(&dryRun, "dry-run", false, "report what would be deleted")
	return cmd
}
