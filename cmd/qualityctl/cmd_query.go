package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/ranking"
)

func newMetricsCmd(g *globalFlags) *cobra.Command {
	var installID string
	cmd := &cobra.Command{
		Use:   "metrics <component-id>",
		Short: "Show computed quality metrics for a component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.Ranking.GetQualityMetrics(cmd.Context(), args[0], installID)
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, m)
			}
			printMetrics(out, m)
			return nil
		},
	}
	cmd.Flags().StringVar(&installID, "install-id", "", "install method id")
	return cmd
}

func printMetrics(out io.Writer, m models.QualityMetrics) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Component:\t%s\n", m.ComponentID)
	fmt.Fprintf(w, "Score:\t%.1f (%s)\n", m.ReliabilityScore, m.QualityTier)
	fmt.Fprintf(w, "Installs:\t%d/%d succeeded (%.1f%%)\n", m.SuccessfulInstalls, m.TotalInstallAttempts, m.SuccessRate*100)
	fmt.Fprintf(w, "Health:\t%d/%d healthy (%.1f%%)\n", m.HealthyChecks, m.TotalHealthChecks, m.HealthRate*100)
	if m.TotalRatings > 0 {
		fmt.Fprintf(w, "Rating:\t%.1f/5 from %d\n", m.AverageRating, m.TotalRatings)
	}
	fmt.Fprintf(w, "Maintenance:\t%s\n", m.MaintenanceStatus)
	if m.LastSuccessfulInstall != nil {
		fmt.Fprintf(w, "Last success:\t%s\n", m.LastSuccessfulInstall.Format("2006-01-02 15:04:05Z07:00"))
	}
	_ = w.Flush()
}

func newReportCmd(g *globalFlags) *cobra.Command {
	var installID string
	cmd := &cobra.Command{
		Use:   "report <component-id>",
		Short: "Show a full quality report for a component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.Ranking.BuildReport(cmd.Context(), args[0], installID)
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, report)
			}
			fmt.Fprintln(out, report.Summary)
			fmt.Fprintln(out)
			printMetrics(out, report.Metrics)
			fmt.Fprintf(out, "\nRecommendation: %s (trend %s, confidence %s)\n",
				report.InstallRecommendation, report.TrendDirection, report.ConfidenceLevel)
			if len(report.AlternativeSuggestions) > 0 {
				fmt.Fprintf(out, "Alternatives: %s\n", strings.Join(report.AlternativeSuggestions, ", "))
			}
			if len(report.TroubleshootingTips) > 0 {
				fmt.Fprintln(out, "Troubleshooting:")
				for _, tip := range report.TroubleshootingTips {
					fmt.Fprintf(out, "  - %s\n", tip)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&installID, "install-id", "", "install method id")
	return cmd
}

func newRankingsCmd(g *globalFlags) *cobra.Command {
	var (
		limit         int
		minAttempts   int
		componentType string
	)
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "List components by reliability score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ranked := ranking.FilterMinAttempts(a.Ranking.GetServerRankings(cmd.Context(), componentType, 0), minAttempts)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, ranked)
			}
			printRankings(out, ranked)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 20, "maximum rows (0 for all)")
	f.IntVar(&minAttempts, "min-attempts", 0, "hide components with fewer install attempts")
	f.StringVar(&componentType, "type", "", "only components of this type")
	return cmd
}

func printRankings(out io.Writer, ranked []ranking.Ranked) {
	if len(ranked) == 0 {
		fmt.Fprintln(out, "No components tracked yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCOMPONENT\tSCORE\tTIER\tINSTALLS\tSUCCESS")
	for i, r := range ranked {
		m := r.Metrics
		fmt.Fprintf(w, "%d\t%s\t%.1f\t%s\t%d\t%.0f%%\n",
			i+1, r.ComponentID, m.ReliabilityScore, m.QualityTier, m.TotalInstallAttempts, m.SuccessRate*100)
	}
	_ = w.Flush()
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var minAttempts int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarise every tracked component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("min-attempts") {
				minAttempts = a.Config.Quality.MinAttempts
			}
			ov := a.Ranking.Overview(cmd.Context(), minAttempts)
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, ov)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Tracked components:\t%d\n", ov.TrackedComponents)
			fmt.Fprintf(w, "With %d+ attempts:\t%d\n", ov.MinAttempts, ov.WithSufficientData)
			fmt.Fprintf(w, "Install attempts:\t%d (%.1f%% succeeded)\n", ov.TotalInstallAttempts, ov.OverallSuccessRate*100)
			for _, tier := range models.Tiers {
				fmt.Fprintf(w, "  %s:\t%d\n", tier, ov.TierDistribution[tier])
			}
			_ = w.Flush()
			if len(ov.Top) > 0 {
				fmt.Fprintln(out, "\nTop components:")
				printRankings(out, ov.Top)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minAttempts, "min-attempts", 0, "attempts needed to count as having data (default from config)")
	return cmd
}
