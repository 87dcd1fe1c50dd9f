package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/tracker"
)

func newRecordCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an install attempt or health check",
	}
	cmd.AddCommand(newRecordInstallCmd(g), newRecordHealthCmd(g))
	return cmd
}

func newRecordInstallCmd(g *globalFlags) *cobra.Command {
	var (
		in       tracker.InstallOutcomeInput
		outcome  string
		category string
	)
	cmd := &cobra.Command{
		Use:   "install <component-id>",
		Short: "Record an install attempt",
		Long: "Record an install attempt. Without --outcome the outcome and error\n" +
			"category are derived from --error: no error means success.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			in.ComponentID = args[0]
			var res tracker.Result
			if outcome == "" {
				in.Success = in.ErrorMessage == ""
				res, err = a.Recorder.RecordInstallOutcome(cmd.Context(), in)
			} else {
				res, err = a.Recorder.RecordInstallAttempt(cmd.Context(), models.InstallAttempt{
					ComponentID:     in.ComponentID,
					InstallID:       in.InstallID,
					ComponentType:   in.ComponentType,
					Outcome:         models.InstallOutcome(outcome),
					DurationSeconds: in.DurationSeconds,
					ErrorMessage:    in.ErrorMessage,
					ErrorCategory:   models.IssueCategory(category),
					ClientVersion:   in.ClientVersion,
					Platform:        in.Platform,
					RuntimeVersion:  in.RuntimeVersion,
				})
			}
			return printResult(cmd.OutOrStdout(), g, res, err)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.InstallID, "install-id", "", "install method id (defaults to the component id)")
	f.StringVar(&in.ComponentType, "type", "", "component type, e.g. mcp_server")
	f.StringVar(&outcome, "outcome", "", "success, failure, timeout, partial or cancelled")
	f.StringVar(&category, "category", "", "error category when --outcome is given")
	f.Float64Var(&in.DurationSeconds, "duration", 0, "install duration in seconds")
	f.StringVar(&in.ErrorMessage, "error", "", "error text from the failed install")
	f.StringVar(&in.ClientVersion, "client-version", "", "host client version")
	f.StringVar(&in.Platform, "platform", "", "operating system")
	f.StringVar(&in.RuntimeVersion, "runtime-version", "", "language runtime version")
	return cmd
}

func newRecordHealthCmd(g *globalFlags) *cobra.Command {
	var (
		ev         models.HealthCheck
		status     string
		responseMS float64
	)
	cmd := &cobra.Command{
		Use:   "health <component-id>",
		Short: "Record a health check result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ev.ComponentID = args[0]
			ev.Status = models.HealthStatus(status)
			if cmd.Flags().Changed("response-ms") {
				ev.ResponseTimeMS = &responseMS
			}
			res, err := a.Recorder.RecordHealthCheck(cmd.Context(), ev)
			return printResult(cmd.OutOrStdout(), g, res, err)
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", string(models.HealthHealthy), "healthy, unhealthy, timeout or unknown")
	f.Float64Var(&responseMS, "response-ms", 0, "probe response time in milliseconds")
	f.StringVar(&ev.ErrorMessage, "error", "", "probe error text")
	return cmd
}

func newFeedbackCmd(g *globalFlags) *cobra.Command {
	var (
		in     tracker.FeedbackInput
		issues []string
	)
	cmd := &cobra.Command{
		Use:   "feedback <component-id>",
		Short: "Record a user rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			in.ComponentID = args[0]
			for _, issue := range issues {
				in.ReportedIssues = append(in.ReportedIssues, models.IssueCategory(issue))
			}
			res, err := a.Recorder.RecordUserFeedback(cmd.Context(), in)
			return printResult(cmd.OutOrStdout(), g, res, err)
		},
	}
	f := cmd.Flags()
	f.IntVar(&in.Rating, "rating", 0, "rating from 1 to 5 (required)")
	f.StringVar(&in.Comment, "comment", "", "free text comment")
	f.StringSliceVar(&issues, "issue", nil, "reported issue category (repeatable)")
	f.StringVar(&in.RecommendedAlternative, "alternative", "", "component id you would recommend instead")
	f.StringVar(&in.SubmitterID, "submitter", "", "submitter identity; stored only as a hash")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func printResult(w io.Writer, g *globalFlags, res tracker.Result, err error) error {
	if err != nil {
		return err
	}
	if g.jsonOut {
		if perr := printJSON(w, res); perr != nil {
			return perr
		}
	} else {
		fmt.Fprintln(w, res.Status)
	}
	if res.Status == tracker.StatusFailed {
		return fmt.Errorf("event not stored: %s", res.Error)
	}
	return nil
}
