package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

func newEnhanceCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Annotate discovery candidates with quality data",
		Long:  "Reads a JSON array of candidates, or an object with a \"candidates\" array,\nand prints them ranked by reliability.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidates, err := readCandidates(file)
			if err != nil {
				return err
			}
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.Enhancer.Enhance(cmd.Context(), candidates)
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return printJSON(out, results)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tBADGE\tSCORE\tNOTES")
			for _, r := range results {
				notes := r.RecommendationText
				if r.Note != "" {
					notes = r.Note
				}
				if r.WarningMessage != "" {
					notes += " | " + r.WarningMessage
				}
				score := "-"
				if r.Metrics != nil && r.Note == "" {
					score = fmt.Sprintf("%.1f", r.Score())
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Original.ID, r.QualityBadge, score, notes)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "candidates JSON file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readCandidates(path string) ([]models.DiscoveredComponent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	data = bytes.TrimSpace(data)
	var candidates []models.DiscoveredComponent
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Candidates []models.DiscoveredComponent `json:"candidates"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse candidates: %w", err)
		}
		return wrapped.Candidates, nil
	}
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}
	return candidates, nil
}
