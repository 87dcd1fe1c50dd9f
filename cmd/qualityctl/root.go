package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/app"
	"github.com/ILLUVRSE/serverquality/internal/config"
	"github.com/ILLUVRSE/serverquality/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	configFile string
	jsonOut    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "qualityctl",
		Short:         "Record and inspect server component reliability",
		Long:          "qualityctl records install attempts, health checks and user feedback\nand reports reliability scores computed from them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "path to a YAML config file")
	pf.BoolVar(&g.jsonOut, "json", false, "print JSON instead of tables")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newRecordCmd(g),
		newFeedbackCmd(g),
		newMetricsCmd(g),
		newReportCmd(g),
		newRankingsCmd(g),
		newStatusCmd(g),
		newEnhanceCmd(g),
		newCleanupCmd(g),
		newTokenCmd(g),
	)
	return root
}

// open loads configuration and builds the app. Logs go to stderr so they
// never mix with command output.
func (g *globalFlags) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Format = "console"
	if g.verbose {
		cfg.Logger.Level = "debug"
	} else {
		cfg.Logger.Level = "warn"
	}
	return app.New(cmd.Context(), cfg, logging.New(cfg.Logger))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
