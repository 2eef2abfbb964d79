package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/severe-weather-dashboard/internal/classifier"
	"github.com/mr1hm/severe-weather-dashboard/internal/config"
	"github.com/mr1hm/severe-weather-dashboard/internal/discussion"
	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/ingestion"
	"github.com/mr1hm/severe-weather-dashboard/internal/logging"
)

var (
	cfg     *config.Config
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "severe-dashboard",
		Short: "Severe weather dashboard backend",
		Long: `severe-dashboard polls NWS active alerts, SPC convective outlooks and
SPC mesoscale discussions, and serves the classified result to the dashboard.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if verbose {
				c.Logging.Level = "debug"
			}
			// One-shot commands print results on stdout, so their logs go to stderr
			out := cmd.OutOrStdout()
			if cmd.Name() != "serve" {
				out = cmd.ErrOrStderr()
			}
			logging.Setup(out, c.Logging.Level)
			cfg = c
			return nil
		},
	}

	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	addServeCmd(rootCmd)
	addAlertsCmd(rootCmd)
	addOutlookCmd(rootCmd)
	addDiscussionsCmd(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipelineDeps builds the fetch and classify collaborators shared by every
// command. Sinks are added by the caller.
func pipelineDeps(cfg *config.Config, renderer ingestion.Renderer) (ingestion.Deps, error) {
	rules := classifier.DefaultRules()
	if cfg.Alerts.RulesPath != "" {
		loaded, err := classifier.LoadRules(cfg.Alerts.RulesPath)
		if err != nil {
			return ingestion.Deps{}, fmt.Errorf("loading classifier rules: %w", err)
		}
		rules = loaded
	}

	client := fetcher.New(fetcher.Options{
		Timeout:         cfg.Fetch.Timeout,
		UserAgent:       cfg.Fetch.UserAgent,
		BreakerName:     "feeds",
		BreakerFailures: uint32(cfg.Fetch.BreakerFailures),
		BreakerCooldown: cfg.Fetch.BreakerCooldown,
	})

	source := discussion.NewSource(client, discussion.SourceConfig{
		FeedURL:       cfg.Discussion.FeedURL,
		IndexURL:      cfg.Discussion.IndexURL,
		SPCBaseURL:    cfg.Outlook.SPCBaseURL,
		FallbackLimit: cfg.Discussion.FallbackLimit,
	})

	return ingestion.Deps{
		Getter:      client,
		Classifier:  classifier.New(rules),
		Discussions: source,
		Renderer:    renderer,
	}, nil
}
