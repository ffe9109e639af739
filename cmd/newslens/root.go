package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/deusflow/newslens/internal/app"
	"github.com/deusflow/newslens/internal/config"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	flagSources      string
	flagReport       string
	flagCacheBackend string
	flagCacheFile    string
	flagTopClusters  int
	flagEnrich       bool
	flagMonitorAddr  string
	flagDebug        bool
)

var rootCmd = &cobra.Command{
	Use:   "newslens",
	Short: "Balanced news digest generator",
	Long: `newslens fetches the configured RSS feeds, removes reposts, groups the
headlines into topics with Gemini and writes a balanced synthesis of each
topic to a JSON report.

Settings come from the environment (and .env / .env.local); flags override them.
Without GEMINI_API_KEY the report is still written with every item unclustered.`,
	SilenceUsage: true,
	RunE:         runUpdate,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagSources, "sources", "", "Path to the sources YAML file")
	f.StringVar(&flagReport, "report", "", "Path of the JSON report to write")
	f.StringVar(&flagCacheBackend, "cache-backend", "", "Cache backend: file, postgres, redis or memory")
	f.StringVar(&flagCacheFile, "cache-file", "", "Path of the file cache")
	f.IntVar(&flagTopClusters, "top", -1, "Number of topics to synthesize")
	f.BoolVar(&flagEnrich, "enrich", false, "Download full article text for clustered items")
	f.StringVar(&flagMonitorAddr, "monitor-addr", "", "Serve /health and /metrics on this address during the run")
	f.BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MonitorAddr != "" {
		monCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Global.Serve(monCtx, cfg.MonitorAddr); err != nil {
				logger.Error("Monitoring server error", "error", err)
			}
		}()
	}

	if _, err := app.Run(ctx, cfg); err != nil {
		logger.Error("News update failed", "error", err)
		return err
	}
	return nil
}

// loadConfig reads the environment, applies explicit flags and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("sources") {
		cfg.SourcesConfigPath = flagSources
	}
	if f.Changed("report") {
		cfg.ReportPath = flagReport
	}
	if f.Changed("cache-backend") {
		cfg.CacheBackend = strings.ToLower(strings.TrimSpace(flagCacheBackend))
	}
	if f.Changed("cache-file") {
		cfg.CacheFilePath = flagCacheFile
	}
	if f.Changed("top") {
		cfg.TopClusters = flagTopClusters
	}
	if f.Changed("enrich") {
		cfg.EnrichContent = flagEnrich
	}
	if f.Changed("monitor-addr") {
		cfg.MonitorAddr = flagMonitorAddr
	}
	if flagDebug {
		cfg.Debug = true
	}
}
