package cmd

import (
	"fmt"
	"log/slog"
	"os"

	cfgpkg "github.com/KaramelBytes/analytica-cli/internal/config"
	"github.com/KaramelBytes/analytica-cli/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int
	// Service selection (override config if set)
	flagEngine     string
	flagServiceURL string
	// Local engine tuning
	flagSheet   string
	flagMaxRows int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "analytica",
	Short: "Analytica CLI: run statistical and ML analyses on tabular data",
	Long: `Analytica uploads a CSV/XLSX dataset to an analysis service, runs one of its analysis
tools (summary, correlation, regression, clustering, time series, pivot tables...) and renders
the outcome, with a Pareto drill-down on any categorical column.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.SilenceErrors = true
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.analytica/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "analysis engine: remote|local (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagServiceURL, "service-url", "", "analysis service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagSheet, "sheet", "", "local engine: XLSX sheet name (default first sheet)")
	rootCmd.PersistentFlags().IntVar(&flagMaxRows, "max-rows", 0, "local engine: maximum rows to load (0 = engine default)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		installLogger("info", "text")
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if f.Changed("engine") && flagEngine != "" {
		cfg.Engine = flagEngine
	}
	if f.Changed("service-url") && flagServiceURL != "" {
		cfg.ServiceURL = flagServiceURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}

	installLogger(cfg.LogLevel, cfg.LogFormat)
}

func installLogger(level, format string) {
	if debug {
		level = "debug"
	}
	l, err := logging.New(level, format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; using defaults\n", err)
		l, _ = logging.New("info", logging.FormatText, os.Stderr)
	}
	slog.SetDefault(l)
}
