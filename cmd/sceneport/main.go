// Package main provides the entry point for the sceneport export service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/sceneport/internal/app"
	"github.com/jobrunner/sceneport/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sceneport",
	Short: "sceneport - bulk scene export with admission control",
	Long: `sceneport exports satellite scenes around a list of locations.

For every location it computes a square region in the local UTM frame, finds
the scenes of the configured collection that intersect it, and submits one
export job per scene and band group. The number of jobs in flight is kept
below a ceiling by polling the job service while at capacity.

Features:
  - Location lists as CSV, YAML or JSON from local, S3, Azure or HTTP storage
  - Earth Engine REST backend or an in-memory simulation
  - SQLite job ledger and NATS lifecycle events
  - Inbox watching with hot pickup of new location files
  - Status API with TLS and Prometheus metrics`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <locations-key>...",
	Short: "Export the locations listed in one or more storage keys",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the storage inbox and export location files as they arrive",
	RunE:  runWatch,
}

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Print the UTM frame and export region of a point",
	RunE:  runZone,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("sceneport %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("remote", "earthengine", "remote backend (earthengine, simulated)")
	rootCmd.PersistentFlags().String("project", "", "Earth Engine cloud project")
	rootCmd.PersistentFlags().String("storage-type", "local", "storage type (local, s3, azure, http)")
	rootCmd.PersistentFlags().String("storage-path", "./inbox", "local storage path")

	// Export flags
	for _, cmd := range []*cobra.Command{runCmd, watchCmd} {
		cmd.Flags().Int("max-active", 2000, "ceiling on in-flight export jobs")
		cmd.Flags().String("date-start", "2013-01-01", "first acquisition date (YYYY-MM-DD)")
		cmd.Flags().String("date-end", "2019-12-31", "last acquisition date (YYYY-MM-DD)")
		cmd.Flags().Bool("serve", true, "serve the status API while running")
		cmd.Flags().Int("port", 8080, "status API port")
		cmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	}
	watchCmd.Flags().Bool("tls", false, "enable TLS")
	watchCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	watchCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")

	zoneCmd.Flags().Float64("lon", 0, "longitude in degrees")
	zoneCmd.Flags().Float64("lat", 0, "latitude in degrees")
	_ = zoneCmd.MarkFlagRequired("lon")
	_ = zoneCmd.MarkFlagRequired("lat")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("remote.type", rootCmd.PersistentFlags().Lookup("remote"))
	_ = viper.BindPFlag("remote.earthengine.project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.PersistentFlags().Lookup("storage-path"))

	rootCmd.AddCommand(runCmd, watchCmd, zoneCmd, versionCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// bindCommandFlags binds the flags of the command being executed. run and
// watch share flag names, so binding happens per invocation.
func bindCommandFlags(cmd *cobra.Command) {
	bindings := map[string]string{
		"admission.max_active":        "max-active",
		"export.date_start":           "date-start",
		"export.date_end":             "date-end",
		"server.enabled":              "serve",
		"server.port":                 "port",
		"server.cors.allowed_origins": "cors",
		"tls.enabled":                 "tls",
		"tls.domains":                 "tls-domains",
		"tls.email":                   "tls-email",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	bindCommandFlags(cmd)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	logger.Info("starting sceneport run",
		"version", version,
		"keys", args,
		"remote", cfg.Remote.Type,
		"collection", cfg.Export.Collection,
		"max_active", cfg.Admission.MaxActive,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	if cfg.Server.Enabled {
		if err := application.PrepareServer(); err != nil {
			return err
		}
		go func() {
			if err := application.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	summary, runErr := application.Run(ctx, args)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("run finished",
		"run_id", summary.RunID,
		"locations", summary.Locations,
		"failed", len(summary.Failed),
		"scenes", summary.Scenes,
		"jobs_submitted", summary.JobsSubmitted,
	)
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d locations failed", len(summary.Failed), summary.Locations)
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	logger.Info("starting sceneport watch",
		"version", version,
		"storage_type", cfg.Storage.Type,
		"remote", cfg.Remote.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	if err := application.EnableInbox(); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		if err := application.PrepareServer(); err != nil {
			return err
		}
		go func() {
			logger.Info("server listening", "address", cfg.Server.Address())
			if err := application.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	application.StartBackground(ctx)

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("watch stopped")
	return nil
}

func runZone(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	lon, _ := cmd.Flags().GetFloat64("lon")
	lat, _ := cmd.Flags().GetFloat64("lat")

	ctx := context.Background()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = application.Shutdown(ctx) }()

	info, err := application.Zones.Lookup(ctx, lon, lat)
	if err != nil {
		return err
	}

	geo := info.Region.Geographic()
	out := map[string]interface{}{
		"frame":     info.Frame.String(),
		"zone":      info.Frame.Zone(),
		"south":     info.Frame.South(),
		"projected": []float64{info.Projected.X, info.Projected.Y},
		"region":    []float64{geo.MinX, geo.MinY, geo.MaxX, geo.MaxY},
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
