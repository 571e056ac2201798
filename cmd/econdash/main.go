package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/config"
	"github.com/ajitpratap0/econdash/pkg/logger"
	"github.com/ajitpratap0/econdash/pkg/metrics"
	"github.com/ajitpratap0/econdash/pkg/observability"
	"github.com/ajitpratap0/econdash/pkg/presentation"
)

var version = "0.1.0"

// app holds what every command shares once flags are parsed.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	rec      *metrics.Recorder
	caches   presentation.Adapter
	shutdown observability.ShutdownFunc
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configFile, logLevel string
	var trace bool

	root := &cobra.Command{
		Use:   "econdash",
		Short: "econdash - performance toolkit for the economic indicators dashboard",
		Long: `econdash inspects indicator datasets the way the dashboard caches them:
type narrowing, payload compression, downsampling, process memory and the
on-disk payload store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configFile, logLevel, trace)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("ECONDASH_CONFIG"), "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&trace, "trace", false, "Export OpenTelemetry spans of measured calls to stderr")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "econdash v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newInspectCmd(a), newMemCmd(a), newCacheCmd(a))
	return root
}

// setup loads configuration, initializes logging and optional tracing, and
// creates the presentation caches shared by every command.
func (a *app) setup(configFile, logLevel string, trace bool) error {
	cfg := config.NewDefault()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Reports go to stdout, so logs stay on stderr.
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = logger.Get().With(zap.String("component", "econdash-cli"))

	if trace || cfg.Metrics.Tracing {
		_, shutdown, err := observability.InitTracing(observability.DefaultTracingConfig(version))
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.shutdown = shutdown
	}

	a.rec = metrics.NewRecorder(metrics.WithLogger(a.log.Named("metrics")))
	a.caches = presentation.FromConfig(cfg.Cache, a.rec, a.log)
	return nil
}

func (a *app) close() error {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	if err := logger.Sync(); !observability.IgnorableSyncError(err) {
		return err
	}
	return nil
}
