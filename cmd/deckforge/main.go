package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/internal/config"
	"github.com/lamim/deckforge/internal/metrics"
	"github.com/lamim/deckforge/internal/orchestrator"
	"github.com/lamim/deckforge/internal/poller"
	"github.com/lamim/deckforge/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath  string
	envFile     string
	runName     string
	metricsAddr string
	verbose     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deckforge",
		Short: "deckforge - presentation generation and document conversion client",
		Long: `deckforge drives a presentation backend from the command line:
generate an outline from text, edit it, render it into a .pptx deck
and convert documents between office formats.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.toml", "Path to configuration file (.toml or .yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "Path to environment file")
	flags.StringVar(&runName, "run", "", "Reuse an existing run directory (run_YYYY-MM-DDTHH-MM-SS)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newModelsCmd(),
		newOutlineCmd(),
		newEditCmd(),
		newRenderCmd(),
		newConvertCmd(),
		newTemplateCmd(),
		newRunCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// app is everything a backend-facing command needs
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	session    *writer.SessionManager
	client     *api.Client
	poller     *poller.Poller
	orch       *orchestrator.Orchestrator
	downloader *writer.Downloader

	logFile       *os.File
	metricsServer *http.Server
}

func newApp() (*app, error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
			}
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Loaded env file: %s\n", envFile)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	session, err := writer.NewSessionManager(cfg.Output.Dir, runName, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	logger, logFile, err := writer.SetupLogger(session, logLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	session.SetLogger(logger)

	logger.Debug("deckforge starting",
		"version", Version,
		"config", configPath,
		"backend", cfg.Backend.BaseURL,
		"run_dir", session.RunDir())

	if err := session.BackupConfig(configPath); err != nil {
		logger.Warn("Failed to back up config", "error", err)
	}

	collector := metrics.NewCollector()
	client := api.NewClient(cfg.Backend, secrets.APIKey, logger, api.WithMetrics(collector))
	p := poller.New(client, poller.Options{
		Interval:    cfg.Poller.Interval(),
		MaxFailures: cfg.Poller.FailureLimit(),
		Metrics:     collector,
	}, logger)

	a := &app{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		client:     client,
		poller:     p,
		orch:       orchestrator.New(client, p, *cfg, logger),
		downloader: writer.NewDownloader(client, session, logger, os.Stderr),
		logFile:    logFile,
	}

	if metricsAddr != "" {
		a.metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		logger.Info("Serving metrics", "addr", metricsAddr)
	}

	return a, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Close stops polling, the metrics server and the log file
func (a *app) Close() {
	a.orch.Close()
	a.poller.Close()

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metricsServer.Shutdown(ctx)
		cancel()
	}

	if a.logFile != nil {
		_ = a.logFile.Sync()
		_ = a.logFile.Close()
	}
}
