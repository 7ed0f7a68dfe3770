package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xcore-broker/xcore/internal/config"
	"github.com/xcore-broker/xcore/internal/dispatcher"
	"github.com/xcore-broker/xcore/internal/pluginregistry"
	"github.com/xcore-broker/xcore/internal/processor"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/supervisor"
	"github.com/xcore-broker/xcore/internal/workdir"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliConfig struct {
	configPath string
	installDir string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "xcore",
		Short: "xcore broker — fork/exec job-tree dispatcher for backup plugins",
		Long: `xcore is the broker that drives a tree of backup/restore jobs to
completion by forking plugin processes, tracking their exit status in a
per-job working directory, and persisting job state and structural links
in MySQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.configPath, "config", envOrDefault("XCORE_CONFIG", ""), "Path to snappy.conf (empty = search default locations)")
	root.PersistentFlags().StringVar(&cfg.installDir, "install-dir", envOrDefault("XCORE_INSTALL_DIR", ""), "Install prefix searched for <install-dir>/etc/snappy.conf")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("XCORE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xcore %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cli *cliConfig) error {
	logger, err := buildLogger(cli.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(cli.configPath, cli.installDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("starting xcore broker",
		zap.String("version", version),
		zap.String("run_path", cfg.RunPath),
		zap.String("plugin_home", cfg.PluginHome),
		zap.String("log_level", cli.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must run before the store opens its first connection
	// so EncryptedString's Value/Scan see the right key from the first row.
	var key []byte
	if cfg.EncryptArgs {
		key, err = base64.StdEncoding.DecodeString(cfg.EncryptKey)
		if err != nil {
			return fmt.Errorf("failed to decode xcore:encrypt_key: %w", err)
		}
	}
	if err := store.InitEncryption(cfg.EncryptArgs, key); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Store ---
	gormDB, err := store.Open(store.Config{
		DSN:      cfg.DSN(),
		Logger:   logger,
		LogLevel: gormLogLevel(cli.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	st := store.New(gormDB)
	defer st.Close()

	// --- 3. Plugin registry ---
	plugins, err := pluginregistry.Load(cfg.PluginHome)
	if err != nil {
		return fmt.Errorf("failed to load plugin registry: %w", err)
	}

	// --- 4. Working directories and supervisor ---
	wd := workdir.New(cfg.RunPath)
	sup := supervisor.New(wd)

	// --- 5. Processor registry and dispatcher ---
	registry := processor.NewRegistry()
	disp := dispatcher.New(st, registry, plugins, wd, sup, logger, 0)

	// --- 6. Working-directory garbage collector ---
	gc := workdir.NewGCSweeper(wd, st, logger, cfg.GCInterval)
	gcSched, err := gc.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start gc sweeper: %w", err)
	}
	defer gcSched.Shutdown() //nolint:errcheck

	// --- 7. Optional metrics admin endpoint ---
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listener starting", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener error", zap.Error(err))
			}
		}()
	}

	// --- Dispatcher loop ---
	dispErrCh := make(chan error, 1)
	go func() {
		dispErrCh <- disp.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-dispErrCh
	case err := <-dispErrCh:
		logger.Error("dispatcher stopped unexpectedly", zap.Error(err))
		cancel()
	}

	logger.Info("shutting down xcore broker")

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener graceful shutdown error", zap.Error(err))
		}
	}

	logger.Info("xcore broker stopped")
	return nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
