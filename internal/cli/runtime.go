package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/audit"
	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/db"
	"github.com/kubilitics/kubilitics-gate/internal/logging"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
	"github.com/kubilitics/kubilitics-gate/internal/version"
)

// runtime holds the per-invocation collaborators built from the config.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	audit   audit.Logger
	store   db.Store // nil when the archive is disabled or unavailable
	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	cfg := mgr.Get(ctx)
	a.applyFlags(cmd, cfg)
	if err := config.JoinValidationErrors(cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Gate.Mode = a.mode
	}
	if flags.Changed("blocking") {
		cfg.Gate.BlockingMode = a.blocking
	}
	if flags.Changed("threshold") {
		cfg.Gate.HealthThreshold = a.threshold
	}
	if flags.Changed("output") {
		cfg.Report.Format = a.output
	}
	if flags.Changed("kubeconfig") {
		cfg.Telemetry.Kubeconfig = a.kubeconfig
	}
	if flags.Changed("namespace") {
		cfg.Telemetry.Namespace = a.namespace
	}
}

// setup loads the config and builds logging, audit, tracing and, when
// withStore is set, the report archive. Archive failures are logged: a run
// still decides without it.
func (a *app) setup(cmd *cobra.Command, withStore bool) (*runtime, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, failed(err)
	}

	logger, err := logging.NewWithWriter(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, a.stderr)
	if err != nil {
		return nil, failed(fmt.Errorf("failed to initialize logger: %w", err))
	}
	rt := &runtime{cfg: cfg, logger: logger, audit: audit.NewNopLogger()}

	if cfg.Audit.Enabled {
		al, err := audit.NewLogger(&audit.Config{
			AuditLogPath: cfg.Audit.LogPath,
			MaxSize:      cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAge:       cfg.Logging.MaxAgeDays,
			Compress:     true,
		}, logger)
		if err != nil {
			rt.Close()
			return nil, failed(fmt.Errorf("failed to initialize audit logger: %w", err))
		}
		rt.audit = al
		rt.closers = append(rt.closers, func() { _ = al.Close() })
	}
	_ = rt.audit.LogConfigLoaded(cmd.Context(), a.configPath)

	shutdown, err := tracing.Init("kubilitics-gate", version.Version, cfg.Tracing.Endpoint, cfg.Tracing.SamplingRate)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		rt.closers = append(rt.closers, shutdown)
	}

	if withStore && cfg.Archive.Enabled {
		store, err := db.NewSQLiteStore(cfg.Archive.SQLitePath)
		if err != nil {
			logger.Warn("Report archive unavailable", zap.String("path", cfg.Archive.SQLitePath), zap.Error(err))
		} else {
			rt.store = store
			rt.closers = append(rt.closers, func() { _ = store.Close() })
		}
	}

	logger.Debug("Configuration loaded",
		zap.String("path", a.configPath),
		zap.String("mode", cfg.Gate.Mode),
		zap.Float64("threshold", cfg.Gate.HealthThreshold),
		zap.Bool("blocking", cfg.Gate.BlockingMode),
	)
	return rt, nil
}

// requireStore is setup for commands that only read the archive.
func (a *app) requireStore(cmd *cobra.Command) (*runtime, error) {
	rt, err := a.setup(cmd, true)
	if err != nil {
		return nil, err
	}
	if rt.store == nil {
		rt.Close()
		if !rt.cfg.Archive.Enabled {
			return nil, failed(errors.New("the report archive is disabled (archive.enabled=false)"))
		}
		return nil, failed(fmt.Errorf("cannot open the report archive at %s", rt.cfg.Archive.SQLitePath))
	}
	return rt, nil
}
