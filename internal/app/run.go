package app

import (
	"context"
	"fmt"
	"log/slog"

	"stellarexporter/internal/config"
	"stellarexporter/internal/exporter"
	"stellarexporter/internal/logging"
)

// Runtime defines runtime inputs required to start the exporter.
// Params: ConfigPath points to the optional TOML configuration; Overrides carry flag/env values.
// Returns: Runtime value used by Run.
type Runtime struct {
	ConfigPath string
	Overrides  config.Overrides
	Reload     <-chan struct{}
}

type serverRunner interface {
	Run(context.Context) error
}

type runDeps struct {
	loadConfig func(string) (*config.Config, error)
	newLogger  func(config.LogConfig) (*slog.Logger, func(), error)
	startPprof func(context.Context, config.PprofConfig, *slog.Logger) (func(), error)
	newServer  func(context.Context, *config.Config, *slog.Logger) (serverRunner, error)
}

type activeRuntime struct {
	cfg         *config.Config
	logger      *slog.Logger
	closeLogger func()
	cancel      context.CancelFunc
	done        chan error
	stopPprof   func()
}

// Run loads configuration, starts the exporter, and supports hot reload via Runtime.Reload.
// Params: ctx controls lifecycle; rt provides runtime inputs and optional reload trigger channel.
// Returns: error on startup/reload failure without rollback, nil on graceful stop.
func Run(ctx context.Context, rt Runtime) error {
	return runWithDeps(ctx, rt, defaultRunDeps())
}

// runWithDeps executes runtime lifecycle using injectable dependencies.
// Params: ctx controls lifecycle; rt runtime inputs; deps start/reload dependencies.
// Returns: runtime error or nil on graceful stop.
func runWithDeps(ctx context.Context, rt Runtime, deps runDeps) error {
	active, err := buildRuntimeFromSource(ctx, rt, deps)
	if err != nil {
		return err
	}

	reloadCh := rt.Reload
	for {
		select {
		case runErr := <-active.done:
			active.done = nil
			active.stopRuntime()

			if ctx.Err() != nil {
				active.logger.Info("exporter stopped", slog.String("reason", ctx.Err().Error()))
				active.closeLoggerSink()
				return nil
			}

			reason := "server exited without context cancellation"
			if runErr != nil {
				reason = runErr.Error()
			}
			active.logger.Error("exporter stopped unexpectedly", slog.String("error", reason))
			active.closeLoggerSink()
			if runErr != nil {
				return fmt.Errorf("run exporter: %w", runErr)
			}
			return fmt.Errorf("run exporter: %s", reason)
		case <-ctx.Done():
			active.stopRuntime()
			reason := "canceled"
			if ctx.Err() != nil {
				reason = ctx.Err().Error()
			}
			active.logger.Info("exporter stopped", slog.String("reason", reason))
			active.closeLoggerSink()
			return nil
		case _, ok := <-reloadCh:
			if !ok {
				reloadCh = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}

			next, reloadErr := reloadActiveRuntime(ctx, rt, active, deps)
			if next == nil {
				return reloadErr
			}
			active = next
		}
	}
}

// defaultRunDeps provides production runtime dependencies.
func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig: config.Load,
		newLogger:  logging.New,
		startPprof: startPprofServer,
		newServer: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (serverRunner, error) {
			return exporter.NewFromConfig(ctx, cfg, logger)
		},
	}
}

// loadRuntimeConfig loads config and applies flag/env overrides on top.
func loadRuntimeConfig(rt Runtime, deps runDeps) (*config.Config, error) {
	cfg, err := deps.loadConfig(rt.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Apply(rt.Overrides); err != nil {
		return nil, fmt.Errorf("apply overrides: %w", err)
	}
	return cfg, nil
}

// buildRuntimeFromSource loads validated config and starts runtime components.
func buildRuntimeFromSource(ctx context.Context, rt Runtime, deps runDeps) (*activeRuntime, error) {
	cfg, err := loadRuntimeConfig(rt, deps)
	if err != nil {
		return nil, err
	}
	return buildRuntimeFromConfig(ctx, cfg, deps, nil, nil)
}

// buildRuntimeFromConfig starts runtime components from already loaded config.
// Params: ctx root lifecycle context; cfg validated config; deps runtime dependency set; logger/closeFn optional logger override.
// Returns: active runtime or startup error.
func buildRuntimeFromConfig(
	ctx context.Context,
	cfg *config.Config,
	deps runDeps,
	logger *slog.Logger,
	closeFn func(),
) (*activeRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("runtime context canceled: %w", ctx.Err())
	}

	ownsLogger := false
	if logger == nil {
		createdLogger, loggerCloseFn, err := deps.newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		logger = createdLogger
		closeFn = loggerCloseFn
		ownsLogger = true
	}
	releaseLogger := func() {
		if ownsLogger && closeFn != nil {
			closeFn()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopPprof, err := deps.startPprof(runCtx, cfg.Pprof, logger)
	if err != nil {
		cancel()
		releaseLogger()
		return nil, fmt.Errorf("start pprof: %w", err)
	}

	server, err := deps.newServer(runCtx, cfg, logger)
	if err != nil {
		stopPprof()
		cancel()
		releaseLogger()
		return nil, fmt.Errorf("build exporter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- server.Run(runCtx)
	}()

	logStartup(logger, cfg)
	return &activeRuntime{
		cfg:         cfg,
		logger:      logger,
		closeLogger: closeFn,
		cancel:      cancel,
		done:        done,
		stopPprof:   stopPprof,
	}, nil
}

// reloadActiveRuntime applies config reload with validation and rollback.
// Params: ctx root lifecycle context; rt runtime inputs; active currently running runtime; deps runtime dependency set.
// Returns: runtime to keep running and optional reload error (non-fatal when rollback succeeds); nil runtime when rollback failed.
func reloadActiveRuntime(
	ctx context.Context,
	rt Runtime,
	active *activeRuntime,
	deps runDeps,
) (*activeRuntime, error) {
	active.logger.Info("config reload requested")

	nextCfg, err := loadRuntimeConfig(rt, deps)
	if err != nil {
		active.logger.Error("config reload validation failed", slog.String("error", err.Error()))
		return active, fmt.Errorf("reload config: %w", err)
	}

	nextLogger, nextCloseFn, err := deps.newLogger(nextCfg.Log)
	if err != nil {
		active.logger.Error("config reload logger init failed", slog.String("error", err.Error()))
		return active, fmt.Errorf("init reload logger: %w", err)
	}

	// The listen address is usually unchanged, so the old server must release it first.
	active.stopRuntime()
	nextRuntime, startErr := buildRuntimeFromConfig(ctx, nextCfg, deps, nextLogger, nextCloseFn)
	if startErr == nil {
		active.closeLoggerSink()
		nextRuntime.logger.Info("config reload applied")
		return nextRuntime, nil
	}
	nextCloseFn()
	if ctx.Err() != nil {
		active.logger.Info("config reload interrupted by shutdown")
		return active, nil
	}

	active.logger.Error("config reload apply failed, restoring previous runtime", slog.String("error", startErr.Error()))
	rollbackRuntime, rollbackErr := buildRuntimeFromConfig(ctx, active.cfg, deps, active.logger, active.closeLogger)
	if rollbackErr != nil {
		active.closeLoggerSink()
		return nil, fmt.Errorf("apply reload: %w; rollback failed: %w", startErr, rollbackErr)
	}

	rollbackRuntime.logger.Warn("config reload rejected, previous runtime restored", slog.String("error", startErr.Error()))
	return rollbackRuntime, fmt.Errorf("apply reload: %w", startErr)
}

// stopRuntime stops server and pprof components while keeping logger open.
func (r *activeRuntime) stopRuntime() {
	if r == nil {
		return
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.done != nil {
		<-r.done
		r.done = nil
	}
	if r.stopPprof != nil {
		r.stopPprof()
		r.stopPprof = nil
	}
}

// closeLoggerSink closes active logger resources.
func (r *activeRuntime) closeLoggerSink() {
	if r == nil {
		return
	}
	if r.closeLogger != nil {
		r.closeLogger()
		r.closeLogger = nil
	}
}

// logStartup emits initial startup metadata.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info(
		"exporter started",
		slog.String("core", cfg.Core.Address),
		slog.String("listen", cfg.Server.Listen),
		slog.String("namespace", cfg.Metrics.Namespace),
		slog.Bool("strict", cfg.Server.StrictMode()),
		slog.String("self_metrics_path", cfg.Server.SelfMetricsEndpoint()),
		slog.Bool("pprof", cfg.Pprof.Enabled),
	)
}
