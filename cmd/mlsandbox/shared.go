package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zpdzap/mlsandbox/internal/config"
	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

// shared holds what every subcommand needs: resolved config, logger and runtime.
type shared struct {
	projectDir string
	cfg        *config.Config
	logger     *slog.Logger
	runtime    sandbox.Runtime
	registry   *prometheus.Registry

	closers []io.Closer
}

// initShared resolves config and builds the logger and container runtime.
// quiet keeps logs off the terminal, for the dashboard.
func initShared(quiet bool) (*shared, error) {
	projectDir := projectDirFlag
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		projectDir = wd
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}

	sc := &shared{projectDir: projectDir, cfg: cfg}

	logger, closer, err := newLogger(cfg.Log, projectDir, quiet)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		sc.closers = append(sc.closers, closer)
	}
	sc.logger = logger.With("project", filepath.Base(projectDir))

	switch cfg.Runtime {
	case config.RuntimeEngine:
		rt, err := sandbox.NewEngineRuntime()
		if err != nil {
			sc.Cleanup()
			return nil, err
		}
		sc.runtime = rt
		sc.closers = append(sc.closers, rt)
	default:
		sc.runtime = sandbox.NewCLIRuntime(cfg.DockerBin)
	}
	sc.logger.Debug("runtime selected", "runtime", cfg.Runtime)

	return sc, nil
}

// controller builds the lifecycle controller. Metrics are registered only
// when withMetrics is set.
func (sc *shared) controller(notify sandbox.NotifyFunc, withMetrics bool) *sandbox.Controller {
	var metrics *sandbox.Metrics
	if withMetrics {
		sc.registry = prometheus.NewRegistry()
		sc.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = sandbox.NewMetrics(sc.registry)
	}

	return sandbox.NewController(sc.projectDir, sc.cfg.Container, sc.runtime, sandbox.Options{
		Logger:  sc.logger,
		Metrics: metrics,
		Notify:  notify,
	})
}

// Cleanup releases the runtime client and the log file.
func (sc *shared) Cleanup() {
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i].Close()
	}
}

// newLogger writes text logs to stderr, or JSON to a rotated file when
// log.file is set. With quiet and no file, logs are discarded.
func newLogger(cfg config.Log, projectDir string, quiet bool) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		path := cfg.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log dir: %w", err)
		}
		out := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		return slog.New(slog.NewJSONHandler(out, opts)), out, nil
	}

	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), nil, nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil, nil
}
