package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/txrelay/service/config"
	"github.com/brojonat/txrelay/service/keysource"
	"github.com/brojonat/txrelay/service/metrics"
	"github.com/brojonat/txrelay/service/relay"
	"github.com/brojonat/txrelay/service/solana"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/urfave/cli/v2"
)

// env bundles what every command needs.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// loadEnv loads configuration and builds the logger and metrics registry.
// Configuration errors are preconditions.
func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relay.ErrPrecondition, err)
	}
	registry := prometheus.NewRegistry()
	return &env{
		cfg:      cfg,
		logger:   setupLogger(cfg.LogLevel),
		registry: registry,
		metrics:  metrics.NewMetrics(registry),
	}, nil
}

func (e *env) ledger() *solana.Client {
	return solana.NewClient(solana.NewRPCClient(e.cfg.SolanaRPCURL), string(e.cfg.Network), e.metrics, e.logger)
}

func (e *env) resolver() *keysource.Resolver {
	return keysource.NewResolver(e.cfg.KeySourceOptions(), e.logger)
}

// pushMetrics sends the registry to a Pushgateway when one is configured.
// Failures are logged only.
func (e *env) pushMetrics(ctx context.Context) {
	if e.cfg.MetricsPushURL == "" {
		return
	}
	err := push.New(e.cfg.MetricsPushURL, "txrelay").
		Gatherer(e.registry).
		Grouping("network", string(e.cfg.Network)).
		PushContext(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to push metrics", "url", e.cfg.MetricsPushURL, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "pushed metrics", "url", e.cfg.MetricsPushURL)
}

// commandContext bounds read-only commands.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, 30*time.Second)
}

// setupLogger creates a structured logger with the given log level.
// Logs go to stderr so stdout carries only command output.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
