package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"captioner/internal/config"
	"captioner/internal/delivery"
	"captioner/internal/engine"
	"captioner/internal/engine/sidecar"
	"captioner/internal/logging"
	"captioner/internal/outbox"
	"captioner/internal/preflight"
	"captioner/internal/staging"
	"captioner/internal/workflow"
)

// pipeline is the composed set of long-lived components one command uses.
type pipeline struct {
	cfg          *config.Config
	logger       *slog.Logger
	sidecar      *sidecar.Client
	pool         *engine.Pool
	outbox       *outbox.Store
	dispatcher   *delivery.Dispatcher
	orchestrator *workflow.Orchestrator
}

func (c *commandContext) openPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	p := &pipeline{cfg: cfg, logger: logger}
	p.sidecar = sidecar.New(cfg.Engines.SidecarURL, cfg.EngineTimeout(), logger)
	p.pool = engine.NewPool(p.sidecar, logger)

	dispatcherOpts := []delivery.Option{}
	if cfg.Delivery.Persist {
		store, err := outbox.Open(cfg.OutboxPath())
		if err != nil {
			_ = p.pool.Close()
			return nil, fmt.Errorf("open delivery outbox: %w", err)
		}
		p.outbox = store
		dispatcherOpts = append(dispatcherOpts, delivery.WithOutbox(store))
	}
	p.dispatcher = delivery.NewDispatcher(delivery.PolicyFromConfig(cfg), logger, dispatcherOpts...)
	p.orchestrator = workflow.New(cfg, p.pool, p.dispatcher, logger)

	cleaned := staging.CleanStale(ctx, cfg.Paths.StagingDir, cfg.StaleAfter(), logger)
	if len(cleaned.Removed) > 0 {
		logger.Info("removed stale job workspaces",
			logging.Int("count", len(cleaned.Removed)),
			logging.String("staging_dir", cfg.Paths.StagingDir),
		)
	}
	return p, nil
}

func (c *commandContext) withPipeline(ctx context.Context, fn func(*pipeline) error) error {
	p, err := c.openPipeline(ctx)
	if err != nil {
		return err
	}
	runErr := fn(p)
	if err := p.Close(); err != nil {
		p.logger.Warn("pipeline shutdown incomplete", logging.Error(err))
	}
	return runErr
}

// preflight fails fast when a required dependency is missing.
func (p *pipeline) preflight(ctx context.Context) error {
	return preflight.Err(preflight.RunAll(ctx, p.cfg, p.sidecar))
}

func (p *pipeline) Close() error {
	var errs []error
	if p.pool != nil {
		errs = append(errs, p.pool.Close())
	}
	if p.outbox != nil {
		errs = append(errs, p.outbox.Close())
	}
	return errors.Join(errs...)
}
