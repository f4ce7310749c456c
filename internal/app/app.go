// Package app wires configuration into a ready Service. The HTTP server and
// the operator CLI build their dependencies the same way through New.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/sessionlake/internal/analysis"
	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/config"
	"github.com/JonMunkholm/sessionlake/internal/core"
	"github.com/JonMunkholm/sessionlake/internal/credentials"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	"github.com/JonMunkholm/sessionlake/internal/query"
	"github.com/JonMunkholm/sessionlake/internal/sandbox"
	"github.com/JonMunkholm/sessionlake/internal/session"
)

// Options controls startup steps that differ between binaries.
type Options struct {
	// Preload installs the configured extensions before returning.
	Preload bool
	Logger  *slog.Logger
}

// App holds the constructed components.
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Store   *session.Store
	Service *core.Service
}

// New builds every component from cfg. Extension preload failures are
// logged and do not stop startup; extensions install on demand later.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	box, err := credentials.NewBox(cfg.Security.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}

	eng, err := engine.New(engine.Options{
		ExtensionDir: cfg.Engine.ExtensionDir,
		Threads:      cfg.Engine.Threads,
		Preload:      cfg.Engine.Preload,
		ObjectStore: engine.ObjectStore{
			Endpoint:  cfg.ObjectStore.Endpoint,
			Region:    cfg.ObjectStore.Region,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    cfg.ObjectStore.UseSSL,
			PathStyle: cfg.ObjectStore.PathStyle,
		},
		Sealer: box,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	if opts.Preload {
		if err := eng.Preload(ctx); err != nil {
			logger.Warn("extension preload incomplete", "error", err)
		} else {
			logger.Info("extensions preloaded", "extensions", cfg.Engine.Preload, "dir", eng.ExtensionDir())
		}
	}

	store, err := session.NewStore(cfg.Engine.DataDir, eng)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	var prober binder.Prober
	if cfg.Binder.ProbeEnabled {
		prober = binder.PostgresProber{}
	}

	svc, err := core.NewService(core.Deps{
		Store: store,
		Binder: binder.New(binder.Options{
			Credentials:  box,
			Prober:       prober,
			ProbeTimeout: cfg.Binder.ProbeTimeout,
			Logger:       logger,
		}),
		Executor: query.New(store, query.Options{
			DefaultRowCap: cfg.Engine.DefaultRowCap,
			MaxRowCap:     cfg.Engine.MaxRowCap,
			Logger:        logger,
		}),
		Analyzer: analysis.New(store, logger),
		Sandbox: sandbox.New(sandbox.Options{
			Interpreter:    cfg.Sandbox.Interpreter,
			Timeout:        cfg.Sandbox.Timeout,
			MaxTimeout:     cfg.Sandbox.MaxTimeout,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			Logger:         logger,
		}),
		Limiter: core.NewInitLimiter(cfg.Init.MaxConcurrent, cfg.Init.MaxWaitTime),
	})
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &App{Config: cfg, Engine: eng, Store: store, Service: svc}, nil
}
