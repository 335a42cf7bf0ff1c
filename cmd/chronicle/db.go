package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/logging"
	"chronicle/internal/memory"
	"chronicle/internal/store"
	"chronicle/internal/store/bolt"
	"chronicle/internal/store/postgres"
	"chronicle/internal/store/sqlite"
)

// env bundles what every storage-backed command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	handle *store.Handle
}

func loadEnv(extra ...io.Writer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, extra...)
	return &env{cfg: cfg, logger: logger, handle: store.NewHandle(openStore(cfg, logger), logger)}, nil
}

func newLogger(cfg *config.Config, extra ...io.Writer) *slog.Logger {
	console := logging.New(
		logging.WithLevelName(cfg.Log.Level),
		logging.WithFormat(cfg.Log.Format),
		logging.WithWriter(os.Stderr),
	)
	if len(extra) == 0 {
		return console
	}
	file := logging.New(
		logging.WithLevelName(cfg.Log.Level),
		logging.WithJSON(true),
		logging.WithWriters(extra...),
	)
	return logging.Multi(console, file)
}

// openStore picks the backend for the configured driver.
func openStore(cfg *config.Config, logger *slog.Logger) store.Opener {
	dsn := cfg.Storage.DSN
	switch cfg.Storage.Driver {
	case "postgres":
		return func(ctx context.Context) (store.Store, error) {
			return postgres.New(ctx, dsn, logger)
		}
	case "bolt":
		return func(ctx context.Context) (store.Store, error) {
			return bolt.Open(strings.TrimPrefix(dsn, "bolt://"), logger)
		}
	default:
		return func(ctx context.Context) (store.Store, error) {
			return sqlite.New(ctx, dsn, logger)
		}
	}
}

func (e *env) store(ctx context.Context) (store.Store, error) {
	return e.handle.Init(ctx)
}

func (e *env) system() *memory.System {
	return memory.New(e.handle, e.logger, memory.Options{
		Roster: e.cfg.Roster,
		Context: digest.Options{
			Budget:           e.cfg.Context.Budget,
			MaxRelationships: e.cfg.Context.MaxRelationships,
			MaxRecent:        e.cfg.Context.MaxRecent,
		},
		Retention: e.cfg.Retention(),
	})
}

// session opens the memory system with sessionID loaded.
func (e *env) session(ctx context.Context, sessionID string) (*memory.System, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("--session is required")
	}
	sys := e.system()
	ok, err := sys.LoadStoryMemory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %s not found or retired", sessionID)
	}
	return sys, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.handle.Close(ctx); err != nil {
		e.logger.Warn("closing storage", "error", err)
	}
}
