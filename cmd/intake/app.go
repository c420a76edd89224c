package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/intake/catalog"
	"github.com/c360studio/intake/config"
	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/metrics"
	"github.com/c360studio/intake/session"
	"github.com/c360studio/intake/storage"
)

// App wires configuration, storage, the catalog and metrics into machines.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.Store
	recorder *metrics.Recorder
}

// NewApp opens the configured backend and binds the session namespace.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := storage.Open(ctx, cfg.BackendOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	store, err := storage.NewStore(backend, cfg.Session.ID, storage.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	logger.Debug("Storage ready",
		"backend", cfg.Storage.Backend,
		"session", cfg.Session.ID)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		recorder: metrics.New(),
	}, nil
}

// Catalog loads the configured question catalog.
func (a *App) Catalog(ctx context.Context) ([]catalog.Question, error) {
	provider := catalog.New(a.cfg.Catalog.Path, a.logger)
	if dp, ok := provider.(*catalog.DirProvider); ok && a.cfg.Catalog.Pattern != "" {
		dp.Pattern = a.cfg.Catalog.Pattern
	}
	return provider.Load(ctx)
}

// Machine loads the catalog, restores the persisted session and returns the
// machine without starting it.
func (a *App) Machine(ctx context.Context) (*session.Machine, *session.Turn, error) {
	questions, err := a.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	m := session.New(questions, a.store,
		session.WithLogger(a.logger),
		session.WithDelays(a.cfg.Session.StartDelay, a.cfg.Session.TypingDelay),
		session.WithGreeting(a.cfg.Session.Greeting),
		session.WithCompletion(a.cfg.Session.Completion),
		session.WithObserver(a.recorder),
	)
	return m, m.Restore(ctx), nil
}

// Open is Machine followed by Start for a session that has not begun yet.
// It returns the host turn to schedule, if any.
func (a *App) Open(ctx context.Context) (*session.Machine, *session.Turn, error) {
	m, turn, err := a.Machine(ctx)
	if err != nil {
		return nil, nil, err
	}
	if m.HasStarted() {
		return m, turn, nil
	}
	turn, err = m.Start(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m, turn, nil
}

// Reset clears the saved session. When the catalog cannot be loaded the
// records are deleted from the store directly, so a broken catalog never
// leaves a session stuck.
func (a *App) Reset(ctx context.Context) error {
	m, _, err := a.Machine(ctx)
	if err != nil {
		a.logger.Warn("Catalog unavailable, clearing stored records",
			"session", a.cfg.Session.ID,
			"error", err)
		if err := a.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		return nil
	}
	m.Reset(ctx)
	return nil
}

// RecordExport is passed to export call sites as their completion hook.
func (a *App) RecordExport(format export.Format, err error) {
	a.recorder.RecordExport(format, err)
	if err == nil {
		a.logger.Info("Exported responses", "format", format)
	}
}

// Close releases the store and writes the metrics textfile when one is
// configured.
func (a *App) Close() error {
	var errs []error
	if path := a.cfg.Metrics.File; path != "" {
		if err := a.recorder.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Debug("Wrote metrics", "path", path)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
