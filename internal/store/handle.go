package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Opener connects to a concrete backend.
type Opener func(ctx context.Context) (Store, error)

// Handle memoizes backend initialization. The first successful Init opens
// the backend and ensures its schema; later calls return the same Store.
// A failed Init leaves the handle empty so it can be retried.
type Handle struct {
	mu     sync.Mutex
	open   Opener
	st     Store
	logger *slog.Logger
}

func NewHandle(open Opener, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handle{open: open, logger: logger}
}

func (h *Handle) Init(ctx context.Context) (Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.st != nil {
		return h.st, nil
	}
	if h.open == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrStorageUnavailable)
	}

	st, err := h.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("%w: ensuring schema: %w", ErrStorageUnavailable, err)
	}

	h.logger.Debug("storage ready", "backend", st.Capabilities().Backend)
	h.st = st
	return st, nil
}

func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.st == nil {
		return nil
	}
	err := h.st.Close(ctx)
	h.st = nil
	return err
}
