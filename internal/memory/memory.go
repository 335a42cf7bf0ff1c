// Package memory is the entry point collaborators use to keep a story's
// narrative state. A System owns one active session at a time and turns
// storage failures other than an unavailable backend into degraded results
// so a scene can still be generated.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chronicle/internal/digest"
	"chronicle/internal/enforce"
	"chronicle/internal/store"
)

// ErrNoSession is returned when an operation needs an active session and
// none was initialized or loaded.
var ErrNoSession = errors.New("no active story session")

type Options struct {
	// Roster holds extra known names matched in event descriptions.
	Roster    []string
	Context   digest.Options
	Retention time.Duration
}

const DefaultRetention = 30 * 24 * time.Hour

type System struct {
	mu      sync.Mutex
	handle  *store.Handle
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
	session *store.Session
}

func New(handle *store.Handle, logger *slog.Logger, opts Options) *System {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &System{handle: handle, logger: logger, opts: opts, now: time.Now}
}

// Session returns a copy of the active session, if any.
func (s *System) Session() (store.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return store.Session{}, false
	}
	return *s.session, true
}

func (s *System) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return s.handle.Close(ctx)
}

// store returns the initialized backend. Its error is always fatal.
func (s *System) store(ctx context.Context) (store.Store, error) {
	st, err := s.handle.Init(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *System) enforcer(st store.Store) *enforce.Enforcer {
	return enforce.New(st, s.logger)
}

// degrade logs a recoverable failure at the memory boundary.
func (s *System) degrade(op string, err error, args ...any) {
	args = append([]any{"op", op, "error", err}, args...)
	s.logger.Warn("memory degraded", args...)
}

// refresh reloads the active session row after a write.
func (s *System) refresh(ctx context.Context, st store.Store) {
	if s.session == nil {
		return
	}
	fresh, err := st.GetSession(ctx, s.session.ID)
	if err != nil {
		s.degrade("refresh", err, "session", s.session.ID)
		return
	}
	s.session = fresh
}

func (s *System) requireSession() (*store.Session, error) {
	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.session, nil
}
