// Package storage persists intake session state as independent key/value
// records. Records are addressed by a session namespace and a fixed key, and
// reads tolerate both absent and unparseable data by falling back to a
// caller-supplied default.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// Fixed record keys for a session.
const (
	KeyTranscript = "messages"
	KeyAnswers    = "answers"
	KeyProgress   = "progress"
)

// DefaultSession is the namespace used when no session id is configured.
const DefaultSession = "default"

// sessionRe restricts namespaces to characters every backend accepts as a key.
var sessionRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Backend is the raw byte-level key/value mechanism behind a Store.
type Backend interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store binds a Backend to one session namespace.
type Store struct {
	backend Backend
	session string
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for corrupt-record diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store for the given session over backend.
func NewStore(backend Backend, session string, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if session == "" {
		session = DefaultSession
	}
	if !ValidSession(session) {
		return nil, fmt.Errorf("invalid session id %q: use letters, digits, '-' or '_'", session)
	}

	s := &Store{
		backend: backend,
		session: session,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidSession reports whether id can be used as a session namespace.
func ValidSession(id string) bool {
	return sessionRe.MatchString(id)
}

// Session returns the namespace this store writes under.
func (s *Store) Session() string {
	return s.session
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) key(name string) string {
	return s.session + "." + name
}

// Load reads the record stored under key into a value of type T.
// A missing record, a backend failure, or a record that does not decode all
// yield def; the latter two are logged but never returned.
func Load[T any](ctx context.Context, s *Store, key string, def T) T {
	full := s.key(key)

	data, err := s.backend.Get(ctx, full)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("persistence read failed, using default",
				"key", full,
				"error", err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn("persistence corrupt, using default",
			"key", full,
			"bytes", len(data),
			"error", err)
		return def
	}
	return v
}

// Save writes v under key.
func Save[T any](ctx context.Context, s *Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, s.key(key), data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Clear removes every record of the session.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range []string{KeyTranscript, KeyAnswers, KeyProgress} {
		if err := s.backend.Delete(ctx, s.key(k)); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
