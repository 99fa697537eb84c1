package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/markov"
	"github.com/CTAG07/Nepenthes/pkg/sample"
	"github.com/CTAG07/Nepenthes/pkg/statemachine"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// Session kinds select which stored definition backs a session and what it
// produces.
const (
	kindList        = "list"        // one value per step
	kindCorpus      = "corpus"      // one sequence per step
	kindGraph       = "graph"       // one state per step, finite
	kindTransitions = "transitions" // one (from, to) pair per step, finite
)

var (
	errUnknownKind     = errors.New("unknown session kind")
	errTooManySessions = errors.New("too many open sessions")
	errSessionNotFound = errors.New("session not found")
)

// runner erases the value type of a generator so that sessions of every kind
// can live in one map.
type runner interface {
	take(limit int) (any, int, error)
	stream(ctx context.Context, limit int, emit func(any) error) error
	Init(ctx context.Context) error
	Reset() error
	Close() error
	Capabilities() generator.Capabilities
}

type typedRunner[V any] struct {
	generator.Generator[V]
}

func (r typedRunner[V]) take(limit int) (any, int, error) {
	values, err := generator.Take[V](r.Generator, limit)
	return values, len(values), err
}

func (r typedRunner[V]) stream(ctx context.Context, limit int, emit func(any) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	values, errc := generator.Stream[V](ctx, r.Generator, limit)
	for v := range values {
		if err := emit(v); err != nil {
			cancel()
			for range values {
			}
			return err
		}
	}
	return <-errc
}

// CreateSessionRequest is the expected JSON body for opening a session.
type CreateSessionRequest struct {
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Seed        *uint64  `json:"seed,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

// Session is an initialized generator kept alive between requests.
//
// Sessions whose generator is ThreadSafe are driven concurrently; all others
// are serialized on the session lock.
type Session struct {
	ID           string                 `json:"id"`
	Kind         string                 `json:"kind"`
	Name         string                 `json:"name"`
	Seed         *uint64                `json:"seed,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	Capabilities generator.Capabilities `json:"capabilities"`

	mu     sync.RWMutex
	runner runner
	closed bool
}

// lock takes the session lock needed to drive the generator and returns its
// release function.
func (s *Session) lock() func() {
	if s.Capabilities.ThreadSafe {
		s.mu.RLock()
		return s.mu.RUnlock
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Take produces up to limit values. The count is lower than limit only when
// a finite generator is exhausted.
func (s *Session) Take(limit int) (any, int, error) {
	defer s.lock()()
	if s.closed {
		return nil, 0, generator.ErrClosed
	}
	return s.runner.take(limit)
}

// Stream calls emit for up to limit values.
func (s *Session) Stream(ctx context.Context, limit int, emit func(any) error) error {
	defer s.lock()()
	if s.closed {
		return generator.ErrClosed
	}
	return s.runner.stream(ctx, limit, emit)
}

// Reset restarts the session's generator.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Reset()
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.runner.Close()
}

// SessionManager owns all open sessions.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  int // sessions being built, counted against MaxSessions
	store    *store.Store
	cm       *ConfigManager
	logger   *slog.Logger
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(s *store.Store, cm *ConfigManager, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		store:    s,
		cm:       cm,
		logger:   logger,
	}
}

// Create builds and initializes a generator for req and registers it under a
// new random ID.
func (sm *SessionManager) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	cfg := sm.cm.Get()
	if err := sm.reserve(cfg.Server.MaxSessions); err != nil {
		return nil, err
	}
	opened := false
	defer func() {
		if !opened {
			sm.mu.Lock()
			sm.pending--
			sm.mu.Unlock()
		}
	}()

	var src sample.Source = sample.DefaultSource()
	if req.Seed != nil {
		src = sample.NewSource(*req.Seed)
	}

	r, err := sm.build(ctx, req, src, cfg.Generation)
	if err != nil {
		return nil, err
	}
	if err = r.Init(ctx); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s %q: %w", req.Kind, req.Name, err)
	}

	session := &Session{
		ID:           uuid.New().String(),
		Kind:         req.Kind,
		Name:         req.Name,
		Seed:         req.Seed,
		CreatedAt:    time.Now().UTC(),
		Capabilities: r.Capabilities(),
		runner:       r,
	}

	sm.mu.Lock()
	sm.pending--
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	opened = true

	sm.logger.InfoContext(ctx, "Session opened",
		slog.String("session_id", session.ID),
		slog.String("kind", req.Kind),
		slog.String("name", req.Name),
		slog.Bool("thread_safe", session.Capabilities.ThreadSafe),
	)
	return session, nil
}

// reserve claims a slot for a session about to be built. Open sessions and
// those still being built both count against limit; zero means unlimited.
func (sm *SessionManager) reserve(limit int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if limit > 0 && len(sm.sessions)+sm.pending >= limit {
		return errTooManySessions
	}
	sm.pending++
	return nil
}

func (sm *SessionManager) build(ctx context.Context, req CreateSessionRequest, src sample.Source, limits *GenerationConfig) (runner, error) {
	switch req.Kind {
	case kindList:
		g, err := sm.store.LoadList(ctx, req.Name, sample.WithSource(src), sample.WithLogger(sm.logger))
		if err != nil {
			return nil, err
		}
		return typedRunner[string]{g}, nil

	case kindCorpus:
		maxLength := limits.MaxLength
		if req.MaxLength != nil && (maxLength == 0 || (*req.MaxLength > 0 && *req.MaxLength < maxLength)) {
			maxLength = *req.MaxLength
		}
		opts := []markov.GenerateOption{markov.WithMaxLength(maxLength), markov.WithTopK(req.TopK)}
		if req.Temperature != nil {
			opts = append(opts, markov.WithTemperature(*req.Temperature))
		}
		g, err := sm.store.LoadGenerator(ctx, req.Name, src, opts...)
		if err != nil {
			return nil, err
		}
		return typedRunner[[]string]{g}, nil

	case kindGraph:
		m, err := sm.store.LoadMachine(ctx, req.Name, statemachine.WithSource(src))
		if err != nil {
			return nil, err
		}
		return typedRunner[string]{m}, nil

	case kindTransitions:
		m, err := sm.store.LoadMachine(ctx, req.Name, statemachine.WithSource(src))
		if err != nil {
			return nil, err
		}
		return typedRunner[statemachine.Transition[string]]{statemachine.NewTransitionGenerator(m)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, req.Kind)
	}
}

// Get returns the session with the given ID.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	session, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return session, nil
}

// List returns all open sessions, oldest first.
func (sm *SessionManager) List() []*Session {
	sm.mu.Lock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		out = append(out, session)
	}
	sm.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete closes and forgets a session.
func (sm *SessionManager) Delete(ctx context.Context, id string) error {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errSessionNotFound, id)
	}

	sm.logger.InfoContext(ctx, "Session closed", slog.String("session_id", id))
	return session.close()
}

// CloseAll closes every session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, session := range sessions {
		_ = session.close()
	}
}
