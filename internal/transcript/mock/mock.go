// Package mock provides an in-memory test double for transcript.Store.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akrusz/meditation-pal/internal/transcript"
)

var _ transcript.Store = (*Store)(nil)

// Store is an in-memory implementation of transcript.Store. Safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*transcript.Session
	exchanges map[string][]transcript.Exchange

	// Err, if non-nil, is returned from every method.
	Err error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*transcript.Session),
		exchanges: make(map[string][]transcript.Exchange),
	}
}

// CreateSession implements transcript.Store.
func (s *Store) CreateSession(_ context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.sessions[id]; ok {
		return fmt.Errorf("mock store: session %q already exists", id)
	}
	s.sessions[id] = &transcript.Session{ID: id, StartedAt: startedAt}
	return nil
}

// EndSession implements transcript.Store.
func (s *Store) EndSession(_ context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	sess, ok := s.sessions[id]
	if !ok || !sess.EndedAt.IsZero() {
		return fmt.Errorf("mock store: no live session %q", id)
	}
	sess.EndedAt = endedAt
	return nil
}

// Append implements transcript.Store.
func (s *Store) Append(_ context.Context, sessionID string, ex transcript.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.exchanges[sessionID] = append(s.exchanges[sessionID], ex)
	return nil
}

// Exchanges implements transcript.Store.
func (s *Store) Exchanges(_ context.Context, sessionID string) ([]transcript.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]transcript.Exchange, len(s.exchanges[sessionID]))
	copy(out, s.exchanges[sessionID])
	return out, nil
}

// Recent implements transcript.Store.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]transcript.Exchange, error) {
	all, err := s.Exchanges(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// List implements transcript.Store.
func (s *Store) List(_ context.Context, limit int) ([]transcript.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]transcript.Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		cp := *sess
		cp.Exchanges = len(s.exchanges[id])
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements transcript.Store.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.sessions, sessionID)
	delete(s.exchanges, sessionID)
	return nil
}
