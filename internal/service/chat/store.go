package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mwarrick/payguard/backend/internal/model/chat"
)

var (
	// ErrSessionNotFound covers unknown and expired session ids alike; the
	// caller cannot tell the difference and should restart.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy signals a concurrent submission for the same session.
	ErrSessionBusy = errors.New("session is processing another message")
)

// Store owns every live session. It is the only shared mutable state in the
// service; implementations must be safe for concurrent use and must never be
// locked across an external provider call.
type Store interface {
	Put(ctx context.Context, session chat.Session) error
	Get(ctx context.Context, id string) (chat.Session, error)
	// Acquire returns a snapshot and marks the session in-flight. A second
	// Acquire before Release fails with ErrSessionBusy rather than queueing.
	Acquire(ctx context.Context, id string) (chat.Session, error)
	Release(ctx context.Context, id string)
	// Update applies fn to the live session under the store lock. fn may
	// return an error to abort the mutation, e.g. on an optimistic
	// concurrency re-check failure.
	Update(ctx context.Context, id string, fn func(*chat.Session) error) error
	Remove(ctx context.Context, id string)
}

type sessionEntry struct {
	session  chat.Session
	inFlight bool
}

// MemoryStore keeps sessions in a mutex-guarded map. Entries idle beyond the
// TTL behave as missing and are physically purged by the periodic sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*sessionEntry
}

// NewMemoryStore bootstraps the in-memory store. ttl <= 0 falls back to 30
// minutes.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*sessionEntry),
	}
}

// Put inserts or replaces a session. Replacing is deliberate: restarting a
// conversation with the same id resets it.
func (s *MemoryStore) Put(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionEntry{session: cloneSession(session)}
	return nil
}

// Get returns a snapshot of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok || s.expired(entry) {
		return chat.Session{}, ErrSessionNotFound
	}
	return cloneSession(entry.session), nil
}

// Acquire snapshots the session and flags it as having an in-flight
// transition.
func (s *MemoryStore) Acquire(_ context.Context, id string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok || s.expired(entry) {
		return chat.Session{}, ErrSessionNotFound
	}
	if entry.inFlight {
		return chat.Session{}, ErrSessionBusy
	}
	entry.inFlight = true
	return cloneSession(entry.session), nil
}

// Release clears the in-flight flag. Safe to call after the session was
// removed.
func (s *MemoryStore) Release(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[id]; ok {
		entry.inFlight = false
	}
}

// Update mutates the live session under the store lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*chat.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok || s.expired(entry) {
		return ErrSessionNotFound
	}
	return fn(&entry.session)
}

// Remove deletes a session outright.
func (s *MemoryStore) Remove(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of live entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep purges expired sessions and returns how many were removed. Sessions
// with an in-flight transition are skipped; the next sweep catches them.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if entry.inFlight || !s.expired(entry) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// RunSweeper blocks, purging expired sessions every interval until ctx is
// cancelled. Run it in its own goroutine from main.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				log.Printf("[store] swept %d expired session(s), %d remaining", removed, s.Len())
			}
		}
	}
}

func (s *MemoryStore) expired(entry *sessionEntry) bool {
	return time.Since(entry.session.LastActivity) > s.ttl
}

func cloneSession(session chat.Session) chat.Session {
	session.Answers = append([]chat.Answer(nil), session.Answers...)
	if session.Verdict != nil {
		verdict := *session.Verdict
		verdict.Rationale = append([]string(nil), verdict.Rationale...)
		session.Verdict = &verdict
	}
	return session
}
