package session

import (
	"sync"
	"time"

	"solana-rent-reclaimer/internal/domain"
)

// Store holds live sessions keyed by requester. Each requester has at most one.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Reserve adds s unless the requester already has a live session.
func (st *Store) Reserve(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, busy := st.sessions[s.requester]; busy {
		return domain.ErrSessionBusy
	}
	st.sessions[s.requester] = s
	return nil
}

// Get returns the live session of requester.
func (st *Store) Get(requester string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[requester]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes s if it is still the requester's live session.
func (st *Store) Remove(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.sessions[s.requester]; ok && cur == s {
		delete(st.sessions, s.requester)
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Expired returns the sessions not updated since cutoff. Sessions being
// processed never expire.
func (st *Store) Expired(cutoff time.Time) []*Session {
	st.mu.Lock()
	candidates := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		candidates = append(candidates, s)
	}
	st.mu.Unlock()

	var out []*Session
	for _, s := range candidates {
		s.mu.Lock()
		if s.state != StateProcessing && s.updatedAt.Before(cutoff) {
			out = append(out, s)
		}
		s.mu.Unlock()
	}
	return out
}
