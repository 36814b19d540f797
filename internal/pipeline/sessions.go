package pipeline

import (
	"sync"
	"time"
)

// session is one caller's iteration state for one job description. It
// lives in memory for the duration of the session only; nothing here is
// written to durable storage.
type session struct {
	id             string
	userID         string
	jobDescription string
	createdAt      time.Time

	// mu serializes steps within the session: an Optimize must not
	// overlap the Evaluate of a prior step.
	mu      sync.Mutex
	ledger  Ledger
	current int
}

// currentRound returns the round the pointer rests on.
func (s *session) currentRound() (Round, bool) {
	return s.ledger.Get(s.current)
}

// sessionStore holds live sessions, safe for concurrent use across
// sessions. Per-session serialization is the session's own lock.
type sessionStore struct {
	mu   sync.RWMutex
	byID map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{byID: make(map[string]*session)}
}

func (st *sessionStore) put(s *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byID[s.id] = s
}

// get returns the session if it exists and belongs to the user.
func (st *sessionStore) get(sessionID, userID string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[sessionID]
	if !ok || s.userID != userID {
		return nil, false
	}
	return s, true
}

// drop removes a session when the caller abandons it.
func (st *sessionStore) drop(sessionID, userID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[sessionID]
	if !ok || s.userID != userID {
		return false
	}
	delete(st.byID, sessionID)
	return true
}
