package session

import "sync"

// Store keeps live call sessions in memory, one entry per session id.
// Mutation is serialized per session: Update holds that session's lock for
// the duration of fn, so no two negotiation rounds for one call can
// interleave. Sessions are independent and share no other state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session *CallSession
}

func NewStore() *Store {
	return &Store{sessions: map[string]*entry{}}
}

func (s *Store) get(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{session: New(id)}
		s.sessions[id] = e
	}
	return e
}

// Update runs fn against the session for id, creating it on first use.
// fn's error is returned as-is; the session keeps whatever mutations fn
// made before failing, so fn must validate before mutating.
func (s *Store) Update(id string, fn func(*CallSession) error) error {
	e := s.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Snapshot returns a copy of the session for id, or false if it was never
// created. Slices are copied so callers cannot reach into live state.
func (s *Store) Snapshot(id string) (CallSession, bool) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return CallSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.session
	cp.PresentedLoadIDs = append([]string(nil), e.session.PresentedLoadIDs...)
	cp.Attempts = append([]Attempt(nil), e.session.Attempts...)
	return cp, true
}
