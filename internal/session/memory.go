package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions and intake records in process memory.
// State does not survive a restart and is not shared across replicas;
// that matches the default deployment of a single bot process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	intakes  map[int64]Intake
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
		intakes:  make(map[int64]Intake),
	}
}

// Get returns the stored session or the default for unseen users. It never fails.
func (s *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}
	return Default(), nil
}

// Set replaces the stored session wholesale.
func (s *MemoryStore) Set(_ context.Context, userID int64, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
	return nil
}

// GetIntake returns the stored intake record, all-empty for unseen users.
func (s *MemoryStore) GetIntake(_ context.Context, userID int64) (Intake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intakes[userID], nil
}

// SetIntake replaces the stored intake record wholesale.
func (s *MemoryStore) SetIntake(_ context.Context, userID int64, rec Intake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intakes[userID] = rec
	return nil
}

// Reset returns the user to the fresh state and zeroes the intake record.
func (s *MemoryStore) Reset(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	s.intakes[userID] = Intake{}
	return nil
}

var _ Store = (*MemoryStore)(nil)
