package conversation

import (
	"context"
	"sync"
)

// InMemoryStore keeps transcripts for the process lifetime.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]Transcript
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string]Transcript)}
}

func (s *InMemoryStore) Load(_ context.Context, projectID string) (Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcripts[projectID].Clone(), nil
}

func (s *InMemoryStore) Append(_ context.Context, projectID string, reset bool, turn Turn) (Transcript, error) {
	if err := validateTurn(turn); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reset {
		s.transcripts[projectID] = nil
	}
	s.transcripts[projectID] = append(s.transcripts[projectID], turn)
	return s.transcripts[projectID].Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, projectID)
	return nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
