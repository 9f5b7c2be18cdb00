package project

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps projects for the process lifetime.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
	byOwner  map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		projects: make(map[string]*Project),
		byOwner:  make(map[string][]string),
	}
}

func (s *InMemoryStore) Create(_ context.Context, owner string, req CreateRequest) (Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	now := time.Now().UTC()
	p := &Project{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	s.byOwner[owner] = append(s.byOwner[owner], p.ID)
	return p.Clone(), nil
}

func (s *InMemoryStore) List(_ context.Context, owner string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	out := make([]Project, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.projects[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, owner, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return Project{}, err
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, owner, id string, req UpdateRequest) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return Project{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return Project{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidArgument)
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, owner, id string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return Project{}, err
	}
	delete(s.projects, id)
	ids := s.byOwner[owner]
	for i, pid := range ids {
		if pid == id {
			s.byOwner[owner] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) AddPrompt(_ context.Context, owner, id string, req PromptRequest) (Prompt, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Prompt{}, fmt.Errorf("%w: prompt content is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return Prompt{}, err
	}
	prompt := Prompt{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	p.Prompts = append(p.Prompts, prompt)
	p.UpdatedAt = prompt.CreatedAt
	return prompt, nil
}

func (s *InMemoryStore) AddFile(_ context.Context, owner, id string, file File) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return File{}, err
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	p.Files = append(p.Files, file)
	p.UpdatedAt = file.UploadedAt
	return file, nil
}

func (s *InMemoryStore) RemoveFile(_ context.Context, owner, id string, index int) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedLocked(owner, id)
	if err != nil {
		return File{}, err
	}
	if index < 0 || index >= len(p.Files) {
		return File{}, ErrInvalidFileIndex
	}
	removed := p.Files[index]
	p.Files = append(p.Files[:index:index], p.Files[index+1:]...)
	p.UpdatedAt = time.Now().UTC()
	return removed, nil
}

func (s *InMemoryStore) Owns(_ context.Context, owner, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.ownedLocked(owner, id)
	return err == nil, nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) ownedLocked(owner, id string) (*Project, error) {
	p, ok := s.projects[id]
	if !ok || p.Owner != owner {
		return nil, ErrNotFound
	}
	return p, nil
}
