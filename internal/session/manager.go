package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

var (
	ErrNotFound        = errors.New("project not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ProjectResolver reports whether owner may use the transcript of projectID.
type ProjectResolver interface {
	Owns(ctx context.Context, owner, projectID string) (bool, error)
}

// ReplyFunc produces the assistant reply for a transcript.
type ReplyFunc func(ctx context.Context, transcript conversation.Transcript) (string, error)

// Exchange is the outcome of a user turn plus its assistant reply.
type Exchange struct {
	Reply        string
	History      conversation.Transcript
	ResetApplied bool
}

// Manager owns the authoritative transcript for each project. Mutations on
// the same project are serialized; different projects never contend.
type Manager struct {
	store    conversation.Store
	projects ProjectResolver

	mu          sync.Mutex
	locks       map[string]*projectLock
	onLockCount func(int)
}

type projectLock struct {
	sem  chan struct{}
	refs int
}

func NewManager(store conversation.Store, projects ProjectResolver) *Manager {
	return &Manager{
		store:    store,
		projects: projects,
		locks:    make(map[string]*projectLock),
	}
}

// OnLockCount registers fn to receive the number of projects with a holder or
// waiter every time that number changes. Call it before the manager is shared.
func (m *Manager) OnLockCount(fn func(int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLockCount = fn
}

// AppendUserTurn clears the transcript first when reset is set, then appends
// {user, message}. It returns the full transcript after the append.
func (m *Manager) AppendUserTurn(ctx context.Context, owner, projectID, message string, reset bool) (conversation.Transcript, error) {
	if err := validateMessage(projectID, message); err != nil {
		return nil, err
	}
	unlock, err := m.acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := m.authorize(ctx, owner, projectID); err != nil {
		return nil, err
	}
	return m.appendUserLocked(ctx, projectID, message, reset)
}

// AppendAssistantTurn appends {assistant, content} to the project transcript.
func (m *Manager) AppendAssistantTurn(ctx context.Context, owner, projectID, content string) (conversation.Transcript, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidArgument)
	}
	unlock, err := m.acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := m.authorize(ctx, owner, projectID); err != nil {
		return nil, err
	}
	return m.appendAssistantLocked(ctx, projectID, content)
}

// Exchange runs a whole chat round inside the project's critical section:
// user turn, reply, assistant turn. A failed reply leaves the user turn in
// place and returns the reply error with the transcript as it stands.
func (m *Manager) Exchange(ctx context.Context, owner, projectID, message string, reset bool, reply ReplyFunc) (Exchange, error) {
	if err := validateMessage(projectID, message); err != nil {
		return Exchange{}, err
	}
	unlock, err := m.acquire(ctx, projectID)
	if err != nil {
		return Exchange{}, err
	}
	defer unlock()
	// Ownership is checked under the lock so a round that starts after Drop
	// cannot write to a deleted project.
	if err := m.authorize(ctx, owner, projectID); err != nil {
		return Exchange{}, err
	}

	transcript, err := m.appendUserLocked(ctx, projectID, message, reset)
	if err != nil {
		return Exchange{}, err
	}

	text, err := reply(ctx, transcript)
	if err != nil {
		return Exchange{History: transcript, ResetApplied: reset}, err
	}

	transcript, err = m.appendAssistantLocked(ctx, projectID, text)
	if err != nil {
		return Exchange{}, err
	}
	return Exchange{Reply: text, History: transcript, ResetApplied: reset}, nil
}

// History returns a snapshot of the project transcript.
func (m *Manager) History(ctx context.Context, owner, projectID string) (conversation.Transcript, error) {
	unlock, err := m.acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := m.authorize(ctx, owner, projectID); err != nil {
		return nil, err
	}

	transcript, err := m.store.Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return transcript, nil
}

// Drop discards the transcript of a deleted project. It waits for any
// in-flight round on the project, so delete the project before calling it.
func (m *Manager) Drop(ctx context.Context, projectID string) error {
	unlock, err := m.acquire(ctx, projectID)
	if err != nil {
		return err
	}
	defer unlock()
	return m.store.Delete(ctx, projectID)
}

// ActiveLocks reports how many projects currently have a holder or waiter.
func (m *Manager) ActiveLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) StoreMode() string {
	if m.store == nil {
		return ""
	}
	return m.store.Mode()
}

func (m *Manager) appendUserLocked(ctx context.Context, projectID, message string, reset bool) (conversation.Transcript, error) {
	transcript, err := m.store.Append(ctx, projectID, reset, conversation.Turn{
		Role:    conversation.RoleUser,
		Content: message,
	})
	if err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	return transcript, nil
}

func (m *Manager) appendAssistantLocked(ctx context.Context, projectID, content string) (conversation.Transcript, error) {
	transcript, err := m.store.Append(ctx, projectID, false, conversation.Turn{
		Role:    conversation.RoleAssistant,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}
	return transcript, nil
}

func (m *Manager) authorize(ctx context.Context, owner, projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return ErrNotFound
	}
	ok, err := m.projects.Owns(ctx, owner, projectID)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// acquire blocks until the caller holds the project's lock or ctx ends.
func (m *Manager) acquire(ctx context.Context, projectID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[projectID]
	if !ok {
		l = &projectLock{sem: make(chan struct{}, 1)}
		m.locks[projectID] = l
		m.notifyLocked()
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(projectID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.release(projectID, l)
		})
	}, nil
}

func (m *Manager) release(projectID string, l *projectLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, projectID)
		m.notifyLocked()
	}
}

func (m *Manager) notifyLocked() {
	if m.onLockCount != nil {
		m.onLockCount(len(m.locks))
	}
}

func validateMessage(projectID, message string) error {
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidArgument)
	}
	return nil
}
