package conversation

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrSystemTurn is returned when a caller tries to persist a system turn.
	// The system instruction is synthesized at dispatch time and never stored.
	ErrSystemTurn = errors.New("system turns are not stored")
	ErrEmptyTurn  = errors.New("turn content is empty")
)

// Turn is a single message in a project transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered sequence of turns owned by one project.
type Transcript []Turn

// Clone returns an independent copy. A nil transcript clones to an empty one
// so it encodes as [] rather than null.
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// LastUser returns the content of the latest user turn.
func (t Transcript) LastUser() (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleUser {
			return t[i].Content, true
		}
	}
	return "", false
}

// Store persists transcripts keyed by project id. Append with reset must
// clear and append atomically.
type Store interface {
	Load(ctx context.Context, projectID string) (Transcript, error)
	Append(ctx context.Context, projectID string, reset bool, turn Turn) (Transcript, error)
	Delete(ctx context.Context, projectID string) error
	Mode() string
	Close() error
}

func validateTurn(turn Turn) error {
	switch turn.Role {
	case RoleUser, RoleAssistant:
	case RoleSystem:
		return ErrSystemTurn
	default:
		return fmt.Errorf("unknown turn role %q", turn.Role)
	}
	if turn.Content == "" {
		return ErrEmptyTurn
	}
	return nil
}
