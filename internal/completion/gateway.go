package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

// SystemPrompt is prepended to every outbound request and never stored.
const SystemPrompt = "You are a helpful assistant."

// Gateway turns a transcript into the next assistant reply.
type Gateway interface {
	Complete(ctx context.Context, transcript conversation.Transcript) (string, error)
	Name() string
}

// Config controls gateway construction.
type Config struct {
	Mode      string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Referer   string
	Title     string
	Timeout   time.Duration
}

func NewGateway(cfg Config) (Gateway, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenRouterGateway(cfg), nil
		}
		return NewEchoGateway(), nil
	case "openrouter":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("OPENROUTER_API_KEY is required for openrouter mode")
		}
		return NewOpenRouterGateway(cfg), nil
	case "echo":
		return NewEchoGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

// withSystemPrompt returns the outbound message list: exactly one synthesized
// system turn followed by the stored transcript. Stray system turns are dropped.
func withSystemPrompt(transcript conversation.Transcript) conversation.Transcript {
	out := make(conversation.Transcript, 0, len(transcript)+1)
	out = append(out, conversation.Turn{Role: conversation.RoleSystem, Content: SystemPrompt})
	for _, turn := range transcript {
		if turn.Role == conversation.RoleSystem {
			continue
		}
		out = append(out, turn)
	}
	return out
}
