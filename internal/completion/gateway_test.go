package completion

import (
	"context"
	"testing"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

func TestNewGatewayAutoFallsBackToEcho(t *testing.T) {
	g, err := NewGateway(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if g.Name() != "echo" {
		t.Fatalf("Name() = %q, want echo", g.Name())
	}
}

func TestNewGatewayAutoPrefersProviderWithKey(t *testing.T) {
	g, err := NewGateway(Config{Mode: "", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if g.Name() != "openrouter" {
		t.Fatalf("Name() = %q, want openrouter", g.Name())
	}
}

func TestNewGatewayRejectsMissingKeyAndUnknownMode(t *testing.T) {
	if _, err := NewGateway(Config{Mode: "openrouter"}); err == nil {
		t.Fatalf("NewGateway(openrouter) expected error without API key")
	}
	if _, err := NewGateway(Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("NewGateway() expected error for unknown mode")
	}
}

func TestEchoGatewayRepliesToLatestUserTurn(t *testing.T) {
	g := NewEchoGateway()
	got, err := g.Complete(context.Background(), conversation.Transcript{
		{Role: conversation.RoleUser, Content: "first"},
		{Role: conversation.RoleAssistant, Content: "Echo: first"},
		{Role: conversation.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Echo: hello" {
		t.Fatalf("Complete() = %q, want %q", got, "Echo: hello")
	}
}

func TestWithSystemPromptPrependsExactlyOne(t *testing.T) {
	out := withSystemPrompt(conversation.Transcript{
		{Role: conversation.RoleSystem, Content: "sneaky"},
		{Role: conversation.RoleUser, Content: "hi"},
	})
	systems := 0
	for _, turn := range out {
		if turn.Role == conversation.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("system turns = %d, want 1", systems)
	}
	if out[0].Role != conversation.RoleSystem || out[0].Content != SystemPrompt {
		t.Fatalf("first turn = %+v, want system prompt", out[0])
	}
	if len(out) != 2 || out[1].Content != "hi" {
		t.Fatalf("outbound = %+v", out)
	}
}

func TestWithSystemPromptDoesNotMutateInput(t *testing.T) {
	in := conversation.Transcript{{Role: conversation.RoleUser, Content: "hi"}}
	_ = withSystemPrompt(in)
	if len(in) != 1 || in[0].Role != conversation.RoleUser {
		t.Fatalf("input transcript mutated: %+v", in)
	}
}
