package completion

import (
	"context"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

// EchoPrefix marks replies produced without a provider.
const EchoPrefix = "Echo: "

// EchoGateway replies deterministically when no provider is configured.
type EchoGateway struct{}

func NewEchoGateway() *EchoGateway { return &EchoGateway{} }

func (g *EchoGateway) Complete(_ context.Context, transcript conversation.Transcript) (string, error) {
	last, _ := transcript.LastUser()
	return EchoPrefix + last, nil
}

func (g *EchoGateway) Name() string { return "echo" }
