package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage MessageType = "chat_message"
	TypeChatReply   MessageType = "chat_reply"
	TypeSystemEvent MessageType = "system_event"
	TypeErrorEvent  MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage is a user turn sent over the socket. ProjectID is optional when
// the socket was opened with a project_id query parameter.
type ChatMessage struct {
	Type      MessageType `json:"type"`
	ProjectID string      `json:"project_id,omitempty"`
	Message   string      `json:"message"`
	Reset     bool        `json:"reset,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type ChatReply struct {
	Type         MessageType             `json:"type"`
	ProjectID    string                  `json:"project_id"`
	RequestID    string                  `json:"request_id,omitempty"`
	Response     string                  `json:"response"`
	History      conversation.Transcript `json:"history"`
	ResetApplied bool                    `json:"reset_applied"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	ProjectID string      `json:"project_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	ProjectID string      `json:"project_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.ProjectID = strings.TrimSpace(msg.ProjectID)
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
