package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jagadeeshthulasiraman/chat-box/internal/completion"
	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
	"github.com/jagadeeshthulasiraman/chat-box/internal/observability"
	"github.com/jagadeeshthulasiraman/chat-box/internal/policy"
	"github.com/jagadeeshthulasiraman/chat-box/internal/session"
)

const (
	pingPrompt     = "Say pong"
	logPreviewSize = 80
)

type Request struct {
	Owner     string
	ProjectID string
	Message   string
	Reset     bool
}

type Result struct {
	Reply        string                  `json:"response"`
	History      conversation.Transcript `json:"history"`
	ResetApplied bool                    `json:"reset_applied"`
}

// Service runs chat exchanges against a project transcript and the
// configured completion gateway.
type Service struct {
	sessions *session.Manager
	gateway  completion.Gateway
	metrics  *observability.Metrics
}

func NewService(sessions *session.Manager, gateway completion.Gateway, metrics *observability.Metrics) *Service {
	if metrics != nil {
		sessions.OnLockCount(metrics.SetActiveLocks)
	}
	return &Service{
		sessions: sessions,
		gateway:  gateway,
		metrics:  metrics,
	}
}

func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	log.Printf("[chat] project=%s reset=%t gateway=%s message=%q",
		req.ProjectID, req.Reset, s.gateway.Name(), preview(req.Message))

	ex, err := s.sessions.Exchange(ctx, req.Owner, req.ProjectID, req.Message, req.Reset, s.complete)
	if err != nil {
		s.recordOutcome(outcomeFor(err))
		log.Printf("[chat] project=%s exchange failed: %v", req.ProjectID, err)
		return Result{}, err
	}

	s.recordOutcome("ok")
	if ex.ResetApplied && s.metrics != nil {
		s.metrics.TranscriptResets.Inc()
	}
	if s.metrics != nil {
		s.metrics.ObserveStage(observability.StageChatTotal, time.Since(started))
	}
	history := ex.History
	if history == nil {
		history = conversation.Transcript{}
	}
	return Result{
		Reply:        ex.Reply,
		History:      history,
		ResetApplied: ex.ResetApplied,
	}, nil
}

// Ping sends a fixed prompt through the gateway without touching any transcript.
func (s *Service) Ping(ctx context.Context) (string, error) {
	return s.complete(ctx, conversation.Transcript{{Role: conversation.RoleUser, Content: pingPrompt}})
}

func (s *Service) History(ctx context.Context, owner, projectID string) (conversation.Transcript, error) {
	return s.sessions.History(ctx, owner, projectID)
}

// DropProject discards the transcript of a deleted project.
func (s *Service) DropProject(ctx context.Context, projectID string) error {
	return s.sessions.Drop(ctx, projectID)
}

func (s *Service) GatewayName() string { return s.gateway.Name() }

func (s *Service) StoreMode() string { return s.sessions.StoreMode() }

func (s *Service) complete(ctx context.Context, transcript conversation.Transcript) (string, error) {
	started := time.Now()
	reply, err := s.gateway.Complete(ctx, transcript)
	if s.metrics != nil {
		s.metrics.ObserveGatewayLatency(time.Since(started))
	}
	if err != nil {
		var gwErr *completion.GatewayError
		if errors.As(err, &gwErr) {
			if s.metrics != nil {
				s.metrics.GatewayErrors.WithLabelValues(gwErr.Provider, gwErr.Code()).Inc()
			}
			log.Printf("[gateway] provider=%s status=%d retryable=%t timeout=%t: %s",
				gwErr.Provider, gwErr.Status, gwErr.Retryable, gwErr.Timeout, gwErr.Message)
		}
		return "", err
	}
	return reply, nil
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
}

func outcomeFor(err error) string {
	var gwErr *completion.GatewayError
	switch {
	case errors.Is(err, session.ErrInvalidArgument):
		return "invalid_request"
	case errors.Is(err, session.ErrNotFound):
		return "project_not_found"
	case errors.As(err, &gwErr):
		return "gateway_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal_error"
	}
}

func preview(message string) string {
	return policy.LogPreview(message, logPreviewSize)
}
