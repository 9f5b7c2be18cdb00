package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jagadeeshthulasiraman/chat-box/internal/chat"
	"github.com/jagadeeshthulasiraman/chat-box/internal/completion"
	"github.com/jagadeeshthulasiraman/chat-box/internal/protocol"
)

// projectRef accepts a project id sent either as a JSON string or number.
type projectRef string

func (p *projectRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = projectRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("project_id must be a string or number")
	}
	*p = projectRef(n.String())
	return nil
}

type chatRequest struct {
	ProjectID projectRef `json:"project_id"`
	Message   string     `json:"message"`
	Reset     bool       `json:"reset"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {project_id, message, reset}")
		return
	}
	res, err := s.chat.Chat(r.Context(), chat.Request{
		Owner:     ownerOf(r),
		ProjectID: string(req.ProjectID),
		Message:   req.Message,
		Reset:     req.Reset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	owner := ownerOf(r)
	defaultProject := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if defaultProject != "" {
		if _, err := s.projects.Get(r.Context(), owner, defaultProject); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
		return nil
	})
	go s.pingWS(ctx, conn)

	s.writeWS(conn, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		ProjectID: defaultProject,
		Code:      "connected",
		Detail:    s.chat.GatewayName(),
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[httpapi] chat ws read: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				ProjectID: defaultProject,
				Code:      "invalid_client_message",
				Source:    "client",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		msg, ok := parsed.(protocol.ChatMessage)
		if !ok {
			continue
		}
		projectID := msg.ProjectID
		if projectID == "" {
			projectID = defaultProject
		}
		if !s.writeWS(conn, s.chatOverWS(ctx, owner, projectID, msg)) {
			return
		}
		// The exchange may have outlasted the idle window; the client only
		// starts being idle once it has the reply.
		_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	}
}

// pingWS keeps idle sockets alive until ctx ends. WriteControl is safe to
// call alongside the handler's own writes.
func (s *Server) pingWS(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.wsPing)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) chatOverWS(ctx context.Context, owner, projectID string, msg protocol.ChatMessage) any {
	res, err := s.chat.Chat(ctx, chat.Request{
		Owner:     owner,
		ProjectID: projectID,
		Message:   msg.Message,
		Reset:     msg.Reset,
	})
	if err != nil {
		_, code, detail := classifyError(err)
		source, retryable := "chat", false
		var gwErr *completion.GatewayError
		if errors.As(err, &gwErr) {
			source, retryable = gwErr.Provider, gwErr.Retryable
		}
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			ProjectID: projectID,
			RequestID: msg.RequestID,
			Code:      code,
			Source:    source,
			Retryable: retryable,
			Detail:    detail,
		}
	}
	return protocol.ChatReply{
		Type:         protocol.TypeChatReply,
		ProjectID:    projectID,
		RequestID:    msg.RequestID,
		Response:     res.Reply,
		History:      res.History,
		ResetApplied: res.ResetApplied,
	}
}

// writeWS reports whether the connection is still usable.
func (s *Server) writeWS(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[httpapi] chat ws write: %v", err)
		return false
	}
	if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
	return true
}
