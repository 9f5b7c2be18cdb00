package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/jagadeeshthulasiraman/chat-box/internal/auth"
	"github.com/jagadeeshthulasiraman/chat-box/internal/chat"
	"github.com/jagadeeshthulasiraman/chat-box/internal/completion"
	"github.com/jagadeeshthulasiraman/chat-box/internal/config"
	"github.com/jagadeeshthulasiraman/chat-box/internal/files"
	"github.com/jagadeeshthulasiraman/chat-box/internal/observability"
	"github.com/jagadeeshthulasiraman/chat-box/internal/project"
	"github.com/jagadeeshthulasiraman/chat-box/internal/protocol"
	"github.com/jagadeeshthulasiraman/chat-box/internal/session"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Users    *auth.Users
	Tokens   *auth.Tokens
	Projects project.Store
	Files    *files.DiskStore
	Chat     *chat.Service
	Metrics  *observability.Metrics
}

type Server struct {
	cfg      config.Config
	users    *auth.Users
	tokens   *auth.Tokens
	projects project.Store
	files    *files.DiskStore
	chat     *chat.Service
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	// wsIdle bounds how long a chat socket may go without a frame or pong
	// from the client; wsPing must stay below it.
	wsIdle time.Duration
	wsPing time.Duration
}

func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		users:    deps.Users,
		tokens:   deps.Tokens,
		projects: deps.Projects,
		files:    deps.Files,
		chat:     deps.Chat,
		metrics:  deps.Metrics,
		wsIdle:   wsIdleTimeout,
		wsPing:   wsPingInterval,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/perf/latency", s.handlePerfLatency)
	r.Get("/ping", s.handlePing)
	r.Post("/register", s.handleRegister)
	r.Post("/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.tokens))

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Put("/projects/{id}", s.handleUpdateProject)
		r.Delete("/projects/{id}", s.handleDeleteProject)
		r.Post("/projects/{id}/prompts", s.handleAddPrompt)
		r.Post("/projects/{id}/upload", s.handleUploadFile)
		r.Delete("/projects/{id}/files/{index}", s.handleDeleteFile)
		r.Get("/projects/{id}/history", s.handleHistory)

		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"gateway":               s.chat.GatewayName(),
		"transcript_store_mode": s.chat.StoreMode(),
		"project_store_mode":    s.projects.Mode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                "ready",
		"gateway":               s.chat.GatewayName(),
		"transcript_store_mode": s.chat.StoreMode(),
		"project_store_mode":    s.projects.Mode(),
		"user_store_mode":       s.users.StoreMode(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	msg, err := s.chat.Ping(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "gateway_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"msg": msg})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin.
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondServiceError maps domain errors onto the HTTP error taxonomy.
func respondServiceError(w http.ResponseWriter, err error) {
	status, code, msg := classifyError(err)
	respondError(w, status, code, msg)
}

func classifyError(err error) (int, string, string) {
	var gwErr *completion.GatewayError
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Invalid or expired token"
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, project.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, project.ErrInvalidFileIndex):
		return http.StatusBadRequest, "invalid_file_index", "Invalid file index"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound, "project_not_found", "Project not found"
	case errors.Is(err, files.ErrTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "file_too_large", "File exceeds upload limit"
	case errors.Is(err, files.ErrInvalidName):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.As(err, &gwErr):
		return http.StatusInternalServerError, "gateway_error", gwErr.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled", err.Error()
	default:
		log.Printf("[httpapi] internal error: %v", err)
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func ownerOf(r *http.Request) string {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.ChatReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)
