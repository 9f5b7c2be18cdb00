package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/jagadeeshthulasiraman/chat-box/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	err := s.users.Register(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"msg": "User registered"})
	case errors.Is(err, auth.ErrUserExists):
		respondError(w, http.StatusBadRequest, "user_exists", "Email already registered")
	case errors.Is(err, auth.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		respondServiceError(w, err)
	}
}

// handleToken implements the OAuth2 password grant form used by the frontend.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.users.Authenticate(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect username or password")
			return
		}
		respondServiceError(w, err)
		return
	}
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	})
}
