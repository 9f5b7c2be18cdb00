package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestUsers() *Users {
	u := NewUsers(NewInMemoryUserStore())
	u.cost = bcrypt.MinCost
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()

	if err := users.Register(ctx, " Alice@Example.com ", "hunter2"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, err := users.Authenticate(ctx, "alice@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got != "alice@example.com" {
		t.Fatalf("Authenticate() = %q, want normalized email", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()
	if err := users.Register(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := users.Register(ctx, "A@B.C", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("Register() error = %v, want ErrUserExists", err)
	}
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	users := newTestUsers()
	if err := users.Register(context.Background(), "", "pw"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Register() error = %v, want ErrInvalidArgument", err)
	}
	if err := users.Register(context.Background(), "a@b.c", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Register() error = %v, want ErrInvalidArgument", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()
	if err := users.Register(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := users.Authenticate(ctx, "a@b.c", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate(wrong password) error = %v", err)
	}
	if _, err := users.Authenticate(ctx, "missing@b.c", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate(unknown user) error = %v", err)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	raw, exp, err := tokens.Issue("a@b.c")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry %v is not in the future", exp)
	}
	sub, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if sub != "a@b.c" {
		t.Fatalf("Parse() = %q", sub)
	}
}

func TestTokensRejectExpiredAndForeign(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	raw, _, err := tokens.Issue("a@b.c")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := tokens.Parse(raw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Parse(expired) error = %v, want ErrUnauthorized", err)
	}

	other := NewTokens("different", time.Minute)
	if _, err := other.Parse(raw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Parse(foreign key) error = %v, want ErrUnauthorized", err)
	}
	if _, err := other.Parse("garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Parse(garbage) error = %v, want ErrUnauthorized", err)
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	raw, _, err := tokens.Issue("a@b.c")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var seen string
	h := Middleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "a@b.c" {
		t.Fatalf("header auth: status=%d user=%q", rec.Code, seen)
	}

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/chat/ws?access_token="+raw, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "a@b.c" {
		t.Fatalf("query auth: status=%d user=%q", rec.Code, seen)
	}

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}
	if seen != "" {
		t.Fatalf("handler ran without a token")
	}
	if !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
