package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jagadeeshthulasiraman/chat-box/internal/config"
)

func TestBuildInMemoryEcho(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:  "test_app_build",
		AllowedOrigins:    []string{"http://localhost:5173"},
		SecretKey:         "secret",
		AccessTokenTTL:    time.Minute,
		CompletionMode:    "auto",
		CompletionTimeout: time.Second,
		UploadDir:         t.TempDir(),
		UploadMaxBytes:    1024,
	}
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Gateway != "echo" {
		t.Fatalf("Gateway = %q, want echo", res.Gateway)
	}
	if res.Sessions.StoreMode() != "in-memory" {
		t.Fatalf("StoreMode() = %q, want in-memory", res.Sessions.StoreMode())
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	r, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", r.StatusCode, http.StatusOK)
	}
}

func TestBuildRejectsProviderWithoutKey(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace: "test_app_build_reject",
		CompletionMode:   "openrouter",
		UploadDir:        t.TempDir(),
	}
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil, want missing key error")
	}
}
