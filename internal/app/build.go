package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jagadeeshthulasiraman/chat-box/internal/auth"
	"github.com/jagadeeshthulasiraman/chat-box/internal/chat"
	"github.com/jagadeeshthulasiraman/chat-box/internal/completion"
	"github.com/jagadeeshthulasiraman/chat-box/internal/config"
	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
	"github.com/jagadeeshthulasiraman/chat-box/internal/files"
	"github.com/jagadeeshthulasiraman/chat-box/internal/httpapi"
	"github.com/jagadeeshthulasiraman/chat-box/internal/observability"
	"github.com/jagadeeshthulasiraman/chat-box/internal/project"
	"github.com/jagadeeshthulasiraman/chat-box/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Chat     *chat.Service
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Gateway  string

	// Cleanup should be called on shutdown to release external resources (DB pools).
	Cleanup func() error
}

type closer interface {
	Close() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var opened []closer
	closeAll := func() error {
		var errs []string
		for i := len(opened) - 1; i >= 0; i-- {
			if err := opened[i].Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = closeAll()
		return nil, err
	}

	userStore, err := auth.NewUserStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("user store init failed: %w", err))
	}
	opened = append(opened, userStore)

	projects, err := project.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("project store init failed: %w", err))
	}
	opened = append(opened, projects)

	transcripts, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("transcript store init failed: %w", err))
	}
	opened = append(opened, transcripts)

	diskStore, err := files.NewDiskStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		return fail(fmt.Errorf("upload store init failed: %w", err))
	}

	gateway, err := completion.NewGateway(completion.Config{
		Mode:      cfg.CompletionMode,
		APIKey:    cfg.OpenRouterAPIKey,
		BaseURL:   cfg.OpenRouterBaseURL,
		Model:     cfg.OpenRouterModel,
		MaxTokens: cfg.OpenRouterMaxTokens,
		Referer:   cfg.OpenRouterReferer,
		Title:     cfg.OpenRouterTitle,
		Timeout:   cfg.CompletionTimeout,
	})
	if err != nil {
		return fail(fmt.Errorf("completion gateway init failed: %w", err))
	}
	if gateway.Name() == "echo" {
		log.Printf("completion gateway: echo (no OPENROUTER_API_KEY)")
	} else {
		log.Printf("completion gateway: %s model=%s", gateway.Name(), cfg.OpenRouterModel)
	}
	log.Printf("stores: users=%s projects=%s transcripts=%s", userStore.Mode(), projects.Mode(), transcripts.Mode())

	sessions := session.NewManager(transcripts, projects)
	chatService := chat.NewService(sessions, gateway, metrics)

	api := httpapi.New(cfg, httpapi.Deps{
		Users:    auth.NewUsers(userStore),
		Tokens:   auth.NewTokens(cfg.SecretKey, cfg.AccessTokenTTL),
		Projects: projects,
		Files:    diskStore,
		Chat:     chatService,
		Metrics:  metrics,
	})

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Chat:     chatService,
		Sessions: sessions,
		Metrics:  metrics,
		Gateway:  gateway.Name(),
		Cleanup:  closeAll,
	}, nil
}
