package completion

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jagadeeshthulasiraman/chat-box/internal/conversation"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultModel     = "google/gemini-pro-1.5"
	defaultMaxTokens = 1000
	defaultTimeout   = 60 * time.Second
)

// OpenRouterGateway forwards transcripts to an OpenAI-compatible chat
// completions endpoint (OpenRouter by default).
type OpenRouterGateway struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func NewOpenRouterGateway(cfg Config) *OpenRouterGateway {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	clientCfg.BaseURL = baseURL
	clientCfg.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &metadataTransport{
			base:    http.DefaultTransport,
			referer: cfg.Referer,
			title:   cfg.Title,
		},
	}

	return &OpenRouterGateway{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

func (g *OpenRouterGateway) Name() string { return "openrouter" }

func (g *OpenRouterGateway) Complete(ctx context.Context, transcript conversation.Transcript) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  toAPIMessages(withSystemPrompt(transcript)),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", classifyError(g.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", &GatewayError{Provider: g.Name(), Status: http.StatusOK, Message: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func toAPIMessages(turns conversation.Transcript) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	return out
}

// metadataTransport adds the referrer and application title headers the
// provider requires on every call.
type metadataTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *metadataTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if v := strings.TrimSpace(t.referer); v != "" {
		req.Header.Set("HTTP-Referer", v)
	}
	if v := strings.TrimSpace(t.title); v != "" {
		req.Header.Set("X-Title", v)
	}
	return t.base.RoundTrip(req)
}
