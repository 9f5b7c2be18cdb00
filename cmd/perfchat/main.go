package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jagadeeshthulasiraman/chat-box/internal/protocol"
)

type options struct {
	baseURL        string
	email          string
	password       string
	turns          int
	resetEvery     int
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type projectResponse struct {
	ID string `json:"id"`
}

type summary struct {
	Turns   int
	Errors  int
	Samples []time.Duration
}

var defaultUtterances = []string{
	"Reply in three words: latency bottleneck?",
	"Reply in three words: next optimization?",
	"Reply in three words: architecture summary?",
	"Reply in three words: top risk?",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	sum, err := run(context.Background(), cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, sum)
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfchat", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8000", "chat service base URL")
	fs.StringVar(&cfg.email, "email", "", "account used for the replay (default: a fresh random account)")
	fs.StringVar(&cfg.password, "password", "perf-replay", "account password")
	fs.IntVar(&cfg.turns, "turns", 10, "number of chat turns to replay")
	fs.IntVar(&cfg.resetEvery, "reset-every", 0, "send reset=true every N turns (0 disables)")
	fs.IntVar(&startDelayMS, "start-delay-ms", 0, "delay before first turn in milliseconds")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 65000, "timeout waiting for chat_reply per turn in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "messages separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.resetEvery < 0 {
		return options{}, fmt.Errorf("reset-every must be >= 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	if strings.TrimSpace(cfg.email) == "" {
		cfg.email = "perf-" + uuid.NewString()[:8] + "@example.com"
	}

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty messages")
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) (summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	token, err := login(ctx, httpClient, cfg)
	if err != nil {
		return summary{}, fmt.Errorf("login: %w", err)
	}
	projectID, err := createProject(ctx, httpClient, cfg.baseURL, token)
	if err != nil {
		return summary{}, fmt.Errorf("create project: %w", err)
	}
	defer func() {
		_ = deleteProject(context.Background(), httpClient, cfg.baseURL, token, projectID)
	}()

	if cfg.verbose {
		fmt.Fprintf(out, "perfchat: project=%s turns=%d\n", projectID, cfg.turns)
	}

	wsURL, err := wsURLForProject(cfg.baseURL, projectID, token)
	if err != nil {
		return summary{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return summary{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	replies := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, replies, readErrCh)

	sum := summary{Turns: cfg.turns}
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		reset := cfg.resetEvery > 0 && i > 0 && i%cfg.resetEvery == 0
		requestID := fmt.Sprintf("turn-%d", i+1)

		started := time.Now()
		if err := conn.WriteJSON(protocol.ChatMessage{
			Type:      protocol.TypeChatMessage,
			Message:   text,
			Reset:     reset,
			RequestID: requestID,
		}); err != nil {
			return sum, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		env, err := awaitReply(replies, readErrCh, requestID, cfg.turnTimeout)
		if err != nil {
			return sum, fmt.Errorf("turn %d await chat_reply: %w", i+1, err)
		}
		elapsed := time.Since(started)
		sum.Samples = append(sum.Samples, elapsed)
		if env.Type == string(protocol.TypeErrorEvent) {
			sum.Errors++
			if cfg.verbose {
				fmt.Fprintf(out, "perfchat: turn %d/%d error code=%s detail=%s\n", i+1, cfg.turns, env.Code, env.Detail)
			}
		} else if cfg.verbose {
			fmt.Fprintf(out, "perfchat: turn %d/%d reset=%t history=%d latency=%s\n", i+1, cfg.turns, reset, len(env.History), elapsed.Round(time.Millisecond))
		}

		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}
	return sum, nil
}

func login(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": cfg.email, "password": cfg.password})
	if err != nil {
		return "", err
	}
	// Registration fails for an existing account; the token request below decides.
	if res, err := postJSON(ctx, client, cfg.baseURL+"/register", "", payload); err == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}

	form := url.Values{"username": {cfg.email}, "password": {cfg.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out tokenResponse
	if err := doJSON(client, req, http.StatusOK, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", fmt.Errorf("missing access_token in response")
	}
	return out.AccessToken, nil
}

func createProject(ctx context.Context, client *http.Client, baseURL, token string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"name": "perfchat replay"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/projects", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	var out projectResponse
	if err := doJSON(client, req, http.StatusCreated, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("missing id in response")
	}
	return out.ID, nil
}

func deleteProject(ctx context.Context, client *http.Client, baseURL, token, projectID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/projects/"+url.PathEscape(projectID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func postJSON(ctx context.Context, client *http.Client, target, token string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

func doJSON(client *http.Client, req *http.Request, wantStatus int, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != wantStatus {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func wsURLForProject(baseURL, projectID, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chat/ws"
	q := u.Query()
	q.Set("project_id", projectID)
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Response  string `json:"response,omitempty"`
	History   []any  `json:"history,omitempty"`
}

func readLoop(conn *websocket.Conn, replies chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeChatReply), string(protocol.TypeErrorEvent):
			replies <- env
		}
	}
}

func awaitReply(replies <-chan wsEnvelope, readErrCh <-chan error, requestID string, timeout time.Duration) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-replies:
			if env.RequestID != "" && env.RequestID != requestID {
				continue
			}
			return env, nil
		case err := <-readErrCh:
			return wsEnvelope{}, err
		case <-timer.C:
			return wsEnvelope{}, errors.New("timeout after " + timeout.String())
		}
	}
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func printSummary(w io.Writer, sum summary) {
	fmt.Fprintf(w, "perfchat: turns=%d errors=%d p50=%s p95=%s max=%s\n",
		sum.Turns, sum.Errors,
		percentile(sum.Samples, 0.50).Round(time.Millisecond),
		percentile(sum.Samples, 0.95).Round(time.Millisecond),
		percentile(sum.Samples, 1).Round(time.Millisecond),
	)
}
