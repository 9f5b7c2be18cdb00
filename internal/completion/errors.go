package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jagadeeshthulasiraman/chat-box/internal/reliability"
)

// GatewayError is the single failure shape for provider calls: non-success
// status, malformed body, network failure or timeout.
type GatewayError struct {
	Provider  string
	Status    int
	Message   string
	Retryable bool
	Timeout   bool
	Err       error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out: %s", e.Provider, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("%s error: %d - %s", e.Provider, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Code is a short label for metrics.
func (e *GatewayError) Code() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Status > 0:
		return strconv.Itoa(e.Status)
	default:
		return "transport"
	}
}

func classifyError(provider string, err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}

	out := &GatewayError{Provider: provider, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		out.Status = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
	case errors.As(err, &reqErr):
		out.Status = reqErr.HTTPStatusCode
		if len(reqErr.Body) > 0 {
			out.Message = truncate(string(reqErr.Body), 4<<10)
		}
	case errors.Is(err, context.DeadlineExceeded):
		out.Timeout = true
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Timeout = true
	}

	out.Retryable = out.Timeout || reliability.IsRetryableHTTPStatus(out.Status)
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
