package toolrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// Invoker composes a Client with its circuit breaker and retry policy and
// implements domain.ToolInvoker. The breaker wraps the whole retried call so
// one exhausted retry budget counts as one failure against the server.
type Invoker struct {
	client  *Client
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewInvoker wires the client behind its breaker and retry policy.
func NewInvoker(client *Client, breaker *CircuitBreaker, retry RetryConfig) *Invoker {
	return &Invoker{client: client, breaker: breaker, retry: retry}
}

// Call executes the named tool and returns the raw data payload. Retryable
// failures are retried per the policy; the breaker rejects immediately while
// open with domain.ErrCircuitOpen.
func (inv *Invoker) Call(ctx context.Context, tool string, params map[string]any) (json.RawMessage, error) {
	var data json.RawMessage
	err := inv.breaker.Execute(ctx, func(ctx context.Context) error {
		return Retry(ctx, inv.retry, func(ctx context.Context) error {
			resp, err := inv.client.Execute(ctx, tool, params)
			if err != nil {
				return err
			}
			data = resp.Data
			return nil
		}, func(attempt int, err error) {
			slog.Warn("retrying tool call",
				slog.String("server", inv.client.Name()),
				slog.String("tool", tool),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
		})
	})
	if err != nil {
		observability.RecordToolCall(inv.client.Name(), tool, classify(err))
		return nil, fmt.Errorf("op=toolrpc.call tool=%s: %w", tool, err)
	}
	observability.RecordToolCall(inv.client.Name(), tool, "ok")
	return data, nil
}

// Breaker exposes the underlying breaker for stats endpoints.
func (inv *Invoker) Breaker() *CircuitBreaker { return inv.breaker }

func classify(err error) string {
	var te *ToolError
	var ve *ValidationError
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &te):
		return "tool_error"
	case errors.As(err, &ve):
		return "validation_error"
	default:
		return "connection_error"
	}
}
