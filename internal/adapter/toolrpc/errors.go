// Package toolrpc implements the client side of the downstream tool-server
// protocol: POST {base}/tools/{name} with a JSON parameter object, decoded
// into a {success, data, error} envelope. The package also provides the retry
// helper and the per-server circuit breaker used to guard every call.
package toolrpc

import (
	"errors"
	"fmt"
)

// ConnectionError covers transport failures, request timeouts and HTTP 5xx.
// It is the only retryable failure class.
type ConnectionError struct {
	Tool string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tool %s: connection error: %v", e.Tool, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ToolError covers HTTP 4xx responses and HTTP 200 envelopes with
// success=false. Never retried.
type ToolError struct {
	Tool    string
	Status  int
	Message string
}

func (e *ToolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tool %s: status %d: %s", e.Tool, e.Status, e.Message)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// ValidationError covers undecodable responses and envelopes missing the
// mandatory success field. Never retried.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid response: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err belongs to the retryable failure class.
func IsRetryable(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
