package toolrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

func newTestInvoker(t *testing.T, handler http.HandlerFunc, failureThreshold int) *Invoker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{Name: "test", BaseURL: srv.URL, Timeout: 2 * time.Second})
	breaker := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: failureThreshold, SuccessThreshold: 1, Timeout: time.Hour})
	return NewInvoker(client, breaker, fastRetry(3))
}

func TestInvoker_CallSuccess(t *testing.T) {
	inv := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"price":42}}`))
	}, 5)
	data, err := inv.Call(context.Background(), "get_stock_price", map[string]any{"ticker": "MSFT"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":42}`, string(data))
}

func TestInvoker_RetryBudgetBoundsRequests(t *testing.T) {
	var hits int32
	inv := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 5)

	_, err := inv.Call(context.Background(), "get_stock_price", nil)
	require.Error(t, err)
	// Exactly MaxAttempts HTTP requests hit the wire.
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	var exhausted *RetryExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestInvoker_ToolErrorNotRetried(t *testing.T) {
	var hits int32
	inv := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"success":false,"error":"unknown tool"}`))
	}, 5)

	_, err := inv.Call(context.Background(), "no_such_tool", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestInvoker_ExhaustedBudgetCountsOnceAgainstBreaker(t *testing.T) {
	var hits int32
	inv := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	// Two exhausted budgets (2 breaker failures) trip the breaker.
	_, err := inv.Call(context.Background(), "get_stock_price", nil)
	require.Error(t, err)
	_, err = inv.Call(context.Background(), "get_stock_price", nil)
	require.Error(t, err)
	require.Equal(t, CircuitOpen, inv.Breaker().State())
	hitsBefore := atomic.LoadInt32(&hits)

	// While open the call is rejected without any I/O.
	_, err = inv.Call(context.Background(), "get_stock_price", nil)
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, hitsBefore, atomic.LoadInt32(&hits))
}
