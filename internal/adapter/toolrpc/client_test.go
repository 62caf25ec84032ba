package toolrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{Name: "test", BaseURL: srv.URL, PoolSize: 2, Timeout: 2 * time.Second})
}

func TestClient_ExecuteSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotParams map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotParams)
		_, _ = w.Write([]byte(`{"success":true,"data":{"price":187.5}}`))
	})
	c.cfg.Token = "secret"

	resp, err := c.Execute(context.Background(), "get_stock_price", map[string]any{"ticker": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "/tools/get_stock_price", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "AAPL", gotParams["ticker"])
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"price":187.5}`, string(resp.Data))
}

func TestClient_ExecuteToolFailureEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"unknown ticker"}`))
	})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "unknown ticker", toolErr.Message)
	assert.False(t, IsRetryable(err))
}

func TestClient_Execute5xxIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, IsRetryable(err))
}

func TestClient_Execute4xxIsToolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("bad params"))
	})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, http.StatusUnprocessableEntity, toolErr.Status)
	assert.False(t, IsRetryable(err))
}

func TestClient_ExecuteMissingSuccessField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"price":1}}`))
	})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.False(t, IsRetryable(err))
}

func TestClient_ExecuteUndecodableBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestClient_ExecuteTransportError(t *testing.T) {
	c := NewClient(ClientConfig{Name: "test", BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := c.Execute(context.Background(), "get_stock_price", nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestClient_ConnectAndDisconnect(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.Connect(context.Background()))
	// Second connect is a no-op.
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	c.Disconnect()
	c.Disconnect()
}

func TestClient_ListToolsMemoized(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tools", r.URL.Path)
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`[{"name":"get_stock_price"},{"name":"search_stocks"}]`))
	})
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_stock_price", tools[0].Name)

	_, err = c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
