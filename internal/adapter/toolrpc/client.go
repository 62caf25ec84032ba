package toolrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
)

// Response is the wire envelope returned by tool servers. Success is
// mandatory; a missing field is a validation error.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// ToolInfo describes one tool advertised by GET /tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ClientConfig configures one tool-server client.
type ClientConfig struct {
	Name     string
	BaseURL  string
	Token    string
	PoolSize int
	Timeout  time.Duration
}

// Client talks to a single downstream tool server over a shared keep-alive
// pool. It is safe for concurrent use; pool open/close is serialized by the
// connected flag under the mutex.
type Client struct {
	cfg ClientConfig
	hc  *http.Client

	mu        sync.Mutex
	connected bool
	tools     []ToolInfo
}

// NewClient builds a client with a keep-alive transport sized to PoolSize
// connections (PoolSize/2 idle).
func NewClient(cfg ClientConfig) *Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	tr := &http.Transport{
		MaxConnsPerHost:     cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize / 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Transport: tr, Timeout: cfg.Timeout},
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Execute performs POST {base}/tools/{tool} with params as JSON body and
// decodes the response envelope. Failure classification:
//   - transport error, timeout, HTTP 5xx -> *ConnectionError (retryable)
//   - HTTP 4xx or success=false -> *ToolError
//   - undecodable body or missing success field -> *ValidationError
func (c *Client) Execute(ctx context.Context, tool string, params map[string]any) (Response, error) {
	tracer := otel.Tracer("toolrpc")
	ctx, span := tracer.Start(ctx, "toolrpc.Execute")
	defer span.End()

	body, err := json.Marshal(params)
	if err != nil {
		return Response{}, &ValidationError{Tool: tool, Err: err}
	}
	url := fmt.Sprintf("%s/tools/%s", c.cfg.BaseURL, tool)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &ValidationError{Tool: tool, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Response{}, &ConnectionError{Tool: tool, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return Response{}, &ConnectionError{Tool: tool, Err: fmt.Errorf("server status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, &ToolError{Tool: tool, Status: resp.StatusCode, Message: string(snippet)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &ConnectionError{Tool: tool, Err: err}
	}
	// Decode into a map first so a missing success field is distinguishable
	// from success=false.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Response{}, &ValidationError{Tool: tool, Err: err}
	}
	if _, ok := probe["success"]; !ok {
		return Response{}, &ValidationError{Tool: tool, Err: fmt.Errorf("missing success field")}
	}
	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{}, &ValidationError{Tool: tool, Err: err}
	}
	if !env.Success {
		return env, &ToolError{Tool: tool, Message: env.Error}
	}
	return env, nil
}

// Connect warms the pool with a liveness probe against the server root,
// retrying with exponential backoff for transient startup failures.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	expo.MaxElapsedTime = 30 * time.Second

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server status %d", resp.StatusCode)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return &ConnectionError{Tool: "connect", Err: err}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	slog.Info("tool server connected", slog.String("server", c.cfg.Name), slog.String("base_url", c.cfg.BaseURL))
	return nil
}

// Disconnect closes idle pool connections. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	if tr, ok := c.hc.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}

// ListTools fetches GET /tools, caching the catalog in memory after the first
// successful fetch.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	if c.tools != nil {
		cached := c.tools
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tools", nil)
	if err != nil {
		return nil, &ValidationError{Tool: "list_tools", Err: err}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Tool: "list_tools", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return nil, &ConnectionError{Tool: "list_tools", Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &ToolError{Tool: "list_tools", Status: resp.StatusCode}
	}
	var tools []ToolInfo
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		return nil, &ValidationError{Tool: "list_tools", Err: err}
	}
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return tools, nil
}
