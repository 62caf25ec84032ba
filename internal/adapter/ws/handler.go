package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

const (
	readLimit  = 4 << 10
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Handler upgrades HTTP requests to websocket connections and runs the read
// loop. Clients authenticate with a bearer token passed as ?token=.
type Handler struct {
	registry *Registry
	verifier domain.TokenVerifier
	upgrader websocket.Upgrader
}

// NewHandler wires the websocket handler.
func NewHandler(registry *Registry, verifier domain.TokenVerifier) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin from the app frontend.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// clientFrame is what clients send on the socket: an action applied to a set
// of tickers.
type clientFrame struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	connID := uuid.New().String()
	c := h.registry.Register(connID, userID, sock)
	defer h.registry.Deregister(connID)

	_ = c.send(map[string]any{
		"type":          "connected",
		"connection_id": connID,
		"timestamp":     frameTime(),
	}, h.registry.sendTimeout)

	sock.SetReadLimit(readLimit)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(c, stop)

	for {
		var frame clientFrame
		if err := sock.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", slog.String("conn_id", connID), slog.Any("error", err))
			}
			return
		}
		switch frame.Action {
		case "subscribe":
			h.registry.Subscribe(connID, frame.Tickers)
		case "unsubscribe":
			h.registry.Unsubscribe(connID, frame.Tickers)
		case "ping":
			_ = c.send(map[string]any{"type": "pong", "timestamp": frameTime()}, h.registry.sendTimeout)
		default:
			_ = c.send(errorFrame("unknown action"), h.registry.sendTimeout)
		}
	}
}

func (h *Handler) pingLoop(c *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.sock.SetWriteDeadline(time.Now().Add(h.registry.sendTimeout))
			err := c.sock.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
