package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// Conn wraps one websocket connection. Writes are serialized by the conn's
// own mutex; the registry lock is never held across a network write.
type Conn struct {
	id     string
	userID string
	sock   *websocket.Conn

	writeMu sync.Mutex
}

func (c *Conn) send(frame any, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(timeout))
	return c.sock.WriteJSON(frame)
}

func frameTime() string { return time.Now().UTC().Format(time.RFC3339) }

func errorFrame(msg string) map[string]any {
	return map[string]any{"type": "error", "message": msg, "timestamp": frameTime()}
}

// Registry tracks live connections under three indexes guarded by a single
// mutex: by connection id, by subscribed ticker and by user id. Fan-out
// snapshots the target set under the lock and sends outside it.
type Registry struct {
	sendTimeout time.Duration

	mu        sync.Mutex
	conns     map[string]*Conn
	byTicker  map[string]map[string]*Conn
	byUser    map[string]map[string]*Conn
	tickersOf map[string]map[string]bool // connID -> subscribed tickers
}

// NewRegistry builds an empty registry. sendTimeout bounds each frame write;
// zero selects 5s.
func NewRegistry(sendTimeout time.Duration) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Registry{
		sendTimeout: sendTimeout,
		conns:       make(map[string]*Conn),
		byTicker:    make(map[string]map[string]*Conn),
		byUser:      make(map[string]map[string]*Conn),
		tickersOf:   make(map[string]map[string]bool),
	}
}

// Register adds a connection to the registry and returns its handle.
func (r *Registry) Register(id, userID string, sock *websocket.Conn) *Conn {
	c := &Conn{id: id, userID: userID, sock: sock}
	r.mu.Lock()
	r.conns[id] = c
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*Conn)
	}
	r.byUser[userID][id] = c
	r.tickersOf[id] = make(map[string]bool)
	total := len(r.conns)
	r.mu.Unlock()

	observability.WSConnections.Set(float64(total))
	slog.Info("websocket connected", slog.String("conn_id", id), slog.String("user_id", userID))
	return c
}

// Deregister removes the connection from every index. Safe to call more than
// once; the second call finds nothing to remove.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	for ticker := range r.tickersOf[id] {
		delete(r.byTicker[ticker], id)
		if len(r.byTicker[ticker]) == 0 {
			delete(r.byTicker, ticker)
		}
	}
	delete(r.tickersOf, id)
	delete(r.byUser[c.userID], id)
	if len(r.byUser[c.userID]) == 0 {
		delete(r.byUser, c.userID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	observability.WSConnections.Set(float64(total))
	slog.Info("websocket disconnected", slog.String("conn_id", id))
}

// normalize maps the requested tickers to their canonical form, dropping
// invalid symbols. The second return reports whether anything was dropped.
func normalize(tickers []string) ([]string, bool) {
	out := make([]string, 0, len(tickers))
	dropped := false
	for _, raw := range tickers {
		t, err := domain.NormalizeTicker(raw)
		if err != nil {
			dropped = true
			continue
		}
		out = append(out, t)
	}
	return out, dropped
}

// Subscribe adds the connection to each ticker's fan-out set and confirms
// with a subscription_confirmed frame listing the accepted tickers. Invalid
// symbols are rejected with an error frame and excluded.
func (r *Registry) Subscribe(id string, tickers []string) {
	valid, dropped := normalize(tickers)
	if dropped {
		r.sendTo(id, errorFrame("invalid ticker"))
	}
	if len(valid) == 0 {
		return
	}
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		for _, t := range valid {
			if r.byTicker[t] == nil {
				r.byTicker[t] = make(map[string]*Conn)
			}
			r.byTicker[t][id] = c
			r.tickersOf[id][t] = true
		}
	}
	r.mu.Unlock()
	if ok {
		_ = c.send(map[string]any{
			"type":      "subscription_confirmed",
			"tickers":   valid,
			"timestamp": frameTime(),
		}, r.sendTimeout)
	}
}

// Unsubscribe removes the connection from each ticker's fan-out set and
// confirms. Unsubscribing a ticker that was never subscribed still confirms.
func (r *Registry) Unsubscribe(id string, tickers []string) {
	valid, dropped := normalize(tickers)
	if dropped {
		r.sendTo(id, errorFrame("invalid ticker"))
	}
	if len(valid) == 0 {
		return
	}
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		for _, t := range valid {
			delete(r.byTicker[t], id)
			if len(r.byTicker[t]) == 0 {
				delete(r.byTicker, t)
			}
			delete(r.tickersOf[id], t)
		}
	}
	r.mu.Unlock()
	if ok {
		_ = c.send(map[string]any{
			"type":      "unsubscription_confirmed",
			"tickers":   valid,
			"timestamp": frameTime(),
		}, r.sendTimeout)
	}
}

// BroadcastPriceUpdate pushes a quote to every connection subscribed to the
// ticker and returns how many frames were delivered. Failed sends drop the
// connection.
func (r *Registry) BroadcastPriceUpdate(ticker string, q domain.Quote) int {
	r.mu.Lock()
	targets := make([]*Conn, 0, len(r.byTicker[ticker]))
	for _, c := range r.byTicker[ticker] {
		targets = append(targets, c)
	}
	r.mu.Unlock()
	if len(targets) == 0 {
		return 0
	}

	frame := map[string]any{
		"type":          "price_update",
		"ticker":        ticker,
		"price":         q.Price,
		"change":        q.Change,
		"changePercent": q.ChangePercent,
		"volume":        q.Volume,
		"timestamp":     frameTime(),
	}
	sent := 0
	for _, c := range targets {
		if err := c.send(frame, r.sendTimeout); err != nil {
			slog.Warn("websocket send failed, dropping connection",
				slog.String("conn_id", c.id), slog.Any("error", err))
			r.Deregister(c.id)
			continue
		}
		sent++
	}
	if sent > 0 {
		observability.WSMessagesSentTotal.WithLabelValues("price_update").Add(float64(sent))
	}
	return sent
}

// SendNotificationToUser pushes a notification to every live connection of a
// user, implementing domain.Notifier.
func (r *Registry) SendNotificationToUser(userID string, n domain.Notification) int {
	r.mu.Lock()
	targets := make([]*Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		targets = append(targets, c)
	}
	r.mu.Unlock()
	if len(targets) == 0 {
		return 0
	}

	frame := map[string]any{
		"type":         "notification",
		"notification": notificationPayload(n),
		"timestamp":    frameTime(),
	}
	sent := 0
	for _, c := range targets {
		if err := c.send(frame, r.sendTimeout); err != nil {
			slog.Warn("websocket send failed, dropping connection",
				slog.String("conn_id", c.id), slog.Any("error", err))
			r.Deregister(c.id)
			continue
		}
		sent++
	}
	if sent > 0 {
		observability.WSMessagesSentTotal.WithLabelValues("notification").Add(float64(sent))
	}
	return sent
}

// Counts returns (connections, distinct subscribed tickers) for readiness and
// debug endpoints.
func (r *Registry) Counts() (conns, tickers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns), len(r.byTicker)
}

// SubscribedTickers returns every ticker with at least one live subscriber.
func (r *Registry) SubscribedTickers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byTicker))
	for t := range r.byTicker {
		out = append(out, t)
	}
	return out
}

// Subscriptions returns the tickers a connection is subscribed to.
func (r *Registry) Subscriptions(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tickersOf[id]))
	for t := range r.tickersOf[id] {
		out = append(out, t)
	}
	return out
}

func (r *Registry) sendTo(id string, frame any) {
	r.mu.Lock()
	c := r.conns[id]
	r.mu.Unlock()
	if c != nil {
		_ = c.send(frame, r.sendTimeout)
	}
}

func notificationPayload(n domain.Notification) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"payload":    n.Payload,
		"created_at": n.CreatedAt,
	}
}
