package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	if strings.HasPrefix(token, "user:") {
		return strings.TrimPrefix(token, "user:"), nil
	}
	return "", errors.New("bad token")
}

// wsFixture stands up a live handler and returns the registry plus a dialer.
func wsFixture(t *testing.T) (*Registry, func(token string) *websocket.Conn) {
	t.Helper()
	registry := NewRegistry(time.Second)
	srv := httptest.NewServer(NewHandler(registry, stubVerifier{}))
	t.Cleanup(srv.Close)

	dial := func(token string) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
		sock, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sock.Close() })
		return sock
	}
	return registry, dial
}

func readFrame(t *testing.T, sock *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, sock.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, sock.ReadJSON(&frame))
	return frame
}

func send(t *testing.T, sock *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, sock.WriteJSON(frame))
}

func subscribeFrame(tickers ...string) map[string]any {
	return map[string]any{"action": "subscribe", "tickers": tickers}
}

func TestHandler_RejectsBadToken(t *testing.T) {
	registry := NewRegistry(time.Second)
	srv := httptest.NewServer(NewHandler(registry, stubVerifier{}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_ConnectSubscribeBroadcast(t *testing.T) {
	registry, dial := wsFixture(t)
	sock := dial("user:u1")

	hello := readFrame(t, sock)
	assert.Equal(t, "connected", hello["type"])
	assert.NotEmpty(t, hello["connection_id"])

	send(t, sock, subscribeFrame("aapl"))
	sub := readFrame(t, sock)
	assert.Equal(t, "subscription_confirmed", sub["type"])
	assert.Equal(t, []any{"AAPL"}, sub["tickers"])
	assert.NotEmpty(t, sub["timestamp"])

	// Wait until the subscription is visible to the broadcaster.
	require.Eventually(t, func() bool {
		_, tickers := registry.Counts()
		return tickers == 1
	}, time.Second, 10*time.Millisecond)

	n := registry.BroadcastPriceUpdate("AAPL", domain.Quote{
		Ticker: "AAPL", Price: 187.5, Change: 1.2, ChangePercent: 0.64, Volume: 1000,
	})
	assert.Equal(t, 1, n)

	update := readFrame(t, sock)
	assert.Equal(t, "price_update", update["type"])
	assert.Equal(t, "AAPL", update["ticker"])
	assert.Equal(t, 187.5, update["price"])
	assert.Equal(t, 0.64, update["changePercent"])
	assert.NotEmpty(t, update["timestamp"])
}

func TestSubscribe_MultipleTickersConfirmedTogether(t *testing.T) {
	registry, dial := wsFixture(t)
	sock := dial("user:u1")
	readFrame(t, sock) // connected

	send(t, sock, subscribeFrame("aapl", "msft"))
	sub := readFrame(t, sock)
	assert.Equal(t, "subscription_confirmed", sub["type"])
	assert.ElementsMatch(t, []any{"AAPL", "MSFT"}, sub["tickers"])

	require.Eventually(t, func() bool {
		_, tickers := registry.Counts()
		return tickers == 2
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcast_OnlyReachesSubscribers(t *testing.T) {
	registry, dial := wsFixture(t)
	subscriber := dial("user:u1")
	bystander := dial("user:u2")
	readFrame(t, subscriber) // connected
	readFrame(t, bystander)  // connected

	send(t, subscriber, subscribeFrame("TSLA"))
	readFrame(t, subscriber) // subscription_confirmed

	require.Eventually(t, func() bool {
		_, tickers := registry.Counts()
		return tickers == 1
	}, time.Second, 10*time.Millisecond)

	n := registry.BroadcastPriceUpdate("TSLA", domain.Quote{Ticker: "TSLA", Price: 180})
	assert.Equal(t, 1, n)

	// The bystander sees nothing; a ping round-trip proves the socket drained.
	send(t, bystander, map[string]any{"action": "ping"})
	frame := readFrame(t, bystander)
	assert.Equal(t, "pong", frame["type"])
}

func TestUnsubscribe_StopsUpdates(t *testing.T) {
	registry, dial := wsFixture(t)
	sock := dial("user:u1")
	readFrame(t, sock) // connected

	send(t, sock, subscribeFrame("AAPL"))
	readFrame(t, sock) // subscription_confirmed
	send(t, sock, map[string]any{"action": "unsubscribe", "tickers": []string{"AAPL"}})
	frame := readFrame(t, sock)
	assert.Equal(t, "unsubscription_confirmed", frame["type"])
	assert.Equal(t, []any{"AAPL"}, frame["tickers"])

	require.Eventually(t, func() bool {
		_, tickers := registry.Counts()
		return tickers == 0
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, registry.BroadcastPriceUpdate("AAPL", domain.Quote{Ticker: "AAPL", Price: 1}))
}

func TestSubscribe_InvalidTickerGetsError(t *testing.T) {
	registry, dial := wsFixture(t)
	sock := dial("user:u1")
	readFrame(t, sock) // connected

	send(t, sock, subscribeFrame("not a ticker"))
	frame := readFrame(t, sock)
	assert.Equal(t, "error", frame["type"])

	// Valid tickers in the same frame still subscribe.
	send(t, sock, subscribeFrame("bad ticker", "AAPL"))
	frame = readFrame(t, sock)
	assert.Equal(t, "error", frame["type"])
	frame = readFrame(t, sock)
	assert.Equal(t, "subscription_confirmed", frame["type"])
	assert.Equal(t, []any{"AAPL"}, frame["tickers"])
	require.Eventually(t, func() bool {
		_, tickers := registry.Counts()
		return tickers == 1
	}, time.Second, 10*time.Millisecond)
}

func TestUnknownActionGetsError(t *testing.T) {
	_, dial := wsFixture(t)
	sock := dial("user:u1")
	readFrame(t, sock) // connected

	send(t, sock, map[string]any{"action": "dance"})
	frame := readFrame(t, sock)
	assert.Equal(t, "error", frame["type"])
	assert.NotEmpty(t, frame["message"])
}

func TestSendNotificationToUser_TargetsAllUserConns(t *testing.T) {
	registry, dial := wsFixture(t)
	first := dial("user:u1")
	second := dial("user:u1")
	other := dial("user:u2")
	readFrame(t, first)
	readFrame(t, second)
	readFrame(t, other)

	require.Eventually(t, func() bool {
		conns, _ := registry.Counts()
		return conns == 3
	}, time.Second, 10*time.Millisecond)

	n := registry.SendNotificationToUser("u1", domain.Notification{
		ID: "n1", Type: "price_alert", Title: "AAPL alert triggered",
	})
	assert.Equal(t, 2, n)

	for _, sock := range []*websocket.Conn{first, second} {
		frame := readFrame(t, sock)
		assert.Equal(t, "notification", frame["type"])
		payload, ok := frame["notification"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "n1", payload["id"])
		assert.NotEmpty(t, frame["timestamp"])
	}
}

func TestDeregister_IsIdempotentAndCleansIndexes(t *testing.T) {
	registry := NewRegistry(time.Second)
	// A registry-level test with a nil socket never writes to the wire.
	c := registry.Register("c1", "u1", nil)
	require.NotNil(t, c)
	registry.mu.Lock()
	registry.byTicker["AAPL"] = map[string]*Conn{"c1": c}
	registry.tickersOf["c1"]["AAPL"] = true
	registry.mu.Unlock()

	conns, tickers := registry.Counts()
	assert.Equal(t, 1, conns)
	assert.Equal(t, 1, tickers)
	assert.Equal(t, []string{"AAPL"}, registry.Subscriptions("c1"))

	registry.Deregister("c1")
	conns, tickers = registry.Counts()
	assert.Zero(t, conns)
	assert.Zero(t, tickers)
	assert.Empty(t, registry.SubscribedTickers())

	// Second call finds nothing and does not panic.
	registry.Deregister("c1")
}

func TestBroadcast_DropsDeadConnections(t *testing.T) {
	registry, dial := wsFixture(t)
	sock := dial("user:u1")
	readFrame(t, sock) // connected

	send(t, sock, subscribeFrame("AAPL"))
	readFrame(t, sock) // subscription_confirmed
	require.NoError(t, sock.Close())

	// After the close the server read loop deregisters the connection; the
	// broadcast either misses it entirely or fails the send and drops it.
	require.Eventually(t, func() bool {
		registry.BroadcastPriceUpdate("AAPL", domain.Quote{Ticker: "AAPL", Price: 1})
		conns, _ := registry.Counts()
		return conns == 0
	}, 2*time.Second, 20*time.Millisecond)
}
