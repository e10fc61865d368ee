package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcastano/reunion/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer scripts one handler per accepted connection.
type wsServer struct {
	t        *testing.T
	mu       sync.Mutex
	accepted int
	handle   func(n int, ws *websocket.Conn)
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.accepted++
	n := s.accepted
	s.mu.Unlock()
	s.handle(n, ws)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientDispatchInOrder(t *testing.T) {
	srv := &wsServer{t: t, handle: func(n int, ws *websocket.Conn) {
		for i := 0; i < 3; i++ {
			env := Envelope{Type: "message"}
			data, _ := json.Marshal(core.MessageEvent{Author: "Ana", Text: string(rune('a' + i))})
			env.Data = data
			require.NoError(t, ws.WriteJSON(env))
		}
		// Keep the connection open until the client goes away.
		_, _, _ = ws.ReadMessage()
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewClient(Options{Name: "chat", URL: wsURL(ts)})
	defer c.Disconnect()

	got := make(chan string, 3)
	c.On("message", func(data json.RawMessage) {
		var ev core.MessageEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		got <- ev.Text
	})
	require.NoError(t, c.Connect(context.Background()))

	var texts []string
	for i := 0; i < 3; i++ {
		select {
		case s := <-got:
			texts = append(texts, s)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, texts)
}

func TestClientEmitRoundTrip(t *testing.T) {
	received := make(chan Envelope, 1)
	srv := &wsServer{t: t, handle: func(n int, ws *websocket.Conn) {
		var env Envelope
		if err := ws.ReadJSON(&env); err == nil {
			received <- env
		}
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewClient(Options{Name: "chat", URL: wsURL(ts)})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Emit(core.EvSendMessage, core.SendMessagePayload{Author: "Tú", Text: "hola"}))

	select {
	case env := <-received:
		assert.Equal(t, core.EvSendMessage, env.Type)
		var p core.SendMessagePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, "hola", p.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	srv := &wsServer{t: t, handle: func(n int, ws *websocket.Conn) {
		if n == 1 {
			ws.Close() // drop the first connection immediately
			return
		}
		_, _, _ = ws.ReadMessage()
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewClient(Options{
		Name:              "chat",
		URL:               wsURL(ts),
		ReconnectAttempts: 5,
		ReconnectDelay:    10 * time.Millisecond,
	})
	defer c.Disconnect()

	reconnected := make(chan bool, 4)
	c.OnConnect(func(re bool) { reconnected <- re })
	require.NoError(t, c.Connect(context.Background()))

	select {
	case re := <-reconnected:
		assert.False(t, re, "first connect is not a reconnect")
	case <-time.After(2 * time.Second):
		t.Fatal("no initial connect callback")
	}
	select {
	case re := <-reconnected:
		assert.True(t, re)
	case <-time.After(2 * time.Second):
		t.Fatal("client never reconnected")
	}
}

func TestClientSurfacesDownAfterBudget(t *testing.T) {
	srv := &wsServer{t: t, handle: func(n int, ws *websocket.Conn) {
		_, _, _ = ws.ReadMessage()
	}}
	ts := httptest.NewServer(srv)
	url := wsURL(ts)
	ts.Close() // nothing is listening anymore

	c := NewClient(Options{
		Name:              "voice",
		URL:               url,
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
	})
	defer c.Disconnect()

	down := make(chan error, 1)
	c.OnDown(func(err error) { down <- err })

	err := c.Connect(context.Background())
	require.Error(t, err)

	select {
	case err := <-down:
		assert.ErrorIs(t, err, core.ErrChannelDown)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDown never fired")
	}
}

func TestClientFullBudgetAfterDrop(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			ws, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			ws.Close() // established, then dropped
			return
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(Options{
		Name:              "chat",
		URL:               wsURL(ts),
		ReconnectAttempts: 5,
		ReconnectDelay:    10 * time.Millisecond,
	})
	defer c.Disconnect()

	down := make(chan error, 1)
	c.OnDown(func(err error) { down <- err })
	require.NoError(t, c.Connect(context.Background()))

	select {
	case err := <-down:
		assert.ErrorIs(t, err, core.ErrChannelDown)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDown never fired")
	}

	// A drop does not consume an attempt: the full budget of 5 redials
	// follows the one successful connection.
	mu.Lock()
	got := dials
	mu.Unlock()
	assert.Equal(t, 6, got)
}

func TestClientDisconnectIdempotent(t *testing.T) {
	srv := &wsServer{t: t, handle: func(n int, ws *websocket.Conn) {
		_, _, _ = ws.ReadMessage()
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewClient(Options{Name: "chat", URL: wsURL(ts)})
	require.NoError(t, c.Connect(context.Background()))

	c.Disconnect()
	c.Disconnect()
	assert.ErrorIs(t, c.Emit("x", nil), core.ErrChannelDown)
}
