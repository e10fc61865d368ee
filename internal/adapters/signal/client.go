// Package signal implements the client side of the signaling channels:
// persistent websocket connections carrying JSON envelopes with a type
// discriminator, with automatic reconnection against a fixed budget.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Envelope is the frame format shared by both signaling channels.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Options configure one channel instance.
type Options struct {
	Name              string // "chat" or "voice", for logs
	URL               string
	Credential        domain.Credential
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	SendBuffer        int
	ReadLimit         int64
}

type conn struct {
	ws   *websocket.Conn
	stop chan struct{}
}

// Client is one signaling channel. It satisfies core.Channel.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	cur       *conn
	closed    bool
	connected bool
	ctx       context.Context

	send chan []byte

	hmu       sync.RWMutex
	handlers  map[string][]func(json.RawMessage)
	onConnect []func(reconnect bool)
	onDown    func(error)
}

func NewClient(opts Options) *Client {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Client{
		opts:     opts,
		log:      log.With().Str("module", "signal").Str("channel", opts.Name).Logger(),
		send:     make(chan []byte, opts.SendBuffer),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// Connect dials the endpoint and starts the read and write pumps. The
// initial dial uses the same retry budget as later reconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrChannelDown
	}
	c.ctx = ctx
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		// The failed initial dial consumed one attempt.
		if ws, err = c.redial(ctx, 1); err != nil {
			c.down(err)
			return err
		}
	}
	c.install(ws)
	c.fireConnect(false)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Credential != "" {
		header.Set("Authorization", "Bearer "+string(c.opts.Credential))
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		c.log.Warn().Err(err).Msg("dial failed")
		return nil, err
	}
	if c.opts.ReadLimit > 0 {
		ws.SetReadLimit(c.opts.ReadLimit)
	}
	return ws, nil
}

// redial burns through the retry budget with a fixed delay. used is the
// number of attempts the caller already consumed, so a dropped connection
// gets the full budget while a failed initial dial counts against it.
func (c *Client) redial(ctx context.Context, used int) (*websocket.Conn, error) {
	for attempt := used + 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.ReconnectDelay):
		}
		if c.isClosed() {
			return nil, core.ErrChannelDown
		}
		c.log.Info().Int("attempt", attempt).Msg("reconnecting")
		if ws, err := c.dial(ctx); err == nil {
			return ws, nil
		}
	}
	return nil, core.ErrChannelDown
}

func (c *Client) install(ws *websocket.Conn) {
	cn := &conn{ws: ws, stop: make(chan struct{})}
	c.mu.Lock()
	if old := c.cur; old != nil {
		close(old.stop)
		_ = old.ws.Close()
	}
	c.cur = cn
	c.connected = true
	c.mu.Unlock()

	go c.writePump(cn)
	go c.readPump(cn)
}

func (c *Client) writePump(cn *conn) {
	for {
		select {
		case <-cn.stop:
			return
		case data := <-c.send:
			if err := cn.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(cn *conn) {
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			select {
			case <-cn.stop:
				return // superseded or disconnected
			default:
			}
			if c.isClosed() {
				return
			}
			c.log.Warn().Err(err).Msg("connection dropped")
			c.reconnect(cn)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) reconnect(old *conn) {
	c.mu.Lock()
	if c.cur == old {
		c.connected = false
	}
	ctx := c.ctx
	c.mu.Unlock()

	ws, err := c.redial(ctx, 0)
	if err != nil {
		c.down(err)
		return
	}
	c.install(ws)
	c.fireConnect(true)
}

func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error().Err(err).Msg("bad envelope")
		return
	}
	c.hmu.RLock()
	fns := c.handlers[env.Type]
	c.hmu.RUnlock()
	if len(fns) == 0 {
		c.log.Debug().Str("type", env.Type).Msg("unhandled event")
		return
	}
	for _, fn := range fns {
		fn(env.Data)
	}
}

// Emit is fire-and-forget: a full send buffer drops the frame.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	connected, closed := c.connected, c.closed
	c.mu.Unlock()
	if closed || !connected {
		return core.ErrChannelDown
	}

	env := Envelope{Type: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn().Str("type", event).Msg("send buffer full, frame dropped")
		return ErrBackpressure
	}
}

func (c *Client) On(event string, fn func(json.RawMessage)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *Client) OnConnect(fn func(reconnect bool)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) OnDown(fn func(error)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.onDown = fn
}

func (c *Client) fireConnect(reconnect bool) {
	c.hmu.RLock()
	fns := c.onConnect
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn(reconnect)
	}
}

func (c *Client) down(err error) {
	if c.isClosed() {
		return
	}
	c.log.Error().Err(err).Msg("channel down")
	c.hmu.RLock()
	fn := c.onDown
	c.hmu.RUnlock()
	if fn != nil {
		fn(core.ErrChannelDown)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Disconnect is idempotent and safe to call multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	cn := c.cur
	c.cur = nil
	c.mu.Unlock()

	if cn != nil {
		close(cn.stop)
		_ = cn.ws.Close()
	}
	c.log.Info().Msg("disconnected")
}

var _ core.Channel = (*Client)(nil)
