package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

// rvConn adapts one websocket to the rendezvous contract. Recv is called
// from a single goroutine (the negotiator's read loop); Send can race
// between call placement and candidate callbacks, so writes are locked.
type rvConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *rvConn) Send(msg core.RendezvousMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *rvConn) Recv() (core.RendezvousMsg, error) {
	var msg core.RendezvousMsg
	err := c.ws.ReadJSON(&msg)
	return msg, err
}

func (c *rvConn) Close() error {
	return c.ws.Close()
}

// RendezvousDialer returns a dialer for the peer rendezvous endpoint. The
// requested identity rides in the query string; the service confirms it
// with an OPEN message.
func RendezvousDialer(base string, cred domain.Credential) core.RendezvousDialer {
	return func(ctx context.Context, id domain.PeerID) (core.RendezvousConn, error) {
		u := fmt.Sprintf("%s?id=%s", base, url.QueryEscape(string(id)))
		header := http.Header{}
		if cred != "" {
			header.Set("Authorization", "Bearer "+string(cred))
		}
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, header)
		if err != nil {
			return nil, fmt.Errorf("rendezvous dial: %w", err)
		}
		return &rvConn{ws: ws}, nil
	}
}
