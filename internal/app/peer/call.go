package peer

import (
	"sync"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

// call tracks one live peer connection. The link is attached after the
// call is registered, so lookups racing construction see a nil link.
type call struct {
	remote domain.PeerID

	mu     sync.Mutex
	link   core.PeerLink
	closed bool
}

func newCall(remote domain.PeerID) *call {
	return &call{remote: remote}
}

func (c *call) setLink(l core.PeerLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = l
}

func (c *call) getLink() core.PeerLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *call) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close shuts the link down exactly once.
func (c *call) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	l := c.link
	c.mu.Unlock()
	if l != nil {
		l.Close()
	}
}
