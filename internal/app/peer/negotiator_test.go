package peer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []core.RendezvousMsg
	in     chan core.RendezvousMsg
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan core.RendezvousMsg, 16)}
}

func (c *fakeConn) Send(msg core.RendezvousMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Recv() (core.RendezvousMsg, error) {
	msg, ok := <-c.in
	if !ok {
		return core.RendezvousMsg{}, context.Canceled
	}
	return msg, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

func (c *fakeConn) sentMsgs() []core.RendezvousMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RendezvousMsg, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) deliver(msg core.RendezvousMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.in <- msg
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	ids   []domain.PeerID
	conns []*fakeConn
}

func (d *fakeDialer) dial(_ context.Context, id domain.PeerID) (core.RendezvousConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialedIDs() []domain.PeerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.PeerID, len(d.ids))
	copy(out, d.ids)
	return out
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeLink struct {
	mu       sync.Mutex
	remote   domain.PeerID
	closes   int
	tracks   int
	onClosed func()
}

func (l *fakeLink) Start(context.Context) error { return nil }

func (l *fakeLink) Close() {
	l.mu.Lock()
	l.closes++
	first := l.closes == 1
	cb := l.onClosed
	l.mu.Unlock()
	if first && cb != nil {
		cb()
	}
}

func (l *fakeLink) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes > 0
}

func (l *fakeLink) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) ApplyAnswer(webrtc.SessionDescription) error { return nil }

func (l *fakeLink) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (l *fakeLink) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (l *fakeLink) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (l *fakeLink) AddLocalTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks++
	return nil, nil
}

func (l *fakeLink) OnClosed(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClosed = fn
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

type linkFactory struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (f *linkFactory) new(remote domain.PeerID) (core.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{remote: remote}
	f.links = append(f.links, l)
	return l, nil
}

func (f *linkFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *linkFactory) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[i]
}

func testStream() *core.MediaStream {
	return &core.MediaStream{Audio: core.NewMediaTrack(nil, nil)}
}

func connected(t *testing.T, n *Negotiator, d *fakeDialer) *fakeConn {
	t.Helper()
	n.Open("base")
	require.Eventually(t, func() bool { return d.conn(0) != nil }, time.Second, 5*time.Millisecond)
	c := d.conn(0)
	c.deliver(core.RendezvousMsg{Type: core.RvOpen, ID: "base"})
	require.Eventually(t, n.Ready, time.Second, 5*time.Millisecond)
	return c
}

func TestIdentityConfirmed(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()

	ready := make(chan domain.PeerID, 1)
	n.OnReady(func(id domain.PeerID) { ready <- id })

	connected(t, n, d)
	select {
	case id := <-ready:
		assert.Equal(t, domain.PeerID("base"), id)
	case <-time.After(time.Second):
		t.Fatal("OnReady never fired")
	}
	assert.Equal(t, StateConnected, n.State())
}

func TestOpenTimeoutRetriesWithSuffixedIdentity(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: 30 * time.Millisecond, RetryWait: 30 * time.Millisecond})
	defer n.Destroy()

	n.Open("base")

	// No OPEN arrives: the first identity times out and a suffixed one is
	// tried after the retry wait.
	require.Eventually(t, func() bool {
		return len(d.dialedIDs()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	ids := d.dialedIDs()
	assert.Equal(t, domain.PeerID("base"), ids[0])
	assert.True(t, strings.HasPrefix(string(ids[1]), "base-"), "retry uses a suffixed identity, got %q", ids[1])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestHangingDialBoundedByOpenTimeout(t *testing.T) {
	var mu sync.Mutex
	var ids []domain.PeerID
	block := make(chan struct{})
	defer close(block)

	// Dials never complete on their own; only the per-attempt deadline
	// can unblock them.
	dial := func(ctx context.Context, id domain.PeerID) (core.RendezvousConn, error) {
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return nil, context.Canceled
		}
	}

	f := &linkFactory{}
	n := New(context.Background(), dial, f.new, Timings{OpenTimeout: 30 * time.Millisecond, RetryWait: 30 * time.Millisecond})
	defer n.Destroy()

	n.Open("base")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	second := ids[1]
	mu.Unlock()
	assert.True(t, strings.HasPrefix(string(second), "base-"), "retry after a hanging dial uses a suffixed identity, got %q", second)
}

func TestStaleTimerDoesNotFireAfterSuccess(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: 50 * time.Millisecond, RetryWait: time.Hour})
	defer n.Destroy()

	n.Open("base")
	require.Eventually(t, func() bool { return d.conn(0) != nil }, time.Second, 5*time.Millisecond)
	d.conn(0).deliver(core.RendezvousMsg{Type: core.RvOpen, ID: "base"})
	require.Eventually(t, n.Ready, time.Second, 5*time.Millisecond)

	// Outlive the original open timeout; the canceled timer must not push
	// the negotiator back into the retry loop.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, StateConnected, n.State())
	assert.Len(t, d.dialedIDs(), 1)
}

func TestCallGuards(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()
	connected(t, n, d)

	n.Call("base", testStream()) // self-call
	n.Call("other", nil)         // no stream
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.count())

	n.Call("other", testStream())
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, 5*time.Millisecond)

	n.Call("other", testStream()) // already tracked: ignored
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.count())
	assert.Equal(t, []domain.PeerID{"other"}, n.Calls())
}

func TestOutboundCallSendsOffer(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()
	c := connected(t, n, d)

	n.Call("other", testStream())
	require.Eventually(t, func() bool {
		for _, m := range c.sentMsgs() {
			if m.Type == core.RvOffer && m.Dst == "other" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.link(0).tracks, "local audio attached before offering")
}

func TestDestroyClosesEveryCallOnce(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	connected(t, n, d)

	n.Call("p1", testStream())
	n.Call("p2", testStream())
	require.Eventually(t, func() bool { return f.count() == 2 }, time.Second, 5*time.Millisecond)

	n.Destroy()
	assert.Empty(t, n.Calls())
	assert.Equal(t, 1, f.link(0).closeCount())
	assert.Equal(t, 1, f.link(1).closeCount())

	n.Destroy() // idempotent
	assert.Equal(t, 1, f.link(0).closeCount())
	assert.Equal(t, StateDestroyed, n.State())
}

func TestIncomingRejectedWithoutAudio(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()
	n.OnIncoming(func(domain.PeerID) (*core.MediaStream, bool) { return nil, false })
	c := connected(t, n, d)

	c.deliver(core.RendezvousMsg{Type: core.RvOffer, Src: "caller", SDP: "v=0"})
	require.Eventually(t, func() bool {
		for _, m := range c.sentMsgs() {
			if m.Type == core.RvError && m.Dst == "caller" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, n.Calls())
	assert.Equal(t, 0, f.count())
}

func TestIncomingAnsweredWithLocalStream(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()
	n.OnIncoming(func(domain.PeerID) (*core.MediaStream, bool) { return testStream(), true })
	c := connected(t, n, d)

	c.deliver(core.RendezvousMsg{Type: core.RvOffer, Src: "caller", SDP: "v=0"})
	require.Eventually(t, func() bool {
		for _, m := range c.sentMsgs() {
			if m.Type == core.RvAnswer && m.Dst == "caller" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.PeerID{"caller"}, n.Calls())
}

func TestPerPeerErrorRemovesOnlyThatCall(t *testing.T) {
	d := &fakeDialer{}
	f := &linkFactory{}
	n := New(context.Background(), d.dial, f.new, Timings{OpenTimeout: time.Second, RetryWait: time.Second})
	defer n.Destroy()
	c := connected(t, n, d)

	n.Call("p1", testStream())
	n.Call("p2", testStream())
	require.Eventually(t, func() bool { return f.count() == 2 }, time.Second, 5*time.Millisecond)

	c.deliver(core.RendezvousMsg{Type: core.RvError, Src: "p1", Error: "ice failed"})
	require.Eventually(t, func() bool { return len(n.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.PeerID{"p2"}, n.Calls())
	assert.True(t, n.Ready(), "per-peer error must not poison the identity")
}
