// Package peer owns the rendezvous identity and the per-peer call map.
//
// Identity lifecycle: Connecting -> Connected -> (Error -> Connecting)*,
// terminal Destroyed. Confirmation that does not arrive within the open
// timeout, or a transport-level rendezvous failure, moves the negotiator
// to Error; after the retry wait it reopens with a fresh suffixed
// identity, forever.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

var errConfirmTimeout = errors.New("identity confirmation timeout")

type Timings struct {
	OpenTimeout time.Duration
	RetryWait   time.Duration
}

type Negotiator struct {
	dial    core.RendezvousDialer
	newLink core.PeerLinkFactory
	t       Timings
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	base       domain.PeerID
	current    domain.PeerID
	assigned   domain.PeerID
	conn       core.RendezvousConn
	gen        int
	openTimer  *time.Timer
	retryTimer *time.Timer
	calls      map[domain.PeerID]*call

	onReady       func(domain.PeerID)
	onIncoming    func(domain.PeerID) (*core.MediaStream, bool)
	onRemoteTrack func(ctx context.Context, peer domain.PeerID, track *webrtc.TrackRemote)
}

func New(ctx context.Context, dial core.RendezvousDialer, newLink core.PeerLinkFactory, t Timings) *Negotiator {
	if t.OpenTimeout <= 0 {
		t.OpenTimeout = 20 * time.Second
	}
	if t.RetryWait <= 0 {
		t.RetryWait = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Negotiator{
		dial:    dial,
		newLink: newLink,
		t:       t,
		logger:  log.With().Str("module", "peer").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		calls:   make(map[domain.PeerID]*call),
	}
}

func (n *Negotiator) OnReady(fn func(domain.PeerID)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onReady = fn
}

// OnIncoming sets the acceptance policy: return the local stream to answer
// with, or false to reject the call outright.
func (n *Negotiator) OnIncoming(fn func(domain.PeerID) (*core.MediaStream, bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncoming = fn
}

func (n *Negotiator) OnRemoteTrack(fn func(ctx context.Context, peer domain.PeerID, track *webrtc.TrackRemote)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onRemoteTrack = fn
}

// Open begins negotiation with base as the addressable identity.
func (n *Negotiator) Open(base domain.PeerID) {
	n.mu.Lock()
	if n.state == StateDestroyed || base == "" {
		n.mu.Unlock()
		return
	}
	n.base = base
	n.mu.Unlock()
	n.attempt(base)
}

func (n *Negotiator) attempt(id domain.PeerID) {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = StateConnecting
	n.current = id
	n.gen++
	gen := n.gen
	// Armed before dialing: the confirmation window covers a hanging dial
	// as well as a silent rendezvous service.
	if n.openTimer != nil {
		n.openTimer.Stop()
	}
	n.openTimer = time.AfterFunc(n.t.OpenTimeout, func() { n.timeout(gen) })
	n.mu.Unlock()

	n.logger.Info().Str("id", string(id)).Int("gen", gen).Msg("opening rendezvous identity")
	go n.open(gen, id)
}

func (n *Negotiator) open(gen int, id domain.PeerID) {
	dialCtx, cancel := context.WithTimeout(n.ctx, n.t.OpenTimeout)
	conn, err := n.dial(dialCtx, id)
	cancel()
	if err != nil {
		n.fail(gen, err)
		return
	}
	n.mu.Lock()
	if n.gen != gen || n.state != StateConnecting {
		n.mu.Unlock()
		_ = conn.Close()
		return
	}
	n.conn = conn
	n.mu.Unlock()

	go n.readLoop(gen, conn)
}

func (n *Negotiator) readLoop(gen int, conn core.RendezvousConn) {
	for {
		msg, err := conn.Recv()
		if err != nil {
			n.fail(gen, err)
			return
		}
		n.handle(gen, msg)
	}
}

func (n *Negotiator) timeout(gen int) {
	n.mu.Lock()
	stale := n.gen != gen || n.state != StateConnecting
	n.mu.Unlock()
	if stale {
		return
	}
	n.fail(gen, errConfirmTimeout)
}

// fail moves a live generation to Error and schedules the suffixed retry.
// Stale generations and destroyed negotiators are ignored, so a timer that
// lost the race with success can never fire into fresh state.
func (n *Negotiator) fail(gen int, cause error) {
	n.mu.Lock()
	if n.gen != gen || n.state == StateDestroyed || n.state == StateError {
		n.mu.Unlock()
		return
	}
	n.state = StateError
	if n.openTimer != nil {
		n.openTimer.Stop()
		n.openTimer = nil
	}
	conn := n.conn
	n.conn = nil
	n.retryTimer = time.AfterFunc(n.t.RetryWait, func() { n.retryFrom(gen) })
	n.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	n.logger.Warn().Err(cause).Int("gen", gen).Msg("rendezvous failed, retry scheduled")
}

func (n *Negotiator) retryFrom(gen int) {
	n.mu.Lock()
	if n.gen != gen || n.state != StateError {
		n.mu.Unlock()
		return
	}
	next := domain.PeerID(fmt.Sprintf("%s-%s", n.base, uuid.NewString()[:8]))
	n.mu.Unlock()
	n.attempt(next)
}

func (n *Negotiator) handle(gen int, msg core.RendezvousMsg) {
	switch msg.Type {
	case core.RvOpen:
		n.confirmed(gen, msg)
	case core.RvOffer:
		n.incoming(gen, msg)
	case core.RvAnswer:
		n.applyAnswer(msg)
	case core.RvCandidate:
		n.applyCandidate(msg)
	case core.RvError:
		if msg.Src != "" {
			// Per-peer failure removes that one call only.
			n.CloseCall(domain.PeerID(msg.Src))
			return
		}
		n.fail(gen, errors.New(msg.Error))
	default:
		n.logger.Warn().Str("type", msg.Type).Msg("unknown rendezvous message")
	}
}

func (n *Negotiator) confirmed(gen int, msg core.RendezvousMsg) {
	n.mu.Lock()
	if n.gen != gen || n.state != StateConnecting {
		n.mu.Unlock()
		return
	}
	if n.openTimer != nil {
		n.openTimer.Stop()
		n.openTimer = nil
	}
	n.state = StateConnected
	id := n.current
	if msg.ID != "" {
		id = domain.PeerID(msg.ID)
	}
	n.assigned = id
	cb := n.onReady
	n.mu.Unlock()

	n.logger.Info().Str("id", string(id)).Msg("identity confirmed")
	if cb != nil {
		cb(id)
	}
}

// Call places an outbound call. No-op on self-call, absent audio, or a
// peer that already has a tracked call.
func (n *Negotiator) Call(remote domain.PeerID, stream *core.MediaStream) {
	n.mu.Lock()
	if n.state != StateConnected {
		n.mu.Unlock()
		n.logger.Debug().Str("remote", string(remote)).Msg("call before connected, ignored")
		return
	}
	if remote == "" || remote == n.assigned || remote == n.base {
		n.mu.Unlock()
		return
	}
	if stream == nil || stream.Audio == nil {
		n.mu.Unlock()
		return
	}
	if _, ok := n.calls[remote]; ok {
		n.mu.Unlock()
		n.logger.Debug().Str("remote", string(remote)).Msg("call already tracked, ignored")
		return
	}
	cl := newCall(remote)
	n.calls[remote] = cl
	src := n.assigned
	conn := n.conn
	n.mu.Unlock()

	go n.place(cl, src, conn, stream)
}

func (n *Negotiator) place(cl *call, src domain.PeerID, conn core.RendezvousConn, stream *core.MediaStream) {
	link, err := n.newLink(cl.remote)
	if err != nil {
		n.dropCall(cl.remote, err)
		return
	}
	cl.setLink(link)
	if cl.isClosed() {
		link.Close()
		return
	}
	n.wire(cl, link)
	if err := link.Start(n.ctx); err != nil {
		n.dropCall(cl.remote, err)
		return
	}
	if _, err := link.AddLocalTrack(stream.Audio.Local); err != nil {
		n.dropCall(cl.remote, err)
		return
	}
	offer, err := link.CreateAndSetOffer()
	if err != nil {
		n.dropCall(cl.remote, err)
		return
	}
	err = conn.Send(core.RendezvousMsg{
		Type: core.RvOffer,
		Src:  string(src),
		Dst:  string(cl.remote),
		SDP:  offer.SDP,
	})
	if err != nil {
		n.dropCall(cl.remote, err)
		return
	}
	n.logger.Info().Str("remote", string(cl.remote)).Msg("call placed")
}

func (n *Negotiator) incoming(gen int, msg core.RendezvousMsg) {
	src := domain.PeerID(msg.Src)
	n.mu.Lock()
	if n.gen != gen || n.state != StateConnected || src == "" {
		n.mu.Unlock()
		return
	}
	if _, ok := n.calls[src]; ok {
		n.mu.Unlock()
		n.logger.Debug().Str("remote", string(src)).Msg("offer for tracked peer, ignored")
		return
	}
	accept := n.onIncoming
	conn := n.conn
	local := n.assigned
	n.mu.Unlock()

	var stream *core.MediaStream
	ok := false
	if accept != nil {
		stream, ok = accept(src)
	}
	if !ok || stream == nil || stream.Audio == nil {
		n.logger.Info().Str("remote", string(src)).Msg("incoming call rejected")
		_ = conn.Send(core.RendezvousMsg{
			Type:  core.RvError,
			Src:   string(local),
			Dst:   string(src),
			Error: "rejected",
		})
		return
	}

	cl := newCall(src)
	n.mu.Lock()
	if n.state != StateConnected {
		n.mu.Unlock()
		return
	}
	if _, exists := n.calls[src]; exists {
		n.mu.Unlock()
		return
	}
	n.calls[src] = cl
	n.mu.Unlock()

	link, err := n.newLink(src)
	if err != nil {
		n.dropCall(src, err)
		return
	}
	cl.setLink(link)
	if cl.isClosed() {
		link.Close()
		return
	}
	n.wire(cl, link)
	if err := link.Start(n.ctx); err != nil {
		n.dropCall(src, err)
		return
	}
	if _, err := link.AddLocalTrack(stream.Audio.Local); err != nil {
		n.dropCall(src, err)
		return
	}
	answer, err := link.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	})
	if err != nil {
		n.dropCall(src, err)
		return
	}
	err = conn.Send(core.RendezvousMsg{
		Type: core.RvAnswer,
		Src:  string(local),
		Dst:  string(src),
		SDP:  answer.SDP,
	})
	if err != nil {
		n.dropCall(src, err)
		return
	}
	n.logger.Info().Str("remote", string(src)).Msg("call answered")
}

// wire attaches the stream-received handler, identical for the outbound
// and answering paths.
func (n *Negotiator) wire(cl *call, link core.PeerLink) {
	remote := cl.remote
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		n.sendCandidate(remote, ci)
	})
	link.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.mu.Lock()
		cb := n.onRemoteTrack
		n.mu.Unlock()
		if cb != nil {
			cb(ctx, remote, track)
		}
	})
	link.OnClosed(func() {
		n.removeCall(remote)
	})
}

func (n *Negotiator) sendCandidate(dst domain.PeerID, ci webrtc.ICECandidateInit) {
	n.mu.Lock()
	conn := n.conn
	src := n.assigned
	n.mu.Unlock()
	if conn == nil {
		return
	}
	msg := core.RendezvousMsg{
		Type:      core.RvCandidate,
		Src:       string(src),
		Dst:       string(dst),
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	if err := conn.Send(msg); err != nil {
		n.logger.Error().Err(err).Str("dst", string(dst)).Msg("send candidate")
	}
}

func (n *Negotiator) applyAnswer(msg core.RendezvousMsg) {
	src := domain.PeerID(msg.Src)
	n.mu.Lock()
	cl, ok := n.calls[src]
	n.mu.Unlock()
	if !ok {
		n.logger.Warn().Str("src", string(src)).Msg("answer for unknown call")
		return
	}
	link := cl.getLink()
	if link == nil {
		n.logger.Warn().Str("src", string(src)).Msg("answer before link ready, dropped")
		return
	}
	err := link.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	})
	if err != nil {
		n.dropCall(src, err)
	}
}

func (n *Negotiator) applyCandidate(msg core.RendezvousMsg) {
	src := domain.PeerID(msg.Src)
	n.mu.Lock()
	cl, ok := n.calls[src]
	n.mu.Unlock()
	if !ok {
		return
	}
	link := cl.getLink()
	if link == nil {
		return
	}
	ci := webrtc.ICECandidateInit{Candidate: msg.Candidate}
	if msg.SDPMid != "" {
		mid := msg.SDPMid
		ci.SDPMid = &mid
	}
	idx := msg.SDPMLineIndex
	ci.SDPMLineIndex = &idx
	if err := link.AddICECandidate(ci); err != nil {
		n.logger.Error().Err(err).Str("src", string(src)).Msg("add ice candidate")
	}
}

// dropCall removes one failed call; other calls and the session are
// unaffected.
func (n *Negotiator) dropCall(remote domain.PeerID, cause error) {
	n.logger.Warn().Err(cause).Str("remote", string(remote)).Msg("call failed")
	n.removeCall(remote)
}

func (n *Negotiator) removeCall(remote domain.PeerID) {
	n.mu.Lock()
	cl, ok := n.calls[remote]
	if ok {
		delete(n.calls, remote)
	}
	n.mu.Unlock()
	if ok {
		cl.close()
	}
}

// CloseCall is idempotent if the peer has no tracked call.
func (n *Negotiator) CloseCall(remote domain.PeerID) {
	n.removeCall(remote)
}

func (n *Negotiator) CloseAll() {
	n.mu.Lock()
	snapshot := n.calls
	n.calls = make(map[domain.PeerID]*call)
	n.mu.Unlock()
	for _, cl := range snapshot {
		cl.close()
	}
}

// Destroy closes every tracked call and releases the identity. Idempotent.
func (n *Negotiator) Destroy() {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = StateDestroyed
	if n.openTimer != nil {
		n.openTimer.Stop()
		n.openTimer = nil
	}
	if n.retryTimer != nil {
		n.retryTimer.Stop()
		n.retryTimer = nil
	}
	conn := n.conn
	n.conn = nil
	snapshot := n.calls
	n.calls = make(map[domain.PeerID]*call)
	n.mu.Unlock()

	n.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	for _, cl := range snapshot {
		cl.close()
	}
	n.logger.Info().Msg("negotiator destroyed")
}

func (n *Negotiator) Calls() []domain.PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.PeerID, 0, len(n.calls))
	for id := range n.calls {
		out = append(out, id)
	}
	return out
}

func (n *Negotiator) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == StateConnected
}

// State is exposed for diagnostics.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

var _ core.Negotiator = (*Negotiator)(nil)
