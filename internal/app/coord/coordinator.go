// Package coord composes the media controller, the peer negotiation layer
// and the two signaling channels into one call session.
//
// All session state is mutated by a single consumer goroutine draining a
// task queue. Channel handlers and timers post closures onto the queue, so
// events stay ordered per channel and no locking is needed on the roster
// or transcript paths. A teardown flag gates every continuation: work that
// resolves after Close is dropped, never applied.
package coord

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

type Timings struct {
	// CallGrace delays call placement after a join signal so the remote
	// side's media and negotiation layer can stabilize. Empirical, not a
	// protocol guarantee.
	CallGrace time.Duration
	// LeaveDelay keeps the termination reason on screen before the UI is
	// told to navigate away.
	LeaveDelay time.Duration
}

type Options struct {
	LocalName string
	RosterCap int
	Timings   Timings
}

type Coordinator struct {
	opts   Options
	logger zerolog.Logger

	chat  core.Channel
	voice core.Channel
	neg   core.Negotiator
	media core.MediaController
	meta  core.Metadata

	tasks chan func()
	done  chan struct{}
	ui    chan UIEvent

	torn      atomic.Bool
	endedFlag atomic.Bool
	closeOnce sync.Once

	// Loop-owned state. Only the consumer goroutine touches these.
	ctx        context.Context
	started    bool
	sessionID  domain.SessionID
	identity   domain.Identity
	peer       domain.PeerID
	owner      bool
	ended      bool
	navigated  bool
	joined     bool
	camOn      bool
	micOn      bool
	togglesGen int
	roster     *core.Roster
	transcript *core.Transcript
}

func New(opts Options, chat, voice core.Channel, neg core.Negotiator, media core.MediaController, meta core.Metadata) *Coordinator {
	if opts.LocalName == "" {
		opts.LocalName = "Tú"
	}
	if opts.RosterCap <= 0 {
		opts.RosterCap = 10
	}
	if opts.Timings.CallGrace <= 0 {
		opts.Timings.CallGrace = 1200 * time.Millisecond
	}
	if opts.Timings.LeaveDelay <= 0 {
		opts.Timings.LeaveDelay = 3 * time.Second
	}
	c := &Coordinator{
		opts:   opts,
		logger: log.With().Str("module", "coord").Logger(),
		chat:   chat,
		voice:  voice,
		neg:    neg,
		media:  media,
		meta:   meta,
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
		ui:     make(chan UIEvent, 64),
		ctx:    context.Background(),
	}
	c.wireChat()
	c.wireVoice()
	go c.run()
	return c
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.done:
			return
		}
	}
}

// post queues fn for the consumer loop; after teardown it is a no-op.
func (c *Coordinator) post(fn func()) {
	if c.torn.Load() {
		return
	}
	select {
	case c.tasks <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { c.post(fn) })
}

// Start begins the session. Missing inputs make it a silent no-op; callers
// must pre-validate.
func (c *Coordinator) Start(ctx context.Context, sessionID domain.SessionID, identity domain.Identity, cred domain.Credential) {
	if c.torn.Load() {
		return
	}
	if sessionID == "" || identity.ID == "" || cred == "" {
		c.logger.Debug().Msg("start with missing inputs, ignored")
		return
	}

	meta, err := c.meta.Fetch(ctx, sessionID)
	if err != nil {
		// Ownership stays false; the session is still joinable.
		c.logger.Warn().Err(err).Str("session", string(sessionID)).Msg("metadata fetch failed")
	}
	owner := err == nil && meta.CreatorID == identity.ID
	alreadyEnded := err == nil && meta.Status == domain.SessionEnded

	c.post(func() {
		c.ctx = ctx
		c.sessionID = sessionID
		c.identity = identity
		c.owner = owner
		c.roster = core.NewRoster(c.opts.RosterCap, identity.ID, c.opts.LocalName)
		c.transcript = core.NewTranscript()
		c.started = true
		c.logger.Info().
			Str("session", string(sessionID)).
			Str("identity", identity.ID).
			Bool("owner", owner).
			Msg("session started")
		c.emitRoster()

		if alreadyEnded {
			c.ended = true
			c.endedFlag.Store(true)
			c.notify("La reunión ya ha finalizado.")
			c.after(c.opts.Timings.LeaveDelay, func() {
				c.release()
				c.navigate()
			})
		}
	})
	if alreadyEnded {
		return
	}

	go func() { _ = c.chat.Connect(ctx) }()
	go func() { _ = c.voice.Connect(ctx) }()
	c.neg.Open(domain.PeerID(identity.ID))
}

// Events is the stream the UI renders from.
func (c *Coordinator) Events() <-chan UIEvent {
	return c.ui
}

func (c *Coordinator) Ended() bool {
	return c.endedFlag.Load()
}

func (c *Coordinator) RosterSnapshot() []domain.Participant {
	if r := c.rosterRef(); r != nil {
		return r.Snapshot()
	}
	return nil
}

func (c *Coordinator) TranscriptSnapshot() []domain.ChatMessage {
	if t := c.transcriptRef(); t != nil {
		return t.Snapshot()
	}
	return nil
}

// rosterRef fetches the loop-owned roster pointer through the loop itself,
// so outside readers never race its initialization.
func (c *Coordinator) rosterRef() *core.Roster {
	out := make(chan *core.Roster, 1)
	c.post(func() { out <- c.roster })
	select {
	case r := <-out:
		return r
	case <-c.done:
		return nil
	}
}

func (c *Coordinator) transcriptRef() *core.Transcript {
	out := make(chan *core.Transcript, 1)
	c.post(func() { out <- c.transcript })
	select {
	case t := <-out:
		return t
	case <-c.done:
		return nil
	}
}

func (c *Coordinator) emit(ev UIEvent) {
	select {
	case c.ui <- ev:
	default:
		c.logger.Warn().Int("kind", int(ev.Kind)).Msg("ui event dropped")
	}
}

func (c *Coordinator) emitRoster() {
	c.emit(UIEvent{Kind: UIRoster, Roster: c.roster.Snapshot()})
}

func (c *Coordinator) notify(text string) {
	c.emit(UIEvent{Kind: UINotice, Text: text})
}

// navigate fires the navigate-away event at most once.
func (c *Coordinator) navigate() {
	if c.navigated {
		return
	}
	c.navigated = true
	c.emit(UIEvent{Kind: UINavigate})
}

// release tears down every owned resource. Order does not matter; each
// component's teardown is idempotent.
func (c *Coordinator) release() {
	c.media.Stop()
	c.neg.Destroy()
	c.chat.Disconnect()
	c.voice.Disconnect()
}

// Close is the unconditional teardown for UI unmount. Idempotent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.torn.Store(true)
		c.endedFlag.Store(true)
		close(c.done)
		c.release()
		c.logger.Info().Msg("coordinator closed")
	})
}
