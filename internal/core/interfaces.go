package core

import (
	"context"
	"encoding/json"

	"github.com/mcastano/reunion/internal/domain"
)

// Channel is one persistent signaling connection. The chat and voice
// channels are two instances of the same contract, distinguished only by
// endpoint and event vocabulary. Handlers for a given channel run in
// arrival order on that channel's read loop; no ordering holds between
// two channels.
type Channel interface {
	// Connect dials the endpoint, authenticating with the bearer
	// credential. Transport drops are retried automatically against a
	// fixed budget; when the budget is exhausted the OnDown callback
	// fires with ErrChannelDown.
	Connect(ctx context.Context) error
	// Emit is fire-and-forget; the protocol requires no acknowledgment.
	Emit(event string, payload any) error
	On(event string, fn func(data json.RawMessage))
	// OnConnect fires after every successfully established connection,
	// with reconnect=true for all but the first.
	OnConnect(fn func(reconnect bool))
	OnDown(fn func(err error))
	// Disconnect is idempotent.
	Disconnect()
}

// MediaController owns the local device stream. Exactly one component may
// start or stop its tracks; everyone else borrows a read-only reference.
type MediaController interface {
	// Ensure is idempotent: it acquires a stream only when one is needed
	// and missing, and otherwise just reflects the desired toggles onto
	// existing tracks' enabled flags.
	Ensure(ctx context.Context, video, audio bool) error
	Stream() *MediaStream
	CameraOn() bool
	MicOn() bool
	// Stop releases all tracks unconditionally.
	Stop()
}

// DeviceOpener acquires a fresh device stream. Implementations map
// platform access refusal to ErrPermissionDenied.
type DeviceOpener interface {
	Open(ctx context.Context, video, audio bool) (*MediaStream, error)
}

// Negotiator owns the rendezvous identity and the per-peer call map.
// It is the only component allowed to close or remove call entries.
type Negotiator interface {
	// Open begins negotiation with base as the addressable identity.
	// On failure it retries forever with a suffixed identity.
	Open(base domain.PeerID)
	// OnReady fires on every Connecting -> Connected transition with the
	// assigned identity; calls cannot be placed before it.
	OnReady(fn func(assigned domain.PeerID))
	// Call places an outbound call. No-op on self-call, absent stream,
	// or an already tracked peer.
	Call(remote domain.PeerID, stream *MediaStream)
	// CloseCall is idempotent if the peer has no tracked call.
	CloseCall(remote domain.PeerID)
	CloseAll()
	// Destroy closes every tracked call and releases the identity.
	Destroy()
	Calls() []domain.PeerID
	Ready() bool
}

// Metadata is the out-of-scope session metadata service.
type Metadata interface {
	Fetch(ctx context.Context, id domain.SessionID) (domain.SessionMeta, error)
	End(ctx context.Context, id domain.SessionID) error
}

// RendezvousConn is one connection to the peer rendezvous service.
type RendezvousConn interface {
	Send(msg RendezvousMsg) error
	// Recv blocks until a message arrives or the connection dies.
	Recv() (RendezvousMsg, error)
	Close() error
}

type RendezvousDialer func(ctx context.Context, id domain.PeerID) (RendezvousConn, error)
