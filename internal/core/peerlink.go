package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/mcastano/reunion/internal/domain"
)

// PeerLink abstracts one peer connection for a single call.
type PeerLink interface {
	// Start configures internal callbacks and binds the link lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources. Idempotent.
	Close()
	IsClosed() bool
	// CreateAndSetOffer produces the local SDP for an outbound call.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer completes an outbound negotiation.
	ApplyAnswer(webrtc.SessionDescription) error
	// ApplyOfferAndCreateAnswer answers an inbound call.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local track to the underlying connection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// OnClosed sets a callback for call cleanup.
	OnClosed(func())
}

// PeerLinkFactory builds a fresh PeerLink for a call with remote.
type PeerLinkFactory func(remote domain.PeerID) (PeerLink, error)
