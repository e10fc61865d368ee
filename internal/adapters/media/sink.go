package media

import (
	"context"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/domain"
)

// Sink drains RTP from a remote track into a playback writer. One sink
// goroutine runs per live call; it exits when the track or context dies.
type Sink struct {
	w io.Writer
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Play blocks reading the track until ctx is done or the read fails.
func (s *Sink) Play(ctx context.Context, peer domain.PeerID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "media.sink").
		Str("peer", string(peer)).
		Str("kind", track.Kind().String()).
		Logger()
	logger.Info().Msg("sink started")

	var lastSeq uint16
	var seen bool
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sink ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("sink read RTP stopped")
			return
		}
		if seen && pkt.SequenceNumber == lastSeq {
			continue // retransmitted duplicate
		}
		lastSeq, seen = pkt.SequenceNumber, true
		if err := s.writePacket(pkt); err != nil {
			logger.Error().Err(err).Msg("sink write error")
			return
		}
	}
}

// writePacket forwards the payload to the playback writer, skipping
// padding-only packets.
func (s *Sink) writePacket(pkt *rtp.Packet) error {
	if s.w == nil || len(pkt.Payload) == 0 {
		return nil
	}
	_, err := s.w.Write(pkt.Payload)
	return err
}
