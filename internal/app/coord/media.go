package coord

import (
	"encoding/json"
	"errors"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

// wireVoice registers the voice channel and negotiator handlers. Calls to
// freshly joined peers are deferred by CallGrace so the remote side has
// its media in place before the offer lands.
func (c *Coordinator) wireVoice() {
	c.neg.OnReady(func(assigned domain.PeerID) {
		c.post(func() {
			if !c.started || c.ended {
				return
			}
			c.peer = assigned
			c.joinVoice()
		})
	})

	c.voice.OnConnect(func(reconnect bool) {
		c.post(func() {
			if !c.started || c.ended || c.peer == "" {
				return
			}
			// The negotiated identity may predate the connection; in that
			// case the OnReady announcement was rejected while the channel
			// was down, so every established connection re-announces.
			c.joinVoice()
		})
	})
	c.voice.OnDown(func(err error) {
		c.post(func() {
			c.logger.Error().Err(err).Msg("voice channel down")
		})
	})

	c.voice.On(core.EvVoiceJoined, func(data json.RawMessage) {
		var ev core.VoiceJoinedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			c.after(c.opts.Timings.CallGrace, func() {
				c.placeCalls(ev.Peers)
			})
		})
	})

	c.voice.On(core.EvPeerJoined, func(data json.RawMessage) {
		var ev core.PeerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			c.after(c.opts.Timings.CallGrace, func() {
				c.placeCalls([]string{ev.Peer})
			})
		})
	})

	c.voice.On(core.EvPeerLeft, func(data json.RawMessage) {
		var ev core.PeerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			c.neg.CloseCall(domain.PeerID(ev.Peer))
		})
	})

	c.voice.On(core.EvVoiceError, func(data json.RawMessage) {
		var ev core.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			c.logger.Warn().Str("error", ev.Error).Msg("voice room error")
		})
	})
}

// joinVoice announces the negotiated identity to the voice room. Safe to
// re-emit after a reconnect; the room treats it as idempotent.
func (c *Coordinator) joinVoice() {
	err := c.voice.Emit(core.EvJoinVoice, core.JoinVoicePayload{
		Room: string(c.sessionID),
		Peer: string(c.peer),
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("peer", string(c.peer)).Msg("voice join deferred until channel is up")
		return
	}
	c.logger.Info().Str("peer", string(c.peer)).Msg("joined voice room")
}

// SetCamera turns local video on or off, acquiring or upgrading the
// device stream as needed.
func (c *Coordinator) SetCamera(on bool) {
	c.post(func() { c.applyToggles(on, c.micOn) })
}

// SetMic turns local audio on or off. Turning it on announces this peer
// to the voice room; turning it off hangs up every active call, since an
// audio-less call carries nothing.
func (c *Coordinator) SetMic(on bool) {
	c.post(func() { c.applyToggles(c.camOn, on) })
}

// applyToggles starts device reconciliation off the loop; acquisition can
// block on hardware for a long time and other events must keep flowing
// meanwhile. The continuation is posted back and dropped when a newer
// toggle request superseded this one.
func (c *Coordinator) applyToggles(video, audio bool) {
	if !c.started || c.ended {
		return
	}
	wasMicOn := c.micOn
	c.togglesGen++
	gen := c.togglesGen
	ctx := c.ctx
	go func() {
		err := c.media.Ensure(ctx, video, audio)
		c.post(func() {
			if gen != c.togglesGen || c.ended {
				return
			}
			c.togglesApplied(video, audio, wasMicOn, err)
		})
	}()
}

func (c *Coordinator) togglesApplied(video, audio, wasMicOn bool, err error) {
	if err != nil {
		c.camOn, c.micOn = false, false
		if errors.Is(err, core.ErrPermissionDenied) {
			c.notify("Permiso de cámara o micrófono denegado.")
		} else {
			c.notify("No se pudo acceder a los dispositivos.")
		}
		c.logger.Error().Err(err).Msg("device toggle failed")
		c.emit(UIEvent{Kind: UIToggles, CameraOn: false, MicOn: false})
		return
	}
	c.camOn, c.micOn = video, audio
	c.emit(UIEvent{Kind: UIToggles, CameraOn: video, MicOn: audio})

	if audio && !wasMicOn && c.peer != "" {
		c.joinVoice()
	}
	if !audio && wasMicOn {
		c.neg.CloseAll()
	}
}

// placeCalls dials each listed peer. Without a live microphone there is
// nothing to send, so the whole batch is skipped; the remote side calls
// us once our audio comes up.
func (c *Coordinator) placeCalls(ids []string) {
	if !c.started || c.ended {
		return
	}
	stream := c.media.Stream()
	if stream == nil || !c.media.MicOn() {
		return
	}
	for _, id := range ids {
		c.neg.Call(domain.PeerID(id), stream)
	}
}
