package signald

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
)

type voiceState struct {
	conn *wsConn
	room string
	peer string
}

func (d *Daemon) handleVoice(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signald.voice").Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	st := &voiceState{conn: conn}
	go conn.writePump(ctx)
	go func() {
		defer func() {
			cancel()
			d.voiceGone(st)
			conn.Close()
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			d.handleVoiceFrame(st, data)
		}
	}()
}

func (d *Daemon) handleVoiceFrame(st *voiceState, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signald.voice").Msg("bad json")
		return
	}
	switch env.Type {
	case core.EvJoinVoice:
		d.handleJoinVoice(st, env.Data)
	case core.EvLeaveVoice:
		d.handleLeaveVoice(st, env.Data)
	default:
		log.Warn().Str("module", "signald.voice").Str("type", env.Type).Msg("unknown event")
	}
}

func (d *Daemon) handleJoinVoice(st *voiceState, data json.RawMessage) {
	var p core.JoinVoicePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" || p.Peer == "" {
		st.conn.sendEvent(core.EvVoiceError, core.ErrorEvent{Error: "bad_payload"})
		return
	}
	// Re-announcing after a reconnect is allowed; the registry overwrite
	// keeps the newest connection.
	st.room = p.Room
	st.peer = p.Peer
	others := d.reg.JoinVoice(st.room, st.peer, st.conn)
	log.Info().Str("module", "signald.voice").Str("room", st.room).Str("peer", st.peer).Msg("join")

	st.conn.sendEvent(core.EvVoiceJoined, core.VoiceJoinedEvent{Peers: others})
	for _, other := range d.reg.VoiceConns(st.room, st.peer) {
		other.sendEvent(core.EvPeerJoined, core.PeerEvent{Peer: st.peer})
	}
}

func (d *Daemon) handleLeaveVoice(st *voiceState, data json.RawMessage) {
	var p core.JoinVoicePayload
	_ = json.Unmarshal(data, &p)
	if st.room == "" || st.peer == "" {
		return
	}
	d.voiceGone(st)
	st.room, st.peer = "", ""
}

func (d *Daemon) voiceGone(st *voiceState) {
	if st.room == "" || st.peer == "" {
		return
	}
	if !d.reg.LeaveVoice(st.room, st.peer) {
		return
	}
	log.Info().Str("module", "signald.voice").Str("room", st.room).Str("peer", st.peer).Msg("left")
	for _, other := range d.reg.VoiceConns(st.room, "") {
		other.sendEvent(core.EvPeerLeft, core.PeerEvent{Peer: st.peer})
	}
}
