package signald

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
)

// handleRendezvous relays negotiation frames between peers. The peer id
// comes from the query string; a confirmation frame echoes it back once
// the id is bound, and every relayed frame gets its Src stamped by the
// server so a peer cannot spoof another.
func (d *Daemon) handleRendezvous(ctx context.Context, c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.String(400, "missing id")
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signald.rv").Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)
	go conn.writePump(ctx)

	if !d.reg.BindRendezvous(id, conn) {
		log.Warn().Str("module", "signald.rv").Str("id", id).Msg("id taken")
		d.sendRv(conn, core.RendezvousMsg{Type: core.RvError, Error: "id-taken"})
		cancel()
		conn.Close()
		return
	}
	log.Info().Str("module", "signald.rv").Str("id", id).Msg("peer bound")
	d.sendRv(conn, core.RendezvousMsg{Type: core.RvOpen, ID: id})

	go func() {
		defer func() {
			cancel()
			d.reg.UnbindRendezvous(id)
			conn.Close()
			log.Info().Str("module", "signald.rv").Str("id", id).Msg("peer gone")
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			d.relayRv(id, conn, data)
		}
	}()
}

func (d *Daemon) relayRv(src string, conn *wsConn, data []byte) {
	var msg core.RendezvousMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signald.rv").Msg("bad json")
		return
	}
	switch msg.Type {
	case core.RvOffer, core.RvAnswer, core.RvCandidate, core.RvError:
	default:
		log.Warn().Str("module", "signald.rv").Str("type", msg.Type).Msg("unknown frame")
		return
	}
	if msg.Dst == "" {
		return
	}
	dst, ok := d.reg.RendezvousConn(msg.Dst)
	if !ok {
		d.sendRv(conn, core.RendezvousMsg{Type: core.RvError, Src: msg.Dst, Error: "peer-unavailable"})
		return
	}
	msg.Src = src
	d.sendRv(dst, msg)
}

func (d *Daemon) sendRv(conn *wsConn, msg core.RendezvousMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signald.rv").Msg("send dropped")
	}
}
