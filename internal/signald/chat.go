package signald

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

func (d *Daemon) handleChat(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signald.chat").Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	id := c.GetString("client_token")
	if id == "" {
		id = uuid.NewString()
	}
	st := &chatState{conn: conn, id: id}
	go conn.writePump(ctx)
	go func() {
		defer func() {
			cancel()
			d.chatGone(st)
			conn.Close()
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			d.handleChatFrame(st, data)
		}
	}()
}

type chatState struct {
	conn *wsConn
	room string
	id   string
	name string
}

func (d *Daemon) handleChatFrame(st *chatState, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signald.chat").Msg("bad json")
		return
	}
	switch env.Type {
	case core.EvJoinRoom:
		d.handleJoinRoom(st, env.Data)
	case core.EvSendMessage:
		d.handleSendMessage(st, env.Data)
	case core.EvEndSession:
		d.handleEndSession(st, env.Data)
	default:
		log.Warn().Str("module", "signald.chat").Str("type", env.Type).Msg("unknown event")
	}
}

func (d *Daemon) handleJoinRoom(st *chatState, data json.RawMessage) {
	var p core.JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		st.conn.sendEvent(core.EvError, core.ErrorEvent{Error: "bad_payload"})
		return
	}
	if meta, ok := d.reg.Session(p.Room); ok && meta.Status == domain.SessionEnded {
		st.conn.sendEvent(core.EvSessionEnded, core.SessionEndedEvent{Reason: "La reunión ya ha finalizado."})
		return
	}
	st.room = p.Room
	st.name = p.Name

	members := d.reg.JoinChat(st.room, st.id, st.name, st.conn)
	log.Info().Str("module", "signald.chat").Str("room", st.room).Str("id", st.id).Msg("join")

	st.conn.sendEvent(core.EvRoomJoined, core.RoomJoinedEvent{Room: st.room})
	st.conn.sendEvent(core.EvRoster, core.RosterEvent{Members: members})
	for _, other := range d.reg.ChatConns(st.room, st.id) {
		other.sendEvent(core.EvMemberJoined, core.MemberEvent{ID: st.id, Name: st.name})
	}
}

func (d *Daemon) handleSendMessage(st *chatState, data json.RawMessage) {
	if st.room == "" {
		st.conn.sendEvent(core.EvError, core.ErrorEvent{Error: "not in a room"})
		return
	}
	var p core.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Text == "" {
		return
	}
	if p.Author == "" || p.Author == "Tú" {
		p.Author = st.name
	}
	for _, other := range d.reg.ChatConns(st.room, st.id) {
		other.sendEvent(core.EvMessage, core.MessageEvent{Author: p.Author, Text: p.Text})
	}
}

func (d *Daemon) handleEndSession(st *chatState, data json.RawMessage) {
	if st.room == "" {
		return
	}
	var p core.EndSessionPayload
	_ = json.Unmarshal(data, &p)
	if p.Reason == "" {
		p.Reason = "La reunión ha finalizado."
	}
	d.reg.EndSession(st.room)
	log.Info().Str("module", "signald.chat").Str("room", st.room).Msg("session ended")
	for _, other := range d.reg.ChatConns(st.room, st.id) {
		other.sendEvent(core.EvSessionEnded, core.SessionEndedEvent{Reason: p.Reason})
	}
}

func (d *Daemon) chatGone(st *chatState) {
	if st.room == "" {
		return
	}
	d.reg.LeaveChat(st.room, st.id)
	for _, other := range d.reg.ChatConns(st.room, "") {
		other.sendEvent(core.EvMemberLeft, core.MemberEvent{ID: st.id, Name: st.name})
	}
	log.Info().Str("module", "signald.chat").Str("room", st.room).Str("id", st.id).Msg("left")
}
