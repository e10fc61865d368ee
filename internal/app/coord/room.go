package coord

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

// wireChat registers the chat channel handlers. Each handler runs on the
// channel's read loop and immediately posts onto the coordinator loop, so
// arrival order is preserved.
func (c *Coordinator) wireChat() {
	c.chat.OnConnect(func(reconnect bool) {
		c.post(func() { c.chatConnected(reconnect) })
	})
	c.chat.OnDown(func(err error) {
		c.post(func() {
			c.logger.Error().Err(err).Msg("chat channel down")
			c.notify("El chat no está disponible.")
		})
	})

	c.chat.On(core.EvRoster, func(data json.RawMessage) {
		var ev core.RosterEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error().Err(err).Msg("bad roster payload")
			return
		}
		c.post(func() {
			if !c.started || c.ended {
				return
			}
			c.roster.Replace(ev.Members)
			c.emitRoster()
		})
	})

	c.chat.On(core.EvMemberJoined, func(data json.RawMessage) {
		var ev core.MemberEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			if !c.started || c.ended {
				return
			}
			if c.roster.Add(domain.NewParticipant(ev.ID, ev.Name)) {
				c.emitRoster()
			}
		})
	})

	c.chat.On(core.EvMemberLeft, func(data json.RawMessage) {
		var ev core.MemberEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			if !c.started || c.ended {
				return
			}
			if c.roster.Remove(ev.ID) {
				c.emitRoster()
			}
		})
	})

	c.chat.On(core.EvMessage, func(data json.RawMessage) {
		var ev core.MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() {
			if !c.started || c.ended {
				return
			}
			msg := c.transcript.Append(ev.Author, ev.Text)
			c.emit(UIEvent{Kind: UIMessage, Message: msg})
		})
	})

	c.chat.On(core.EvSessionEnded, func(data json.RawMessage) {
		var ev core.SessionEndedEvent
		_ = json.Unmarshal(data, &ev)
		c.post(func() { c.sessionEnded(ev.Reason) })
	})

	c.chat.On(core.EvError, func(data json.RawMessage) {
		var ev core.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.post(func() { c.notify(ev.Error) })
	})
}

// chatConnected emits join-room exactly once per connection lifetime. The
// guard resets only on reconnect, so a spurious duplicate connect event
// cannot double-join.
func (c *Coordinator) chatConnected(reconnect bool) {
	if !c.started || c.ended {
		return
	}
	if reconnect {
		c.joined = false
	}
	if c.joined {
		return
	}
	c.joined = true
	_ = c.chat.Emit(core.EvJoinRoom, core.JoinRoomPayload{
		Room: string(c.sessionID),
		Name: c.identity.Name,
	})
	c.logger.Info().Bool("reconnect", reconnect).Msg("joined chat room")
}

// SendMessage appends an optimistic local entry and emits the outbound
// frame without waiting for a server echo. Empty text, an ended session,
// or a down channel make it a no-op.
func (c *Coordinator) SendMessage(text string) {
	c.post(func() {
		if !c.started || c.ended || strings.TrimSpace(text) == "" {
			return
		}
		err := c.chat.Emit(core.EvSendMessage, core.SendMessagePayload{
			Author: c.opts.LocalName,
			Text:   text,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("chat send failed")
			return
		}
		msg := c.transcript.Append(c.opts.LocalName, text)
		c.emit(UIEvent{Kind: UIMessage, Message: msg})
	})
}

// sessionEnded handles remote termination: a normal terminal transition,
// not an error.
func (c *Coordinator) sessionEnded(reason string) {
	if !c.started || c.ended {
		return
	}
	c.ended = true
	c.endedFlag.Store(true)
	if reason == "" {
		reason = "La reunión ha finalizado."
	}
	c.notify(reason)
	c.logger.Info().Str("reason", reason).Msg("session ended remotely")
	c.after(c.opts.Timings.LeaveDelay, func() {
		c.release()
		c.navigate()
	})
}

// Hangup terminates the session locally. Only the owner touches the
// metadata service and notifies peers; everyone leaves the voice room and
// releases local resources.
func (c *Coordinator) Hangup() {
	c.post(func() {
		if !c.started || c.navigated {
			return
		}
		if c.owner {
			// The metadata call can take seconds; it must not stall the
			// loop, and its outcome changes nothing locally.
			go func(id domain.SessionID) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := c.meta.End(ctx, id); err != nil {
					c.logger.Error().Err(err).Msg("session end call failed")
				}
			}(c.sessionID)
			_ = c.chat.Emit(core.EvEndSession, core.EndSessionPayload{
				Reason: "La reunión ha finalizado.",
			})
		}
		_ = c.voice.Emit(core.EvLeaveVoice, core.JoinVoicePayload{
			Room: string(c.sessionID),
			Peer: string(c.peer),
		})
		c.ended = true
		c.endedFlag.Store(true)
		c.roster.Clear()
		c.transcript.Clear()
		c.release()
		c.navigate()
		c.logger.Info().Bool("owner", c.owner).Msg("hangup")
	})
}
