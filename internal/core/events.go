package core

import "github.com/mcastano/reunion/internal/domain"

// Wire event names. Every frame on a signaling channel is an envelope
// {"type": <name>, "data": <payload>}; the chat and voice channels share
// the envelope format and differ only in vocabulary.
const (
	// Chat channel, inbound.
	EvRoomJoined   = "room_joined"
	EvMessage      = "message"
	EvRoster       = "roster"
	EvMemberJoined = "member_joined"
	EvMemberLeft   = "member_left"
	EvSessionEnded = "session_ended"
	EvError        = "error"

	// Chat channel, outbound.
	EvJoinRoom    = "join_room"
	EvSendMessage = "send_message"
	EvEndSession  = "end_session"

	// Voice channel, inbound.
	EvVoiceJoined = "voice_joined"
	EvPeerJoined  = "peer_joined"
	EvPeerLeft    = "peer_left"
	EvVoiceError  = "voice_error"

	// Voice channel, outbound.
	EvJoinVoice  = "join_voice"
	EvLeaveVoice = "leave_voice"
)

type RoomJoinedEvent struct {
	Room string `json:"room"`
}

type MessageEvent struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type RosterEvent struct {
	Members []domain.Participant `json:"members"`
}

type MemberEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SessionEndedEvent struct {
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

type VoiceJoinedEvent struct {
	Peers []string `json:"peers"`
}

type PeerEvent struct {
	Peer string `json:"peer"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type SendMessagePayload struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type EndSessionPayload struct {
	Reason string `json:"reason"`
}

type JoinVoicePayload struct {
	Room string `json:"room"`
	Peer string `json:"peer"`
}

// Rendezvous relay message. OPEN confirms the addressable identity;
// offer/answer/candidate are forwarded between peers by Dst.
const (
	RvOpen      = "open"
	RvOffer     = "offer"
	RvAnswer    = "answer"
	RvCandidate = "candidate"
	RvError     = "error"
)

type RendezvousMsg struct {
	Type          string `json:"type"`
	ID            string `json:"id,omitempty"`
	Src           string `json:"src,omitempty"`
	Dst           string `json:"dst,omitempty"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	Error         string `json:"error,omitempty"`
}
