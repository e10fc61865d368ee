package domain

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// SessionMeta is the server-side record of a session, fetched once to
// determine ownership and to reject joining an already ended session.
type SessionMeta struct {
	CreatorID string        `json:"creator_id"`
	Status    SessionStatus `json:"status"`
}
