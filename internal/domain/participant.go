package domain

// Participant is one member of a session roster.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Local       bool   `json:"-"`
}

func NewParticipant(id, name string) Participant {
	return Participant{ID: id, DisplayName: name}
}
