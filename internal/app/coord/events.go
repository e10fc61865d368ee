package coord

import "github.com/mcastano/reunion/internal/domain"

// UIEventKind discriminates notifications handed to the UI layer. The
// coordinator never talks to the UI directly; everything it wants rendered
// goes through one event stream.
type UIEventKind int

const (
	// UIRoster carries a fresh roster snapshot.
	UIRoster UIEventKind = iota
	// UIMessage carries one appended transcript entry.
	UIMessage
	// UINotice carries a user-facing message string.
	UINotice
	// UIToggles carries the effective camera/mic state.
	UIToggles
	// UINavigate tells the UI to leave the call screen. Emitted at most
	// once per session.
	UINavigate
)

type UIEvent struct {
	Kind     UIEventKind
	Roster   []domain.Participant
	Message  domain.ChatMessage
	Text     string
	CameraOn bool
	MicOn    bool
}
