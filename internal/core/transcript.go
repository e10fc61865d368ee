package core

import (
	"sync"

	"github.com/mcastano/reunion/internal/domain"
)

// Transcript is the append-only chat log of one session. Sequence numbers
// come from a monotonic counter so an optimistic local append and a
// concurrently arriving remote message can never collide.
type Transcript struct {
	mu   sync.RWMutex
	seq  uint64
	msgs []domain.ChatMessage
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(author, text string) domain.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	msg := domain.ChatMessage{Seq: t.seq, Author: author, Text: text}
	t.msgs = append(t.msgs, msg)
	return msg
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

func (t *Transcript) Snapshot() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Clear drops all entries; the counter keeps running so old sequence
// numbers are never reused within a process.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = nil
}
