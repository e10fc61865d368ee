package signald

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcastano/reunion/internal/domain"
)

func TestChatMembership(t *testing.T) {
	r := NewRegistry()

	members := r.JoinChat("room-1", "a", "Ana", nil)
	assert.Len(t, members, 1)

	members = r.JoinChat("room-1", "b", "Luis", nil)
	assert.Len(t, members, 2)

	assert.Len(t, r.ChatConns("room-1", "a"), 1)
	assert.Len(t, r.ChatConns("room-1", ""), 2)

	r.LeaveChat("room-1", "a")
	assert.Len(t, r.ChatConns("room-1", ""), 1)

	r.LeaveChat("room-1", "b")
	assert.Empty(t, r.ChatConns("room-1", ""))
}

func TestVoiceMembership(t *testing.T) {
	r := NewRegistry()

	others := r.JoinVoice("room-1", "p1", nil)
	assert.Empty(t, others)

	others = r.JoinVoice("room-1", "p2", nil)
	assert.Equal(t, []string{"p1"}, others)

	// Re-announcing the same peer does not list itself.
	others = r.JoinVoice("room-1", "p2", nil)
	assert.Equal(t, []string{"p1"}, others)

	assert.True(t, r.LeaveVoice("room-1", "p1"))
	assert.False(t, r.LeaveVoice("room-1", "p1"))
	assert.False(t, r.LeaveVoice("room-2", "p2"))
}

func TestRendezvousBinding(t *testing.T) {
	r := NewRegistry()
	c := newWSConn(nil)

	require.True(t, r.BindRendezvous("peer-1", c))
	assert.False(t, r.BindRendezvous("peer-1", c))

	got, ok := r.RendezvousConn("peer-1")
	require.True(t, ok)
	assert.Same(t, c, got)

	r.UnbindRendezvous("peer-1")
	_, ok = r.RendezvousConn("peer-1")
	assert.False(t, ok)
}

func TestSessionLifecycle(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Session("s1")
	assert.False(t, ok)
	assert.False(t, r.EndSession("s1"))

	r.CreateSession("s1", "creator-1")
	meta, ok := r.Session("s1")
	require.True(t, ok)
	assert.Equal(t, "creator-1", meta.CreatorID)
	assert.Equal(t, domain.SessionActive, meta.Status)

	require.True(t, r.EndSession("s1"))
	meta, _ = r.Session("s1")
	assert.Equal(t, domain.SessionEnded, meta.Status)
}
