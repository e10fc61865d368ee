package core

import (
	"fmt"
	"testing"

	"github.com/mcastano/reunion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterCapIncludesLocal(t *testing.T) {
	r := NewRoster(10, "me", "Tú")
	for i := 0; i < 15; i++ {
		r.Add(domain.NewParticipant(fmt.Sprintf("p%d", i), fmt.Sprintf("peer %d", i)))
	}
	assert.Equal(t, 10, r.Size())
}

func TestRosterSizeAfterNJoins(t *testing.T) {
	for _, n := range []int{0, 1, 5, 9, 10, 20} {
		r := NewRoster(10, "me", "Tú")
		for i := 0; i < n; i++ {
			r.Add(domain.NewParticipant(fmt.Sprintf("p%d", i), "x"))
		}
		want := n + 1
		if want > 10 {
			want = 10
		}
		assert.Equalf(t, want, r.Size(), "after %d joins", n)
	}
}

func TestRosterDuplicateJoinIsNoop(t *testing.T) {
	r := NewRoster(10, "me", "Tú")
	require.True(t, r.Add(domain.NewParticipant("a", "Ana")))
	assert.False(t, r.Add(domain.NewParticipant("a", "Ana")))
	assert.Equal(t, 2, r.Size())

	seen := map[string]int{}
	for _, p := range r.Snapshot() {
		seen[p.ID]++
	}
	assert.Equal(t, 1, seen["a"])
}

func TestRosterReplaceRemapsLocalName(t *testing.T) {
	r := NewRoster(10, "me", "Tú")
	r.Replace([]domain.Participant{
		{ID: "a", DisplayName: "Ana"},
		{ID: "me", DisplayName: "Marcos"},
	})
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	for _, p := range snap {
		if p.ID == "me" {
			assert.Equal(t, "Tú", p.DisplayName)
			assert.True(t, p.Local)
		}
	}
}

func TestRosterRemoveAndClear(t *testing.T) {
	r := NewRoster(10, "me", "Tú")
	r.Add(domain.NewParticipant("a", "Ana"))
	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 1, r.Size())

	r.Clear()
	assert.Equal(t, 0, r.Size())
}
