package core

import (
	"sync"

	"github.com/mcastano/reunion/internal/domain"
	"github.com/rs/zerolog/log"
)

// Roster is the threadsafe participant set of one session, keyed by
// participant id. It holds at most cap members including the local one;
// duplicate joins are idempotent.
type Roster struct {
	mu        sync.RWMutex
	cap       int
	localID   string
	localName string
	order     []string
	byID      map[string]domain.Participant
}

func NewRoster(capacity int, localID, localName string) *Roster {
	r := &Roster{
		cap:       capacity,
		localID:   localID,
		localName: localName,
		byID:      make(map[string]domain.Participant),
	}
	r.byID[localID] = domain.Participant{ID: localID, DisplayName: localName, Local: true}
	r.order = append(r.order, localID)
	return r
}

// Add inserts a participant unless already present or the roster is full.
// Reports whether the roster changed.
func (r *Roster) Add(p domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; ok {
		return false
	}
	if len(r.byID) >= r.cap {
		log.Debug().Str("module", "core.roster").Str("id", p.ID).Msg("roster full, join ignored")
		return false
	}
	if p.ID == r.localID {
		p.DisplayName = r.localName
		p.Local = true
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	return true
}

// Remove deletes by id. Reports whether the roster changed.
func (r *Roster) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps in a full member list from the server, remapping the local
// participant's display name. Entries past the cap are dropped.
func (r *Roster) Replace(members []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]domain.Participant, len(members))
	r.order = r.order[:0]
	for _, p := range members {
		if _, ok := r.byID[p.ID]; ok {
			continue
		}
		if len(r.byID) >= r.cap {
			break
		}
		if p.ID == r.localID {
			p.DisplayName = r.localName
			p.Local = true
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
}

func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]domain.Participant)
	r.order = r.order[:0]
}

func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns participants in insertion order.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
