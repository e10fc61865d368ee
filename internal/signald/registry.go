package signald

import (
	"sync"

	"github.com/mcastano/reunion/internal/domain"
)

type chatMember struct {
	conn *wsConn
	id   string
	name string
}

type sessionRecord struct {
	CreatorID string
	Status    domain.SessionStatus
}

// Registry holds all live state of the daemon: chat rooms, voice rooms,
// rendezvous peers and session metadata. Everything is process local.
type Registry struct {
	mu sync.RWMutex

	chatRooms  map[string]map[string]*chatMember // room -> member id
	voiceRooms map[string]map[string]*wsConn     // room -> peer id
	rvPeers    map[string]*wsConn                // peer id
	sessions   map[string]*sessionRecord
}

func NewRegistry() *Registry {
	return &Registry{
		chatRooms:  make(map[string]map[string]*chatMember),
		voiceRooms: make(map[string]map[string]*wsConn),
		rvPeers:    make(map[string]*wsConn),
		sessions:   make(map[string]*sessionRecord),
	}
}

func (r *Registry) JoinChat(room, id, name string, conn *wsConn) []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.chatRooms[room]
	if !ok {
		members = make(map[string]*chatMember)
		r.chatRooms[room] = members
	}
	members[id] = &chatMember{conn: conn, id: id, name: name}
	out := make([]domain.Participant, 0, len(members))
	for _, m := range members {
		out = append(out, domain.Participant{ID: m.id, DisplayName: m.name})
	}
	return out
}

func (r *Registry) LeaveChat(room, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.chatRooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.chatRooms, room)
		}
	}
}

// ChatConns snapshots every connection in a room, optionally skipping one
// member.
func (r *Registry) ChatConns(room, skip string) []*wsConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*wsConn
	for id, m := range r.chatRooms[room] {
		if id == skip {
			continue
		}
		out = append(out, m.conn)
	}
	return out
}

func (r *Registry) JoinVoice(room, peer string, conn *wsConn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.voiceRooms[room]
	if !ok {
		peers = make(map[string]*wsConn)
		r.voiceRooms[room] = peers
	}
	others := make([]string, 0, len(peers))
	for id := range peers {
		if id != peer {
			others = append(others, id)
		}
	}
	peers[peer] = conn
	return others
}

func (r *Registry) LeaveVoice(room, peer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.voiceRooms[room]
	if !ok {
		return false
	}
	if _, ok := peers[peer]; !ok {
		return false
	}
	delete(peers, peer)
	if len(peers) == 0 {
		delete(r.voiceRooms, room)
	}
	return true
}

func (r *Registry) VoiceConns(room, skip string) []*wsConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*wsConn
	for id, conn := range r.voiceRooms[room] {
		if id == skip {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// BindRendezvous claims a peer id. Returns false when the id is taken.
func (r *Registry) BindRendezvous(id string, conn *wsConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rvPeers[id]; ok {
		return false
	}
	r.rvPeers[id] = conn
	return true
}

func (r *Registry) UnbindRendezvous(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rvPeers, id)
}

func (r *Registry) RendezvousConn(id string) (*wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.rvPeers[id]
	return conn, ok
}

func (r *Registry) CreateSession(id, creator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionRecord{CreatorID: creator, Status: domain.SessionActive}
}

func (r *Registry) Session(id string) (domain.SessionMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return domain.SessionMeta{}, false
	}
	return domain.SessionMeta{CreatorID: rec.CreatorID, Status: rec.Status}, true
}

func (r *Registry) EndSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return false
	}
	rec.Status = domain.SessionEnded
	return true
}
