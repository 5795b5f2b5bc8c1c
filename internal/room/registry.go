package room

import (
	"sync"
	"time"
)

// Registry is the arena of live rooms, owned by the orchestration service
// and injected wherever rooms need resolving. Rooms are independent; the
// registry lock only guards the index itself.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Add registers a room under its id.
func (reg *Registry) Add(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[r.ID] = r
}

// Get resolves a room by id.
func (reg *Registry) Get(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Remove deletes a room from the index and reports whether it was there.
func (reg *Registry) Remove(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[id]; !ok {
		return false
	}
	delete(reg.rooms, id)
	return true
}

// Rooms returns the current set of live rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Len returns the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// expired collects finished rooms older than ttl. Room fields are only
// inspected while holding the room's own token; a room whose token is
// busy is left for the next sweep. The caller tears the result down
// outside the registry lock.
func (reg *Registry) expired(now time.Time, ttl time.Duration) []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var out []*Room
	for _, r := range reg.rooms {
		if !r.tryLock() {
			continue
		}
		stale := r.Status == StatusFinished && !r.FinishedAt.IsZero() && now.Sub(r.FinishedAt) >= ttl
		r.release()
		if stale {
			out = append(out, r)
		}
	}
	return out
}
