package room

import (
	"sync"

	"github.com/dln/unorooms/internal/uno"
)

// Snapshot is a full serialisation of a room and, when a match is live,
// its game state. Snapshots are deep copies built under the room lock and
// safe to hold indefinitely.
type Snapshot struct {
	Room Info           `json:"room"`
	Game *uno.GameState `json:"gameState,omitempty"`
}

// Info is the serialisable view of room metadata.
type Info struct {
	ID         string       `json:"roomId"`
	HostID     string       `json:"hostId"`
	Status     Status       `json:"status"`
	Mode       string       `json:"mode,omitempty"`
	MaxPlayers int          `json:"maxPlayers"`
	Seats      []RoomPlayer `json:"players"`
	Settings   Settings     `json:"settings"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this loses intermediate snapshots rather than
// slowing the room down.
const subscriberBuffer = 16

// Subscriber receives room snapshots. Closing it is idempotent and has no
// effect on the room.
type Subscriber struct {
	ch   chan Snapshot
	room *Room
	once sync.Once
}

// C returns the snapshot channel. It is closed when the subscriber is
// closed or the room is torn down.
func (s *Subscriber) C() <-chan Snapshot {
	return s.ch
}

// Close detaches the subscriber from the room.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.room.subMu.Lock()
		delete(s.room.subs, s)
		s.room.subMu.Unlock()
		close(s.ch)
	})
}

// Subscribe attaches a new snapshot subscriber to the room.
func (r *Room) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Snapshot, subscriberBuffer), room: r}
	r.subMu.Lock()
	r.subs[sub] = struct{}{}
	r.subMu.Unlock()
	return sub
}

// publish fans a snapshot out to every subscriber without blocking. Must
// be called after the room lock is released; a full subscriber simply
// misses this snapshot.
func (r *Room) publish(snap Snapshot) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for sub := range r.subs {
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

// closeSubscribers detaches and closes every subscriber, used on room
// teardown.
func (r *Room) closeSubscribers() {
	r.subMu.Lock()
	subs := make([]*Subscriber, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subMu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
