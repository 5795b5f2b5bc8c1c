package room

import (
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/dln/unorooms/internal/uno"
)

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// RoomPlayer is one seat's occupant at the room level, longer-lived than
// any single match.
type RoomPlayer struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsReady     bool   `json:"isReady"`
	IsBot       bool   `json:"isBot"`
}

// Settings are the host-chosen room options.
type Settings struct {
	EnableBots    bool          `json:"enableBots"`
	BotCount      int           `json:"botCount"`
	TurnTimeLimit time.Duration `json:"turnTimeLimit"`
}

// Room is one independent unit of concurrency: all authority over its
// match lives here, serialised through a single lock token. There is no
// cross-room shared state.
type Room struct {
	ID         string
	HostID     string
	Status     Status
	Mode       string
	MaxPlayers int
	Seats      []RoomPlayer
	Settings   Settings
	CreatedAt  time.Time
	FinishedAt time.Time

	// Game is non-nil only while Status is playing or finished; it is
	// only touched while holding the lock token.
	Game       *uno.GameState
	seatByUser map[string]string

	// lock is a capacity-1 token channel: try-acquire with bounded wait,
	// instead of queueing callers indefinitely.
	lock chan struct{}

	// timerGen invalidates outstanding timer callbacks. Bumped under the
	// lock on every reschedule and on teardown; a callback that observes
	// a stale generation aborts silently.
	timerGen  uint64
	turnTimer *quartz.Timer
	botTimer  *quartz.Timer

	subMu sync.Mutex
	subs  map[*Subscriber]struct{}
}

func newRoom(id string, host RoomPlayer, mode string, maxPlayers int, settings Settings, now time.Time) *Room {
	return &Room{
		ID:         id,
		HostID:     host.UserID,
		Status:     StatusWaiting,
		Mode:       mode,
		MaxPlayers: maxPlayers,
		Seats:      []RoomPlayer{host},
		Settings:   settings,
		CreatedAt:  now,
		seatByUser: make(map[string]string),
		lock:       make(chan struct{}, 1),
		subs:       make(map[*Subscriber]struct{}),
	}
}

// tryAcquire attempts to take the room's lock token, waiting at most wait
// on contention. Returns false if the token could not be taken.
// tryLock grabs the room token without waiting.
func (r *Room) tryLock() bool {
	select {
	case r.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Room) tryAcquire(clock quartz.Clock, wait time.Duration) bool {
	if r.tryLock() {
		return true
	}
	if wait <= 0 {
		return false
	}
	timer := clock.NewTimer(wait)
	defer timer.Stop()
	select {
	case r.lock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// release returns the lock token.
func (r *Room) release() {
	<-r.lock
}

// stopTimersLocked cancels both timers and invalidates any callback that
// is already in flight. Caller must hold the lock.
func (r *Room) stopTimersLocked() {
	r.timerGen++
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.botTimer != nil {
		r.botTimer.Stop()
		r.botTimer = nil
	}
}

// seatIndex finds the seat slice index for a user, or -1.
func (r *Room) seatIndex(userID string) int {
	return slices.IndexFunc(r.Seats, func(p RoomPlayer) bool { return p.UserID == userID })
}

// seatIDFor resolves a user to their match seat id via the mapping
// assigned at match start.
func (r *Room) seatIDFor(userID string) (string, bool) {
	id, ok := r.seatByUser[userID]
	return id, ok
}

// humanCount counts occupied non-bot seats.
func (r *Room) humanCount() int {
	n := 0
	for _, p := range r.Seats {
		if !p.IsBot {
			n++
		}
	}
	return n
}

// transferHostLocked reassigns the host role after the host leaves:
// first to the next non-bot seat, else to the first remaining seat.
func (r *Room) transferHostLocked() {
	for _, p := range r.Seats {
		if !p.IsBot {
			r.HostID = p.UserID
			return
		}
	}
	if len(r.Seats) > 0 {
		r.HostID = r.Seats[0].UserID
	} else {
		r.HostID = ""
	}
}

// info builds the serialisable metadata view. Caller must hold the lock.
func (r *Room) infoLocked() Info {
	return Info{
		ID:         r.ID,
		HostID:     r.HostID,
		Status:     r.Status,
		Mode:       r.Mode,
		MaxPlayers: r.MaxPlayers,
		Seats:      slices.Clone(r.Seats),
		Settings:   r.Settings,
	}
}

// snapshotLocked builds a deep-copied snapshot. Caller must hold the lock.
func (r *Room) snapshotLocked() Snapshot {
	return Snapshot{Room: r.infoLocked(), Game: r.Game.Clone()}
}

// record builds the durable form of the room. Caller must hold the lock.
func (r *Room) recordLocked(now time.Time) *Record {
	rec := &Record{
		ID:         r.ID,
		Status:     r.Status,
		HostID:     r.HostID,
		Mode:       r.Mode,
		MaxPlayers: r.MaxPlayers,
		Seats:      slices.Clone(r.Seats),
		Settings:   r.Settings,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  now,
	}
	if r.Game != nil {
		rec.FinishedOrder = slices.Clone(r.Game.FinishedOrder)
		rec.Winner = r.Game.Winner
	}
	return rec
}
