package room

import (
	"context"
	"time"
)

// Record is the durable shape of a room: everything except the live game
// state, which exists only in orchestrator memory for the duration of a
// match. FinishedOrder and Winner are filled in on terminal transitions.
type Record struct {
	ID            string
	Status        Status
	HostID        string
	Mode          string
	MaxPlayers    int
	Seats         []RoomPlayer
	Settings      Settings
	FinishedOrder []string
	Winner        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists room metadata across process restarts. Implementations
// must tolerate repeated saves of the same id (upsert semantics).
type Store interface {
	SaveRoom(ctx context.Context, rec *Record) error
	GetRoom(ctx context.Context, id string) (*Record, error)
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context, status Status) ([]*Record, error)
}

// NopStore discards everything. Used when persistence is disabled and in
// tests that don't care about durability.
type NopStore struct{}

func (NopStore) SaveRoom(context.Context, *Record) error { return nil }

func (NopStore) GetRoom(context.Context, string) (*Record, error) { return nil, ErrRoomNotFound }

func (NopStore) DeleteRoom(context.Context, string) error { return nil }

func (NopStore) ListRooms(context.Context, Status) ([]*Record, error) { return nil, nil }
