package room

import "errors"

// Orchestration errors. All are recoverable results reported to the
// caller; none should ever take the process down.
var (
	// ErrRoomNotFound means no room exists under the given id.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull means the room has no free seat.
	ErrRoomFull = errors.New("room is full")

	// ErrNotHost means an operation reserved for the host was attempted
	// by another member.
	ErrNotHost = errors.New("only the host can do that")

	// ErrNotMember means the caller has no seat in the room.
	ErrNotMember = errors.New("not a member of this room")

	// ErrWrongStatus means the room is not in a status that allows the
	// operation, e.g. joining a room that is already playing.
	ErrWrongStatus = errors.New("room status does not allow this")

	// ErrNotEnoughPlayers means a match start was attempted below the
	// seat minimum.
	ErrNotEnoughPlayers = errors.New("not enough players to start")

	// ErrNotReady means a match start was attempted while a human seat
	// had not readied up.
	ErrNotReady = errors.New("not all players are ready")

	// ErrConflict means the room lock could not be acquired within the
	// bounded wait. The caller should retry.
	ErrConflict = errors.New("room is busy, try again")
)
