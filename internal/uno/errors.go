package uno

import "errors"

// Rule violations are returned as sentinel errors so callers can
// discriminate with errors.Is. The game state is never modified when one
// of these is returned.
var (
	// ErrWrongPhase means the match is not in the playing phase.
	ErrWrongPhase = errors.New("game is not in progress")

	// ErrNotYourTurn means the acting seat is not the current player.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrNotFound means an unknown seat or an out-of-range hand index.
	ErrNotFound = errors.New("not found")

	// ErrIllegalCard means the card cannot legally be played right now.
	ErrIllegalCard = errors.New("card cannot be played")
)
