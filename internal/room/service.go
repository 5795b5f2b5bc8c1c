package room

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dln/unorooms/internal/roomid"
	"github.com/dln/unorooms/internal/uno"
)

// Identity is the authenticated caller as supplied by the (external)
// session layer: an opaque user id plus display data.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// MoveAction is one of the player-initiated match actions.
type MoveAction string

const (
	ActionPlayCard MoveAction = "playCard"
	ActionDrawCard MoveAction = "drawCard"
	ActionCallUno  MoveAction = "callUno"
)

// Move is a player's requested action for MakeMove.
type Move struct {
	Action      MoveAction
	CardIndex   int
	ChosenColor uno.Color
}

// CreateOptions configure a new room.
type CreateOptions struct {
	Mode          string
	MaxPlayers    int
	EnableBots    bool
	BotCount      int
	TurnTimeLimit time.Duration
}

// Config carries the orchestrator's tunables.
type Config struct {
	// LockWait bounds how long a caller waits for a contended room lock
	// before receiving a conflict.
	LockWait time.Duration

	// TimerRetry is how long a timer callback that lost the lock race
	// waits before trying again.
	TimerRetry time.Duration

	// BotDelay is the artificial thinking time before a bot moves.
	BotDelay time.Duration

	// DefaultTurnTime applies when a room is created without one.
	DefaultTurnTime time.Duration

	// FinishedTTL is how long finished rooms linger before the sweeper
	// collects them.
	FinishedTTL time.Duration

	// MaxPlayersLimit caps the per-room seat count.
	MaxPlayersLimit int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		LockWait:        100 * time.Millisecond,
		TimerRetry:      25 * time.Millisecond,
		BotDelay:        time.Second,
		DefaultTurnTime: 30 * time.Second,
		FinishedTTL:     5 * time.Minute,
		MaxPlayersLimit: 10,
	}
}

// Service orchestrates every live room: it owns the registry, schedules
// turn and bot timers, bridges to the persistence store and fans
// snapshots out to subscribers.
type Service struct {
	registry *Registry
	store    Store
	clock    quartz.Clock
	logger   zerolog.Logger
	config   Config

	rng   *rand.Rand
	rngMu sync.Mutex

	ids *roomid.Generator
}

// NewService wires up an orchestrator. The store may be a NopStore when
// durability is not wanted.
func NewService(logger zerolog.Logger, store Store, clock quartz.Clock, rng *rand.Rand, config Config) *Service {
	return &Service{
		registry: NewRegistry(),
		store:    store,
		clock:    clock,
		logger:   logger.With().Str("component", "rooms").Logger(),
		config:   config,
		rng:      rng,
		ids:      roomid.NewGenerator(nil),
	}
}

// Registry exposes the room index, mainly for listings and tests.
func (s *Service) Registry() *Registry {
	return s.registry
}

// withRNG runs fn with exclusive access to the service's RNG.
func (s *Service) withRNG(fn func(*rand.Rand)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	fn(s.rng)
}

// CreateRoom creates a waiting room with the caller as host. The host
// seat starts ready.
func (s *Service) CreateRoom(ctx context.Context, host Identity, opts CreateOptions) (*Snapshot, error) {
	if opts.MaxPlayers < 2 {
		opts.MaxPlayers = 4
	}
	if opts.MaxPlayers > s.config.MaxPlayersLimit {
		opts.MaxPlayers = s.config.MaxPlayersLimit
	}
	if opts.TurnTimeLimit <= 0 {
		opts.TurnTimeLimit = s.config.DefaultTurnTime
	}
	if opts.BotCount < 0 {
		opts.BotCount = 0
	}

	r := newRoom(
		s.ids.Generate(),
		RoomPlayer{UserID: host.UserID, DisplayName: host.DisplayName, AvatarURL: host.AvatarURL, IsReady: true},
		opts.Mode,
		opts.MaxPlayers,
		Settings{EnableBots: opts.EnableBots, BotCount: opts.BotCount, TurnTimeLimit: opts.TurnTimeLimit},
		s.clock.Now(),
	)
	// Not yet reachable through the registry, so no lock needed.
	snap := Snapshot{Room: r.infoLocked()}
	s.persist(ctx, r)
	s.registry.Add(r)

	s.logger.Info().Str("room_id", r.ID).Str("host", host.UserID).Int("max_players", r.MaxPlayers).Msg("Room created")
	return &snap, nil
}

// JoinRoom seats the caller in a waiting room. Joining a room you are
// already in returns the current snapshot unchanged.
func (s *Service) JoinRoom(ctx context.Context, roomID string, id Identity) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}

	snap, err := func() (*Snapshot, error) {
		if r.seatIndex(id.UserID) >= 0 {
			snap := r.snapshotLocked()
			return &snap, nil
		}
		if r.Status != StatusWaiting {
			return nil, ErrWrongStatus
		}
		if len(r.Seats) >= r.MaxPlayers {
			return nil, ErrRoomFull
		}
		r.Seats = append(r.Seats, RoomPlayer{
			UserID:      id.UserID,
			DisplayName: id.DisplayName,
			AvatarURL:   id.AvatarURL,
		})
		s.persist(ctx, r)
		snap := r.snapshotLocked()
		return &snap, nil
	}()
	r.release()

	if err != nil {
		return nil, err
	}
	r.publish(*snap)
	return snap, nil
}

// ToggleReady flips the caller's ready flag while the room is waiting.
func (s *Service) ToggleReady(ctx context.Context, roomID, userID string) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}

	snap, err := func() (*Snapshot, error) {
		if r.Status != StatusWaiting {
			return nil, ErrWrongStatus
		}
		i := r.seatIndex(userID)
		if i < 0 {
			return nil, ErrNotMember
		}
		r.Seats[i].IsReady = !r.Seats[i].IsReady
		s.persist(ctx, r)
		snap := r.snapshotLocked()
		return &snap, nil
	}()
	r.release()

	if err != nil {
		return nil, err
	}
	r.publish(*snap)
	return snap, nil
}

// LeaveRoom removes the caller from a waiting room, or converts their
// seat to a bot mid-match. Leaving a room you are not in is a no-op.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) error {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return ErrConflict
	}

	var snap *Snapshot
	teardown := false
	func() {
		i := r.seatIndex(userID)
		if i < 0 || r.Seats[i].IsBot {
			return
		}

		switch r.Status {
		case StatusPlaying:
			// Preserve seat indices and hand contents: the seat plays
			// on as a bot.
			r.Seats[i].IsBot = true
			r.Seats[i].IsReady = true
			if seatID, ok := r.seatIDFor(userID); ok {
				if p, perr := r.Game.Player(seatID); perr == nil {
					p.IsBot = true
				}
			}
			if r.humanCount() == 0 {
				teardown = true
				return
			}
			if userID == r.HostID {
				r.transferHostLocked()
			}
			// The departed seat may be the one to act.
			s.armTimersLocked(r)
			s.persist(ctx, r)
			sn := r.snapshotLocked()
			snap = &sn

		default:
			r.Seats = append(r.Seats[:i], r.Seats[i+1:]...)
			if len(r.Seats) == 0 || r.humanCount() == 0 {
				teardown = true
				return
			}
			if userID == r.HostID {
				r.transferHostLocked()
			}
			s.persist(ctx, r)
			sn := r.snapshotLocked()
			snap = &sn
		}
	}()

	if teardown {
		r.stopTimersLocked()
		r.release()
		s.teardown(ctx, r)
		return nil
	}
	r.release()

	if snap != nil {
		r.publish(*snap)
	}
	return nil
}

// StartMatch transitions a waiting room to playing. Host only; every
// human seat must be ready. Remaining seats are filled with bots up to
// the configured count, bounded by room capacity. botCount < 0 means use
// the room's configured setting.
func (s *Service) StartMatch(ctx context.Context, roomID, userID string, botCount int) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}

	snap, err := func() (*Snapshot, error) {
		if r.Status != StatusWaiting {
			return nil, ErrWrongStatus
		}
		if userID != r.HostID {
			return nil, ErrNotHost
		}
		for _, p := range r.Seats {
			if !p.IsBot && !p.IsReady {
				return nil, ErrNotReady
			}
		}

		bots := r.Settings.BotCount
		if botCount >= 0 {
			bots = botCount
		}
		if !r.Settings.EnableBots {
			bots = 0
		}
		if len(r.Seats)+bots > r.MaxPlayers {
			bots = r.MaxPlayers - len(r.Seats)
		}
		if bots == 0 && r.humanCount() < 2 {
			return nil, ErrNotEnoughPlayers
		}
		if len(r.Seats)+bots < 2 {
			return nil, ErrNotEnoughPlayers
		}

		for i := 0; i < bots; i++ {
			r.Seats = append(r.Seats, RoomPlayer{
				UserID:      "bot-" + uuid.NewString(),
				DisplayName: fmt.Sprintf("Bot %d", i+1),
				IsReady:     true,
				IsBot:       true,
			})
		}

		seats := make([]uno.Seat, len(r.Seats))
		r.seatByUser = make(map[string]string, len(r.Seats))
		for i, p := range r.Seats {
			seats[i] = uno.Seat{UserID: p.UserID, DisplayName: p.DisplayName, IsBot: p.IsBot}
			r.seatByUser[p.UserID] = strconv.Itoa(i)
		}

		now := s.clock.Now()
		s.withRNG(func(rng *rand.Rand) {
			r.Game = uno.NewGame(seats, r.Settings.TurnTimeLimit, rng, now)
		})
		r.Status = StatusPlaying
		s.armTimersLocked(r)
		s.persist(ctx, r)

		s.logger.Info().Str("room_id", r.ID).Int("seats", len(r.Seats)).Int("bots", bots).Msg("Match started")
		snap := r.snapshotLocked()
		return &snap, nil
	}()
	r.release()

	if err != nil {
		return nil, err
	}
	r.publish(*snap)
	return snap, nil
}

// MakeMove performs a match action for the caller and returns the
// resulting snapshot. Rules violations leave the state untouched.
func (s *Service) MakeMove(ctx context.Context, roomID, userID string, mv Move) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}

	snap, err := func() (*Snapshot, error) {
		if r.Status != StatusPlaying || r.Game == nil {
			return nil, ErrWrongStatus
		}
		seatID, ok := r.seatIDFor(userID)
		if !ok {
			return nil, ErrNotMember
		}

		now := s.clock.Now()
		switch mv.Action {
		case ActionPlayCard:
			if err := r.Game.PlayCard(seatID, mv.CardIndex, mv.ChosenColor, now); err != nil {
				return nil, err
			}
		case ActionDrawCard:
			if err := r.Game.DrawCard(seatID, now); err != nil {
				return nil, err
			}
		case ActionCallUno:
			if err := r.Game.CallUno(seatID, now); err != nil {
				return nil, err
			}
			// Calling uno does not consume the turn; leave timers alone.
			snap := r.snapshotLocked()
			return &snap, nil
		default:
			return nil, fmt.Errorf("unknown action %q: %w", mv.Action, uno.ErrNotFound)
		}

		s.settleTurnLocked(ctx, r)
		snap := r.snapshotLocked()
		return &snap, nil
	}()
	r.release()

	if err != nil {
		return nil, err
	}
	r.publish(*snap)
	return snap, nil
}

// Challenge resolves an uno challenge against a target seat. The turn
// clock is unaffected.
func (s *Service) Challenge(ctx context.Context, roomID, userID, targetSeat string) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}

	snap, err := func() (*Snapshot, error) {
		if r.Status != StatusPlaying || r.Game == nil {
			return nil, ErrWrongStatus
		}
		seatID, ok := r.seatIDFor(userID)
		if !ok {
			return nil, ErrNotMember
		}
		penalized, err := r.Game.ChallengeUno(seatID, targetSeat, s.clock.Now())
		if err != nil {
			return nil, err
		}
		s.logger.Debug().Str("room_id", r.ID).Str("penalized_seat", penalized).Msg("Uno challenge resolved")
		snap := r.snapshotLocked()
		return &snap, nil
	}()
	r.release()

	if err != nil {
		return nil, err
	}
	r.publish(*snap)
	return snap, nil
}

// GetState returns the room and, for participants only, the live game
// state.
func (s *Service) GetState(roomID, userID string) (*Snapshot, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !r.tryAcquire(s.clock, s.config.LockWait) {
		return nil, ErrConflict
	}
	snap := r.snapshotLocked()
	member := r.seatIndex(userID) >= 0
	r.release()

	if !member {
		snap.Game = nil
	}
	return &snap, nil
}

// ListRooms returns metadata for every live room. Rooms whose lock is
// momentarily held are skipped rather than waited on.
func (s *Service) ListRooms() []Info {
	rooms := s.registry.Rooms()
	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		if !r.tryAcquire(s.clock, 0) {
			continue
		}
		infos = append(infos, r.infoLocked())
		r.release()
	}
	return infos
}

// Subscribe attaches a snapshot feed to the room. The subscriber may
// close it at any time with no residual effect.
func (s *Service) Subscribe(roomID string) (*Subscriber, error) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	return r.Subscribe(), nil
}

// settleTurnLocked runs after every accepted turn-consuming move: it
// either closes out a finished match or rearms the timers for the next
// seat. Caller must hold the room lock.
func (s *Service) settleTurnLocked(ctx context.Context, r *Room) {
	if r.Game.Phase == uno.PhaseFinished {
		r.Status = StatusFinished
		r.FinishedAt = s.clock.Now()
		r.stopTimersLocked()
		s.persist(ctx, r)
		s.logger.Info().
			Str("room_id", r.ID).
			Str("winner", r.Game.Winner).
			Strs("finished_order", r.Game.FinishedOrder).
			Msg("Match finished")
		return
	}
	s.armTimersLocked(r)
}

// armTimersLocked reschedules the turn timer from the current turn's
// start and, when the seat to act is a bot, the bot delay timer. Caller
// must hold the room lock.
func (s *Service) armTimersLocked(r *Room) {
	r.stopTimersLocked()
	if r.Status != StatusPlaying || r.Game == nil {
		return
	}
	gen := r.timerGen

	remaining := r.Game.TurnTimeLimit - s.clock.Now().Sub(r.Game.TurnStartedAt)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	r.turnTimer = s.clock.AfterFunc(remaining, func() {
		s.onTurnTimeout(r.ID, gen)
	})

	if p, err := r.Game.Player(r.Game.Current); err == nil && p.IsBot {
		r.botTimer = s.clock.AfterFunc(s.config.BotDelay, func() {
			s.onBotTurn(r.ID, gen)
		})
	}
}

// onTurnTimeout fires when the current seat's turn clock runs out: the
// seat is forced to draw, exactly as if it had drawn by hand. Errors are
// logged, never propagated; there is no caller to report to.
func (s *Service) onTurnTimeout(roomID string, gen uint64) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return
	}
	if !r.tryAcquire(s.clock, 0) {
		// Lost the race; whoever holds the lock likely rearms the clock.
		// Retry with the same generation in case they did not.
		s.clock.AfterFunc(s.config.TimerRetry, func() {
			s.onTurnTimeout(roomID, gen)
		})
		return
	}

	var snap *Snapshot
	func() {
		if gen != r.timerGen || r.Status != StatusPlaying || r.Game == nil {
			return
		}
		seatID := r.Game.Current
		if err := r.Game.DrawCard(seatID, s.clock.Now()); err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Str("seat", seatID).Msg("Forced draw failed")
			s.armTimersLocked(r)
			return
		}
		s.logger.Debug().Str("room_id", roomID).Str("seat", seatID).Msg("Turn timed out, forced draw")
		s.settleTurnLocked(context.Background(), r)
		sn := r.snapshotLocked()
		snap = &sn
	}()
	r.release()

	if snap != nil {
		r.publish(*snap)
	}
}

// onBotTurn fires after the bot thinking delay and plays the scripted
// policy move through the same locked path as human moves. When the next
// seat is also a bot, settleTurnLocked chains the next timer.
func (s *Service) onBotTurn(roomID string, gen uint64) {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return
	}
	if !r.tryAcquire(s.clock, 0) {
		s.clock.AfterFunc(s.config.TimerRetry, func() {
			s.onBotTurn(roomID, gen)
		})
		return
	}

	var snap *Snapshot
	func() {
		if gen != r.timerGen || r.Status != StatusPlaying || r.Game == nil {
			return
		}
		seatID := r.Game.Current
		p, err := r.Game.Player(seatID)
		if err != nil || !p.IsBot {
			return
		}

		now := s.clock.Now()
		move := uno.ChooseBotMove(r.Game, seatID)
		if move.Draw() {
			err = r.Game.DrawCard(seatID, now)
		} else {
			err = r.Game.PlayCard(seatID, move.Index, move.Color, now)
			if err == nil && len(p.Hand) == 1 {
				// Bots never forget to call uno.
				_ = r.Game.CallUno(seatID, now)
			}
		}
		if err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Str("seat", seatID).Msg("Bot move rejected")
			s.armTimersLocked(r)
			return
		}
		s.settleTurnLocked(context.Background(), r)
		sn := r.snapshotLocked()
		snap = &sn
	}()
	r.release()

	if snap != nil {
		r.publish(*snap)
	}
}

// SweepExpired tears down finished rooms past their retention window.
// Returns the number of rooms collected.
func (s *Service) SweepExpired(ctx context.Context) int {
	collected := 0
	for _, r := range s.registry.expired(s.clock.Now(), s.config.FinishedTTL) {
		if !r.tryAcquire(s.clock, 0) {
			continue
		}
		expired := r.Status == StatusFinished && s.clock.Now().Sub(r.FinishedAt) >= s.config.FinishedTTL
		if expired {
			r.stopTimersLocked()
		}
		r.release()
		if expired {
			s.teardownKeepRecord(r)
			collected++
		}
	}
	return collected
}

// teardown removes a room everywhere: registry, store, subscribers.
// Called after the last human leaves.
func (s *Service) teardown(ctx context.Context, r *Room) {
	s.registry.Remove(r.ID)
	r.closeSubscribers()
	if err := s.store.DeleteRoom(ctx, r.ID); err != nil {
		s.logger.Warn().Err(err).Str("room_id", r.ID).Msg("Failed to delete room record")
	}
	s.logger.Info().Str("room_id", r.ID).Msg("Room torn down")
}

// teardownKeepRecord drops a room from memory but leaves its persisted
// record in place; used for finished rooms collected by the sweeper.
func (s *Service) teardownKeepRecord(r *Room) {
	s.registry.Remove(r.ID)
	r.closeSubscribers()
	s.logger.Debug().Str("room_id", r.ID).Msg("Finished room collected")
}

// persist writes the room's metadata record. Persistence failures are
// logged and do not fail the game action that triggered them.
func (s *Service) persist(ctx context.Context, r *Room) {
	if err := s.store.SaveRoom(ctx, r.recordLocked(s.clock.Now())); err != nil {
		s.logger.Warn().Err(err).Str("room_id", r.ID).Msg("Failed to persist room")
	}
}
