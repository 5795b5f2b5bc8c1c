package room

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dln/unorooms/internal/randutil"
	"github.com/dln/unorooms/internal/uno"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LockWait = 50 * time.Millisecond
	cfg.TimerRetry = 5 * time.Millisecond
	cfg.BotDelay = 100 * time.Millisecond
	cfg.FinishedTTL = time.Minute
	return cfg
}

func newTestService(clock quartz.Clock) *Service {
	return NewService(testLogger(), NopStore{}, clock, randutil.New(42), testConfig())
}

var (
	alice = Identity{UserID: "u-alice", DisplayName: "Alice"}
	bob   = Identity{UserID: "u-bob", DisplayName: "Bob"}
	carol = Identity{UserID: "u-carol", DisplayName: "Carol"}
)

// startTwoPlayerMatch creates a room for alice and bob and starts it.
func startTwoPlayerMatch(t *testing.T, s *Service) string {
	t.Helper()
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 4})
	require.NoError(t, err)
	roomID := snap.Room.ID

	_, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)
	_, err = s.ToggleReady(ctx, roomID, bob.UserID)
	require.NoError(t, err)

	snap, err = s.StartMatch(ctx, roomID, alice.UserID, -1)
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, snap.Room.Status)
	return roomID
}

func TestCreateRoomDefaults(t *testing.T) {
	s := newTestService(quartz.NewMock(t))

	snap, err := s.CreateRoom(context.Background(), alice, CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusWaiting, snap.Room.Status)
	assert.Equal(t, alice.UserID, snap.Room.HostID)
	assert.Equal(t, 4, snap.Room.MaxPlayers)
	assert.Equal(t, 30*time.Second, snap.Room.Settings.TurnTimeLimit)
	require.Len(t, snap.Room.Seats, 1)
	assert.True(t, snap.Room.Seats[0].IsReady, "host starts ready")
	assert.Nil(t, snap.Game)
	assert.Equal(t, 1, s.Registry().Len())
}

func TestJoinRoom(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 2})
	require.NoError(t, err)
	roomID := snap.Room.ID

	snap, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)
	require.Len(t, snap.Room.Seats, 2)
	assert.False(t, snap.Room.Seats[1].IsReady)

	// Joining again is a no-op.
	snap, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)
	assert.Len(t, snap.Room.Seats, 2)

	// Room is at capacity now.
	_, err = s.JoinRoom(ctx, roomID, carol)
	require.ErrorIs(t, err, ErrRoomFull)

	_, err = s.JoinRoom(ctx, "nonexistent", carol)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStartMatchAuthorization(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 4})
	require.NoError(t, err)
	roomID := snap.Room.ID
	_, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)

	_, err = s.StartMatch(ctx, roomID, bob.UserID, -1)
	require.ErrorIs(t, err, ErrNotHost)

	// Bob has not readied up.
	_, err = s.StartMatch(ctx, roomID, alice.UserID, -1)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestStartMatchRequiresTwoHumansWithoutBots(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 4})
	require.NoError(t, err)

	_, err = s.StartMatch(ctx, snap.Room.ID, alice.UserID, -1)
	require.ErrorIs(t, err, ErrNotEnoughPlayers)
}

func TestStartMatchFillsBotSeats(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 4, EnableBots: true, BotCount: 5})
	require.NoError(t, err)

	snap, err = s.StartMatch(ctx, snap.Room.ID, alice.UserID, -1)
	require.NoError(t, err)

	require.Len(t, snap.Room.Seats, 4, "bot fill is bounded by capacity")
	bots := 0
	for _, p := range snap.Room.Seats {
		if p.IsBot {
			bots++
		}
	}
	assert.Equal(t, 3, bots)

	require.NotNil(t, snap.Game)
	require.Len(t, snap.Game.Players, 4)
	for id, p := range snap.Game.Players {
		assert.Len(t, p.Hand, 7, "seat %s", id)
	}
	assert.Equal(t, "0", snap.Game.Current)
	assert.False(t, snap.Game.Players["0"].IsBot, "host holds seat 0")
}

func TestStartMatchTwiceFails(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	roomID := startTwoPlayerMatch(t, s)

	_, err := s.StartMatch(context.Background(), roomID, alice.UserID, -1)
	require.ErrorIs(t, err, ErrWrongStatus)
}

func TestMakeMoveDrawAdvancesTurn(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	currentUser := snap.Game.Players[snap.Game.Current].UserID
	before := len(snap.Game.Players[snap.Game.Current].Hand)

	snap, err = s.MakeMove(ctx, roomID, currentUser, Move{Action: ActionDrawCard})
	require.NoError(t, err)
	drawn := snap.Game.Players["0"]
	if snap.Game.Players["1"].UserID == currentUser {
		drawn = snap.Game.Players["1"]
	}
	assert.Len(t, drawn.Hand, before+1)
	assert.NotEqual(t, currentUser, snap.Game.Players[snap.Game.Current].UserID)
}

func TestMakeMoveErrors(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	roomID := snap.Room.ID

	_, err = s.MakeMove(ctx, roomID, alice.UserID, Move{Action: ActionDrawCard})
	require.ErrorIs(t, err, ErrWrongStatus, "no match running yet")

	roomID = startTwoPlayerMatch(t, s)
	_, err = s.MakeMove(ctx, roomID, carol.UserID, Move{Action: ActionDrawCard})
	require.ErrorIs(t, err, ErrNotMember)

	// Out-of-turn moves surface the rules engine error untouched.
	snap, err = s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	waiting := snap.Game.Players["0"].UserID
	if snap.Game.Current == "0" {
		waiting = snap.Game.Players["1"].UserID
	}
	_, err = s.MakeMove(ctx, roomID, waiting, Move{Action: ActionDrawCard})
	require.ErrorIs(t, err, uno.ErrNotYourTurn)
}

func TestGetStateWithheldFromNonParticipants(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	roomID := startTwoPlayerMatch(t, s)

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	assert.NotNil(t, snap.Game)

	snap, err = s.GetState(roomID, carol.UserID)
	require.NoError(t, err)
	assert.Nil(t, snap.Game, "spectators don't see hands")
	assert.Equal(t, StatusPlaying, snap.Room.Status)
}

func TestLeaveRoomIsIdempotent(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	roomID := snap.Room.ID
	_, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)

	require.NoError(t, s.LeaveRoom(ctx, roomID, bob.UserID))
	require.NoError(t, s.LeaveRoom(ctx, roomID, bob.UserID), "second leave is a no-op")

	snap, err = s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, snap.Room.Seats, 1)
}

func TestLeaveRoomTransfersHost(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	roomID := snap.Room.ID
	_, err = s.JoinRoom(ctx, roomID, bob)
	require.NoError(t, err)

	require.NoError(t, s.LeaveRoom(ctx, roomID, alice.UserID))

	snap, err = s.GetState(roomID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, snap.Room.HostID)
}

func TestLeaveLastHumanDeletesRoom(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	roomID := snap.Room.ID

	require.NoError(t, s.LeaveRoom(ctx, roomID, alice.UserID))
	_, err = s.GetState(roomID, alice.UserID)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestLeaveWhilePlayingConvertsSeatToBot(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	require.NoError(t, s.LeaveRoom(ctx, roomID, bob.UserID))

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, snap.Room.Status, "match continues")
	require.Len(t, snap.Room.Seats, 2, "seat preserved in place")

	var bobSeat *uno.PlayerState
	for _, p := range snap.Game.Players {
		if p.UserID == bob.UserID {
			bobSeat = p
		}
	}
	require.NotNil(t, bobSeat)
	assert.True(t, bobSeat.IsBot, "departed seat plays on as a bot")
	assert.NotEmpty(t, bobSeat.Hand, "hand contents preserved")

	// Last human leaving tears the room down entirely.
	require.NoError(t, s.LeaveRoom(ctx, roomID, alice.UserID))
	_, err = s.GetState(roomID, alice.UserID)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestTurnTimeoutForcesDraw(t *testing.T) {
	mock := quartz.NewMock(t)
	s := newTestService(mock)
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	timedOut := snap.Game.Current
	before := len(snap.Game.Players[timedOut].Hand)

	mock.Advance(30 * time.Second).MustWait(ctx)

	snap, err = s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, snap.Game.Players[timedOut].Hand, before+1, "timeout draws exactly one card")
	assert.NotEqual(t, timedOut, snap.Game.Current, "turn advanced")
}

func TestTurnTimeoutKeepsFiringEachTurn(t *testing.T) {
	mock := quartz.NewMock(t)
	s := newTestService(mock)
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mock.Advance(30 * time.Second).MustWait(ctx)
	}

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	total := len(snap.Game.Players["0"].Hand) + len(snap.Game.Players["1"].Hand)
	assert.Equal(t, 18, total, "four timeouts, four forced draws")
}

func TestBotChainingPlaysThroughToHumanTurn(t *testing.T) {
	mock := quartz.NewMock(t)
	s := newTestService(mock)
	ctx := context.Background()

	snap, err := s.CreateRoom(ctx, alice, CreateOptions{MaxPlayers: 4, EnableBots: true, BotCount: 3})
	require.NoError(t, err)
	roomID := snap.Room.ID

	snap, err = s.StartMatch(ctx, roomID, alice.UserID, -1)
	require.NoError(t, err)
	require.Equal(t, "0", snap.Game.Current, "human acts first")

	// Hand the turn to the bots.
	humanSeat := snap.Game.Current
	_, err = s.MakeMove(ctx, roomID, alice.UserID, Move{Action: ActionDrawCard})
	require.NoError(t, err)

	// Each advance fires exactly one bot-delay timer; the chain must hand
	// the turn back to the human (or finish) in bounded time.
	for i := 0; i < 100; i++ {
		snap, err = s.GetState(roomID, alice.UserID)
		require.NoError(t, err)
		if snap.Room.Status != StatusPlaying || snap.Game.Current == humanSeat {
			break
		}
		require.True(t, snap.Game.Players[snap.Game.Current].IsBot)
		mock.Advance(100 * time.Millisecond).MustWait(ctx)
	}

	snap, err = s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	if snap.Room.Status == StatusPlaying {
		assert.Equal(t, humanSeat, snap.Game.Current, "chain terminates on the human seat")
	}
}

func TestMakeMoveConflictOnHeldLock(t *testing.T) {
	// Real clock: the bounded lock wait must actually elapse.
	s := newTestService(quartz.NewReal())
	roomID := startTwoPlayerMatch(t, s)

	r, err := s.Registry().Get(roomID)
	require.NoError(t, err)
	require.True(t, r.tryAcquire(quartz.NewReal(), 0))
	defer r.release()

	_, err = s.MakeMove(context.Background(), roomID, alice.UserID, Move{Action: ActionDrawCard})
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.GetState(roomID, alice.UserID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestChallengePenalisesChallengerWhenUnfounded(t *testing.T) {
	s := newTestService(quartz.NewMock(t))
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	snap, err := s.GetState(roomID, alice.UserID)
	require.NoError(t, err)
	aliceSeat, _ := func() (string, string) {
		if snap.Game.Players["0"].UserID == alice.UserID {
			return "0", "1"
		}
		return "1", "0"
	}()
	before := len(snap.Game.Players[aliceSeat].Hand)

	// Bob holds seven cards; the challenge backfires on alice.
	target := "0"
	if aliceSeat == "0" {
		target = "1"
	}
	snap, err = s.Challenge(ctx, roomID, alice.UserID, target)
	require.NoError(t, err)
	assert.Len(t, snap.Game.Players[aliceSeat].Hand, before+2)
}

func TestSweepExpiredCollectsFinishedRooms(t *testing.T) {
	mock := quartz.NewMock(t)
	s := newTestService(mock)
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	r, err := s.Registry().Get(roomID)
	require.NoError(t, err)
	require.True(t, r.tryAcquire(mock, 0))
	r.Status = StatusFinished
	r.FinishedAt = mock.Now()
	r.stopTimersLocked()
	r.release()

	assert.Equal(t, 0, s.SweepExpired(ctx), "retention window not reached")

	mock.Advance(2 * time.Minute).MustWait(ctx)
	assert.Equal(t, 1, s.SweepExpired(ctx))
	_, err = s.Registry().Get(roomID)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

// recordingStore captures persistence calls for assertions.
type recordingStore struct {
	saved   []*Record
	deleted []string
}

func (rs *recordingStore) SaveRoom(_ context.Context, rec *Record) error {
	rs.saved = append(rs.saved, rec)
	return nil
}

func (rs *recordingStore) GetRoom(context.Context, string) (*Record, error) {
	return nil, ErrRoomNotFound
}

func (rs *recordingStore) DeleteRoom(_ context.Context, id string) error {
	rs.deleted = append(rs.deleted, id)
	return nil
}

func (rs *recordingStore) ListRooms(context.Context, Status) ([]*Record, error) { return nil, nil }

func TestTerminalTransitionPersistsFinishedOrder(t *testing.T) {
	mock := quartz.NewMock(t)
	store := &recordingStore{}
	s := NewService(testLogger(), store, mock, randutil.New(42), testConfig())
	roomID := startTwoPlayerMatch(t, s)
	ctx := context.Background()

	// Timeouts only ever grow hands, so force the endgame: shrink the
	// current seat's hand to a single card that matches the live color.
	r, err := s.Registry().Get(roomID)
	require.NoError(t, err)
	require.True(t, r.tryAcquire(mock, 0))
	current := r.Game.Current
	r.Game.Players[current].Hand = []uno.Card{{Color: r.Game.CurrentColor, Value: uno.Five}}
	playerID := r.Game.Players[current].UserID
	r.release()

	snap, err := s.MakeMove(ctx, roomID, playerID, Move{Action: ActionPlayCard, CardIndex: 0})
	require.NoError(t, err)

	require.Equal(t, StatusFinished, snap.Room.Status)
	require.NotEmpty(t, store.saved)
	last := store.saved[len(store.saved)-1]
	assert.Equal(t, StatusFinished, last.Status)
	assert.Equal(t, []string{current}, last.FinishedOrder)
	assert.Equal(t, current, last.Winner)
}
