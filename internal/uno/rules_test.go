package uno

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestGame builds a playing-phase state with the given hands on seats
// "0".."n-1", a red 5 on the discard pile and a pile of filler cards to
// draw from.
func newTestGame(hands ...[]Card) *GameState {
	g := &GameState{
		Players:      make(map[string]*PlayerState, len(hands)),
		Direction:    1,
		Phase:        PhasePlaying,
		Current:      "0",
		CurrentColor: Red,
		LastPlayed:   Card{Color: Red, Value: Five},
		DiscardPile:  []Card{{Color: Red, Value: Five}},
	}
	for i := 0; i < 20; i++ {
		g.Deck = append(g.Deck, Card{Color: Blue, Value: One})
	}
	for i, hand := range hands {
		id := strconv.Itoa(i)
		g.Players[id] = &PlayerState{
			SeatID:      id,
			UserID:      "user-" + id,
			DisplayName: "Player " + id,
			Hand:        hand,
		}
	}
	return g
}

func TestCanPlayMatchesColorOrValue(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Five}, {Color: Green, Value: Two}},
	)

	assert.True(t, g.CanPlay("0", Card{Color: Red, Value: Nine}), "color match")
	assert.True(t, g.CanPlay("0", Card{Color: Blue, Value: Five}), "value match")
	assert.False(t, g.CanPlay("0", Card{Color: Green, Value: Two}))
	assert.True(t, g.CanPlay("0", Card{Color: Wild, Value: WildCard}), "wild always legal")
}

func TestCanPlayWildDraw4RequiresNoColorMatch(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Five}, {Color: Wild, Value: WildDraw4}},
		[]Card{{Color: Blue, Value: Seven}, {Color: Wild, Value: WildDraw4}},
	)

	assert.False(t, g.CanPlay("0", Card{Color: Wild, Value: WildDraw4}),
		"holding a red card under a red discard blocks wildDraw4")
	assert.True(t, g.CanPlay("1", Card{Color: Wild, Value: WildDraw4}),
		"no current-color card in hand allows wildDraw4")
}

func TestPlayCardPreconditions(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Nine}},
		[]Card{{Color: Red, Value: Three}},
	)

	err := g.PlayCard("1", 0, "", testNow)
	require.ErrorIs(t, err, ErrNotYourTurn)

	err = g.PlayCard("9", 0, "", testNow)
	require.ErrorIs(t, err, ErrNotFound)

	err = g.PlayCard("0", 5, "", testNow)
	require.ErrorIs(t, err, ErrNotFound)

	g.Phase = PhaseFinished
	err = g.PlayCard("0", 0, "", testNow)
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestPlayCardRejectsIllegalCard(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Green, Value: Two}, {Color: Red, Value: Nine}},
		[]Card{{Color: Red, Value: Three}},
	)

	err := g.PlayCard("0", 0, "", testNow)
	require.ErrorIs(t, err, ErrIllegalCard)
	assert.Len(t, g.Players["0"].Hand, 2, "state untouched on rejection")
	assert.Equal(t, "0", g.Current)
}

func TestPlayCardWildRequiresColor(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Wild, Value: WildCard}, {Color: Red, Value: Nine}},
		[]Card{{Color: Red, Value: Three}},
	)

	err := g.PlayCard("0", 0, "", testNow)
	require.ErrorIs(t, err, ErrIllegalCard)

	err = g.PlayCard("0", 0, Wild, testNow)
	require.ErrorIs(t, err, ErrIllegalCard)

	require.NoError(t, g.PlayCard("0", 0, Green, testNow))
	assert.Equal(t, Green, g.CurrentColor)
}

func TestPlayCardAdvancesAndLogs(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Four}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, "1", g.Current)
	assert.Equal(t, Card{Color: Red, Value: Nine}, g.LastPlayed)
	assert.Equal(t, Red, g.CurrentColor)
	assert.Equal(t, testNow, g.TurnStartedAt)
	require.Len(t, g.Log, 1)
	assert.Equal(t, ActionPlayCard, g.Log[0].Action)
	assert.Equal(t, "0", g.Log[0].SeatID)
}

func TestSkipCardSkipsNextSeat(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Skip}, {Color: Blue, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Four}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, "2", g.Current, "seat 1 is skipped")
	assert.False(t, g.SkipNext, "skip flag is one-shot")
}

func TestReverseFlipsDirectionWithThreeSeats(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Reverse}, {Color: Blue, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Four}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, -1, g.Direction)
	assert.Equal(t, "2", g.Current, "play proceeds backwards")
}

func TestReverseActsAsSkipHeadsUp(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Reverse}, {Color: Blue, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, 1, g.Direction, "direction unchanged heads-up")
	assert.Equal(t, "0", g.Current, "opponent is skipped, turn comes back")
}

func TestDrawTwoCreatesPendingPenalty(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: DrawTwo}, {Color: Blue, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Four}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, 2, g.DrawCount)
	assert.Equal(t, "1", g.Current, "victim takes the turn facing the penalty")
}

func TestPenaltyStacking(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: DrawTwo}, {Color: Blue, Value: Two}},
		[]Card{{Color: Green, Value: DrawTwo}, {Color: Blue, Value: Seven}},
		[]Card{{Color: Red, Value: Four}, {Color: Red, Value: Six}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	require.Equal(t, 2, g.DrawCount)

	// Seat 1 stacks another draw2.
	require.NoError(t, g.PlayCard("1", 0, "", testNow))
	assert.Equal(t, 4, g.DrawCount)
	assert.Equal(t, "2", g.Current)

	// Seat 2 holds no draw2: every play is rejected, drawing takes all 4.
	err := g.PlayCard("2", 0, "", testNow)
	require.ErrorIs(t, err, ErrIllegalCard)

	require.NoError(t, g.DrawCard("2", testNow))
	assert.Equal(t, 0, g.DrawCount)
	assert.Len(t, g.Players["2"].Hand, 6)
	assert.Equal(t, "0", g.Current)
}

func TestPenaltyPendingBlocksNonPenaltyCards(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: DrawTwo}, {Color: Blue, Value: Two}},
		[]Card{{Color: Green, Value: Five}, {Color: Wild, Value: WildCard}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))

	// Neither a value-match nor a wild escapes a pending penalty.
	err := g.PlayCard("1", 0, "", testNow)
	require.ErrorIs(t, err, ErrIllegalCard)
	err = g.PlayCard("1", 1, Blue, testNow)
	require.ErrorIs(t, err, ErrIllegalCard)
}

func TestDrawCardDrawsOneAndAdvances(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Green, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
	)

	require.NoError(t, g.DrawCard("0", testNow))
	assert.Len(t, g.Players["0"].Hand, 2)
	assert.Equal(t, "1", g.Current)
	require.Len(t, g.Log, 1)
	assert.Equal(t, ActionDrawCard, g.Log[0].Action)

	err := g.DrawCard("0", testNow)
	require.ErrorIs(t, err, ErrNotYourTurn)
}

func TestDrawReshufflesDiscardPileWhenDeckEmpties(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Green, Value: Two}},
		[]Card{{Color: Red, Value: Three}},
	)
	g.Deck = nil
	g.DiscardPile = []Card{
		{Color: Yellow, Value: One},
		{Color: Yellow, Value: Two},
		{Color: Red, Value: Five}, // top, stays put
	}

	before := g.CardCount()
	require.NoError(t, g.DrawCard("0", testNow))

	assert.Equal(t, before, g.CardCount(), "no cards created or destroyed")
	assert.Equal(t, []Card{{Color: Red, Value: Five}}, g.DiscardPile)
	assert.Len(t, g.Players["0"].Hand, 2)
}

func TestDrawReturnsShortWhenNoCardsAnywhere(t *testing.T) {
	g := newTestGame([]Card{{Color: Green, Value: Two}}, []Card{{Color: Red, Value: Three}})
	g.Deck = nil
	g.DiscardPile = []Card{{Color: Red, Value: Five}}
	g.DrawCount = 4

	require.NoError(t, g.DrawCard("0", testNow))
	assert.Len(t, g.Players["0"].Hand, 1, "nothing left to draw")
	assert.Equal(t, 0, g.DrawCount, "obligation still cleared")
}

func TestWinDetectionThreeSeats(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}},
		[]Card{{Color: Red, Value: Four}, {Color: Blue, Value: Six}},
	)
	g.Current = "1"

	require.NoError(t, g.PlayCard("1", 0, "", testNow))
	assert.Equal(t, []string{"1"}, g.FinishedOrder)
	assert.Equal(t, PhasePlaying, g.Phase, "two live seats remain")
	assert.Equal(t, "2", g.Current)

	// Seat 2 plays down to one card, seat 0 empties: match over.
	require.NoError(t, g.PlayCard("2", 0, "", testNow))
	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	assert.Equal(t, []string{"1", "0"}, g.FinishedOrder)
	assert.Equal(t, PhaseFinished, g.Phase)
	assert.Equal(t, "1", g.Winner, "winner is the first finisher")
}

func TestAdvanceSkipsFinishedSeats(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{},
		[]Card{{Color: Red, Value: Four}},
	)
	g.FinishedOrder = []string{"1"}

	assert.Equal(t, "2", g.Advance(1), "finished seat 1 is skipped")
	g.Direction = -1
	assert.Equal(t, "2", g.Advance(1))
}

func TestTurnLivenessAfterAcceptedMoves(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Six}},
		[]Card{{Color: Red, Value: Four}, {Color: Blue, Value: Seven}},
	)

	require.NoError(t, g.PlayCard("0", 0, "", testNow))
	require.Equal(t, PhasePlaying, g.Phase)
	assert.NotContains(t, g.FinishedOrder, g.Current)

	require.NoError(t, g.DrawCard(g.Current, testNow))
	require.Equal(t, PhasePlaying, g.Phase)
	assert.NotContains(t, g.FinishedOrder, g.Current)
}

func TestCallUno(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Six}},
	)

	require.NoError(t, g.CallUno("0", testNow))
	assert.True(t, g.Players["0"].HasCalledUno)

	// Calling with more than one card succeeds but changes nothing.
	require.NoError(t, g.CallUno("1", testNow))
	assert.False(t, g.Players["1"].HasCalledUno)

	err := g.CallUno("9", testNow)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChallengeUnoPenalisesSilentTarget(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Six}},
	)

	penalized, err := g.ChallengeUno("1", "0", testNow)
	require.NoError(t, err)
	assert.Equal(t, "0", penalized)
	assert.Len(t, g.Players["0"].Hand, 3)
	assert.True(t, g.Players["0"].HasCalledUno, "forced true after a successful challenge")
}

func TestChallengeUnoPenalisesChallengerOtherwise(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Six}},
	)
	g.Players["0"].HasCalledUno = true

	penalized, err := g.ChallengeUno("1", "0", testNow)
	require.NoError(t, err)
	assert.Equal(t, "1", penalized)
	assert.Len(t, g.Players["1"].Hand, 4)
	assert.Len(t, g.Players["0"].Hand, 1)
}

func TestFinisherRecordedOnce(t *testing.T) {
	g := newTestGame(
		[]Card{{Color: Red, Value: Three}},
		[]Card{{Color: Red, Value: Nine}, {Color: Blue, Value: Six}},
		[]Card{{Color: Red, Value: Four}, {Color: Blue, Value: Seven}},
	)

	g.recordFinisher("0")
	g.recordFinisher("0")
	assert.Equal(t, []string{"0"}, g.FinishedOrder)
}
