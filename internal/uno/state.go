package uno

import (
	rand "math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"time"
)

// Phase represents the lifecycle of a match.
type Phase string

const (
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// PlayerState holds one seat's cards and identity for the duration of a
// match. Seats are owned exclusively by the GameState that created them.
type PlayerState struct {
	SeatID       string `json:"seatId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Hand         []Card `json:"hand"`
	HasCalledUno bool   `json:"hasCalledUno"`
	IsBot        bool   `json:"isBot"`
}

// Finished reports whether the seat has emptied its hand.
func (p *PlayerState) Finished() bool {
	return len(p.Hand) == 0
}

// LogEntry records one action in the match's append-only audit trail.
type LogEntry struct {
	SeatID    string    `json:"seatId"`
	Action    string    `json:"action"`
	Card      *Card     `json:"card,omitempty"`
	Color     Color     `json:"color,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log action names.
const (
	ActionPlayCard     = "playCard"
	ActionDrawCard     = "drawCard"
	ActionDrawPenalty  = "drawPenalty"
	ActionCallUno      = "callUno"
	ActionChallengeUno = "challengeUno"
)

// GameState is the single mutable aggregate for one match. It is a plain
// in-memory structure with no I/O of its own; the room orchestrator
// serialises access to it and supplies timestamps via its injected clock.
type GameState struct {
	Deck          []Card                  `json:"deck"`
	DiscardPile   []Card                  `json:"discardPile"`
	LastPlayed    Card                    `json:"lastPlayedCard"`
	Players       map[string]*PlayerState `json:"players"`
	Current       string                  `json:"currentPlayer"`
	Direction     int                     `json:"direction"`
	CurrentColor  Color                   `json:"currentColor"`
	DrawCount     int                     `json:"drawCount"`
	Phase         Phase                   `json:"gamePhase"`
	Winner        string                  `json:"winner,omitempty"`
	SkipNext      bool                    `json:"skipNextPlayer"`
	TurnTimeLimit time.Duration           `json:"turnTimeLimit"`
	TurnStartedAt time.Time               `json:"turnStartTime"`
	Log           []LogEntry              `json:"gameLog"`
	FinishedOrder []string                `json:"finishedOrder"`
}

// Seat identifies a participant at match start.
type Seat struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

const startingHandSize = 7

// NewGame deals a fresh match for the given seats. Seat ids are assigned
// "0".."n-1" in the order given. The opening discard skips wild cards
// (they go back under the draw pile) but action cards are allowed; an
// opening action card only sets the color and value to match, its effect
// is not applied.
func NewGame(seats []Seat, turnLimit time.Duration, rng *rand.Rand, now time.Time) *GameState {
	g := &GameState{
		Deck:          NewDeck(rng),
		Players:       make(map[string]*PlayerState, len(seats)),
		Direction:     1,
		Phase:         PhasePlaying,
		TurnTimeLimit: turnLimit,
		TurnStartedAt: now,
	}
	for i, seat := range seats {
		id := strconv.Itoa(i)
		g.Players[id] = &PlayerState{
			SeatID:      id,
			UserID:      seat.UserID,
			DisplayName: seat.DisplayName,
			IsBot:       seat.IsBot,
			Hand:        g.draw(startingHandSize),
		}
	}
	g.Current = "0"

	// Flip cards until a non-wild turns up; wilds go back to the bottom.
	for {
		card := g.draw(1)[0]
		if !card.IsWild() {
			g.DiscardPile = append(g.DiscardPile, card)
			g.LastPlayed = card
			g.CurrentColor = card.Color
			break
		}
		g.Deck = append([]Card{card}, g.Deck...)
	}
	return g
}

// draw pops up to n cards from the draw pile, reshuffling the discard pile
// (minus its top card) back in when the pile empties. Returns fewer than n
// cards only when no cards remain anywhere.
func (g *GameState) draw(n int) []Card {
	cards := make([]Card, 0, n)
	for len(cards) < n {
		if len(g.Deck) == 0 {
			g.reshuffle()
			if len(g.Deck) == 0 {
				break
			}
		}
		last := len(g.Deck) - 1
		cards = append(cards, g.Deck[last])
		g.Deck = g.Deck[:last]
	}
	return cards
}

// reshuffle moves every discard except the current top card back into the
// draw pile. The relative order of the recycled cards is already random
// enough for gameplay; position within the pile is not observable.
func (g *GameState) reshuffle() {
	if len(g.DiscardPile) <= 1 {
		return
	}
	top := g.DiscardPile[len(g.DiscardPile)-1]
	g.Deck = append(g.Deck, g.DiscardPile[:len(g.DiscardPile)-1]...)
	g.DiscardPile = []Card{top}
}

// giveCards appends drawn cards to a seat's hand. Any standing uno call is
// voided once the hand grows again.
func (g *GameState) giveCards(p *PlayerState, n int) int {
	cards := g.draw(n)
	p.Hand = append(p.Hand, cards...)
	if len(cards) > 0 {
		p.HasCalledUno = false
	}
	return len(cards)
}

// seatOrder returns all seat ids in numeric order.
func (g *GameState) seatOrder() []string {
	ids := make([]string, 0, len(g.Players))
	for id := range g.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}

// LiveSeats returns the seats still holding cards, in numeric order.
func (g *GameState) LiveSeats() []string {
	var live []string
	for _, id := range g.seatOrder() {
		if !slices.Contains(g.FinishedOrder, id) {
			live = append(live, id)
		}
	}
	return live
}

// Advance walks steps live seats from the current player in the current
// direction, skipping finished seats, and returns the seat landed on.
func (g *GameState) Advance(steps int) string {
	order := g.seatOrder()
	idx := slices.Index(order, g.Current)
	if idx < 0 || steps <= 0 {
		return g.Current
	}
	for moved := 0; moved < steps; {
		idx = (idx + g.Direction + len(order)) % len(order)
		if !slices.Contains(g.FinishedOrder, order[idx]) {
			moved++
		}
	}
	return order[idx]
}

// Player looks up a seat by id.
func (g *GameState) Player(seatID string) (*PlayerState, error) {
	p, ok := g.Players[seatID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// CardCount returns the total number of cards across the draw pile, the
// discard pile and every hand. It is DeckSize for any reachable state.
func (g *GameState) CardCount() int {
	total := len(g.Deck) + len(g.DiscardPile)
	for _, p := range g.Players {
		total += len(p.Hand)
	}
	return total
}

// Clone returns a deep copy safe to serialise outside the room lock.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	out.Deck = slices.Clone(g.Deck)
	out.DiscardPile = slices.Clone(g.DiscardPile)
	out.Log = slices.Clone(g.Log)
	out.FinishedOrder = slices.Clone(g.FinishedOrder)
	out.Players = make(map[string]*PlayerState, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		cp.Hand = slices.Clone(p.Hand)
		out.Players[id] = &cp
	}
	return &out
}
