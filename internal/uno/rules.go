package uno

import (
	"fmt"
	"slices"
	"time"
)

// CanPlay reports whether the seat may legally play card right now. Wild
// is always playable. WildDraw4 is playable only when the seat holds no
// non-wild card of the current color; there is no color or value match
// bypass. Anything else needs a color or value match against the top of
// the discard pile.
func (g *GameState) CanPlay(seatID string, card Card) bool {
	switch card.Value {
	case WildCard:
		return true
	case WildDraw4:
		p, ok := g.Players[seatID]
		if !ok {
			return false
		}
		for _, held := range p.Hand {
			if !held.IsWild() && held.Color == g.CurrentColor {
				return false
			}
		}
		return true
	}
	return card.Color == g.CurrentColor || card.Value == g.LastPlayed.Value
}

// applyEffects updates color, direction and pending obligations for a
// just-played card. chosenColor is only consulted for wilds.
func (g *GameState) applyEffects(card Card, chosenColor Color) {
	if card.IsWild() {
		g.CurrentColor = chosenColor
	} else {
		g.CurrentColor = card.Color
	}

	switch card.Value {
	case Reverse:
		if len(g.LiveSeats()) >= 3 {
			g.Direction = -g.Direction
		} else {
			// Two players: reverse acts as a skip.
			g.SkipNext = true
		}
	case Skip:
		g.SkipNext = true
	case DrawTwo:
		g.DrawCount += 2
		g.SkipNext = true
	case WildDraw4:
		g.DrawCount += 4
		g.SkipNext = true
	}
}

// PlayCard plays the card at handIndex for the given seat. chosenColor is
// required for wild cards. While a penalty is pending the only legal play
// is another penalty card of the same kind, which stacks the obligation
// onto the following seat.
func (g *GameState) PlayCard(seatID string, handIndex int, chosenColor Color, now time.Time) error {
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	p, err := g.Player(seatID)
	if err != nil {
		return err
	}
	if seatID != g.Current {
		return ErrNotYourTurn
	}
	if handIndex < 0 || handIndex >= len(p.Hand) {
		return fmt.Errorf("hand index %d: %w", handIndex, ErrNotFound)
	}
	card := p.Hand[handIndex]

	if g.DrawCount > 0 && card.Value != g.LastPlayed.Value {
		return fmt.Errorf("pending draw of %d must be taken or stacked: %w", g.DrawCount, ErrIllegalCard)
	}
	if card.IsWild() {
		if chosenColor == Wild || !chosenColor.Valid() {
			return fmt.Errorf("wild card needs a color: %w", ErrIllegalCard)
		}
	}
	if !g.CanPlay(seatID, card) {
		return ErrIllegalCard
	}

	p.Hand = slices.Delete(p.Hand, handIndex, handIndex+1)
	g.DiscardPile = append(g.DiscardPile, card)
	g.LastPlayed = card
	g.applyEffects(card, chosenColor)
	g.Log = append(g.Log, LogEntry{SeatID: seatID, Action: ActionPlayCard, Card: &card, Color: g.CurrentColor, Timestamp: now})

	if p.Finished() {
		g.recordFinisher(seatID)
		if g.Phase == PhaseFinished {
			return nil
		}
	}

	steps := 1
	if g.DrawCount > 0 {
		// The skip folds into the pending penalty: the next seat takes
		// the turn but may only stack or draw.
		g.SkipNext = false
	} else if g.SkipNext {
		steps = 2
		g.SkipNext = false
	}
	g.Current = g.Advance(steps)
	g.TurnStartedAt = now
	return nil
}

// DrawCard draws for the given seat: the full pending penalty if one is
// stacked, otherwise a single card. The turn then passes to the next live
// seat.
func (g *GameState) DrawCard(seatID string, now time.Time) error {
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	p, err := g.Player(seatID)
	if err != nil {
		return err
	}
	if seatID != g.Current {
		return ErrNotYourTurn
	}

	if g.DrawCount > 0 {
		n := g.giveCards(p, g.DrawCount)
		g.DrawCount = 0
		g.Log = append(g.Log, LogEntry{SeatID: seatID, Action: ActionDrawPenalty, Count: n, Timestamp: now})
	} else {
		n := g.giveCards(p, 1)
		g.Log = append(g.Log, LogEntry{SeatID: seatID, Action: ActionDrawCard, Count: n, Timestamp: now})
	}

	g.Current = g.Advance(1)
	g.TurnStartedAt = now
	return nil
}

// CallUno marks the seat as having called uno when it is down to one card.
// Calls at any other hand size succeed as no-ops; pre-emptive calls are
// tolerated rather than penalised.
func (g *GameState) CallUno(seatID string, now time.Time) error {
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	p, err := g.Player(seatID)
	if err != nil {
		return err
	}
	if len(p.Hand) == 1 {
		p.HasCalledUno = true
		g.Log = append(g.Log, LogEntry{SeatID: seatID, Action: ActionCallUno, Timestamp: now})
	}
	return nil
}

// ChallengeUno resolves an uno challenge. A target caught on one card
// without having called draws two and is marked as called; otherwise the
// challenger draws two. The returned seat id names whoever was penalised.
func (g *GameState) ChallengeUno(challengerID, targetID string, now time.Time) (string, error) {
	if g.Phase != PhasePlaying {
		return "", ErrWrongPhase
	}
	challenger, err := g.Player(challengerID)
	if err != nil {
		return "", err
	}
	target, err := g.Player(targetID)
	if err != nil {
		return "", err
	}

	penalized := challenger
	if len(target.Hand) == 1 && !target.HasCalledUno {
		penalized = target
	}
	g.giveCards(penalized, 2)
	if penalized == target {
		target.HasCalledUno = true
	}
	g.Log = append(g.Log, LogEntry{SeatID: penalized.SeatID, Action: ActionChallengeUno, Count: 2, Timestamp: now})
	return penalized.SeatID, nil
}

// recordFinisher appends the seat to the finishing order exactly once and
// closes out the match when at most one live seat remains.
func (g *GameState) recordFinisher(seatID string) {
	if slices.Contains(g.FinishedOrder, seatID) {
		return
	}
	g.FinishedOrder = append(g.FinishedOrder, seatID)

	live := g.LiveSeats()
	if len(live) <= 1 {
		g.Phase = PhaseFinished
		g.Winner = g.FinishedOrder[0]
	}
}
