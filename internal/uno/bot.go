package uno

// BotMove is a deterministic move for the given seat: play the card at
// Index (with Color when the card is wild), or draw when Index is -1.
type BotMove struct {
	Index int
	Color Color
}

// Draw reports whether the bot chose to draw instead of playing.
func (m BotMove) Draw() bool {
	return m.Index < 0
}

// ChooseBotMove picks a move for the seat using a fixed heuristic: prefer
// a non-wild card matching the last played value, else the first legal
// card in hand order, else draw. The same state always produces the same
// move, which keeps bot-driven matches reproducible.
func ChooseBotMove(g *GameState, seatID string) BotMove {
	p, ok := g.Players[seatID]
	if !ok {
		return BotMove{Index: -1}
	}

	best := -1
	for i, card := range p.Hand {
		if !g.CanPlay(seatID, card) {
			continue
		}
		if g.DrawCount > 0 && card.Value != g.LastPlayed.Value {
			continue
		}
		if card.Value == g.LastPlayed.Value && !card.IsWild() {
			best = i
			break
		}
		if best < 0 {
			best = i
		}
	}
	if best < 0 {
		return BotMove{Index: -1}
	}

	move := BotMove{Index: best}
	if p.Hand[best].IsWild() {
		move.Color = chooseWildColor(p, best)
	}
	return move
}

// chooseWildColor returns the color the bot holds most of, ignoring the
// wild being played and other wilds. Ties fall to the fixed color
// priority order.
func chooseWildColor(p *PlayerState, playing int) Color {
	counts := make(map[Color]int, len(Colors))
	for i, card := range p.Hand {
		if i == playing || card.IsWild() {
			continue
		}
		counts[card.Color]++
	}
	choice := Colors[0]
	for _, color := range Colors {
		if counts[color] > counts[choice] {
			choice = color
		}
	}
	return choice
}
