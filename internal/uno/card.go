package uno

import (
	"fmt"
	rand "math/rand/v2"
)

// Color represents a card color. Wild cards carry ColorWild until a color
// is chosen for them.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
	Wild   Color = "wild"
)

// Colors lists the four playable colors in priority order. The ordering is
// load-bearing for the bot policy's tie-break.
var Colors = []Color{Red, Blue, Green, Yellow}

// Valid reports whether c is one of the recognised colors, including wild.
func (c Color) Valid() bool {
	switch c {
	case Red, Blue, Green, Yellow, Wild:
		return true
	}
	return false
}

// String returns the string representation of a color.
func (c Color) String() string {
	return string(c)
}

// Value represents a card face value.
type Value string

const (
	Zero  Value = "0"
	One   Value = "1"
	Two   Value = "2"
	Three Value = "3"
	Four  Value = "4"
	Five  Value = "5"
	Six   Value = "6"
	Seven Value = "7"
	Eight Value = "8"
	Nine  Value = "9"

	Skip      Value = "skip"
	Reverse   Value = "reverse"
	DrawTwo   Value = "draw2"
	WildCard  Value = "wild"
	WildDraw4 Value = "wildDraw4"
)

// String returns the string representation of a value.
func (v Value) String() string {
	return string(v)
}

// CardType classifies a card by the kind of value it carries.
type CardType string

const (
	TypeNumber CardType = "number"
	TypeAction CardType = "action"
	TypeWild   CardType = "wild"
)

// Card is an immutable playing card. Wild cards have Color == Wild; the
// chosen color lives on the game state, never on the card itself.
type Card struct {
	Color Color `json:"color"`
	Value Value `json:"value"`
}

// Type derives the card's classification from its value.
func (c Card) Type() CardType {
	switch c.Value {
	case WildCard, WildDraw4:
		return TypeWild
	case Skip, Reverse, DrawTwo:
		return TypeAction
	default:
		return TypeNumber
	}
}

// IsWild reports whether the card requires a color to be chosen when played.
func (c Card) IsWild() bool {
	return c.Type() == TypeWild
}

// IsPenalty reports whether playing the card creates a forced-draw
// obligation for the next seat.
func (c Card) IsPenalty() bool {
	return c.Value == DrawTwo || c.Value == WildDraw4
}

// String returns a compact human-readable form, e.g. "red 7" or "wildDraw4".
func (c Card) String() string {
	if c.Color == Wild {
		return c.Value.String()
	}
	return fmt.Sprintf("%s %s", c.Color, c.Value)
}

// DeckSize is the number of cards in a full deck.
const DeckSize = 108

var numberValues = []Value{Zero, One, Two, Three, Four, Five, Six, Seven, Eight, Nine}

// NewDeck builds the canonical 108-card deck, shuffled with the provided
// rng. Per color: one zero, two each of 1-9, skip, reverse and draw2, plus
// four wilds and four wild-draw-fours.
func NewDeck(rng *rand.Rand) []Card {
	cards := make([]Card, 0, DeckSize)
	for _, color := range Colors {
		cards = append(cards, Card{Color: color, Value: Zero})
		for _, value := range numberValues[1:] {
			cards = append(cards, Card{Color: color, Value: value}, Card{Color: color, Value: value})
		}
		for _, value := range []Value{Skip, Reverse, DrawTwo} {
			cards = append(cards, Card{Color: color, Value: value}, Card{Color: color, Value: value})
		}
	}
	for i := 0; i < 4; i++ {
		cards = append(cards, Card{Color: Wild, Value: WildCard}, Card{Color: Wild, Value: WildDraw4})
	}
	shuffle(cards, rng)
	return cards
}

// shuffle permutes cards in place using Fisher-Yates.
func shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
