// Package cards models the standard 52-card deck used at the blackjack table
// and generates the seeded, reproducible shoe a round deals from.
package cards

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit uint8

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// Suits lists every suit in shoe build order
var Suits = [...]Suit{Hearts, Diamonds, Clubs, Spades}

// String returns the suit symbol
func (s Suit) String() string {
	switch s {
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	case Spades:
		return "♠"
	default:
		return "?"
	}
}

// Rank represents a card rank. Ten through King are distinct ranks that share
// a blackjack value.
type Rank uint8

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Ranks lists every rank in shoe build order
var Ranks = [...]Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// String returns the rank symbol
func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		if r >= Two && r <= Ten {
			return fmt.Sprintf("%d", int(r))
		}
		return "?"
	}
}

// Value returns the blackjack value of the rank, counting an Ace as 1.
// The hand evaluator decides when an Ace is worth 11.
func (r Rank) Value() int {
	switch {
	case r == Ace:
		return 1
	case r >= Ten:
		return 10
	default:
		return int(r)
	}
}

// Card is a single playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard creates a card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the card token, rank symbol followed by suit symbol (e.g. "10♥")
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// IsAce reports whether the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// Valid reports whether suit and rank are in range
func (c Card) Valid() bool {
	return c.Suit <= Spades && c.Rank >= Two && c.Rank <= Ace
}

// DealtCard is a card on the table. Hidden is only set on the dealer's hole
// card while the round is still being played.
type DealtCard struct {
	Card
	Hidden bool `json:"hidden,omitempty"`
}

// ParseCard parses a token produced by Card.String
func ParseCard(token string) (Card, error) {
	for _, s := range Suits {
		sym := s.String()
		if !strings.HasSuffix(token, sym) {
			continue
		}
		rankSym := strings.TrimSuffix(token, sym)
		for _, r := range Ranks {
			if r.String() == rankSym {
				return NewCard(r, s), nil
			}
		}
		return Card{}, fmt.Errorf("cards: invalid rank %q in %q", rankSym, token)
	}
	return Card{}, fmt.Errorf("cards: invalid suit in %q", token)
}

// Tokens renders cards as string tokens
func Tokens(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
