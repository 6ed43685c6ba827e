package game

import (
	"github.com/lox/blackjack/cards"
)

// MaxHandValue is the best possible hand total
const MaxHandValue = 21

// Outcome is the settled result of a hand
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeWin
	OutcomeLoss
	OutcomePush
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomePush:
		return "push"
	default:
		return "unknown"
	}
}

// HandStatus is derived from a hand's cards and actions. It is recomputed
// after every mutation and never treated as the source of truth.
type HandStatus struct {
	Value         int     `json:"value"`
	Hard          bool    `json:"hard"`
	Soft          bool    `json:"soft"`
	Bust          bool    `json:"bust"`
	Blackjack     bool    `json:"blackjack"`
	CanHit        bool    `json:"canHit"`
	CanStand      bool    `json:"canStand"`
	CanInsure     bool    `json:"canInsure"`
	CanSplit      bool    `json:"canSplit"`
	CanDoubleDown bool    `json:"canDoubleDown"`
	SplitFrom     *int    `json:"splitFrom,omitempty"`
	WasDoubled    bool    `json:"wasDoubled"`
	Outcome       Outcome `json:"outcome"`
}

// Allows reports whether the status permits a player action of type t.
func (s HandStatus) Allows(t ActionType) bool {
	switch t {
	case ActionHit:
		return s.CanHit
	case ActionStand:
		return s.CanStand
	case ActionDoubleDown:
		return s.CanDoubleDown
	case ActionSplit:
		return s.CanSplit
	case ActionInsurance:
		return s.CanInsure
	default:
		return false
	}
}

// Hand is a set of cards with its audit trail. A hand with no status has
// never been dealt.
type Hand struct {
	Index   int               `json:"index"`
	Cards   []cards.DealtCard `json:"cards"`
	Status  *HandStatus       `json:"status,omitempty"`
	Actions []Action          `json:"-"`
}

// LastAction returns the most recent action, or nil.
func (h *Hand) LastAction() Action {
	if len(h.Actions) == 0 {
		return nil
	}
	return h.Actions[len(h.Actions)-1]
}

// Stood reports whether the most recent action is a Stand.
func (h *Hand) Stood() bool {
	_, ok := h.LastAction().(Stand)
	return ok
}

// Has reports whether any action of type t was recorded.
func (h *Hand) Has(t ActionType) bool {
	for _, a := range h.Actions {
		if a.Type() == t {
			return true
		}
	}
	return false
}

// ShoeIndexes returns the shoe offsets of the cards this hand holds, in order.
func (h *Hand) ShoeIndexes() []int {
	var out []int
	for _, a := range h.Actions {
		if idx, ok := ShoeIndex(a); ok {
			out = append(out, idx)
		}
	}
	return out
}

// PlainCards returns the hand's cards without the hidden flag.
func (h *Hand) PlainCards() []cards.Card {
	out := make([]cards.Card, len(h.Cards))
	for i, c := range h.Cards {
		out[i] = c.Card
	}
	return out
}

func (h *Hand) splitFrom() *int {
	for _, a := range h.Actions {
		if s, ok := a.(Split); ok && s.To == h.Index {
			from := s.From
			return &from
		}
	}
	return nil
}

// Total returns the best total for the cards, counting one Ace as 11 when that
// does not bust the hand. soft is true when an Ace is being counted as 11.
func Total(cs []cards.DealtCard) (value int, soft bool) {
	aces := false
	for _, c := range cs {
		value += c.Rank.Value()
		if c.IsAce() {
			aces = true
		}
	}
	if aces && value+10 <= MaxHandValue {
		return value + 10, true
	}
	return value, false
}
