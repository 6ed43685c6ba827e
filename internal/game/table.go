package game

import (
	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/wager"
)

// DealerID is the player id of the dealer seat
const DealerID = "dealer"

// Commitment is the per-player value folded into a round's hash, recorded so
// the hash can be recomputed after the round.
type Commitment struct {
	RoundValue string `json:"roundValue"`
	Nonce      int64  `json:"nonce"`
	ClientSeed string `json:"clientSeed"`
}

// Seat is a participant slot. A player seat may hold several hands after
// splits; the dealer seat holds at most one.
type Seat struct {
	PlayerID   string       `json:"playerId"`
	BetID      string       `json:"betId,omitempty"`
	SeatIndex  *int         `json:"seatIndex,omitempty"`
	Wager      *wager.Wager `json:"wager,omitempty"`
	Commitment *Commitment  `json:"commitment,omitempty"`
	Hands      []*Hand      `json:"hands"`
}

// NewDealerSeat returns an empty dealer seat
func NewDealerSeat() *Seat {
	return &Seat{PlayerID: DealerID}
}

// IsDealer reports whether this is the dealer seat
func (s *Seat) IsDealer() bool {
	return s.PlayerID == DealerID
}

// Hand returns the hand at index, or nil.
func (s *Seat) Hand(index int) *Hand {
	for _, h := range s.Hands {
		if h.Index == index {
			return h
		}
	}
	return nil
}

// Table is the ordered list of player seats, terminated by the dealer seat.
type Table []*Seat

// Validate checks the table shape: exactly one dealer seat, placed last,
// holding at most one hand.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errs.E(errs.MalformedTable, "", "game.table", "reason", "no seats")
	}
	for i, s := range t {
		last := i == len(t)-1
		switch {
		case s == nil:
			return errs.E(errs.MalformedTable, "", "game.table", "reason", "nil seat", "seat", i)
		case s.IsDealer() && !last:
			return errs.E(errs.MalformedTable, "", "game.table", "reason", "dealer seat is not last", "seat", i)
		case !s.IsDealer() && last:
			return errs.E(errs.MalformedTable, "", "game.table", "reason", "last seat is not the dealer", "seat", i)
		case s.IsDealer() && len(s.Hands) > 1:
			return errs.E(errs.MalformedTable, "", "game.table", "reason", "dealer holds more than one hand")
		}
	}
	return nil
}

// Dealer returns the dealer seat. It fails loudly if the table is malformed.
func (t Table) Dealer() (*Seat, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t[len(t)-1], nil
}

// Players returns the player seats in seat order.
func (t Table) Players() ([]*Seat, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t[:len(t)-1], nil
}

// Seat returns the seat of playerID, or nil.
func (t Table) Seat(playerID string) *Seat {
	for _, s := range t {
		if s.PlayerID == playerID && !s.IsDealer() {
			return s
		}
	}
	return nil
}

// AddPlayer inserts a player seat just before the dealer seat.
func (t Table) AddPlayer(seat *Seat) (Table, error) {
	if err := t.Validate(); err != nil {
		return t, err
	}
	idx := len(t) - 1
	seat.SeatIndex = &idx
	out := make(Table, 0, len(t)+1)
	out = append(out, t[:idx]...)
	out = append(out, seat, t[idx])
	return out, nil
}

// NextShoeIndex is one past the highest shoe offset any action references,
// or zero when nothing has been dealt.
func (t Table) NextShoeIndex() int {
	next := 0
	for _, s := range t {
		for _, h := range s.Hands {
			for _, a := range h.Actions {
				if idx, ok := ShoeIndex(a); ok && idx+1 > next {
					next = idx + 1
				}
			}
		}
	}
	return next
}

// upcard returns the dealer's face-up card.
func (t Table) upcard() *cards.Card {
	if len(t) == 0 {
		return nil
	}
	dealer := t[len(t)-1]
	if !dealer.IsDealer() || len(dealer.Hands) == 0 || len(dealer.Hands[0].Cards) == 0 {
		return nil
	}
	c := dealer.Hands[0].Cards[0].Card
	return &c
}

// Recompute overwrites the status of every dealt hand from its cards and
// actions. Hands without cards keep a nil status. Outcomes are reset to
// unknown; GameState.Refresh settles them again on a complete round.
func (t Table) Recompute(rules Rules) {
	up := t.upcard()
	for _, s := range t {
		env := Env{Dealer: s.IsDealer(), Upcard: up, SplitDepth: len(s.Hands) - 1}
		for _, h := range s.Hands {
			if len(h.Cards) == 0 {
				h.Status = nil
				continue
			}
			st := Evaluate(h, env, rules)
			h.Status = &st
		}
	}
}
