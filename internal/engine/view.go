package engine

import (
	"time"

	"github.com/lox/blackjack/internal/actionhash"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/wager"
)

// CardView is a card as a client sees it. Hidden cards carry no card.
type CardView struct {
	Card   string `json:"card,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// HandView is a hand as a client sees it
type HandView struct {
	Index  int              `json:"index"`
	Cards  []CardView       `json:"cards"`
	Status *game.HandStatus `json:"status,omitempty"`
}

// SeatView is a seat as a client sees it
type SeatView struct {
	PlayerID  string       `json:"playerId"`
	SeatIndex *int         `json:"seatIndex,omitempty"`
	Wager     *wager.Wager `json:"wager,omitempty"`
	Hands     []HandView   `json:"hands"`
}

// Turn names the hand expected to act next
type Turn struct {
	PlayerID  string `json:"playerId"`
	HandIndex int    `json:"handIndex"`
}

// View is the client-safe rendering of a round. The seed is only present
// once the round is complete, and the dealer's hole card and total stay
// hidden until it is revealed.
type View struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Hash        string     `json:"hash,omitempty"`
	Seed        string     `json:"seed,omitempty"`
	Decks       int        `json:"decks"`
	Seats       []SeatView `json:"seats"`
	Dealer      *SeatView  `json:"dealer,omitempty"`
	Turn        *Turn      `json:"turn,omitempty"`
	ActionsHash string     `json:"actionsHash,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewView renders g for clients
func NewView(g *game.GameState, rules game.Rules) *View {
	v := &View{
		ID:        g.ID,
		Status:    g.Status.String(),
		Hash:      g.Hash,
		Decks:     g.Decks,
		Seats:     []SeatView{},
		CreatedAt: g.CreatedAt,
	}
	if g.Status == game.Complete {
		v.Seed = g.Seed
		completed := g.CompletedAt
		v.CompletedAt = &completed
	}
	for _, s := range g.Players {
		sv := seatView(s)
		if s.IsDealer() {
			v.Dealer = &sv
			continue
		}
		v.Seats = append(v.Seats, sv)
	}
	if g.Status == game.Active {
		if seat, hand, ok := g.ActiveHand(rules); ok {
			v.Turn = &Turn{PlayerID: seat.PlayerID, HandIndex: hand.Index}
		}
	}
	if hash, err := actionhash.Encode(g.Players); err == nil && g.Players.NextShoeIndex() > 0 {
		v.ActionsHash = hash
	}
	return v
}

func seatView(s *game.Seat) SeatView {
	sv := SeatView{PlayerID: s.PlayerID, SeatIndex: s.SeatIndex, Wager: s.Wager, Hands: []HandView{}}
	for _, h := range s.Hands {
		hv := HandView{Index: h.Index, Cards: make([]CardView, len(h.Cards)), Status: h.Status}
		hidden := false
		for i, c := range h.Cards {
			if c.Hidden {
				hv.Cards[i] = CardView{Hidden: true}
				hidden = true
				continue
			}
			hv.Cards[i] = CardView{Card: c.String()}
		}
		if hidden {
			hv.Status = nil
		}
		sv.Hands = append(sv.Hands, hv)
	}
	return sv
}
