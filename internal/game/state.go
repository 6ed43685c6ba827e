package game

import (
	"time"

	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/errs"
)

// Status is the lifecycle state of a round
type Status uint8

const (
	Pending Status = iota
	Active
	Complete
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Complete:
		return "complete"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseStatus resolves a status name
func ParseStatus(name string) (Status, bool) {
	for s := Pending; s <= Rejected; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// GameState is one blackjack round. Seed is the house secret and must not
// leave the server before the round is complete; Hash is the public
// commitment and the key of the shoe. Decks is the shoe size the round was
// dealt from.
type GameState struct {
	ID          string
	Seed        string
	Hash        string
	Decks       int
	Status      Status
	Players     Table
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewGame returns a pending round with one player seat and the dealer seat.
func NewGame(id, seed string, player *Seat, now time.Time) *GameState {
	idx := 0
	player.SeatIndex = &idx
	return &GameState{
		ID:        id,
		Seed:      seed,
		Status:    Pending,
		Players:   Table{player, NewDealerSeat()},
		CreatedAt: now,
	}
}

// Validate checks the invariants every persisted round must hold. All
// problems are reported together.
func (g *GameState) Validate() error {
	if g == nil {
		return errs.E(errs.RoundNotFound, "", "game.validate")
	}
	var problems []error
	if g.ID == "" {
		problems = append(problems, errs.E(errs.InvalidRoundID, g.ID, "game.validate"))
	}
	if g.Seed == "" {
		problems = append(problems, errs.E(errs.MissingSeed, g.ID, "game.validate"))
	}
	if g.Hash == "" && (g.Status == Active || g.Status == Complete) {
		problems = append(problems, errs.E(errs.MissingHash, g.ID, "game.validate"))
	}
	if err := g.Players.Validate(); err != nil {
		problems = append(problems, err)
	} else if len(g.Players) < 2 {
		problems = append(problems, errs.E(errs.NoPlayers, g.ID, "game.validate"))
	}
	return errs.Join(g.ID, "game.validate", problems...)
}

// Transition moves the round to status to. Pending may become Active or
// Rejected and Active may become Complete; nothing else is allowed.
func (g *GameState) Transition(to Status) error {
	allowed := false
	switch g.Status {
	case Pending:
		allowed = to == Active || to == Rejected
	case Active:
		allowed = to == Complete
	}
	if !allowed {
		return errs.E(errs.InvalidTransition, g.ID, "game.transition", "from", g.Status.String(), "to", to.String())
	}
	if to == Active {
		if err := errs.Join(g.ID, "game.transition", g.requireSeedAndHash()...); err != nil {
			return err
		}
	}
	g.Status = to
	return nil
}

func (g *GameState) requireSeedAndHash() []error {
	var out []error
	if g.Seed == "" {
		out = append(out, errs.E(errs.MissingSeed, g.ID, "game.transition"))
	}
	if g.Hash == "" {
		out = append(out, errs.E(errs.MissingHash, g.ID, "game.transition"))
	}
	return out
}

// Refresh recomputes every hand status and, on a complete round, the
// settled outcomes.
func (g *GameState) Refresh(rules Rules) error {
	g.Players.Recompute(rules)
	if g.Status == Complete {
		return g.settle()
	}
	return nil
}

// Shoe regenerates the round's shoe from its hash. It is only meaningful once
// the hash is set.
func (g *GameState) Shoe() []cards.Card {
	return cards.GenerateShoe(g.Hash, g.Decks)
}
