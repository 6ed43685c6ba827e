package game

import (
	"time"

	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/errs"
)

// Move is a player decision on one hand.
type Move struct {
	Type ActionType
	// Accept answers an insurance offer.
	Accept bool
}

func (g *GameState) draw(shoe []cards.Card) (int, cards.Card, error) {
	idx := g.Players.NextShoeIndex()
	if idx >= len(shoe) {
		return 0, cards.Card{}, errs.E(errs.ShoeExhausted, g.ID, "game.draw", "shoe_index", idx, "shoe_size", len(shoe))
	}
	return idx, shoe[idx], nil
}

func (g *GameState) dealTo(h *Hand, shoe []cards.Card, hidden bool, record func(idx int) Action) error {
	idx, c, err := g.draw(shoe)
	if err != nil {
		return err
	}
	h.Cards = append(h.Cards, cards.DealtCard{Card: c, Hidden: hidden})
	h.Actions = append(h.Actions, record(idx))
	return nil
}

// OpeningDeal deals two cards to hand 0 of every player seat and to the
// dealer, one card per seat per pass. The dealer's second card is dealt face
// down.
func (g *GameState) OpeningDeal(shoe []cards.Card, now time.Time, rules Rules) error {
	const scope = "game.opening_deal"
	if g.Status != Active {
		return errs.E(errs.InvalidTransition, g.ID, scope, "from", g.Status.String(), "to", "deal")
	}
	if g.Players.NextShoeIndex() != 0 {
		return errs.E(errs.InvalidTransition, g.ID, scope, "from", "dealt", "to", "deal")
	}
	players, err := g.Players.Players()
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return errs.E(errs.NoPlayers, g.ID, scope)
	}
	dealer, _ := g.Players.Dealer()
	for _, s := range g.Players {
		s.Hands = []*Hand{{Index: 0}}
	}

	deal := func(idx int) Action { return Deal{ShoeIndex: idx, At: now} }
	for pass := range 2 {
		for _, s := range players {
			if err := g.dealTo(s.Hands[0], shoe, false, deal); err != nil {
				return err
			}
		}
		if err := g.dealTo(dealer.Hands[0], shoe, pass == 1, deal); err != nil {
			return err
		}
	}
	g.Players.Recompute(rules)
	return nil
}

// Apply validates and applies a player decision, then recomputes every hand.
func (g *GameState) Apply(playerID string, handIndex int, m Move, shoe []cards.Card, now time.Time, rules Rules) error {
	if err := g.ValidatePlayerHandAction(playerID, handIndex, m.Type, rules); err != nil {
		return err
	}
	seat := g.Players.Seat(playerID)
	hand := seat.Hand(handIndex)

	var err error
	switch m.Type {
	case ActionHit:
		err = g.dealTo(hand, shoe, false, func(idx int) Action { return Hit{ShoeIndex: idx, At: now} })
	case ActionStand:
		hand.Actions = append(hand.Actions, Stand{At: now})
	case ActionDoubleDown:
		err = g.dealTo(hand, shoe, false, func(idx int) Action { return DoubleDown{ShoeIndex: idx, At: now} })
		if err == nil {
			hand.Actions = append(hand.Actions, Stand{At: now})
		}
	case ActionSplit:
		err = g.split(seat, hand, shoe, now)
	case ActionInsurance:
		hand.Actions = append(hand.Actions, Insurance{Accept: m.Accept, At: now})
	default:
		err = errs.E(errs.UnknownAction, g.ID, "game.apply", "action", m.Type.String())
	}
	if err != nil {
		return err
	}
	g.Players.Recompute(rules)
	return nil
}

// split moves the second card of hand, together with the action that dealt
// it, into a new hand at the seat's next index, then deals one card to each.
func (g *GameState) split(seat *Seat, hand *Hand, shoe []cards.Card, now time.Time) error {
	next := 0
	for _, h := range seat.Hands {
		if h.Index >= next {
			next = h.Index + 1
		}
	}

	dealt := 0
	moved := -1
	for i, a := range hand.Actions {
		if _, ok := ShoeIndex(a); ok {
			dealt++
			if dealt == 2 {
				moved = i
				break
			}
		}
	}
	if moved < 0 || len(hand.Cards) != 2 {
		return errs.E(errs.IllegalAction, g.ID, "game.split", "hand_index", hand.Index, "action", ActionSplit.String())
	}

	marker := Split{From: hand.Index, To: next, At: now}
	child := &Hand{
		Index:   next,
		Cards:   []cards.DealtCard{hand.Cards[1]},
		Actions: []Action{hand.Actions[moved], marker},
	}
	hand.Cards = hand.Cards[:1]
	hand.Actions = append(hand.Actions[:moved:moved], hand.Actions[moved+1:]...)
	hand.Actions = append(hand.Actions, marker)
	seat.Hands = append(seat.Hands, child)

	deal := func(idx int) Action { return Deal{ShoeIndex: idx, At: now} }
	if err := g.dealTo(hand, shoe, false, deal); err != nil {
		return err
	}
	return g.dealTo(child, shoe, false, deal)
}

// Advance plays the dealer when it is the dealer's turn and completes the
// round once no hand is playable.
func (g *GameState) Advance(shoe []cards.Card, now time.Time, rules Rules) error {
	if g.Status != Active {
		return nil
	}
	if g.DealerTurn(rules) {
		if err := g.playDealer(shoe, now, rules); err != nil {
			return err
		}
	}
	if !g.TableActive(rules) {
		return g.Complete(now, rules)
	}
	return nil
}

func (g *GameState) playDealer(shoe []cards.Card, now time.Time, rules Rules) error {
	dealer, err := g.Players.Dealer()
	if err != nil {
		return err
	}
	hand := dealer.Hands[0]
	revealHand(hand)

	if !g.anyLivePlayerHand() {
		hand.Actions = append(hand.Actions, Stand{At: now})
		g.Players.Recompute(rules)
		return nil
	}
	for Playable(hand, true, rules) {
		if err := g.dealTo(hand, shoe, false, func(idx int) Action { return Hit{ShoeIndex: idx, At: now} }); err != nil {
			return err
		}
		g.Players.Recompute(rules)
	}
	return nil
}

// anyLivePlayerHand reports whether some player hand still needs the dealer
// to draw: one that is neither bust nor a natural.
func (g *GameState) anyLivePlayerHand() bool {
	players, err := g.Players.Players()
	if err != nil {
		return false
	}
	for _, s := range players {
		for _, h := range s.Hands {
			if h.Status != nil && !h.Status.Bust && !h.Status.Blackjack {
				return true
			}
		}
	}
	return false
}

func revealHand(h *Hand) {
	for i := range h.Cards {
		h.Cards[i].Hidden = false
	}
}

// Complete closes the round once no seat has a playable hand, reveals the
// dealer's hole card and settles every hand.
func (g *GameState) Complete(now time.Time, rules Rules) error {
	if g.TableActive(rules) {
		return errs.E(errs.InvalidCloseout, g.ID, "game.complete")
	}
	if err := g.Transition(Complete); err != nil {
		return err
	}
	if dealer, err := g.Players.Dealer(); err == nil && len(dealer.Hands) == 1 {
		revealHand(dealer.Hands[0])
	}
	g.CompletedAt = now
	return g.Refresh(rules)
}

// settle fills in the outcome of every player hand against the dealer.
func (g *GameState) settle() error {
	dealer, err := g.Players.Dealer()
	if err != nil {
		return err
	}
	if len(dealer.Hands) == 0 || dealer.Hands[0].Status == nil {
		return errs.E(errs.MissingHand, g.ID, "game.settle", "player_id", DealerID, "hand_index", 0)
	}
	d := *dealer.Hands[0].Status
	players, _ := g.Players.Players()
	for _, s := range players {
		for _, h := range s.Hands {
			if h.Status == nil {
				continue
			}
			h.Status.Outcome = outcome(*h.Status, d)
		}
	}
	dealer.Hands[0].Status.Outcome = OutcomeUnknown
	return nil
}

func outcome(p, d HandStatus) Outcome {
	switch {
	case p.Bust:
		return OutcomeLoss
	case d.Blackjack && p.Blackjack:
		return OutcomePush
	case d.Blackjack:
		return OutcomeLoss
	case p.Blackjack:
		return OutcomeWin
	case d.Bust:
		return OutcomeWin
	case p.Value > d.Value:
		return OutcomeWin
	case p.Value < d.Value:
		return OutcomeLoss
	default:
		return OutcomePush
	}
}
