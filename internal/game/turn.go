package game

import "github.com/lox/blackjack/internal/errs"

// TableActive reports whether any seat, player or dealer, has a playable hand.
func (g *GameState) TableActive(rules Rules) bool {
	for _, s := range g.Players {
		for _, h := range s.Hands {
			if Playable(h, s.IsDealer(), rules) {
				return true
			}
		}
	}
	return false
}

// ActiveHand returns the first playable player hand scanning seats in seat
// order and hands in index order. ok is false when no player hand is
// playable, in which case the dealer is implicitly next.
func (g *GameState) ActiveHand(rules Rules) (seat *Seat, hand *Hand, ok bool) {
	players, err := g.Players.Players()
	if err != nil {
		return nil, nil, false
	}
	for _, s := range players {
		for _, h := range s.Hands {
			if Playable(h, false, rules) {
				return s, h, true
			}
		}
	}
	return nil, nil, false
}

// DealerTurn reports whether the dealer has a playable hand and no player
// hand is playable.
func (g *GameState) DealerTurn(rules Rules) bool {
	dealer, err := g.Players.Dealer()
	if err != nil || len(dealer.Hands) == 0 {
		return false
	}
	if _, _, ok := g.ActiveHand(rules); ok {
		return false
	}
	return Playable(dealer.Hands[0], true, rules)
}

// ValidatePlayerHandAction rejects an action unless the player is seated,
// holds the hand, that hand is the active one, and its status allows the
// action.
func (g *GameState) ValidatePlayerHandAction(playerID string, handIndex int, action ActionType, rules Rules) error {
	const scope = "game.validate_action"
	if g.Status == Complete {
		return errs.E(errs.RoundComplete, g.ID, scope)
	}
	if playerID == DealerID {
		return errs.E(errs.NotSeated, g.ID, scope, "player_id", playerID)
	}
	seat := g.Players.Seat(playerID)
	if seat == nil {
		return errs.E(errs.NotSeated, g.ID, scope, "player_id", playerID)
	}
	hand := seat.Hand(handIndex)
	if hand == nil || hand.Status == nil {
		return errs.E(errs.MissingHand, g.ID, scope, "player_id", playerID, "hand_index", handIndex)
	}
	if g.Status != Active {
		return errs.E(errs.InvalidTransition, g.ID, scope, "from", g.Status.String(), "to", "play")
	}
	activeSeat, activeHand, ok := g.ActiveHand(rules)
	if !ok || activeSeat != seat || activeHand != hand {
		return errs.E(errs.WrongTurn, g.ID, scope, "player_id", playerID, "hand_index", handIndex)
	}
	if action == ActionInsurance && hand.Has(ActionInsurance) {
		return errs.E(errs.AlreadyInsured, g.ID, scope, "player_id", playerID, "hand_index", handIndex)
	}
	if action == ActionDeal {
		return errs.E(errs.IllegalAction, g.ID, scope, "player_id", playerID, "hand_index", handIndex, "action", action.String())
	}
	if !hand.Status.Allows(action) {
		return errs.E(errs.IllegalAction, g.ID, scope, "player_id", playerID, "hand_index", handIndex, "action", action.String())
	}
	return nil
}
