package game

import "github.com/lox/blackjack/cards"

// Rules are the table rules the evaluator applies.
type Rules struct {
	Decks            int
	DealerStand      int
	DealerHitsSoft17 bool
	MaxSplitDepth    int
}

// DefaultRules returns an eight deck shoe where the dealer stands on all 17s
// and a seat may split up to three times.
func DefaultRules() Rules {
	return Rules{
		Decks:         cards.DefaultDecks,
		DealerStand:   17,
		MaxSplitDepth: 3,
	}
}

// Env is the table context a hand is evaluated in.
type Env struct {
	Dealer bool
	// Upcard is the dealer's face-up card, nil before the deal.
	Upcard *cards.Card
	// SplitDepth is how many splits the hand's seat has already made.
	SplitDepth int
}

// Evaluate computes the status of a hand. It is pure: the same hand, env and
// rules always produce the same status. Outcome is left unknown.
func Evaluate(h *Hand, env Env, rules Rules) HandStatus {
	value, soft := Total(h.Cards)
	st := HandStatus{
		Value:      value,
		Soft:       soft,
		Hard:       !soft,
		Bust:       value > MaxHandValue,
		SplitFrom:  h.splitFrom(),
		WasDoubled: h.Has(ActionDoubleDown),
	}
	// either side of a split can only make 21, never a natural
	st.Blackjack = len(h.Cards) == 2 && value == MaxHandValue && !h.Has(ActionSplit)

	if env.Dealer || !playable(h, st, false, rules) {
		return st
	}

	pair := len(h.Cards) == 2
	st.CanHit = true
	st.CanStand = true
	st.CanDoubleDown = pair && !st.WasDoubled
	st.CanSplit = pair && h.Cards[0].Rank == h.Cards[1].Rank && env.SplitDepth < rules.MaxSplitDepth
	st.CanInsure = pair &&
		env.Upcard != nil && env.Upcard.IsAce() &&
		st.SplitFrom == nil &&
		!h.Has(ActionInsurance) &&
		!h.Has(ActionHit) && !h.Has(ActionSplit) && !h.Has(ActionDoubleDown)
	return st
}

// playable applies the active-ness test to a status that may not yet be
// attached to the hand.
func playable(h *Hand, st HandStatus, dealer bool, rules Rules) bool {
	if st.Bust || st.Blackjack {
		return false
	}
	if dealer {
		below := st.Value < rules.DealerStand
		soft17 := rules.DealerHitsSoft17 && st.Soft && st.Value == 17
		if !below && !soft17 {
			return false
		}
	} else if st.Value >= MaxHandValue {
		return false
	}
	return !h.Stood()
}

// Playable reports whether a hand can still act: it has been dealt, is not
// bust or a natural, is below the dealer's stand threshold (dealer) or 21
// (player), and its last action is not a Stand.
func Playable(h *Hand, dealer bool, rules Rules) bool {
	if h == nil || h.Status == nil {
		return false
	}
	return playable(h, *h.Status, dealer, rules)
}
