package game

import (
	"testing"
	"time"

	"github.com/lox/blackjack/cards"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 4, 5, 6, 7, 0, time.UTC)

// rig builds a shoe that deals the given ranks in order, followed by filler.
func rig(ranks ...cards.Rank) []cards.Card {
	shoe := make([]cards.Card, 0, len(ranks)+20)
	for i, r := range ranks {
		shoe = append(shoe, cards.NewCard(r, cards.Suits[i%4]))
	}
	for range 20 {
		shoe = append(shoe, cards.NewCard(cards.Two, cards.Clubs))
	}
	return shoe
}

func newPendingGame(t *testing.T, players ...string) *GameState {
	t.Helper()
	require.NotEmpty(t, players)
	g := NewGame("round-1", "seed", &Seat{PlayerID: players[0]}, testNow)
	for _, p := range players[1:] {
		var err error
		g.Players, err = g.Players.AddPlayer(&Seat{PlayerID: p})
		require.NoError(t, err)
	}
	return g
}

// newDealtGame returns an active round whose opening deal came from shoe.
func newDealtGame(t *testing.T, shoe []cards.Card, players ...string) *GameState {
	t.Helper()
	g := newPendingGame(t, players...)
	g.Hash = "hash"
	require.NoError(t, g.Transition(Active))
	require.NoError(t, g.OpeningDeal(shoe, testNow, DefaultRules()))
	return g
}

func hand(t *testing.T, g *GameState, player string, idx int) *Hand {
	t.Helper()
	s := g.Players.Seat(player)
	require.NotNil(t, s, "seat %s", player)
	h := s.Hand(idx)
	require.NotNil(t, h, "hand %d of %s", idx, player)
	return h
}

func dealerHand(t *testing.T, g *GameState) *Hand {
	t.Helper()
	d, err := g.Players.Dealer()
	require.NoError(t, err)
	require.Len(t, d.Hands, 1)
	return d.Hands[0]
}
