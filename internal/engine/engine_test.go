package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/players"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/store"
	"github.com/lox/blackjack/internal/wager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = wager.Limits{
	DemoStake: 1,
	ByType: map[string]wager.Range{
		wager.Main:      {Min: 10, Max: 1000},
		"perfect_pairs": {Min: 5, Max: 100},
	},
}

func live(amount int64) wager.Wager { return wager.Wager{Type: wager.Main, Amount: amount} }

type harness struct {
	engine *Engine
	rounds *store.RoundStore
	users  *players.Directory
}

type failingValues struct{}

func (failingValues) Next(context.Context, string, string) (game.Commitment, error) {
	return game.Commitment{}, errors.New("provider down")
}

func (failingValues) RotateClientSeed(string, string) error { return nil }

func newHarness(t *testing.T, values RoundValues) *harness {
	t.Helper()
	logger := zerolog.Nop()
	rounds := store.New(store.NewMemoryDocuments(), store.NewMemoryCache(nil, 100), store.Options{LockTimeout: time.Second}, logger)
	users := players.NewDirectory(fairness.RoundValue, logger)
	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := users.Register(players.User{ID: id, ClientSeed: id + "-client-seed"})
		require.NoError(t, err)
	}
	if values == nil {
		values = users
	}
	eng := New(rounds, users, values, Config{Rules: game.DefaultRules(), Limits: testLimits}, logger,
		WithClock(quartz.NewMock(t)))
	return &harness{engine: eng, rounds: rounds, users: users}
}

// playOut stands on whichever hand has the turn until the round completes.
func (h *harness) playOut(t *testing.T, v *View) *View {
	t.Helper()
	ctx := context.Background()
	for range 20 {
		if v.Status != game.Active.String() {
			return v
		}
		require.NotNil(t, v.Turn, "active round without a turn")
		var err error
		v, err = h.engine.Act(ctx, ActRequest{
			RoundID:   v.ID,
			PlayerID:  v.Turn.PlayerID,
			HandIndex: v.Turn.HandIndex,
			Action:    game.ActionStand,
		})
		require.NoError(t, err)
	}
	t.Fatalf("round %s did not complete", v.ID)
	return nil
}

func TestStartPlayVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	v, err := h.engine.Start(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	require.NoError(t, roundid.Validate(v.ID))
	assert.NotEmpty(t, v.Hash)
	assert.Equal(t, cards.DefaultDecks, v.Decks)
	if v.Status == game.Active.String() {
		assert.Empty(t, v.Seed, "seed leaked while the round is live")
		require.NotNil(t, v.Dealer)
		assert.True(t, v.Dealer.Hands[0].Cards[1].Hidden)
		assert.Empty(t, v.Dealer.Hands[0].Cards[1].Card)
		assert.Nil(t, v.Dealer.Hands[0].Status)
		assert.NotEmpty(t, v.ActionsHash)

		_, err := h.engine.Verify(ctx, v.ID, "alice")
		assert.ErrorIs(t, err, errs.RoundStillActive)
	}

	v = h.playOut(t, v)
	require.Equal(t, game.Complete.String(), v.Status)
	assert.NotEmpty(t, v.Seed)
	require.NotNil(t, v.CompletedAt)
	assert.False(t, v.Dealer.Hands[0].Cards[1].Hidden)
	for _, hand := range v.Seats[0].Hands {
		require.NotNil(t, hand.Status)
		assert.NotEqual(t, game.OutcomeUnknown, hand.Status.Outcome)
	}

	_, ok, err := h.rounds.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := h.engine.Verify(ctx, v.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, v.Seed, res.ServerSeed)
	assert.Equal(t, v.Hash, res.HashedServerSeed)
	assert.Equal(t, int64(0), res.Nonce)
	assert.Equal(t, "alice-client-seed", res.ClientSeed)
	assert.Equal(t, fairness.Commit(v.Seed, fairness.RoundValue("alice-client-seed", 0)), v.Hash)
	assert.NotEmpty(t, res.ShoeUsed)
	assert.Len(t, res.ShoeLeft, cards.DefaultDecks*cards.DeckSize-len(res.ShoeUsed))

	again, err := h.engine.View(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Seed, again.Seed)
}

func TestSecondRoundUsesNextNonce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	for want := range int64(2) {
		v, err := h.engine.Start(ctx, OpenRequest{PlayerID: "bob", Wager: live(20)})
		require.NoError(t, err)
		v = h.playOut(t, v)
		res, err := h.engine.Verify(ctx, v.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, want, res.Nonce)
	}
}

func TestRotateClientSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	first, err := h.engine.Open(ctx, OpenRequest{PlayerID: "bob", Wager: live(20)})
	require.NoError(t, err)
	err = h.engine.RotateClientSeed(ctx, "bob", "fresh")
	assert.ErrorIs(t, err, errs.RoundInProgress)

	first, err = h.engine.Deal(ctx, first.ID, "bob")
	require.NoError(t, err)
	first = h.playOut(t, first)

	require.NoError(t, h.engine.RotateClientSeed(ctx, "bob", "fresh"))
	second, err := h.engine.Start(ctx, OpenRequest{PlayerID: "bob", Wager: live(20)})
	require.NoError(t, err)
	second = h.playOut(t, second)

	res, err := h.engine.Verify(ctx, second.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.ClientSeed)
	assert.Equal(t, int64(0), res.Nonce)

	res, err = h.engine.Verify(ctx, first.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob-client-seed", res.ClientSeed)

	assert.ErrorIs(t, h.engine.RotateClientSeed(ctx, "bob", ""), errs.BadRequest)
	assert.ErrorIs(t, h.engine.RotateClientSeed(ctx, "mallory", "x"), errs.UnknownPlayer)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.Open(ctx, OpenRequest{PlayerID: "mallory", Wager: live(50)})
	assert.ErrorIs(t, err, errs.UnknownPlayer)

	_, err = h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(5000)})
	assert.ErrorIs(t, err, errs.InvalidWagerMix)

	withDeadSide := live(50)
	withDeadSide.Sides = []wager.Wager{{Type: "perfect_pairs", Amount: 500}}
	_, err = h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: withDeadSide})
	assert.ErrorIs(t, err, errs.InvalidWagerMix)

	_, ok, err := h.rounds.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "a rejected wager created a round")

	_, err = h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	_, err = h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	assert.ErrorIs(t, err, errs.RoundInProgress)
}

func TestOpenHidesSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	v, err := h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	assert.Equal(t, game.Pending.String(), v.Status)
	assert.Empty(t, v.Seed)
	assert.Empty(t, v.Hash)
	assert.Nil(t, v.Turn)
	require.Len(t, v.Seats, 1)
	assert.Empty(t, v.Seats[0].Hands)

	raw, err := h.rounds.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, raw.Seed, 64)
	assert.True(t, raw.Players[len(raw.Players)-1].IsDealer())

	_, err = h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: "alice", HandIndex: 0, Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.MissingHand)
}

func TestJoinAndDealMultiplayer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	v, err := h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)

	_, err = h.engine.Join(ctx, JoinRequest{RoundID: v.ID, PlayerID: "bob", Wager: wager.Wager{Type: wager.Main, Amount: 1}})
	assert.ErrorIs(t, err, errs.InvalidWagerMix, "demo stake at a live table")

	_, err = h.engine.Join(ctx, JoinRequest{RoundID: v.ID, PlayerID: "alice", Wager: live(50)})
	assert.ErrorIs(t, err, errs.RoundInProgress)

	v, err = h.engine.Join(ctx, JoinRequest{RoundID: v.ID, PlayerID: "bob", Wager: live(30)})
	require.NoError(t, err)
	require.Len(t, v.Seats, 2)
	assert.Equal(t, "bob", v.Seats[1].PlayerID)
	assert.Equal(t, 1, *v.Seats[1].SeatIndex)

	for _, p := range []string{"carol", "mallory", game.DealerID} {
		_, err = h.engine.Deal(ctx, v.ID, p)
		assert.ErrorIs(t, err, errs.NotSeated, p)
	}
	pending, err := h.engine.View(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Pending.String(), pending.Status)
	assert.Empty(t, pending.Hash)

	v, err = h.engine.Deal(ctx, v.ID, "bob")
	require.NoError(t, err)

	_, err = h.engine.Join(ctx, JoinRequest{RoundID: v.ID, PlayerID: "carol", Wager: live(30)})
	if v.Status == game.Complete.String() {
		assert.ErrorIs(t, err, errs.RoundComplete)
	} else {
		assert.ErrorIs(t, err, errs.InvalidTransition)
	}

	v = h.playOut(t, v)
	for _, p := range []string{"alice", "bob"} {
		res, err := h.engine.Verify(ctx, v.ID, p)
		require.NoError(t, err, p)
		assert.NotEmpty(t, res.HandResults)
	}
	_, err = h.engine.Verify(ctx, v.ID, "carol")
	assert.ErrorIs(t, err, errs.NotSeated)
}

func TestDealRejectsWithoutRoundValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, failingValues{})

	v, err := h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)

	_, err = h.engine.Deal(ctx, v.ID, "alice")
	assert.ErrorIs(t, err, errs.MissingRoundValue)

	v, err = h.engine.View(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Rejected.String(), v.Status)

	_, ok, err := h.rounds.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.engine.Deal(ctx, v.ID, "alice")
	assert.ErrorIs(t, err, errs.InvalidTransition)
}

func TestActValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.Act(ctx, ActRequest{RoundID: "not-an-id", PlayerID: "alice", Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.InvalidRoundID)

	missing, err := roundid.New()
	require.NoError(t, err)
	_, err = h.engine.Act(ctx, ActRequest{RoundID: missing, PlayerID: "alice", Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.RoundNotFound)

	v, err := h.engine.Start(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	if v.Status != game.Active.String() {
		t.Skip("opening deal settled the round")
	}
	_, err = h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: "bob", Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.NotSeated)

	_, err = h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: "alice", HandIndex: 5, Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.MissingHand)

	_, err = h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: game.DealerID, Action: game.ActionStand})
	assert.ErrorIs(t, err, errs.NotSeated)

	v = h.playOut(t, v)
	_, err = h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: "alice", Action: game.ActionHit})
	assert.ErrorIs(t, err, errs.RoundComplete)
}

func TestConcurrentActionsAreSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	v, err := h.engine.Start(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	if v.Status != game.Active.String() {
		t.Skip("opening deal settled the round")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Act(ctx, ActRequest{RoundID: v.ID, PlayerID: "alice", HandIndex: 0, Action: game.ActionStand})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, 1)
	assert.NotErrorIs(t, failures[0], errs.LockNotAcquired)
	assert.NotEqual(t, errs.Kind(""), errs.KindOf(failures[0]))
}

func TestOpenAndJoinBySamePlayerAreSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for range 5 {
		h := newHarness(t, nil)
		table, err := h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			openErr error
			joinErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, openErr = h.engine.Open(ctx, OpenRequest{PlayerID: "bob", Wager: live(20)})
		}()
		go func() {
			defer wg.Done()
			_, joinErr = h.engine.Join(ctx, JoinRequest{RoundID: table.ID, PlayerID: "bob", Wager: live(20)})
		}()
		wg.Wait()

		if openErr == nil {
			assert.ErrorIs(t, joinErr, errs.RoundInProgress)
		} else {
			assert.ErrorIs(t, openErr, errs.RoundInProgress)
			assert.NoError(t, joinErr)
		}
	}
}

func TestVerifyRejectsLiveRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	done, err := h.engine.Start(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)
	done = h.playOut(t, done)

	pending, err := h.engine.Open(ctx, OpenRequest{PlayerID: "alice", Wager: live(50)})
	require.NoError(t, err)

	_, err = h.engine.Verify(ctx, done.ID, "alice")
	assert.ErrorIs(t, err, errs.RoundStillActive)

	_, err = h.engine.Verify(ctx, pending.ID, "bob")
	assert.ErrorIs(t, err, errs.RoundIncomplete)

	_, err = h.engine.Verify(ctx, done.ID, "bob")
	assert.ErrorIs(t, err, errs.NotSeated)
}
