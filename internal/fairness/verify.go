package fairness

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/actionhash"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/players"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Users resolves player ids
type Users interface {
	GetUser(ctx context.Context, id string) (players.User, error)
}

// ActiveRounds reports a player's live round, if any
type ActiveRounds interface {
	ActiveRound(ctx context.Context, playerID string) (roundID string, ok bool, err error)
}

// HandResult is the settled breakdown of one hand
type HandResult struct {
	Outcome string   `json:"outcome" toml:"outcome"`
	Cards   []string `json:"cards" toml:"cards"`
	Value   int      `json:"value" toml:"value"`
	Wager   int64    `json:"wager" toml:"wager"`
}

// Result is everything a player needs to check a round by hand
type Result struct {
	RoundID          string                `json:"roundId" toml:"round_id"`
	ShoeUsed         []string              `json:"shoeUsed" toml:"shoe_used"`
	ShoeLeft         []string              `json:"shoeLeft" toml:"shoe_left"`
	HandResults      map[string]HandResult `json:"handResults" toml:"hand_results"`
	DealerCards      []string              `json:"dealerCards" toml:"dealer_cards"`
	ActionsHash      string                `json:"actionsHash" toml:"actions_hash"`
	ServerSeed       string                `json:"serverSeed" toml:"server_seed"`
	HashedServerSeed string                `json:"hashedServerSeed" toml:"hashed_server_seed"`
	Nonce            int64                 `json:"nonce" toml:"nonce"`
	ClientSeed       string                `json:"clientSeed" toml:"client_seed"`
}

// Verifier re-derives archived rounds
type Verifier struct {
	users  Users
	active ActiveRounds
	logger zerolog.Logger
}

// NewVerifier returns a verifier resolving seats through users and live
// rounds through active.
func NewVerifier(users Users, active ActiveRounds, logger zerolog.Logger) *Verifier {
	return &Verifier{
		users:  users,
		active: active,
		logger: logger.With().Str("component", "verifier").Logger(),
	}
}

// Verify checks that round was dealt fairly for playerID and returns the
// revealed values. round must come from history.
func (v *Verifier) Verify(ctx context.Context, round *game.GameState, playerID string) (*Result, error) {
	const scope = "fairness.verify"
	if round == nil {
		return nil, errs.E(errs.RoundNotFound, "", scope)
	}
	id := round.ID

	// 1. no verification while the player has a live round
	if live, ok, err := v.active.ActiveRound(ctx, playerID); err != nil {
		return nil, fmt.Errorf("lookup active round: %w", err)
	} else if ok {
		return nil, errs.E(errs.RoundStillActive, id, scope, "player_id", playerID, "active_round_id", live)
	}

	// 2. the round is over and committed
	if round.Status != game.Complete {
		return nil, errs.E(errs.RoundIncomplete, id, scope, "status", round.Status.String())
	}
	if round.Hash == "" {
		return nil, errs.E(errs.MissingHash, id, scope)
	}

	// 3. the player sat in it and every seat is a known user
	seats, err := round.Players.Players()
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return nil, errs.E(errs.MissingSeats, id, scope)
	}
	seat := round.Players.Seat(playerID)
	if seat == nil {
		return nil, errs.E(errs.NotSeated, id, scope, "player_id", playerID)
	}
	if err := v.resolveSeats(ctx, id, seats); err != nil {
		return nil, err
	}

	// 4. the commitment chain ends in the published hash
	for _, s := range seats {
		c := s.Commitment
		if c == nil || c.RoundValue == "" {
			return nil, errs.E(errs.MissingRoundValue, id, scope, "player_id", s.PlayerID)
		}
		if RoundValue(c.ClientSeed, c.Nonce) != c.RoundValue {
			return nil, errs.E(errs.RoundValueMismatch, id, scope, "player_id", s.PlayerID, "nonce", c.Nonce)
		}
	}
	hash, err := CommitTable(id, round.Seed, round.Players)
	if err != nil {
		return nil, err
	}
	if hash != round.Hash {
		return nil, errs.E(errs.HashMismatch, id, scope)
	}

	// 5. the shoe reproduces every dealt card
	shoe := round.Shoe()
	used := round.Players.NextShoeIndex()
	if used > len(shoe) {
		return nil, errs.E(errs.CardMismatch, id, scope, "shoe_index", used-1, "shoe_size", len(shoe))
	}
	for _, s := range round.Players {
		for _, h := range s.Hands {
			if err := matchHand(id, s.PlayerID, h, shoe); err != nil {
				return nil, err
			}
		}
	}

	// 6. reveal
	actions, err := actionhash.Encode(round.Players)
	if err != nil {
		return nil, err
	}
	dealer, err := round.Players.Dealer()
	if err != nil {
		return nil, err
	}
	res := &Result{
		RoundID:          id,
		ShoeUsed:         cards.Tokens(shoe[:used]),
		ShoeLeft:         cards.Tokens(shoe[used:]),
		HandResults:      make(map[string]HandResult, len(seat.Hands)),
		DealerCards:      []string{},
		ActionsHash:      actions,
		ServerSeed:       round.Seed,
		HashedServerSeed: round.Hash,
		Nonce:            seat.Commitment.Nonce,
		ClientSeed:       seat.Commitment.ClientSeed,
	}
	if len(dealer.Hands) == 1 {
		res.DealerCards = cards.Tokens(dealer.Hands[0].PlainCards())
	}
	for _, h := range seat.Hands {
		res.HandResults[strconv.Itoa(h.Index)] = handResult(seat, h)
	}
	v.logger.Debug().Str("round_id", id).Str("player_id", playerID).Int("shoe_used", used).Msg("Verified round")
	return res, nil
}

func (v *Verifier) resolveSeats(ctx context.Context, roundID string, seats []*game.Seat) error {
	g, ctx := errgroup.WithContext(ctx)
	var (
		mu         sync.Mutex
		unresolved []string
	)
	for _, s := range seats {
		g.Go(func() error {
			if _, err := v.users.GetUser(ctx, s.PlayerID); err != nil {
				mu.Lock()
				unresolved = append(unresolved, s.PlayerID)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errs.E(errs.SeatsUnresolved, roundID, "fairness.verify", "player_ids", unresolved).Wrap(err)
	}
	return nil
}

func matchHand(roundID, playerID string, h *game.Hand, shoe []cards.Card) error {
	idxs := h.ShoeIndexes()
	if len(idxs) != len(h.Cards) {
		return errs.E(errs.CardMismatch, roundID, "fairness.verify",
			"player_id", playerID, "hand_index", h.Index, "cards", len(h.Cards), "dealt", len(idxs))
	}
	for i, idx := range idxs {
		if idx < 0 || idx >= len(shoe) || shoe[idx] != h.Cards[i].Card {
			return errs.E(errs.CardMismatch, roundID, "fairness.verify",
				"player_id", playerID, "hand_index", h.Index, "position", i, "shoe_index", idx)
		}
	}
	return nil
}

func handResult(seat *game.Seat, h *game.Hand) HandResult {
	res := HandResult{Outcome: game.OutcomeUnknown.String(), Cards: cards.Tokens(h.PlainCards())}
	if h.Status != nil {
		res.Outcome = h.Status.Outcome.String()
		res.Value = h.Status.Value
	}
	if seat.Wager != nil {
		res.Wager = seat.Wager.Amount
		if h.Status != nil && h.Status.WasDoubled {
			res.Wager *= 2
		}
	}
	return res
}
