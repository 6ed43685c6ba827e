// Package engine runs blackjack rounds end to end: it opens and seats
// rounds, commits and deals the shoe, applies player actions under the
// round's lock, plays the dealer, archives finished rounds and verifies
// them afterwards.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/wager"
	"github.com/rs/zerolog"
)

// Rounds is the round persistence the engine needs
type Rounds interface {
	Upsert(ctx context.Context, g *game.GameState) error
	Get(ctx context.Context, id string) (*game.GameState, error)
	Lock(ctx context.Context, id string) (release func(), err error)
	Archive(ctx context.Context, g *game.GameState) error
	History(ctx context.Context, id string) (*game.GameState, error)
	ActiveRound(ctx context.Context, playerID string) (string, bool, error)
}

// RoundValues hands out a player's next committed round value
type RoundValues interface {
	Next(ctx context.Context, playerID, kind string) (game.Commitment, error)
	RotateClientSeed(playerID, seed string) error
}

// Config holds the table rules and stake limits
type Config struct {
	Rules  game.Rules
	Limits wager.Limits
}

// Engine coordinates rounds
type Engine struct {
	rounds   Rounds
	users    fairness.Users
	values   RoundValues
	verifier *fairness.Verifier
	rules    game.Rules
	limits   wager.Limits
	clock    quartz.Clock
	ids      *roundid.Generator
	entropy  io.Reader
	logger   zerolog.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock sets the clock used for action timestamps
func WithClock(c quartz.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEntropy sets the source of round seeds and ids
func WithEntropy(r io.Reader) Option {
	return func(e *Engine) {
		e.entropy = r
		e.ids = roundid.NewGenerator(r)
	}
}

// New returns an engine
func New(rounds Rounds, users fairness.Users, values RoundValues, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		rounds:  rounds,
		users:   users,
		values:  values,
		rules:   cfg.Rules,
		limits:  cfg.Limits,
		clock:   quartz.NewReal(),
		ids:     roundid.NewGenerator(nil),
		entropy: rand.Reader,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.verifier = fairness.NewVerifier(users, rounds, logger)
	return e
}

// OpenRequest opens a round for one player
type OpenRequest struct {
	PlayerID string      `json:"-"`
	Wager    wager.Wager `json:"wager"`
}

// JoinRequest seats another player at a pending round
type JoinRequest struct {
	RoundID  string      `json:"-"`
	PlayerID string      `json:"-"`
	Wager    wager.Wager `json:"wager"`
}

// ActRequest is a player decision on one hand
type ActRequest struct {
	RoundID   string          `json:"-"`
	PlayerID  string          `json:"-"`
	HandIndex int             `json:"handIndex"`
	Action    game.ActionType `json:"-"`
	Accept    bool            `json:"accept"`
}

func (e *Engine) newSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(e.entropy, b); err != nil {
		return "", fmt.Errorf("generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (e *Engine) requireUser(ctx context.Context, roundID, playerID string) error {
	if _, err := e.users.GetUser(ctx, playerID); err != nil {
		return errs.E(errs.UnknownPlayer, roundID, "engine.user", "player_id", playerID).Wrap(err)
	}
	return nil
}

// playerLock serializes the operations that seat a player, so two of them
// cannot both pass the live round check. It is always taken before any
// round lock.
func playerLock(playerID string) string { return "player:" + playerID }

func (e *Engine) requireNoLiveRound(ctx context.Context, playerID string) error {
	live, ok, err := e.rounds.ActiveRound(ctx, playerID)
	if err != nil {
		return fmt.Errorf("lookup active round: %w", err)
	}
	if ok {
		return errs.E(errs.RoundInProgress, live, "engine.open", "player_id", playerID)
	}
	return nil
}

// RotateClientSeed replaces a player's client seed. Nonces restart at zero
// under the new seed, so it is refused while the player has a live round.
func (e *Engine) RotateClientSeed(ctx context.Context, playerID, seed string) error {
	if seed == "" {
		return errs.E(errs.BadRequest, "", "engine.seed", "reason", "client seed is empty")
	}
	if err := e.requireUser(ctx, "", playerID); err != nil {
		return err
	}

	release, err := e.rounds.Lock(ctx, playerLock(playerID))
	if err != nil {
		return err
	}
	defer release()
	if err := e.requireNoLiveRound(ctx, playerID); err != nil {
		return err
	}
	if err := e.values.RotateClientSeed(playerID, seed); err != nil {
		return errs.E(errs.UnknownPlayer, "", "engine.seed", "player_id", playerID).Wrap(err)
	}
	e.logger.Info().Str("player_id", playerID).Msg("Rotated client seed")
	return nil
}

// Open creates a pending round with the player's seat and the dealer's. The
// wager is validated before anything is created.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (*View, error) {
	if err := e.requireUser(ctx, "", req.PlayerID); err != nil {
		return nil, err
	}
	if _, err := e.limits.ValidateBatch("", []wager.Wager{req.Wager}); err != nil {
		return nil, err
	}

	release, err := e.rounds.Lock(ctx, playerLock(req.PlayerID))
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.requireNoLiveRound(ctx, req.PlayerID); err != nil {
		return nil, err
	}

	id, err := e.ids.New()
	if err != nil {
		return nil, err
	}
	seed, err := e.newSeed()
	if err != nil {
		return nil, err
	}
	w := req.Wager
	g := game.NewGame(id, seed, &game.Seat{
		PlayerID: req.PlayerID,
		BetID:    uuid.NewString(),
		Wager:    &w,
	}, e.clock.Now())
	g.Decks = e.rules.Decks
	if err := e.rounds.Upsert(ctx, g); err != nil {
		return nil, err
	}
	e.logger.Info().Str("round_id", id).Str("player_id", req.PlayerID).Int64("stake", w.Total()).Msg("Opened round")
	return NewView(g, e.rules), nil
}

// Join seats another player at a pending round. The table's wagers,
// including the new one, must form a single group.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (*View, error) {
	const scope = "engine.join"
	if err := e.requireUser(ctx, req.RoundID, req.PlayerID); err != nil {
		return nil, err
	}
	release, err := e.rounds.Lock(ctx, playerLock(req.PlayerID))
	if err != nil {
		return nil, err
	}
	defer release()
	return e.mutate(ctx, req.RoundID, func(g *game.GameState) error {
		if g.Status != game.Pending {
			return errs.E(errs.InvalidTransition, g.ID, scope, "from", g.Status.String(), "to", "join")
		}
		if g.Players.Seat(req.PlayerID) != nil {
			return errs.E(errs.RoundInProgress, g.ID, scope, "player_id", req.PlayerID)
		}
		if err := e.requireNoLiveRound(ctx, req.PlayerID); err != nil {
			return err
		}
		ws, err := seatedWagers(g)
		if err != nil {
			return err
		}
		if _, err := e.limits.ValidateBatch(g.ID, append(ws, req.Wager)); err != nil {
			return err
		}
		w := req.Wager
		g.Players, err = g.Players.AddPlayer(&game.Seat{
			PlayerID: req.PlayerID,
			BetID:    uuid.NewString(),
			Wager:    &w,
		})
		return err
	})
}

func seatedWagers(g *game.GameState) ([]wager.Wager, error) {
	seats, err := g.Players.Players()
	if err != nil {
		return nil, err
	}
	ws := make([]wager.Wager, 0, len(seats))
	for _, s := range seats {
		if s.Wager != nil {
			ws = append(ws, *s.Wager)
		}
	}
	return ws, nil
}

// Deal commits the round and deals the opening cards. Only a seated player
// may deal. A round whose wagers or round values cannot be settled is
// rejected instead.
func (e *Engine) Deal(ctx context.Context, roundID, playerID string) (*View, error) {
	return e.mutate(ctx, roundID, func(g *game.GameState) error {
		if playerID == game.DealerID || g.Players.Seat(playerID) == nil {
			return errs.E(errs.NotSeated, g.ID, "engine.deal", "player_id", playerID)
		}
		if g.Status != game.Pending {
			return errs.E(errs.InvalidTransition, g.ID, "engine.deal", "from", g.Status.String(), "to", game.Active.String())
		}
		if err := e.commit(ctx, g); err != nil {
			if terr := g.Transition(game.Rejected); terr != nil {
				return errors.Join(err, terr)
			}
			e.logger.Warn().Err(err).Str("round_id", g.ID).Msg("Rejected round")
			if uerr := e.rounds.Upsert(ctx, g); uerr != nil {
				return errors.Join(err, uerr)
			}
			return err
		}
		if err := g.Transition(game.Active); err != nil {
			return err
		}
		shoe := g.Shoe()
		now := e.clock.Now()
		if err := g.OpeningDeal(shoe, now, e.rules); err != nil {
			return err
		}
		e.logger.Info().Str("round_id", g.ID).Str("hash", g.Hash).Int("seats", len(g.Players)-1).Msg("Dealt round")
		return g.Advance(shoe, now, e.rules)
	})
}

// commit collects every seat's round value and sets the round hash.
func (e *Engine) commit(ctx context.Context, g *game.GameState) error {
	const scope = "engine.commit"
	ws, err := seatedWagers(g)
	if err != nil {
		return err
	}
	if _, err := e.limits.ValidateBatch(g.ID, ws); err != nil {
		return err
	}
	seats, _ := g.Players.Players()
	for _, s := range seats {
		c, err := e.values.Next(ctx, s.PlayerID, fairness.GameKind)
		if err != nil {
			return errs.E(errs.MissingRoundValue, g.ID, scope, "player_id", s.PlayerID).Wrap(err)
		}
		s.Commitment = &c
	}
	g.Hash, err = fairness.CommitTable(g.ID, g.Seed, g.Players)
	return err
}

// Start opens a round and deals it straight away
func (e *Engine) Start(ctx context.Context, req OpenRequest) (*View, error) {
	v, err := e.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Deal(ctx, v.ID, req.PlayerID)
}

// Act applies one player decision and lets the dealer play once every
// player hand is finished.
func (e *Engine) Act(ctx context.Context, req ActRequest) (*View, error) {
	return e.mutate(ctx, req.RoundID, func(g *game.GameState) error {
		shoe := g.Shoe()
		now := e.clock.Now()
		move := game.Move{Type: req.Action, Accept: req.Accept}
		if err := g.Apply(req.PlayerID, req.HandIndex, move, shoe, now, e.rules); err != nil {
			return err
		}
		return g.Advance(shoe, now, e.rules)
	})
}

// mutate runs f on the live round under its lock and persists the result.
// Nothing is written when f fails. Complete rounds are archived.
func (e *Engine) mutate(ctx context.Context, roundID string, f func(g *game.GameState) error) (*View, error) {
	if err := roundid.Validate(roundID); err != nil {
		return nil, errs.E(errs.InvalidRoundID, roundID, "engine", "reason", err.Error())
	}
	release, err := e.rounds.Lock(ctx, roundID)
	if err != nil {
		return nil, err
	}
	defer release()

	g, err := e.rounds.Get(ctx, roundID)
	if errors.Is(err, errs.RoundNotFound) {
		if _, herr := e.rounds.History(ctx, roundID); herr == nil {
			return nil, errs.E(errs.RoundComplete, roundID, "engine")
		}
	}
	if err != nil {
		return nil, err
	}
	if err := g.Refresh(e.rules); err != nil {
		return nil, err
	}
	if err := f(g); err != nil {
		return nil, err
	}

	if g.Status == game.Complete {
		if err := e.rounds.Archive(ctx, g); err != nil {
			return nil, err
		}
		e.logger.Info().Str("round_id", g.ID).Msg("Round complete")
	} else if err := e.rounds.Upsert(ctx, g); err != nil {
		return nil, err
	}
	return NewView(g, e.rules), nil
}

// View returns the client view of a live or archived round
func (e *Engine) View(ctx context.Context, roundID string) (*View, error) {
	if err := roundid.Validate(roundID); err != nil {
		return nil, errs.E(errs.InvalidRoundID, roundID, "engine.view", "reason", err.Error())
	}
	g, err := e.rounds.Get(ctx, roundID)
	if errors.Is(err, errs.RoundNotFound) {
		g, err = e.rounds.History(ctx, roundID)
	}
	if err != nil {
		return nil, err
	}
	if err := g.Refresh(e.rules); err != nil {
		return nil, err
	}
	return NewView(g, e.rules), nil
}

// Verify re-derives an archived round for one of its players
func (e *Engine) Verify(ctx context.Context, roundID, playerID string) (*fairness.Result, error) {
	if err := roundid.Validate(roundID); err != nil {
		return nil, errs.E(errs.InvalidRoundID, roundID, "engine.verify", "reason", err.Error())
	}
	g, err := e.rounds.History(ctx, roundID)
	if errors.Is(err, errs.RoundNotFound) {
		// a live round is refused by the verifier's own checks
		if live, lerr := e.rounds.Get(ctx, roundID); lerr == nil {
			g, err = live, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return e.verifier.Verify(ctx, g, playerID)
}
