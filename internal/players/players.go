// Package players is an in-memory stand-in for the account service: it
// resolves user ids and hands out per-round values for the commitment chain.
package players

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/lox/blackjack/internal/game"
	"github.com/rs/zerolog"
)

// ErrUserNotFound is returned for an unknown user id
var ErrUserNotFound = errors.New("user not found")

// User is a registered player
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ClientSeed string `json:"clientSeed"`
}

// DeriveFunc turns a client seed and nonce into a round value
type DeriveFunc func(clientSeed string, nonce int64) string

type nonceKey struct {
	player string
	kind   string
}

// Directory holds users and their nonce counters
type Directory struct {
	mu     sync.RWMutex
	users  map[string]User
	nonces map[nonceKey]int64
	derive DeriveFunc
	logger zerolog.Logger
}

// NewDirectory returns an empty directory deriving round values with derive
func NewDirectory(derive DeriveFunc, logger zerolog.Logger) *Directory {
	return &Directory{
		users:  make(map[string]User),
		nonces: make(map[nonceKey]int64),
		derive: derive,
		logger: logger.With().Str("component", "players").Logger(),
	}
}

// Register adds or replaces a user. A random client seed is assigned when
// none is given.
func (d *Directory) Register(u User) (User, error) {
	if u.ID == "" {
		return User{}, fmt.Errorf("register user: empty id")
	}
	if u.ClientSeed == "" {
		seed, err := randomSeed()
		if err != nil {
			return User{}, fmt.Errorf("register user %s: %w", u.ID, err)
		}
		u.ClientSeed = seed
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
	d.logger.Debug().Str("player_id", u.ID).Msg("Registered player")
	return u, nil
}

// GetUser returns the user with id
func (d *Directory) GetUser(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return u, nil
}

// RotateClientSeed replaces a user's client seed and restarts their nonces.
func (d *Directory) RotateClientSeed(id, seed string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u.ClientSeed = seed
	d.users[id] = u
	for k := range d.nonces {
		if k.player == id {
			delete(d.nonces, k)
		}
	}
	return nil
}

// Next returns the next round value for a player in a game kind. Nonces
// start at zero and increase by one per call.
func (d *Directory) Next(_ context.Context, playerID, kind string) (game.Commitment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[playerID]
	if !ok {
		return game.Commitment{}, fmt.Errorf("%w: %s", ErrUserNotFound, playerID)
	}
	key := nonceKey{player: playerID, kind: kind}
	nonce := d.nonces[key]
	d.nonces[key] = nonce + 1
	return game.Commitment{
		RoundValue: d.derive(u.ClientSeed, nonce),
		Nonce:      nonce,
		ClientSeed: u.ClientSeed,
	}, nil
}

func randomSeed() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
