// Package fairness implements the commitment chain that binds a round's shoe
// to the house seed and every player's round value, and the verification of
// archived rounds against it.
package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/game"
)

// GameKind namespaces round values so other games never share a nonce
// stream with blackjack.
const GameKind = "blackjack"

func mac(key, msg string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}

// RoundValue derives a player's value for one round from their client seed
// and nonce.
func RoundValue(clientSeed string, nonce int64) string {
	return mac(clientSeed, GameKind+":"+strconv.FormatInt(nonce, 10))
}

// Commit folds values into seed one at a time, each step keyed by the
// previous result. With no values it returns the seed unchanged.
func Commit(seed string, values ...string) string {
	acc := seed
	for _, v := range values {
		acc = mac(acc, v)
	}
	return acc
}

// CommitTable folds the recorded commitment of every player seat, in seat
// order, into seed.
func CommitTable(roundID, seed string, t game.Table) (string, error) {
	players, err := t.Players()
	if err != nil {
		return "", err
	}
	if len(players) == 0 {
		return "", errs.E(errs.MissingSeats, roundID, "fairness.commit")
	}
	values := make([]string, 0, len(players))
	for _, s := range players {
		if s.Commitment == nil || s.Commitment.RoundValue == "" {
			return "", errs.E(errs.MissingRoundValue, roundID, "fairness.commit", "player_id", s.PlayerID)
		}
		values = append(values, s.Commitment.RoundValue)
	}
	return Commit(seed, values...), nil
}
