package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/actionhash"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/game"
)

// ShoeCmd prints the shoe a committed round hash deals from
type ShoeCmd struct {
	Seed  string `kong:"required,help='Committed round hash the shoe is keyed by'"`
	Decks int    `kong:"default='8',help='Number of decks in the shoe'"`
	Limit int    `kong:"help='Print only the first N cards (0 = all)'"`
}

func (c *ShoeCmd) Run() error { return c.run(os.Stdout) }

func (c *ShoeCmd) run(w io.Writer) error {
	if c.Decks < 1 {
		return fmt.Errorf("decks must be at least 1, got %d", c.Decks)
	}
	shoe := cards.GenerateShoe(c.Seed, c.Decks)
	if c.Limit > 0 && c.Limit < len(shoe) {
		shoe = shoe[:c.Limit]
	}
	for i, card := range shoe {
		if _, err := fmt.Fprintf(w, "%4d  %s\n", i, card); err != nil {
			return err
		}
	}
	return nil
}

// DecodeActionsCmd prints the actions recorded in an action hash
type DecodeActionsCmd struct {
	Hash string `arg:"" help:"Action hash as returned with a round"`
}

func (c *DecodeActionsCmd) Run() error { return c.run(os.Stdout) }

func (c *DecodeActionsCmd) run(w io.Writer) error {
	seats, err := actionhash.Decode(c.Hash)
	if err != nil {
		return err
	}
	for _, seat := range seats {
		name := fmt.Sprintf("seat %d", seat.SeatIndex)
		if seat.Dealer {
			name = "dealer"
		}
		for _, hand := range seat.Hands {
			if _, err := fmt.Fprintf(w, "%s hand %d\n", name, hand.Index); err != nil {
				return err
			}
			for _, a := range hand.Actions {
				if _, err := fmt.Fprintf(w, "  %s  %s\n", a.Time().Format(time.RFC3339Nano), describeAction(a)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func describeAction(a game.Action) string {
	switch a := a.(type) {
	case game.Split:
		return fmt.Sprintf("split %d -> %d", a.From, a.To)
	case game.Insurance:
		if a.Accept {
			return "insurance accepted"
		}
		return "insurance declined"
	default:
		if idx, ok := game.ShoeIndex(a); ok {
			return fmt.Sprintf("%s card %d", a.Type(), idx)
		}
		return a.Type().String()
	}
}

// CommitCmd folds round values into a server seed
type CommitCmd struct {
	Seed   string   `kong:"required,help='Server seed'"`
	Values []string `kong:"name='value',help='Round value of each seat in seat order'"`
}

func (c *CommitCmd) Run() error { return c.run(os.Stdout) }

func (c *CommitCmd) run(w io.Writer) error {
	_, err := fmt.Fprintln(w, fairness.Commit(c.Seed, c.Values...))
	return err
}

// VerifyCmd re-derives a round's commitment from its revealed seeds
type VerifyCmd struct {
	ServerSeed  string   `kong:"required,name='server-seed',help='Revealed server seed'"`
	ClientSeeds []string `kong:"required,name='client-seed',help='Client seed of each seat in seat order'"`
	Nonces      []int64  `kong:"required,name='nonce',help='Nonce of each seat in seat order'"`
	Hash        string   `kong:"help='Committed hash to check against'"`
	Decks       int      `kong:"default='8',help='Number of decks in the shoe'"`
	Cards       int      `kong:"default='16',help='Number of shoe cards to print'"`
	Format      string   `kong:"default='text',enum='text,json,toml',help='Output format'"`
}

type proof struct {
	RoundValues []string `json:"roundValues" toml:"round_values"`
	Hash        string   `json:"hash" toml:"hash"`
	Expected    string   `json:"expected,omitempty" toml:"expected,omitempty"`
	Match       bool     `json:"match" toml:"match"`
	Shoe        []string `json:"shoe" toml:"shoe"`
}

var errHashMismatch = errors.New("derived hash does not match the committed hash")

func (c *VerifyCmd) Run() error { return c.run(os.Stdout) }

func (c *VerifyCmd) run(w io.Writer) error {
	if len(c.ClientSeeds) != len(c.Nonces) {
		return fmt.Errorf("got %d client seeds and %d nonces", len(c.ClientSeeds), len(c.Nonces))
	}
	if c.Decks < 1 {
		return fmt.Errorf("decks must be at least 1, got %d", c.Decks)
	}

	p := proof{Expected: c.Hash}
	for i, seed := range c.ClientSeeds {
		p.RoundValues = append(p.RoundValues, fairness.RoundValue(seed, c.Nonces[i]))
	}
	p.Hash = fairness.Commit(c.ServerSeed, p.RoundValues...)
	p.Match = c.Hash == "" || strings.EqualFold(c.Hash, p.Hash)

	shoe := cards.GenerateShoe(p.Hash, c.Decks)
	if c.Cards >= 0 && c.Cards < len(shoe) {
		shoe = shoe[:c.Cards]
	}
	p.Shoe = cards.Tokens(shoe)

	if err := writeProof(w, c.Format, p); err != nil {
		return err
	}
	if !p.Match {
		return errHashMismatch
	}
	return nil
}

func writeProof(w io.Writer, format string, p proof) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "toml":
		return toml.NewEncoder(w).Encode(p)
	default:
		var b strings.Builder
		for i, v := range p.RoundValues {
			fmt.Fprintf(&b, "round value %d: %s\n", i, v)
		}
		fmt.Fprintf(&b, "hash:          %s\n", p.Hash)
		if p.Expected != "" {
			fmt.Fprintf(&b, "expected:      %s\n", p.Expected)
			fmt.Fprintf(&b, "match:         %t\n", p.Match)
		}
		fmt.Fprintf(&b, "shoe:          %s\n", strings.Join(p.Shoe, " "))
		_, err := io.WriteString(w, b.String())
		return err
	}
}
