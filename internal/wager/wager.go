// Package wager classifies stakes into demo, dead or live groups and rejects
// any start request that would mix them.
package wager

import (
	"fmt"

	"github.com/lox/blackjack/internal/errs"
)

// Main is the type of the wager that buys a seat at the table.
const Main = "main"

// Group classifies a wager.
type Group uint8

const (
	Dead Group = iota
	Demo
	Live
)

func (g Group) String() string {
	switch g {
	case Demo:
		return "demo"
	case Live:
		return "live"
	default:
		return "dead"
	}
}

// Wager is a main stake with optional side bets.
type Wager struct {
	Type   string  `json:"type"`
	Amount int64   `json:"amount"`
	Sides  []Wager `json:"sides,omitempty"`
}

// Total returns the amount of the wager and its side bets together.
func (w Wager) Total() int64 {
	total := w.Amount
	for _, s := range w.Sides {
		total += s.Total()
	}
	return total
}

// Range is an inclusive stake range.
type Range struct {
	Min int64
	Max int64
}

// Contains reports whether amount lies inside the range.
func (r Range) Contains(amount int64) bool {
	return amount >= r.Min && amount <= r.Max
}

// Limits holds the configured stakes per wager type.
type Limits struct {
	DemoStake int64
	ByType    map[string]Range
}

// Classify groups a single stake, ignoring its side bets. A stake equal to the
// demo stake is demo; otherwise it is live inside its type's range and dead
// outside it. Unknown types are dead.
func (l Limits) Classify(w Wager) Group {
	if w.Amount == l.DemoStake {
		return Demo
	}
	r, ok := l.ByType[w.Type]
	if !ok || !r.Contains(w.Amount) {
		return Dead
	}
	return Live
}

// ClassifyMain groups a main wager together with its side bets. Side bets
// must land in the same group as the main stake or the whole wager is dead.
func (l Limits) ClassifyMain(w Wager) Group {
	g := l.Classify(w)
	if g == Dead {
		return Dead
	}
	for _, side := range w.Sides {
		if side.Type == Main || l.Classify(side) != g {
			return Dead
		}
	}
	return g
}

// ValidateBatch checks every main wager of one start request and returns the
// single group they share. Any dead wager, or demo and live together, rejects
// the entire batch.
func (l Limits) ValidateBatch(roundID string, ws []Wager) (Group, error) {
	if len(ws) == 0 {
		return Dead, errs.E(errs.NoWagers, roundID, "wager.validate")
	}
	var dead, demo, live int
	for _, w := range ws {
		if w.Type != Main {
			dead++
			continue
		}
		switch l.ClassifyMain(w) {
		case Demo:
			demo++
		case Live:
			live++
		default:
			dead++
		}
	}
	if dead > 0 || (demo > 0 && live > 0) {
		return Dead, errs.E(errs.InvalidWagerMix, roundID, "wager.validate",
			"dead", dead, "demo", demo, "live", live)
	}
	if demo > 0 {
		return Demo, nil
	}
	return Live, nil
}

// Validate checks the limits themselves.
func (l Limits) Validate() error {
	if _, ok := l.ByType[Main]; !ok {
		return fmt.Errorf("wager: no limit configured for %q", Main)
	}
	for typ, r := range l.ByType {
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("wager: invalid range for %q: %d..%d", typ, r.Min, r.Max)
		}
		if r.Contains(l.DemoStake) {
			return fmt.Errorf("wager: demo stake %d overlaps live range for %q", l.DemoStake, typ)
		}
	}
	return nil
}
