package game

import (
	"fmt"
	"time"
)

// ActionType numbers an action variant. The numbers are part of the compact
// action hash and must not change.
type ActionType uint8

const (
	ActionDeal ActionType = iota
	ActionHit
	ActionStand
	ActionDoubleDown
	ActionSplit
	ActionInsurance
)

// String returns the wire name of the action type
func (t ActionType) String() string {
	switch t {
	case ActionDeal:
		return "deal"
	case ActionHit:
		return "hit"
	case ActionStand:
		return "stand"
	case ActionDoubleDown:
		return "double_down"
	case ActionSplit:
		return "split"
	case ActionInsurance:
		return "insurance"
	default:
		return fmt.Sprintf("action(%d)", uint8(t))
	}
}

// ParseActionType resolves a wire name
func ParseActionType(s string) (ActionType, bool) {
	for t := ActionDeal; t <= ActionInsurance; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Action is one entry of a hand's append-only audit trail. The set of
// variants is closed: Deal, Hit, DoubleDown, Split, Stand and Insurance.
type Action interface {
	Type() ActionType
	Time() time.Time
	action()
}

// Deal records a card dealt to a hand outside of a player decision.
type Deal struct {
	ShoeIndex int
	At        time.Time
}

// Hit records a card drawn by choice.
type Hit struct {
	ShoeIndex int
	At        time.Time
}

// DoubleDown records the single card drawn when doubling.
type DoubleDown struct {
	ShoeIndex int
	At        time.Time
}

// Split records a pair being split from hand From into hand To. It appears
// on both hands.
type Split struct {
	From int
	To   int
	At   time.Time
}

// Stand ends a hand's turn.
type Stand struct {
	At time.Time
}

// Insurance records the player's answer to the insurance offer.
type Insurance struct {
	Accept bool
	At     time.Time
}

func (Deal) Type() ActionType       { return ActionDeal }
func (Hit) Type() ActionType        { return ActionHit }
func (DoubleDown) Type() ActionType { return ActionDoubleDown }
func (Split) Type() ActionType      { return ActionSplit }
func (Stand) Type() ActionType      { return ActionStand }
func (Insurance) Type() ActionType  { return ActionInsurance }

func (a Deal) Time() time.Time       { return a.At }
func (a Hit) Time() time.Time        { return a.At }
func (a DoubleDown) Time() time.Time { return a.At }
func (a Split) Time() time.Time      { return a.At }
func (a Stand) Time() time.Time      { return a.At }
func (a Insurance) Time() time.Time  { return a.At }

func (Deal) action()       {}
func (Hit) action()        {}
func (DoubleDown) action() {}
func (Split) action()      {}
func (Stand) action()      {}
func (Insurance) action()  {}

// ShoeIndex returns the shoe offset of the card an action dealt. ok is false
// for actions that deal no card.
func ShoeIndex(a Action) (index int, ok bool) {
	switch a := a.(type) {
	case Deal:
		return a.ShoeIndex, true
	case Hit:
		return a.ShoeIndex, true
	case DoubleDown:
		return a.ShoeIndex, true
	case Split, Stand, Insurance:
		return 0, false
	default:
		panic(fmt.Sprintf("game: unknown action variant %T", a))
	}
}
