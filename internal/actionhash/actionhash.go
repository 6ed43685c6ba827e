// Package actionhash encodes a round's action log into the compact audit
// string shared with players, and decodes it back.
//
// The raw grammar is a flat stream with no separators:
//
//	P<seat> | D0            seat marker, player or dealer
//	H<hand>                 hand marker, follows its seat
//	A<type><13 digit ms>    one per action, follows its hand
//	S<shoe index>           after Deal, Hit and DoubleDown
//	I<0|1>                  after Insurance; 1 declined, 0 accepted
//	F<from>T<to>            after Split
//
// The stream is zlib compressed and base64 encoded.
package actionhash

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/game"
)

const (
	timestampDigits = 13
	maxTimestamp    = 9_999_999_999_999
)

// SeatActions is the decoded log of one seat
type SeatActions struct {
	Dealer    bool
	SeatIndex int
	Hands     []HandActions
}

// HandActions is the decoded log of one hand
type HandActions struct {
	Index   int
	Actions []game.Action
}

// Encode renders the table's action log, compressed and base64 encoded.
func Encode(t game.Table) (string, error) {
	raw, err := EncodeRaw(t)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(raw)); err != nil {
		return "", fmt.Errorf("compress action log: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress action log: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(hash string) ([]SeatActions, error) {
	compressed, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return nil, errs.E(errs.ActionHashParse, "", "actionhash.decode", "reason", "base64").Wrap(err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.E(errs.ActionHashParse, "", "actionhash.decode", "reason", "zlib").Wrap(err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.E(errs.ActionHashParse, "", "actionhash.decode", "reason", "zlib").Wrap(err)
	}
	return ParseRaw(string(raw))
}

// EncodeRaw renders the uncompressed grammar. Seats without hands are
// skipped.
func EncodeRaw(t game.Table) (string, error) {
	var b strings.Builder
	for pos, seat := range t {
		if len(seat.Hands) == 0 {
			continue
		}
		if seat.IsDealer() {
			b.WriteString("D0")
		} else {
			idx := pos
			if seat.SeatIndex != nil {
				idx = *seat.SeatIndex
			}
			b.WriteString("P" + strconv.Itoa(idx))
		}
		for _, h := range seat.Hands {
			b.WriteString("H" + strconv.Itoa(h.Index))
			for _, a := range h.Actions {
				if err := writeAction(&b, a); err != nil {
					return "", err
				}
			}
		}
	}
	return b.String(), nil
}

func writeAction(b *strings.Builder, a game.Action) error {
	ms := a.Time().UnixMilli()
	if ms < 0 || ms > maxTimestamp {
		return errs.E(errs.ActionHashParse, "", "actionhash.encode", "reason", "timestamp out of range", "timestamp", ms)
	}
	fmt.Fprintf(b, "A%d%0*d", uint8(a.Type()), timestampDigits, ms)
	switch a := a.(type) {
	case game.Deal:
		b.WriteString("S" + strconv.Itoa(a.ShoeIndex))
	case game.Hit:
		b.WriteString("S" + strconv.Itoa(a.ShoeIndex))
	case game.DoubleDown:
		b.WriteString("S" + strconv.Itoa(a.ShoeIndex))
	case game.Insurance:
		if a.Accept {
			b.WriteString("I0")
		} else {
			b.WriteString("I1")
		}
	case game.Split:
		fmt.Fprintf(b, "F%dT%d", a.From, a.To)
	case game.Stand:
	default:
		panic(fmt.Sprintf("actionhash: unknown action variant %T", a))
	}
	return nil
}

// ParseRaw parses the uncompressed grammar. Any character the grammar does
// not expect at its position fails the whole parse.
func ParseRaw(raw string) ([]SeatActions, error) {
	p := &parser{in: raw}
	var seats []SeatActions
	for !p.done() {
		switch c := p.next(); c {
		case 'P', 'D':
			n, err := p.int()
			if err != nil {
				return nil, err
			}
			if c == 'D' && n != 0 {
				return nil, p.fail("dealer seat must be D0")
			}
			seats = append(seats, SeatActions{Dealer: c == 'D', SeatIndex: n})
		case 'H':
			if len(seats) == 0 {
				return nil, p.fail("hand before seat")
			}
			n, err := p.int()
			if err != nil {
				return nil, err
			}
			seat := &seats[len(seats)-1]
			seat.Hands = append(seat.Hands, HandActions{Index: n})
		case 'A':
			if len(seats) == 0 || len(seats[len(seats)-1].Hands) == 0 {
				return nil, p.fail("action before hand")
			}
			a, err := p.action()
			if err != nil {
				return nil, err
			}
			hands := seats[len(seats)-1].Hands
			hands[len(hands)-1].Actions = append(hands[len(hands)-1].Actions, a)
		default:
			p.pos--
			return nil, p.fail(fmt.Sprintf("unexpected %q", c))
		}
	}
	return seats, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.in) }

func (p *parser) next() byte {
	c := p.in[p.pos]
	p.pos++
	return c
}

func (p *parser) fail(reason string) error {
	return errs.E(errs.ActionHashParse, "", "actionhash.parse", "position", p.pos, "reason", reason)
}

func (p *parser) expect(c byte) error {
	if p.done() || p.in[p.pos] != c {
		return p.fail(fmt.Sprintf("expected %q", c))
	}
	p.pos++
	return nil
}

func (p *parser) digits(max int) string {
	start := p.pos
	for !p.done() && p.pos-start < max && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
	return p.in[start:p.pos]
}

func (p *parser) int() (int, error) {
	s := p.digits(9)
	if s == "" {
		return 0, p.fail("expected digits")
	}
	n, _ := strconv.Atoi(s)
	return n, nil
}

func (p *parser) action() (game.Action, error) {
	typ := p.digits(1)
	if typ == "" {
		return nil, p.fail("expected action type")
	}
	ts := p.digits(timestampDigits)
	if len(ts) != timestampDigits {
		return nil, p.fail("expected 13 digit timestamp")
	}
	ms, _ := strconv.ParseInt(ts, 10, 64)
	at := time.UnixMilli(ms).UTC()

	shoeIndex := func() (int, error) {
		if err := p.expect('S'); err != nil {
			return 0, err
		}
		return p.int()
	}

	switch game.ActionType(typ[0] - '0') {
	case game.ActionDeal:
		idx, err := shoeIndex()
		return game.Deal{ShoeIndex: idx, At: at}, err
	case game.ActionHit:
		idx, err := shoeIndex()
		return game.Hit{ShoeIndex: idx, At: at}, err
	case game.ActionDoubleDown:
		idx, err := shoeIndex()
		return game.DoubleDown{ShoeIndex: idx, At: at}, err
	case game.ActionStand:
		return game.Stand{At: at}, nil
	case game.ActionInsurance:
		if err := p.expect('I'); err != nil {
			return nil, err
		}
		switch flag := p.digits(1); flag {
		case "0":
			return game.Insurance{Accept: true, At: at}, nil
		case "1":
			return game.Insurance{Accept: false, At: at}, nil
		default:
			return nil, p.fail("insurance flag must be 0 or 1")
		}
	case game.ActionSplit:
		if err := p.expect('F'); err != nil {
			return nil, err
		}
		from, err := p.int()
		if err != nil {
			return nil, err
		}
		if err := p.expect('T'); err != nil {
			return nil, err
		}
		to, err := p.int()
		if err != nil {
			return nil, err
		}
		return game.Split{From: from, To: to, At: at}, nil
	default:
		return nil, p.fail("unknown action type " + typ)
	}
}
