package store

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/lox/blackjack/cards"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/wager"
	"github.com/tinylib/msgp/msgp"
)

var bufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

// EncodeRound serializes a round to msgpack. Every field of the round, its
// seats, hands and tagged actions is written, so DecodeRound restores it
// exactly.
func EncodeRound(g *game.GameState) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	e := &encoder{w: msgp.NewWriter(buf)}
	e.round(g)
	if e.err != nil {
		return nil, fmt.Errorf("encode round %s: %w", g.ID, e.err)
	}
	if err := e.w.Flush(); err != nil {
		return nil, fmt.Errorf("encode round %s: %w", g.ID, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// DecodeRound restores a round written by EncodeRound
func DecodeRound(data []byte) (*game.GameState, error) {
	r := msgp.NewReader(bytes.NewReader(data))
	g, err := decodeRound(r)
	if err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	return g, nil
}

type encoder struct {
	w   *msgp.Writer
	err error
}

func (e *encoder) do(f func() error) {
	if e.err == nil {
		e.err = f()
	}
}

func (e *encoder) mapHeader(n int) { e.do(func() error { return e.w.WriteMapHeader(uint32(n)) }) }

func (e *encoder) arrayHeader(k string, n int) {
	e.key(k)
	e.do(func() error { return e.w.WriteArrayHeader(uint32(n)) })
}

func (e *encoder) key(k string) { e.do(func() error { return e.w.WriteString(k) }) }

func (e *encoder) str(k, v string) {
	e.key(k)
	e.do(func() error { return e.w.WriteString(v) })
}

func (e *encoder) int(k string, v int64) {
	e.key(k)
	e.do(func() error { return e.w.WriteInt64(v) })
}

func (e *encoder) bool(k string, v bool) {
	e.key(k)
	e.do(func() error { return e.w.WriteBool(v) })
}

func (e *encoder) null(k string) {
	e.key(k)
	e.do(e.w.WriteNil)
}

func (e *encoder) optInt(k string, v *int) {
	if v == nil {
		e.null(k)
		return
	}
	e.int(k, int64(*v))
}

func (e *encoder) time(k string, t time.Time) {
	if t.IsZero() {
		e.int(k, 0)
		return
	}
	e.int(k, t.UnixNano())
}

func (e *encoder) round(g *game.GameState) {
	e.mapHeader(8)
	e.str("id", g.ID)
	e.str("seed", g.Seed)
	e.str("hash", g.Hash)
	e.int("decks", int64(g.Decks))
	e.str("status", g.Status.String())
	e.time("created_at", g.CreatedAt)
	e.time("completed_at", g.CompletedAt)
	e.arrayHeader("players", len(g.Players))
	for _, s := range g.Players {
		e.seat(s)
	}
}

func (e *encoder) seat(s *game.Seat) {
	e.mapHeader(6)
	e.str("player_id", s.PlayerID)
	e.str("bet_id", s.BetID)
	e.optInt("seat_index", s.SeatIndex)
	if s.Wager == nil {
		e.null("wager")
	} else {
		e.key("wager")
		e.wager(*s.Wager)
	}
	if s.Commitment == nil {
		e.null("commitment")
	} else {
		e.key("commitment")
		e.mapHeader(3)
		e.str("round_value", s.Commitment.RoundValue)
		e.int("nonce", s.Commitment.Nonce)
		e.str("client_seed", s.Commitment.ClientSeed)
	}
	e.arrayHeader("hands", len(s.Hands))
	for _, h := range s.Hands {
		e.hand(h)
	}
}

func (e *encoder) wager(w wager.Wager) {
	e.mapHeader(3)
	e.str("type", w.Type)
	e.int("amount", w.Amount)
	e.arrayHeader("sides", len(w.Sides))
	for _, side := range w.Sides {
		e.wager(side)
	}
}

func (e *encoder) hand(h *game.Hand) {
	e.mapHeader(4)
	e.int("index", int64(h.Index))
	e.arrayHeader("cards", len(h.Cards))
	for _, c := range h.Cards {
		e.mapHeader(3)
		e.int("rank", int64(c.Rank))
		e.int("suit", int64(c.Suit))
		e.bool("hidden", c.Hidden)
	}
	if h.Status == nil {
		e.null("status")
	} else {
		e.key("status")
		e.status(h.Status)
	}
	e.arrayHeader("actions", len(h.Actions))
	for _, a := range h.Actions {
		e.action(a)
	}
}

func (e *encoder) status(s *game.HandStatus) {
	e.mapHeader(13)
	e.int("value", int64(s.Value))
	e.bool("hard", s.Hard)
	e.bool("soft", s.Soft)
	e.bool("bust", s.Bust)
	e.bool("blackjack", s.Blackjack)
	e.bool("can_hit", s.CanHit)
	e.bool("can_stand", s.CanStand)
	e.bool("can_insure", s.CanInsure)
	e.bool("can_split", s.CanSplit)
	e.bool("can_double_down", s.CanDoubleDown)
	e.optInt("split_from", s.SplitFrom)
	e.bool("was_doubled", s.WasDoubled)
	e.int("outcome", int64(s.Outcome))
}

func (e *encoder) action(a game.Action) {
	switch a := a.(type) {
	case game.Deal:
		e.dealt(a, a.ShoeIndex)
	case game.Hit:
		e.dealt(a, a.ShoeIndex)
	case game.DoubleDown:
		e.dealt(a, a.ShoeIndex)
	case game.Split:
		e.mapHeader(4)
		e.actionHead(a)
		e.int("from", int64(a.From))
		e.int("to", int64(a.To))
	case game.Stand:
		e.mapHeader(2)
		e.actionHead(a)
	case game.Insurance:
		e.mapHeader(3)
		e.actionHead(a)
		e.bool("accept", a.Accept)
	default:
		panic(fmt.Sprintf("store: unknown action variant %T", a))
	}
}

func (e *encoder) dealt(a game.Action, shoeIndex int) {
	e.mapHeader(3)
	e.actionHead(a)
	e.int("shoe_index", int64(shoeIndex))
}

func (e *encoder) actionHead(a game.Action) {
	e.int("type", int64(a.Type()))
	e.time("at", a.Time())
}

// decoding

func decodeMap(r *msgp.Reader, field func(key string) error) error {
	n, err := r.ReadMapHeader()
	if err != nil {
		return err
	}
	for range n {
		k, err := r.ReadMapKeyPtr()
		if err != nil {
			return err
		}
		key := string(k)
		if err := field(key); err != nil {
			return msgp.WrapError(err, key)
		}
	}
	return nil
}

func decodeArray(r *msgp.Reader, elem func() error) error {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return err
	}
	for i := range n {
		if err := elem(); err != nil {
			return msgp.WrapError(err, i)
		}
	}
	return nil
}

func readInt(r *msgp.Reader, dst *int) error {
	v, err := r.ReadInt()
	*dst = v
	return err
}

func readOptInt(r *msgp.Reader) (*int, error) {
	if r.IsNil() {
		return nil, r.ReadNil()
	}
	v, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readTime(r *msgp.Reader) (time.Time, error) {
	n, err := r.ReadInt64()
	if err != nil || n == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func decodeRound(r *msgp.Reader) (*game.GameState, error) {
	g := &game.GameState{}
	err := decodeMap(r, func(key string) error {
		var err error
		switch key {
		case "id":
			g.ID, err = r.ReadString()
		case "seed":
			g.Seed, err = r.ReadString()
		case "hash":
			g.Hash, err = r.ReadString()
		case "decks":
			err = readInt(r, &g.Decks)
		case "status":
			var name string
			if name, err = r.ReadString(); err == nil {
				var ok bool
				if g.Status, ok = game.ParseStatus(name); !ok {
					err = fmt.Errorf("unknown status %q", name)
				}
			}
		case "created_at":
			g.CreatedAt, err = readTime(r)
		case "completed_at":
			g.CompletedAt, err = readTime(r)
		case "players":
			err = decodeArray(r, func() error {
				s, err := decodeSeat(r)
				g.Players = append(g.Players, s)
				return err
			})
		default:
			err = r.Skip()
		}
		return err
	})
	return g, err
}

func decodeSeat(r *msgp.Reader) (*game.Seat, error) {
	s := &game.Seat{}
	err := decodeMap(r, func(key string) error {
		var err error
		switch key {
		case "player_id":
			s.PlayerID, err = r.ReadString()
		case "bet_id":
			s.BetID, err = r.ReadString()
		case "seat_index":
			s.SeatIndex, err = readOptInt(r)
		case "wager":
			if r.IsNil() {
				return r.ReadNil()
			}
			var w wager.Wager
			w, err = decodeWager(r)
			s.Wager = &w
		case "commitment":
			if r.IsNil() {
				return r.ReadNil()
			}
			c := &game.Commitment{}
			s.Commitment = c
			err = decodeMap(r, func(key string) error {
				var err error
				switch key {
				case "round_value":
					c.RoundValue, err = r.ReadString()
				case "nonce":
					c.Nonce, err = r.ReadInt64()
				case "client_seed":
					c.ClientSeed, err = r.ReadString()
				default:
					err = r.Skip()
				}
				return err
			})
		case "hands":
			s.Hands = []*game.Hand{}
			err = decodeArray(r, func() error {
				h, err := decodeHand(r)
				s.Hands = append(s.Hands, h)
				return err
			})
		default:
			err = r.Skip()
		}
		return err
	})
	if len(s.Hands) == 0 {
		s.Hands = nil
	}
	return s, err
}

func decodeWager(r *msgp.Reader) (wager.Wager, error) {
	var w wager.Wager
	err := decodeMap(r, func(key string) error {
		var err error
		switch key {
		case "type":
			w.Type, err = r.ReadString()
		case "amount":
			w.Amount, err = r.ReadInt64()
		case "sides":
			err = decodeArray(r, func() error {
				side, err := decodeWager(r)
				w.Sides = append(w.Sides, side)
				return err
			})
		default:
			err = r.Skip()
		}
		return err
	})
	return w, err
}

func decodeHand(r *msgp.Reader) (*game.Hand, error) {
	h := &game.Hand{}
	err := decodeMap(r, func(key string) error {
		var err error
		switch key {
		case "index":
			err = readInt(r, &h.Index)
		case "cards":
			err = decodeArray(r, func() error {
				c, err := decodeCard(r)
				h.Cards = append(h.Cards, c)
				return err
			})
		case "status":
			if r.IsNil() {
				return r.ReadNil()
			}
			h.Status, err = decodeStatus(r)
		case "actions":
			err = decodeArray(r, func() error {
				a, err := decodeAction(r)
				if err == nil {
					h.Actions = append(h.Actions, a)
				}
				return err
			})
		default:
			err = r.Skip()
		}
		return err
	})
	return h, err
}

func decodeCard(r *msgp.Reader) (cards.DealtCard, error) {
	var c cards.DealtCard
	err := decodeMap(r, func(key string) error {
		var err error
		var v int
		switch key {
		case "rank":
			err = readInt(r, &v)
			c.Rank = cards.Rank(v)
		case "suit":
			err = readInt(r, &v)
			c.Suit = cards.Suit(v)
		case "hidden":
			c.Hidden, err = r.ReadBool()
		default:
			err = r.Skip()
		}
		return err
	})
	if err == nil && !c.Valid() {
		err = fmt.Errorf("invalid card rank=%d suit=%d", c.Rank, c.Suit)
	}
	return c, err
}

func decodeStatus(r *msgp.Reader) (*game.HandStatus, error) {
	s := &game.HandStatus{}
	flags := map[string]*bool{
		"hard":            &s.Hard,
		"soft":            &s.Soft,
		"bust":            &s.Bust,
		"blackjack":       &s.Blackjack,
		"can_hit":         &s.CanHit,
		"can_stand":       &s.CanStand,
		"can_insure":      &s.CanInsure,
		"can_split":       &s.CanSplit,
		"can_double_down": &s.CanDoubleDown,
		"was_doubled":     &s.WasDoubled,
	}
	err := decodeMap(r, func(key string) error {
		if dst, ok := flags[key]; ok {
			v, err := r.ReadBool()
			*dst = v
			return err
		}
		var err error
		switch key {
		case "value":
			err = readInt(r, &s.Value)
		case "split_from":
			s.SplitFrom, err = readOptInt(r)
		case "outcome":
			var v int
			err = readInt(r, &v)
			s.Outcome = game.Outcome(v)
		default:
			err = r.Skip()
		}
		return err
	})
	return s, err
}

func decodeAction(r *msgp.Reader) (game.Action, error) {
	var (
		typ       = -1
		at        time.Time
		shoeIndex int
		from, to  int
		accept    bool
	)
	err := decodeMap(r, func(key string) error {
		var err error
		switch key {
		case "type":
			err = readInt(r, &typ)
		case "at":
			at, err = readTime(r)
		case "shoe_index":
			err = readInt(r, &shoeIndex)
		case "from":
			err = readInt(r, &from)
		case "to":
			err = readInt(r, &to)
		case "accept":
			accept, err = r.ReadBool()
		default:
			err = r.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	switch game.ActionType(typ) {
	case game.ActionDeal:
		return game.Deal{ShoeIndex: shoeIndex, At: at}, nil
	case game.ActionHit:
		return game.Hit{ShoeIndex: shoeIndex, At: at}, nil
	case game.ActionDoubleDown:
		return game.DoubleDown{ShoeIndex: shoeIndex, At: at}, nil
	case game.ActionSplit:
		return game.Split{From: from, To: to, At: at}, nil
	case game.ActionStand:
		return game.Stand{At: at}, nil
	case game.ActionInsurance:
		return game.Insurance{Accept: accept, At: at}, nil
	default:
		return nil, fmt.Errorf("unknown action type %d", typ)
	}
}
