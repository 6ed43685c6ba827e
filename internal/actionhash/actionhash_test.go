package actionhash

import (
	"testing"
	"time"

	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.UnixMilli(1_741_064_767_123).UTC()

func seatIndex(i int) *int { return &i }

func sampleTable() game.Table {
	return game.Table{
		{
			PlayerID:  "alice",
			SeatIndex: seatIndex(0),
			Hands: []*game.Hand{
				{Index: 0, Actions: []game.Action{
					game.Deal{ShoeIndex: 0, At: at},
					game.Split{From: 0, To: 1, At: at},
					game.Deal{ShoeIndex: 4, At: at},
					game.Insurance{Accept: false, At: at},
					game.Hit{ShoeIndex: 6, At: at},
					game.Stand{At: at},
				}},
				{Index: 1, Actions: []game.Action{
					game.Deal{ShoeIndex: 2, At: at},
					game.Split{From: 0, To: 1, At: at},
					game.Deal{ShoeIndex: 5, At: at},
					game.DoubleDown{ShoeIndex: 7, At: at},
					game.Stand{At: at},
				}},
			},
		},
		{
			PlayerID:  "bob",
			SeatIndex: seatIndex(1),
			Hands: []*game.Hand{{Index: 0, Actions: []game.Action{
				game.Deal{ShoeIndex: 1, At: at},
				game.Insurance{Accept: true, At: at},
			}}},
		},
		{
			PlayerID: game.DealerID,
			Hands: []*game.Hand{{Index: 0, Actions: []game.Action{
				game.Deal{ShoeIndex: 3, At: at},
				game.Hit{ShoeIndex: 8, At: at},
			}}},
		},
	}
}

func TestEncodeRawGrammar(t *testing.T) {
	t.Parallel()
	table := game.Table{
		{PlayerID: "alice", SeatIndex: seatIndex(0), Hands: []*game.Hand{{Index: 0, Actions: []game.Action{
			game.Deal{ShoeIndex: 0, At: at},
			game.Insurance{Accept: false, At: at},
			game.Stand{At: at},
		}}}},
		{PlayerID: game.DealerID, Hands: []*game.Hand{{Index: 0, Actions: []game.Action{
			game.Deal{ShoeIndex: 1, At: at},
		}}}},
	}
	raw, err := EncodeRaw(table)
	require.NoError(t, err)
	assert.Equal(t, "P0H0A01741064767123S0A51741064767123I1A21741064767123D0H0A01741064767123S1", raw)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	table := sampleTable()
	hash, err := Encode(table)
	require.NoError(t, err)

	seats, err := Decode(hash)
	require.NoError(t, err)
	require.Len(t, seats, len(table))

	for i, seat := range table {
		got := seats[i]
		assert.Equal(t, seat.IsDealer(), got.Dealer)
		if !seat.IsDealer() {
			assert.Equal(t, *seat.SeatIndex, got.SeatIndex)
		}
		require.Len(t, got.Hands, len(seat.Hands))
		for j, h := range seat.Hands {
			assert.Equal(t, h.Index, got.Hands[j].Index)
			assert.Equal(t, h.Actions, got.Hands[j].Actions)
		}
	}
}

func TestEncodeSkipsUndealtSeats(t *testing.T) {
	t.Parallel()
	table := game.Table{{PlayerID: "alice", SeatIndex: seatIndex(0)}, game.NewDealerSeat()}
	raw, err := EncodeRaw(table)
	require.NoError(t, err)
	assert.Empty(t, raw)

	seats, err := ParseRaw(raw)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func TestEncodeRejectsTimestampOutOfRange(t *testing.T) {
	t.Parallel()
	table := game.Table{{PlayerID: "alice", Hands: []*game.Hand{{Actions: []game.Action{
		game.Stand{At: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}}}}
	_, err := EncodeRaw(table)
	assert.ErrorIs(t, err, errs.ActionHashParse)
}

func TestParseFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown character", "P0H0A01741064767123S0X"},
		{"lower case marker", "p0H0"},
		{"hand before seat", "H0"},
		{"action before hand", "P0A01741064767123S0"},
		{"short timestamp", "P0H0A0174106476712S0"},
		{"missing shoe index", "P0H0A01741064767123"},
		{"shoe marker without digits", "P0H0A01741064767123S"},
		{"unknown action type", "P0H0A91741064767123"},
		{"bad insurance flag", "P0H0A51741064767123I2"},
		{"split without target", "P0H0A41741064767123F0"},
		{"dealer seat not zero", "D1H0"},
		{"separator", "P0 H0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRaw(tt.raw)
			assert.ErrorIs(t, err, errs.ActionHashParse)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := Decode("not base64!")
	assert.ErrorIs(t, err, errs.ActionHashParse)

	_, err = Decode("aGVsbG8=")
	assert.ErrorIs(t, err, errs.ActionHashParse)
}
