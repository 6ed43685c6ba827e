package players

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derive(seed string, nonce int64) string { return fmt.Sprintf("%s/%d", seed, nonce) }

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()
	d := NewDirectory(derive, zerolog.Nop())

	u, err := d.Register(User{ID: "alice"})
	require.NoError(t, err)
	assert.Len(t, u.ClientSeed, 32)

	got, err := d.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = d.GetUser(context.Background(), "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = d.Register(User{})
	assert.Error(t, err)
}

func TestNextCountsPerKind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewDirectory(derive, zerolog.Nop())
	_, err := d.Register(User{ID: "alice", ClientSeed: "cs"})
	require.NoError(t, err)

	for want := range int64(3) {
		c, err := d.Next(ctx, "alice", "blackjack")
		require.NoError(t, err)
		assert.Equal(t, want, c.Nonce)
		assert.Equal(t, "cs", c.ClientSeed)
		assert.Equal(t, fmt.Sprintf("cs/%d", want), c.RoundValue)
	}

	c, err := d.Next(ctx, "alice", "dice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Nonce)

	_, err = d.Next(ctx, "bob", "blackjack")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRotateClientSeedResetsNonces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewDirectory(derive, zerolog.Nop())
	_, err := d.Register(User{ID: "alice", ClientSeed: "old"})
	require.NoError(t, err)
	_, err = d.Next(ctx, "alice", "blackjack")
	require.NoError(t, err)

	require.NoError(t, d.RotateClientSeed("alice", "new"))
	c, err := d.Next(ctx, "alice", "blackjack")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Nonce)
	assert.Equal(t, "new/0", c.RoundValue)

	assert.ErrorIs(t, d.RotateClientSeed("bob", "x"), ErrUserNotFound)
}
