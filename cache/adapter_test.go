package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/solotracker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_LocalMapsNotFound(t *testing.T) {
	c, err := NewCache(config.CacheConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.ZScore(ctx, "z", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Expire(ctx, "nope", time.Second), ErrNotFound)

	require.NoError(t, c.ZAdd(ctx, "z", ZMember{Member: "7", Score: 42}))
	top, err := c.ZRevRangeWithScores(ctx, "z", 0, 9)
	require.NoError(t, err)
	assert.Equal(t, []ZMember{{Member: "7", Score: 42}}, top)
}

func TestNewPubSub_LocalRoundTrip(t *testing.T) {
	ps, err := NewPubSub(config.CacheConfig{LocalPubSubBuf: 4})
	require.NoError(t, err)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "notify:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "notify:1", `{"id":1}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "notify:1", msg.Channel)
		assert.Equal(t, `{"id":1}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}
