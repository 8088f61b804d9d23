package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberCacheRefreshesWhenStale(t *testing.T) {
	calls := 0
	c := newSubscriberCache(10*time.Millisecond, func(ctx context.Context) (map[string][]string, error) {
		calls++
		return map[string][]string{"chan1": {"tenant-a"}}, nil
	})

	subs, err := c.subscribersFor(context.Background(), "chan1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a"}, subs)
	assert.Equal(t, 1, calls)

	// Within TTL: no refresh.
	_, err = c.subscribersFor(context.Background(), "chan1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	time.Sleep(15 * time.Millisecond)
	_, err = c.subscribersFor(context.Background(), "chan1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSubscriberCacheStripsLeadingHash(t *testing.T) {
	c := newSubscriberCache(time.Minute, func(ctx context.Context) (map[string][]string, error) {
		return map[string][]string{"chan1": {"tenant-a"}}, nil
	})
	subs, err := c.subscribersFor(context.Background(), "#chan1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a"}, subs)
}

func TestSubscriberCacheServesStaleOnRefreshError(t *testing.T) {
	first := true
	c := newSubscriberCache(time.Millisecond, func(ctx context.Context) (map[string][]string, error) {
		if first {
			first = false
			return map[string][]string{"chan1": {"tenant-a"}}, nil
		}
		return nil, assertErrFixture
	})

	subs, err := c.subscribersFor(context.Background(), "chan1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a"}, subs)

	time.Sleep(5 * time.Millisecond)
	subs2, err := c.subscribersFor(context.Background(), "chan1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a"}, subs2)
}

type fixtureErr struct{}

func (fixtureErr) Error() string { return "refresh failed" }

var assertErrFixture = fixtureErr{}
