package authz_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenahub/arenahub/internal/authz"
)

func testKey(principalID int64) authz.CacheKey {
	return authz.CacheKey{
		PrincipalID:    principalID,
		OrganizationID: 5,
		Action:         "tournament:create",
		Resource:       "organization:5",
	}
}

func TestCachePutGet(t *testing.T) {
	cache := authz.NewDecisionCache(time.Minute, nil, nil)
	key := testKey(1)

	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Put(key, authz.Decision{Allowed: true, Effect: authz.EffectAllow})
	decision, ok := cache.Get(key)
	require.True(t, ok)
	assert.True(t, decision.Allowed)
}

func TestCacheExpiry(t *testing.T) {
	cache := authz.NewDecisionCache(10*time.Millisecond, nil, nil)
	key := testKey(1)
	cache.Put(key, authz.Decision{Allowed: true, Effect: authz.EffectAllow})

	time.Sleep(25 * time.Millisecond)
	_, ok := cache.Get(key)
	assert.False(t, ok)
}

func TestCacheDoCollapsesConcurrentMisses(t *testing.T) {
	cache := authz.NewDecisionCache(time.Minute, nil, nil)
	key := testKey(1)

	var computations atomic.Int64
	release := make(chan struct{})
	compute := func(context.Context) (authz.Decision, error) {
		computations.Add(1)
		<-release
		return authz.Decision{Allowed: true, Effect: authz.EffectAllow}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]authz.Decision, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, _, err := cache.Do(context.Background(), key, compute)
			require.NoError(t, err)
			results[i] = decision
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), computations.Load())
	for _, decision := range results {
		assert.True(t, decision.Allowed)
	}

	// Subsequent calls hit the stored entry.
	_, cached, err := cache.Do(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestCacheDoDoesNotStoreFailures(t *testing.T) {
	cache := authz.NewDecisionCache(time.Minute, nil, nil)
	key := testKey(1)

	_, _, err := cache.Do(context.Background(), key, func(context.Context) (authz.Decision, error) {
		return authz.Decision{}, authz.ErrStoreUnavailable
	})
	assert.ErrorIs(t, err, authz.ErrStoreUnavailable)

	_, ok := cache.Get(key)
	assert.False(t, ok)
}

func TestCacheInvalidateDropsPrincipalOrgPair(t *testing.T) {
	cache := authz.NewDecisionCache(time.Minute, nil, nil)
	allowed := authz.Decision{Allowed: true, Effect: authz.EffectAllow}

	cache.Put(testKey(1), allowed)
	cache.Put(authz.CacheKey{PrincipalID: 1, OrganizationID: 5, Action: "member:view", Resource: "organization:5"}, allowed)
	cache.Put(authz.CacheKey{PrincipalID: 1, OrganizationID: 6, Action: "tournament:create", Resource: "organization:6"}, allowed)
	cache.Put(testKey(2), allowed)

	require.NoError(t, cache.Invalidate(context.Background(), 1, 5))

	_, ok := cache.Get(testKey(1))
	assert.False(t, ok, "revoked entry must be gone immediately")
	_, ok = cache.Get(authz.CacheKey{PrincipalID: 1, OrganizationID: 5, Action: "member:view", Resource: "organization:5"})
	assert.False(t, ok)
	_, ok = cache.Get(authz.CacheKey{PrincipalID: 1, OrganizationID: 6, Action: "tournament:create", Resource: "organization:6"})
	assert.True(t, ok, "other organization untouched")
	_, ok = cache.Get(testKey(2))
	assert.True(t, ok, "other principal untouched")
}

func TestCacheInvalidateDuringInFlightEvaluation(t *testing.T) {
	cache := authz.NewDecisionCache(time.Minute, nil, nil)
	key := testKey(1)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := cache.Do(context.Background(), key, func(context.Context) (authz.Decision, error) {
			close(started)
			<-release
			return authz.Decision{Allowed: true, Effect: authz.EffectAllow}, nil
		})
		assert.NoError(t, err)
	}()

	<-started
	require.NoError(t, cache.Invalidate(context.Background(), 1, 5))

	// A lookup issued after the invalidation returned must not join the
	// stale flight; it evaluates against the post-revocation state.
	decision, cached, err := cache.Do(context.Background(), key, func(context.Context) (authz.Decision, error) {
		return authz.Decision{Allowed: false, Effect: authz.EffectImplicitDeny}, nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, decision.Allowed)

	close(release)
	<-done

	// The stale result computed across the invalidation was discarded.
	decision, ok := cache.Get(key)
	require.True(t, ok)
	assert.False(t, decision.Allowed, "revoked allow must not be served after the mutation was acknowledged")
}

func TestCacheGetEvictsExpiredEntries(t *testing.T) {
	cache := authz.NewDecisionCache(5*time.Millisecond, nil, nil)
	cache.Put(testKey(1), authz.Decision{Allowed: true, Effect: authz.EffectAllow})
	require.Equal(t, 1, cache.Len())

	time.Sleep(15 * time.Millisecond)
	_, ok := cache.Get(testKey(1))
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheInvalidateBroadcastsToPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := authz.NewDecisionCache(time.Minute, client, nil)
	peer := authz.NewDecisionCache(time.Minute, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go peer.Listen(ctx)

	// Give the subscription a moment to establish.
	time.Sleep(50 * time.Millisecond)

	peer.Put(testKey(1), authz.Decision{Allowed: true, Effect: authz.EffectAllow})
	require.NoError(t, publisher.Invalidate(ctx, 1, 5))

	assert.Eventually(t, func() bool {
		_, ok := peer.Get(testKey(1))
		return !ok
	}, time.Second, 10*time.Millisecond, "peer cache should drop the entry")
}
