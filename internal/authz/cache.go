package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheShardCount = 32
	// invalidateChannel carries (principal, organization) invalidations to
	// peer processes sharing the cache semantics.
	invalidateChannel = "authz:invalidate"
)

// DecisionCache memoizes evaluation results per (principal, organization,
// action, resource). Lookups collapse on miss via singleflight; redundant
// recomputation on a race is accepted. Invalidation drops every local
// entry for a (principal, organization) pair and, when a redis client is
// configured, broadcasts the pair before the invalidating call returns.
type DecisionCache struct {
	ttl    time.Duration
	client *redis.Client
	logger *slog.Logger
	now    Clock

	shards [cacheShardCount]cacheShard
	group  singleflight.Group

	// epochMu guards epochs. Invalidate bumps the pair's epoch so an
	// evaluation that was in flight when the invalidation ran can never
	// store its result afterwards.
	epochMu sync.Mutex
	epochs  map[holderPair]uint64
}

type holderPair struct {
	principalID    int64
	organizationID int64
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[CacheKey]cacheEntry
}

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// CacheKey identifies one memoized decision.
type CacheKey struct {
	PrincipalID    int64
	OrganizationID int64
	Action         string
	Resource       string
}

// NewDecisionCache constructs a DecisionCache. The redis client is
// optional: without it, invalidation stays process-local.
func NewDecisionCache(ttl time.Duration, client *redis.Client, logger *slog.Logger) *DecisionCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DecisionCache{ttl: ttl, client: client, logger: logger, now: time.Now, epochs: make(map[holderPair]uint64)}
	for i := range c.shards {
		c.shards[i].entries = make(map[CacheKey]cacheEntry)
	}
	return c
}

// Get returns the cached decision for the key, if present and unexpired.
// Expired entries are removed on detection.
func (c *DecisionCache) Get(key CacheKey) (Decision, bool) {
	shard := c.shard(key)
	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()
	if !ok {
		return Decision{}, false
	}
	if c.now().After(entry.expiresAt) {
		shard.mu.Lock()
		// Recheck: a fresh Put may have replaced the entry.
		if current, ok := shard.entries[key]; ok && c.now().After(current.expiresAt) {
			delete(shard.entries, key)
		}
		shard.mu.Unlock()
		return Decision{}, false
	}
	return entry.decision, true
}

// Put stores a decision under the key with the configured TTL.
func (c *DecisionCache) Put(key CacheKey, decision Decision) {
	shard := c.shard(key)
	shard.mu.Lock()
	shard.entries[key] = cacheEntry{decision: decision, expiresAt: c.now().Add(c.ttl)}
	shard.mu.Unlock()
}

// Do returns the cached decision for the key or computes and stores it.
// Concurrent misses for the same key collapse to one computation; the
// second return value reports whether the result came from the cache.
// The pair's epoch is captured before computing and rechecked before the
// store, so a result computed across an Invalidate is discarded rather
// than cached, and a Do issued after the invalidation never joins the
// stale flight.
func (c *DecisionCache) Do(ctx context.Context, key CacheKey, compute func(context.Context) (Decision, error)) (Decision, bool, error) {
	if decision, ok := c.Get(key); ok {
		return decision, true, nil
	}
	epoch := c.epoch(key.PrincipalID, key.OrganizationID)
	flightKey := strconv.FormatUint(epoch, 10) + "|" + c.groupKey(key)
	result := c.group.DoChan(flightKey, func() (any, error) {
		decision, err := compute(ctx)
		if err != nil {
			return Decision{}, err
		}
		c.putAt(key, decision, epoch)
		return decision, nil
	})
	select {
	case <-ctx.Done():
		return Decision{}, false, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Decision{}, false, res.Err
		}
		return res.Val.(Decision), false, nil
	}
}

// Invalidate drops every cached decision for the (principal, organization)
// pair. The local drop happens first; the broadcast publish, when
// configured, completes before Invalidate returns so that a mutation is
// only acknowledged once revocations are visible. A publish failure is an
// error the mutating caller must surface, not swallow.
func (c *DecisionCache) Invalidate(ctx context.Context, principalID, organizationID int64) error {
	c.invalidateLocal(principalID, organizationID)
	if c.client == nil {
		return nil
	}
	payload := fmt.Sprintf("%d:%d", principalID, organizationID)
	if err := c.client.Publish(ctx, invalidateChannel, payload).Err(); err != nil {
		return fmt.Errorf("authz: broadcast invalidation: %w", err)
	}
	return nil
}

// Listen applies peer invalidations until the context is cancelled.
// Intended to run in its own goroutine per process.
func (c *DecisionCache) Listen(ctx context.Context) {
	if c.client == nil {
		return
	}
	sub := c.client.Subscribe(ctx, invalidateChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			c.logger.Warn("close invalidation subscription", slog.Any("error", err))
		}
	}()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			principalID, organizationID, err := parseInvalidation(msg.Payload)
			if err != nil {
				c.logger.Warn("malformed invalidation message", slog.String("payload", msg.Payload))
				continue
			}
			c.invalidateLocal(principalID, organizationID)
		}
	}
}

// Len reports the number of live entries across all shards.
func (c *DecisionCache) Len() int {
	total := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		total += len(c.shards[i].entries)
		c.shards[i].mu.RUnlock()
	}
	return total
}

// invalidateLocal bumps the pair's epoch, then drops its entries. The
// order matters: an evaluation finishing after the bump fails the epoch
// check in putAt, and one that stored before the bump is removed here.
func (c *DecisionCache) invalidateLocal(principalID, organizationID int64) {
	c.epochMu.Lock()
	c.epochs[holderPair{principalID, organizationID}]++
	c.epochMu.Unlock()
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		for key := range shard.entries {
			if key.PrincipalID == principalID && key.OrganizationID == organizationID {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}

func (c *DecisionCache) epoch(principalID, organizationID int64) uint64 {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()
	return c.epochs[holderPair{principalID, organizationID}]
}

// putAt stores the decision only when the pair's epoch still matches the
// one captured before the evaluation started. The epoch lock is held
// across the store so an Invalidate cannot interleave between the check
// and the write.
func (c *DecisionCache) putAt(key CacheKey, decision Decision, epoch uint64) {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()
	if c.epochs[holderPair{key.PrincipalID, key.OrganizationID}] != epoch {
		return
	}
	shard := c.shard(key)
	shard.mu.Lock()
	shard.entries[key] = cacheEntry{decision: decision, expiresAt: c.now().Add(c.ttl)}
	shard.mu.Unlock()
}

func (c *DecisionCache) shard(key CacheKey) *cacheShard {
	h := uint64(14695981039346656037)
	for _, b := range []byte(c.groupKey(key)) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return &c.shards[h%cacheShardCount]
}

func (c *DecisionCache) groupKey(key CacheKey) string {
	return fmt.Sprintf("%d|%d|%s|%s", key.PrincipalID, key.OrganizationID, key.Action, key.Resource)
}

func parseInvalidation(payload string) (int64, int64, error) {
	parts := strings.SplitN(payload, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("authz: invalid invalidation payload %q", payload)
	}
	principalID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	organizationID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return principalID, organizationID, nil
}
