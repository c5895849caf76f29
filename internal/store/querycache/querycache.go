// Package querycache is the Redis-backed retrieval query cache from
// spec.md §4.13: keyed by (query_shape, domain, task_type,
// parameters_hash), with a TTL and conservative tag-based invalidation
// (Open Question #2: invalidating a tag drops every cached query that
// touched it, even across unrelated domains).
package querycache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
)

// Key identifies one cached query result set.
type Key struct {
	QueryShape string
	Domain     string
	TaskType   string
	Parameters string
}

// hash renders a Key into the Redis key string used for storage, and
// a content hash used as the tag-set member id.
func (k Key) hash() string {
	sum := blake2b.Sum256([]byte(k.QueryShape + "|" + k.Domain + "|" + k.TaskType + "|" + k.Parameters))
	return hex.EncodeToString(sum[:16])
}

func (k Key) redisKey() string {
	return fmt.Sprintf("memengine:qc:%s", k.hash())
}

// Cache is a thin wrapper over a redis.Client implementing get/set
// with TTL and tag-based invalidation sets.
type Cache struct {
	rdb      *redis.Client
	ttl      time.Duration
	capacity int
}

// New wraps an already-configured redis.Client.
func New(rdb *redis.Client, ttl time.Duration, capacity int) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, capacity: capacity}
}

// Get returns the cached payload for key, if present.
func (c *Cache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key.redisKey()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, memerrors.Cache("get", err)
	}
	return val, true, nil
}

// Set stores payload under key and records its membership in each
// tag's invalidation set, per-tag sets expiring alongside the entry.
func (c *Cache) Set(ctx context.Context, key Key, payload []byte, tags []string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key.redisKey(), payload, c.ttl)
	for _, tag := range tags {
		tagSet := tagSetKey(tag)
		pipe.SAdd(ctx, tagSet, key.redisKey())
		pipe.Expire(ctx, tagSet, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return memerrors.Cache("set", err)
	}
	return nil
}

func tagSetKey(tag string) string {
	return fmt.Sprintf("memengine:qc:tag:%s", tag)
}

// InvalidateTag drops every cached entry that was tagged with tag at
// write time.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) error {
	tagSet := tagSetKey(tag)
	members, err := c.rdb.SMembers(ctx, tagSet).Result()
	if err != nil && err != redis.Nil {
		return memerrors.Cache("smembers", err)
	}
	if len(members) == 0 {
		return nil
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, members...)
	pipe.Del(ctx, tagSet)
	if _, err := pipe.Exec(ctx); err != nil {
		return memerrors.Cache("invalidate_tag", err)
	}
	return nil
}

// InvalidateAll flushes every cache entry this process created,
// scoped by key prefix so it never touches unrelated Redis data.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, "memengine:qc:*", 1000).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return memerrors.Cache("scan", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return memerrors.Cache("invalidate_all", err)
	}
	return nil
}
