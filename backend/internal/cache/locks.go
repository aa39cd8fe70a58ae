package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CellRef identifies one editable cell of the stream table.
type CellRef struct {
	EntityID uint64
	Field    string
}

type LockCache interface {
	// Acquire takes the cell lock for userID. Succeeds when the key is
	// absent or already owned by userID; a successful call always writes
	// a fresh TTL.
	Acquire(ctx context.Context, entityID uint64, field string, userID uint64) (bool, error)
	// Release deletes the lock only when userID is the current holder.
	// Returns false (not an error) when absent or held by someone else.
	Release(ctx context.Context, entityID uint64, field string, userID uint64) (bool, error)
	// ReleaseAll sweeps every lock in the room held by userID and returns
	// the released cells. Used on disconnect.
	ReleaseAll(ctx context.Context, userID uint64) ([]CellRef, error)
	// Holder reports the current owner of the cell, if any.
	Holder(ctx context.Context, entityID uint64, field string) (uint64, bool, error)
}

type redisLocks struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisLocks(rdb redis.UniversalClient, ttl time.Duration) LockCache {
	return &redisLocks{rdb: rdb, ttl: ttl}
}

// Set-if-absent-or-owned. A plain GET followed by SET would let two racing
// acquires both win; doing it in one script guarantees a single winner.
var acquireScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
	return 1
end
return 0
`)

// Compare-and-delete: only the holder may remove the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisLocks) Acquire(ctx context.Context, entityID uint64, field string, userID uint64) (bool, error) {
	ttlSec := int64(l.ttl / time.Second)
	n, err := acquireScript.Run(ctx, l.rdb,
		[]string{lockKey(entityID, field)},
		strconv.FormatUint(userID, 10), ttlSec,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *redisLocks) Release(ctx context.Context, entityID uint64, field string, userID uint64) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb,
		[]string{lockKey(entityID, field)},
		strconv.FormatUint(userID, 10),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *redisLocks) ReleaseAll(ctx context.Context, userID uint64) ([]CellRef, error) {
	owner := strconv.FormatUint(userID, 10)
	var released []CellRef
	iter := l.rdb.Scan(ctx, 0, lockScanPattern(), 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ref, ok := parseLockKey(key)
		if !ok {
			continue
		}
		n, err := releaseScript.Run(ctx, l.rdb, []string{key}, owner).Int()
		if err != nil {
			return released, err
		}
		if n == 1 {
			released = append(released, ref)
		}
	}
	if err := iter.Err(); err != nil {
		return released, err
	}
	return released, nil
}

func (l *redisLocks) Holder(ctx context.Context, entityID uint64, field string) (uint64, bool, error) {
	val, err := l.rdb.Get(ctx, lockKey(entityID, field)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	holder, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad lock value %q: %w", val, err)
	}
	return holder, true, nil
}

func parseLockKey(key string) (CellRef, bool) {
	rest := strings.TrimPrefix(key, fmt.Sprintf("collab:%s:lock:", Room))
	if rest == key {
		return CellRef{}, false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return CellRef{}, false
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return CellRef{}, false
	}
	return CellRef{EntityID: id, Field: parts[1]}, true
}
