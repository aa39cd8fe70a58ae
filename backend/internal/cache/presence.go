package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Member is the presence payload shown to every client in the room.
type Member struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type PresenceCache interface {
	// Register writes the member entry with a fresh TTL and adds the id to
	// the room set. Idempotent; re-registering only refreshes the TTL.
	Register(ctx context.Context, m Member, ttl time.Duration) error
	// Roster returns the alive members sorted by user id ascending. Ids in
	// the room set whose entry key has expired are purged as a side effect.
	Roster(ctx context.Context) ([]Member, error)
	// Deregister removes the member entry and its room set membership.
	Deregister(ctx context.Context, userID uint64) error
}

type redisPresence struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) Register(ctx context.Context, m Member, ttl time.Duration) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, memberKey(m.ID), payload, ttl)
	pipe.SAdd(ctx, onlineKey(), m.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *redisPresence) Deregister(ctx context.Context, userID uint64) error {
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, onlineKey(), userID)
	pipe.Del(ctx, memberKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

// Roster reconciles the room set against the TTL'd entry keys: redis does
// not tell the set when an entry expires, so every read prunes stale ids.
// Concurrent callers collapse into one redis round trip via singleflight.
func (p *redisPresence) Roster(ctx context.Context) ([]Member, error) {
	v, err, _ := p.sf.Do(onlineKey(), func() (interface{}, error) {
		return p.roster(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Member), nil
}

func (p *redisPresence) roster(ctx context.Context) ([]Member, error) {
	ids, err := p.rdb.SMembers(ctx, onlineKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Member{}, nil
	}

	pipe := p.rdb.Pipeline()
	gets := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, err
		}
		gets[i] = pipe.Get(ctx, memberKey(uid))
	}
	// Exec returns redis.Nil when any command missed; per-command errors
	// are inspected below, so only real failures matter here.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	members := make([]Member, 0, len(ids))
	var stale []interface{}
	for i, cmd := range gets {
		raw, err := cmd.Bytes()
		if err == redis.Nil {
			// Entry TTL lapsed without an explicit deregister.
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, err
		}
		var m Member
		if err := json.Unmarshal(raw, &m); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		members = append(members, m)
	}
	if len(stale) > 0 {
		if err := p.rdb.SRem(ctx, onlineKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}
