// Package realtime routes live events to connected clients.  Presence tells
// which actors currently hold an open channel; the emitter publishes events
// to the broker, where the socket gateway fans them out.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence resolves the open real-time channel of an actor.
type Presence interface {
	ResolveChannel(ctx context.Context, actorID uint64) (string, bool, error)
}

// RedisPresence keeps one key per online actor with a TTL, so channels of
// crashed gateways expire on their own.  Gateways refresh with MarkOnline.
type RedisPresence struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl, prefix: "presence:"}
}

func (p *RedisPresence) key(actorID uint64) string { return fmt.Sprintf("%s%d", p.prefix, actorID) }

// MarkOnline records channel as the actor's open channel.
func (p *RedisPresence) MarkOnline(ctx context.Context, actorID uint64, channel string) error {
	return p.rdb.Set(ctx, p.key(actorID), channel, p.ttl).Err()
}

// Delete only if the stored channel is still ours; a newer connection from
// another tab must not be cleared by an old one closing.
var markOfflineScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// MarkOffline clears the actor's channel if it is still channel.
func (p *RedisPresence) MarkOffline(ctx context.Context, actorID uint64, channel string) error {
	return markOfflineScript.Run(ctx, p.rdb, []string{p.key(actorID)}, channel).Err()
}

func (p *RedisPresence) ResolveChannel(ctx context.Context, actorID uint64) (string, bool, error) {
	ch, err := p.rdb.Get(ctx, p.key(actorID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ch, true, nil
}

// Offline is the Presence used when Redis is unavailable: nobody is online,
// so only the persisted notification remains.
type Offline struct{}

func (Offline) ResolveChannel(context.Context, uint64) (string, bool, error) { return "", false, nil }
