package oauth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const statePrefix = "auth:state:"

// RedisStateLedger stores pending states in Redis so multiple server
// instances agree on which states are outstanding.  The TTL is
// enforced natively by Redis and consumption uses GETDEL, which is
// atomic across instances.
type RedisStateLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStateLedger(rdb *redis.Client, ttl time.Duration) *RedisStateLedger {
	return &RedisStateLedger{rdb: rdb, ttl: ttl}
}

func (l *RedisStateLedger) Register(ctx context.Context, state string) error {
	return l.rdb.Set(ctx, statePrefix+state, "1", l.ttl).Err()
}

func (l *RedisStateLedger) Consume(ctx context.Context, state string) bool {
	v, err := l.rdb.GetDel(ctx, statePrefix+state).Result()
	return err == nil && v != ""
}
