package oauth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	handoffClientPrefix = "auth:handoff:client:" // state -> client id
	handoffBundlePrefix = "auth:handoff:bundle:" // client id -> token bundle JSON
)

// RedisHandoffRelay is the Redis-backed HandoffRelay.  Bundles are
// stored as JSON under the client id; GETDEL gives at-most-once poll
// semantics even with concurrent pollers on different instances.
type RedisHandoffRelay struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisHandoffRelay(rdb *redis.Client, ttl time.Duration) *RedisHandoffRelay {
	return &RedisHandoffRelay{rdb: rdb, ttl: ttl}
}

func (r *RedisHandoffRelay) Begin(ctx context.Context, state string) (string, error) {
	clientID := uuid.NewString()
	if err := r.rdb.Set(ctx, handoffClientPrefix+state, clientID, r.ttl).Err(); err != nil {
		return "", err
	}
	return clientID, nil
}

func (r *RedisHandoffRelay) Complete(ctx context.Context, state string, bundle *TokenBundle) bool {
	clientID, err := r.rdb.GetDel(ctx, handoffClientPrefix+state).Result()
	if err != nil || clientID == "" {
		return false
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return false
	}
	return r.rdb.Set(ctx, handoffBundlePrefix+clientID, payload, r.ttl).Err() == nil
}

func (r *RedisHandoffRelay) Poll(ctx context.Context, clientID string) (*TokenBundle, bool) {
	payload, err := r.rdb.GetDel(ctx, handoffBundlePrefix+clientID).Bytes()
	if err != nil || len(payload) == 0 {
		return nil, false
	}
	var bundle TokenBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, false
	}
	return &bundle, true
}
