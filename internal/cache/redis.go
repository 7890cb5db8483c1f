package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisPrefix = "turnos:view:"

// Redis is a Store shared between BFF instances.
type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

func (r *Redis) Get(ctx context.Context, kind Kind, params []string, out any) error {
	data, err := r.Client.Get(ctx, redisPrefix+key(kind, params)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (r *Redis) Set(ctx context.Context, kind Kind, params []string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, redisPrefix+key(kind, params), data, ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, kind Kind, params ...string) error {
	prefix := redisPrefix + key(kind, params)
	if err := r.Client.Del(ctx, prefix).Err(); err != nil {
		return err
	}
	iter := r.Client.Scan(ctx, 0, prefix+sep+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}
