package searchcache

import (
	"context"
	"log/slog"
	"time"

	pkgredis "github.com/bochiedev/tulia-retrieval/pkg/redis"
)

// Redis is a Store backed by a shared Redis instance. Expiry is enforced
// by Redis TTLs; CreatedAt/ExpiresAt on returned entries are approximated
// from the read time since Redis does not store them.
type Redis struct {
	client *pkgredis.Client
	logger *slog.Logger
}

func NewRedis(client *pkgredis.Client) *Redis {
	return &Redis{
		client: client,
		logger: slog.Default().With("component", "search-cache"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.GetBytes(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return Entry{}, false, nil
		}
		r.logger.Error("cache get failed", "key", key, "error", err)
		return Entry{}, false, err
	}
	return Entry{Payload: data, CreatedAt: time.Now()}, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, payload, ttl); err != nil {
		r.logger.Error("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, scope string) (int64, error) {
	return r.client.FlushByPattern(ctx, keyPrefix+scope+":*")
}
