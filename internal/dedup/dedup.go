package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "phishnet:ingest:"
	ttl       = 24 * time.Hour
)

// Filter remembers raw-message digests so repeated uploads of the same file
// map back to the first stored email instead of producing duplicates.
// A nil Filter is valid and disables deduplication.
type Filter struct {
	client *redis.Client
	logger *zap.Logger
}

func NewFilter(addr string, logger *zap.Logger) (*Filter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Filter{client: client, logger: logger}, nil
}

// Remember registers the digest of raw under emailID. If another email with
// the same digest was registered within the TTL window, its id is returned
// and ok is false. Redis errors fail open so ingestion never blocks on the
// dedup layer.
func (f *Filter) Remember(ctx context.Context, raw []byte, emailID string) (string, bool) {
	if f == nil {
		return emailID, true
	}

	sum := sha256.Sum256(raw)
	key := keyPrefix + hex.EncodeToString(sum[:])

	set, err := f.client.SetNX(ctx, key, emailID, ttl).Result()
	if err != nil {
		f.logger.Warn("dedup check failed, continuing without it", zap.Error(err))
		return emailID, true
	}
	if set {
		return emailID, true
	}

	existing, err := f.client.Get(ctx, key).Result()
	if err != nil || existing == "" {
		// The key expired between SetNX and Get. Treat as new.
		return emailID, true
	}
	return existing, false
}

func (f *Filter) Close() error {
	if f == nil {
		return nil
	}
	return f.client.Close()
}
