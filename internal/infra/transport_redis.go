package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

const syncKeyPrefix = "discipline:sync:"

// redisKV is the slice of the redis client the transport needs.
type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisTransport uses a shared Redis as a rendezvous: each device publishes its signed
// payload under its own key and reads the partner's.
type RedisTransport struct {
	client    redisKV
	partnerID string
	signer    *PayloadSigner
	ttl       time.Duration
}

// NewRedisTransport creates a transport backed by the Redis at addr.
func NewRedisTransport(addr, password string, db int, partnerID string, signer *PayloadSigner, ttl time.Duration) *RedisTransport {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisTransportWithClient(rdb, partnerID, signer, ttl)
}

// NewRedisTransportWithClient creates a transport over an existing client (for testing).
func NewRedisTransportWithClient(client redisKV, partnerID string, signer *PayloadSigner, ttl time.Duration) *RedisTransport {
	return &RedisTransport{client: client, partnerID: partnerID, signer: signer, ttl: ttl}
}

// Exchange publishes ours, then fetches the partner's latest payload.
func (t *RedisTransport) Exchange(ctx context.Context, mine domain.SyncPayload) (domain.SyncPayload, error) {
	token, err := t.signer.Sign(mine)
	if err != nil {
		return domain.SyncPayload{}, err
	}
	if err := t.client.Set(ctx, syncKey(mine.DeviceID), token, t.ttl).Err(); err != nil {
		return domain.SyncPayload{}, fmt.Errorf("publish sync payload: %w", err)
	}

	theirs, err := t.client.Get(ctx, syncKey(t.partnerID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SyncPayload{}, domain.ErrPartnerUnavailable
	}
	if err != nil {
		return domain.SyncPayload{}, fmt.Errorf("fetch partner payload: %w", err)
	}
	return t.signer.Verify(theirs)
}

// Close releases the underlying client when it owns one.
func (t *RedisTransport) Close() error {
	if c, ok := t.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

func syncKey(deviceID string) string {
	return syncKeyPrefix + deviceID
}

var _ domain.PartnerTransport = (*RedisTransport)(nil)
