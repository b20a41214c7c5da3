// README: Redis persistence for the settings record and the per-reservation offer ledger.
package farmout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relialimo/internal/types"
)

// SettingsStore persists the settings record as one opaque value.
// Load returns nil data when nothing was saved yet.
type SettingsStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// OfferLedger remembers which drivers were offered a reservation so a
// restarted process does not re-offer them.
type OfferLedger interface {
	RecordOffer(ctx context.Context, reservationID, driverID types.ID, at time.Time) error
	Attempted(ctx context.Context, reservationID types.ID) ([]types.ID, error)
	Clear(ctx context.Context, reservationID types.ID) error
}

const (
	offeredKeyFormat     = "farmout:reservation:%s:offered"
	lastOfferedKeyFormat = "farmout:reservation:%s:last_offered_at"
	// Sequences resolve well within this window.
	ledgerTTL = 7 * 24 * time.Hour
)

var (
	_ SettingsStore = (*RedisStore)(nil)
	_ OfferLedger   = (*RedisStore)(nil)
)

type RedisStore struct {
	redis *redis.Client
	key   string
}

func NewRedisStore(client *redis.Client, settingsKey string) *RedisStore {
	return &RedisStore{redis: client, key: settingsKey}
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	return s.redis.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisStore) RecordOffer(ctx context.Context, reservationID, driverID types.ID, at time.Time) error {
	offered := offeredKey(reservationID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, offered, string(driverID))
	pipe.Expire(ctx, offered, ledgerTTL)
	pipe.Set(ctx, lastOfferedKey(reservationID), at.UTC().Format(time.RFC3339), ledgerTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Attempted(ctx context.Context, reservationID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, offeredKey(reservationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func (s *RedisStore) Clear(ctx context.Context, reservationID types.ID) error {
	return s.redis.Del(ctx, offeredKey(reservationID), lastOfferedKey(reservationID)).Err()
}

func offeredKey(id types.ID) string {
	return fmt.Sprintf(offeredKeyFormat, string(id))
}

func lastOfferedKey(id types.ID) string {
	return fmt.Sprintf(lastOfferedKeyFormat, string(id))
}
