package cacheredis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeySetKey = "coffeeshop:jwks"

// KeySetStore shares the identity provider's key set document between
// instances so a fleet restart does not stampede the provider.
type KeySetStore struct {
	client *redis.Client
	key    string
}

func NewKeySetStore(addr, password string, db int) (*KeySetStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewKeySetStoreWithClient(client, DefaultKeySetKey), nil
}

func NewKeySetStoreWithClient(client *redis.Client, key string) *KeySetStore {
	if key == "" {
		key = DefaultKeySetKey
	}
	return &KeySetStore{client: client, key: key}
}

func (s *KeySetStore) Load(ctx context.Context) ([]byte, error) {
	document, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

func (s *KeySetStore) Save(ctx context.Context, document []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key, document, ttl).Err()
}

func (s *KeySetStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KeySetStore) Close() error {
	return s.client.Close()
}
