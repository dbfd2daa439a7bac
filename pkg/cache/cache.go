package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs
const (
	TTLDocument = 5 * time.Minute // single document reads
	TTLDefault  = 1 * time.Minute
)

// Cache key prefixes
const (
	PrefixDocument = "document:"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Service Redis read-side cache. The server runs fine without Redis;
// callers hold a nil Service in that case and skip the cache entirely.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	GetDocument(ctx context.Context, publicID string, dest interface{}) error
	SetDocument(ctx context.Context, publicID string, doc interface{}) error
	InvalidateDocument(ctx context.Context, publicID string) error
}

type service struct {
	client *redis.Client
}

// NewService creates a new cache Service
func NewService(client *redis.Client) Service {
	return &service{client: client}
}

func (s *service) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

func (s *service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *service) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *service) GetDocument(ctx context.Context, publicID string, dest interface{}) error {
	return s.Get(ctx, PrefixDocument+publicID, dest)
}

func (s *service) SetDocument(ctx context.Context, publicID string, doc interface{}) error {
	return s.Set(ctx, PrefixDocument+publicID, doc, TTLDocument)
}

func (s *service) InvalidateDocument(ctx context.Context, publicID string) error {
	return s.Delete(ctx, PrefixDocument+publicID)
}
