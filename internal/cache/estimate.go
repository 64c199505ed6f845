package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// estimateKeyPrefix namespaces audience counts: estimate:{channel}:{mode}:{include}:{exclude}
const estimateKeyPrefix = "estimate:"

// Config contains connection settings for the Redis client
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and checks that the server answers.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// EstimateStore caches audience counts for a short time
type EstimateStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewEstimateStore creates a new estimate cache
func NewEstimateStore(client *goredis.Client, ttl time.Duration) *EstimateStore {
	return &EstimateStore{client: client, ttl: ttl}
}

// EstimateKey builds the cache key of a target. Group ID order does not
// matter.
func EstimateKey(channelID int64, target models.Target) string {
	return fmt.Sprintf("%s%d:%s:%s:%s", estimateKeyPrefix, channelID, target.Mode,
		joinIDs(target.IncludeGroupIDs), joinIDs(target.ExcludeGroupIDs))
}

func joinIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// GetCount returns the cached count; ok is false on a miss.
func (s *EstimateStore) GetCount(ctx context.Context, key string) (int, bool, error) {
	n, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read estimate %s: %w", key, err)
	}
	return n, true, nil
}

// SetCount stores a count with the store TTL.
func (s *EstimateStore) SetCount(ctx context.Context, key string, count int) error {
	if err := s.client.Set(ctx, key, count, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store estimate %s: %w", key, err)
	}
	return nil
}

// InvalidateChannel drops every cached count of a channel.
func (s *EstimateStore) InvalidateChannel(ctx context.Context, channelID int64) error {
	pattern := fmt.Sprintf("%s%d:*", estimateKeyPrefix, channelID)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan estimates: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
