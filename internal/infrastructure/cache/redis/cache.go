package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

const keyPrefix = "cqr:search:"

// Store is the subset of Redis the search cache needs. A miss is reported
// as goredis.Nil.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// ClientStore adapts a go-redis client to Store.
type ClientStore struct {
	client *goredis.Client
}

// Connect parses a redis:// URL and checks the connection.
func Connect(url string) (*ClientStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &ClientStore{client: client}, nil
}

func (s *ClientStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *ClientStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *ClientStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ClientStore) Close() error {
	return s.client.Close()
}

// SearchCache memoises search results per query and hit count. Cache
// failures are logged and fall through to the wrapped searcher.
type SearchCache struct {
	next      ports.Searcher
	store     Store
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

var _ ports.Searcher = (*SearchCache)(nil)

func NewSearchCache(next ports.Searcher, store Store, namespace string, ttl time.Duration, logger *slog.Logger) *SearchCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCache{
		next:      next,
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *SearchCache) Search(ctx context.Context, query string, numHits int) ([]domain.Hit, error) {
	key := c.key(query, numHits)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		hits := []domain.Hit{}
		jsonErr := json.Unmarshal([]byte(raw), &hits)
		if jsonErr == nil {
			return hits, nil
		}
		c.logger.Warn("search_cache_decode_failed", "key", key, "error", jsonErr)
	case errors.Is(err, goredis.Nil):
	default:
		c.logger.Warn("search_cache_get_failed", "key", key, "error", err)
	}

	hits, err := c.next.Search(ctx, query, numHits)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.Hit{}
	}

	payload, err := json.Marshal(hits)
	if err != nil {
		return hits, nil
	}
	if err := c.store.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logger.Warn("search_cache_set_failed", "key", key, "error", err)
	}
	return hits, nil
}

func (c *SearchCache) key(query string, numHits int) string {
	sum := sha256.Sum256([]byte(c.namespace + "\x00" + strconv.Itoa(numHits) + "\x00" + query))
	return keyPrefix + hex.EncodeToString(sum[:])
}
