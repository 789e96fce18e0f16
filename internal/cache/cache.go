package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/text2sql-server/internal/observability"
)

const (
	keyPrefix   = "query:"
	dbHashBytes = 8
)

// NormalizeQuestion trims the question and collapses runs of whitespace.
// Case is preserved.
func NormalizeQuestion(question string) string {
	return strings.Join(strings.Fields(question), " ")
}

// KeyFor returns the cache key for a question against a database.
func KeyFor(question, database string) string {
	sum := sha256.Sum256([]byte(NormalizeQuestion(question) + "\x00" + database))
	return DatabasePrefix(database) + hex.EncodeToString(sum[:])
}

// DatabasePrefix is the key prefix shared by every entry of one database.
// The name is hashed to a fixed width so no prefix is a prefix of another
// database's keys, whatever characters the names contain.
func DatabasePrefix(database string) string {
	sum := sha256.Sum256([]byte(database))
	return keyPrefix + hex.EncodeToString(sum[:dbHashBytes]) + ":"
}

// QueryCache stores JSON-encoded responses. It is best-effort: store failures
// are logged and reported as misses, never returned.
type QueryCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewQueryCache creates a cache over store with a fixed TTL.
func NewQueryCache(store Store, ttl time.Duration, logger *slog.Logger) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get decodes the entry for key into dst and reports whether it was found.
func (c *QueryCache) Get(ctx context.Context, key string, dst any) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache get failed", "key", key, "error", err)
		observability.RecordCacheLookup("error")
		return false
	}
	if !ok {
		observability.RecordCacheLookup("miss")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		observability.RecordCacheLookup("error")
		return false
	}

	c.logger.Debug("Cache hit", "key", key)
	observability.RecordCacheLookup("hit")
	return true
}

// Put stores value under key for the configured TTL.
func (c *QueryCache) Put(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Cache set failed", "key", key, "error", err)
		return
	}
	c.logger.Debug("Cached value", "key", key, "ttl", c.ttl)
}

// InvalidateDatabase drops every cached answer for database.
func (c *QueryCache) InvalidateDatabase(ctx context.Context, database string) {
	n, err := c.store.DeletePrefix(ctx, DatabasePrefix(database))
	if err != nil {
		c.logger.Warn("Cache invalidation failed", "database", database, "error", err)
		return
	}
	c.logger.Info("Invalidated cached queries", "database", database, "entries", n)
}

// RunJanitor purges expired entries every interval until ctx is done.
func (c *QueryCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.store.PurgeExpired(ctx)
			if err != nil {
				c.logger.Warn("Cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				c.logger.Debug("Purged expired cache entries", "entries", n)
			}
		}
	}
}
