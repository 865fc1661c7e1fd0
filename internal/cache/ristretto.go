package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"domino/internal/domain"
)

// GeneralCache is a local TTL cache.
type GeneralCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewGeneralCache creates a cache bounded by maxCost, with ttl as the
// default expiry.
func NewGeneralCache(maxCost int64, ttl time.Duration) (*GeneralCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxCost,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &GeneralCache{cache: cache, ttl: ttl}, nil
}

// Set stores a value with the default TTL. Writes are applied asynchronously.
func (c *GeneralCache) Set(key string, value interface{}) bool {
	return c.SetWithTTL(key, value, c.ttl)
}

func (c *GeneralCache) SetWithTTL(key string, value interface{}, ttl time.Duration) bool {
	return c.cache.SetWithTTL(key, value, 1, ttl)
}

func (c *GeneralCache) Get(key string) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *GeneralCache) Delete(key string) {
	c.cache.Del(key)
}

// Wait blocks until pending writes are visible.
func (c *GeneralCache) Wait() {
	c.cache.Wait()
}

func (c *GeneralCache) Close() {
	c.cache.Close()
}

func resultKey(matchID string) string {
	return "match:" + matchID
}

// PutResult caches the read model of a match.
func (c *GeneralCache) PutResult(res domain.MatchResult) bool {
	return c.Set(resultKey(res.MatchID), res)
}

// Result returns a cached match read model.
func (c *GeneralCache) Result(matchID string) (domain.MatchResult, bool) {
	value, ok := c.Get(resultKey(matchID))
	if !ok {
		return domain.MatchResult{}, false
	}
	res, ok := value.(domain.MatchResult)
	return res, ok
}

// ForgetResult drops a cached match read model.
func (c *GeneralCache) ForgetResult(matchID string) {
	c.Delete(resultKey(matchID))
}
