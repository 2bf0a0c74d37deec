// Package cache keeps fetched page bodies so retried items do not refetch them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/cvlacsync/internal/model"
)

// Cache stores opaque byte payloads with a time to live
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key for a page URL
func Key(pageURL string) string {
	hash := sha256.Sum256([]byte(pageURL))
	return "cvlacsync:page:v1:" + hex.EncodeToString(hash[:])
}

// Pages stores fetched pages by URL on top of a byte Cache.
// A nil *Pages is a cache that never hits.
type Pages struct {
	backend Cache
	ttl     time.Duration
}

// NewPages wraps backend. Entries live for ttl; zero uses the backend default.
func NewPages(backend Cache, ttl time.Duration) *Pages {
	return &Pages{backend: backend, ttl: ttl}
}

// Get returns the cached page for pageURL. Undecodable entries are dropped
// and reported as a miss.
func (p *Pages) Get(pageURL string) (*model.Page, bool) {
	if p == nil {
		return nil, false
	}
	raw, ok := p.backend.Get(Key(pageURL))
	if !ok {
		return nil, false
	}
	var page model.Page
	if err := json.Unmarshal(raw, &page); err != nil {
		_ = p.backend.Delete(Key(pageURL))
		return nil, false
	}
	return &page, true
}

// Put caches page under pageURL
func (p *Pages) Put(pageURL string, page *model.Page) error {
	if p == nil || page == nil {
		return nil
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	return p.backend.Set(Key(pageURL), raw, p.ttl)
}

// Forget evicts pageURL
func (p *Pages) Forget(pageURL string) error {
	if p == nil {
		return nil
	}
	return p.backend.Delete(Key(pageURL))
}
