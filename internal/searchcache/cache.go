// Package searchcache provides the shared result cache used by the
// retrieval pipeline. Entries are immutable once written and keyed by a
// normalised query fingerprint; tenant-scoped caches embed the tenant in
// the key so cross-tenant collisions are structurally impossible.
package searchcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

const keyPrefix = "cache:"

// GlobalScope is the scope for caches shared across tenants, such as the
// external web-search cache.
const GlobalScope = "global"

// Entry is a cached result set with its expiry.
type Entry struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at the given time.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the cache contract. Implementations must be safe for concurrent
// readers and writers; a Set fully replaces any existing entry.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, scope string) (int64, error)
}

// Key builds a cache key from a scope (tenant ID or GlobalScope) and a
// fingerprint.
func Key(scope, fingerprint string) string {
	return keyPrefix + scope + ":" + fingerprint
}

// Fingerprint normalises query parts into a stable hash: parts are
// lower-cased, field-split, sorted, and hashed, so word order and casing
// do not fragment the cache.
func Fingerprint(parts ...string) string {
	words := make([]string, 0, len(parts)*4)
	for _, part := range parts {
		words = append(words, strings.Fields(strings.ToLower(part))...)
	}
	sort.Strings(words)
	sum := sha256.Sum256([]byte(strings.Join(words, " ")))
	return fmt.Sprintf("%x", sum[:16])
}
