// Package cache stores summaries keyed by email identity and guarded by a
// content+model fingerprint. A lookup whose stored fingerprint does not match
// the current one is a miss, and the stale entry is evicted on the spot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// Fingerprint hashes the normalized body together with the model version.
// Any change to either yields a different fingerprint.
func Fingerprint(normalizedBody, modelVersion string) string {
	h := sha256.New()
	h.Write([]byte(normalizedBody))
	h.Write([]byte{0})
	h.Write([]byte(modelVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one stored summary with its staleness guard.
type Entry struct {
	EmailID     string          `json:"email_id" bson:"email_id"`
	Fingerprint string          `json:"fingerprint" bson:"fingerprint"`
	Summary     summary.Summary `json:"summary" bson:"summary"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}

// Store is the persistence backend. Implementations must be safe for
// concurrent use; the invalidation policy lives above them in Cache and is
// identical across backends.
type Store interface {
	Get(ctx context.Context, emailID string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, emailID string) error
	Clear(ctx context.Context) error
}

// Cache applies the fingerprint policy over any Store.
type Cache struct {
	store Store
}

func New(store Store) *Cache {
	if store == nil {
		store = NewMemoryStore(0)
	}
	return &Cache{store: store}
}

// Lookup returns the stored summary for emailID only when its fingerprint
// matches the current one. On mismatch the stale entry is lazily evicted and
// the lookup reports a miss; the stored value is never silently reused.
func (c *Cache) Lookup(ctx context.Context, emailID, currentFingerprint string) (summary.Summary, bool) {
	entry, ok, err := c.store.Get(ctx, emailID)
	if err != nil || !ok {
		return summary.Summary{}, false
	}
	if entry.Fingerprint != currentFingerprint {
		_ = c.store.Delete(ctx, emailID)
		return summary.Summary{}, false
	}
	return entry.Summary, true
}

// Put overwrites any prior entry for the identity.
func (c *Cache) Put(ctx context.Context, emailID, fingerprint string, s summary.Summary) error {
	return c.store.Put(ctx, Entry{
		EmailID:     emailID,
		Fingerprint: fingerprint,
		Summary:     s,
		CreatedAt:   time.Now().UTC(),
	})
}

// Invalidate drops the entry for one identity.
func (c *Cache) Invalidate(ctx context.Context, emailID string) error {
	return c.store.Delete(ctx, emailID)
}

// Clear drops every entry. Used on logout and permission revocation.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}
