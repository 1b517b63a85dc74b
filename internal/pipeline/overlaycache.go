package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/visibility/internal/model"
)

// OverlaySource loads an organization's overlay from persistent storage.
type OverlaySource interface {
	GetOverlay(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error)
}

// OverlayCache memoizes per-organization overlays for a short TTL so a batch
// run over many prompts does not refetch the same overlay on every execution.
// Safe for concurrent use.
type OverlayCache struct {
	source OverlaySource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]overlayEntry
}

type overlayEntry struct {
	overlay model.OrgOverlay
	expires time.Time
}

// NewOverlayCache creates a cache over source. A non-positive ttl disables
// caching and every Get hits the source.
func NewOverlayCache(source OverlaySource, ttl time.Duration) *OverlayCache {
	return &OverlayCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]overlayEntry),
	}
}

// WithNow sets a fixed time for testing.
func (c *OverlayCache) WithNow(now func() time.Time) *OverlayCache {
	c.now = now
	return c
}

// Get returns the cached overlay for orgID, fetching from the source when the
// cached copy is missing or expired. Fetch errors are never cached.
func (c *OverlayCache) Get(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		entry, ok := c.entries[orgID]
		c.mu.Unlock()
		if ok && c.now().Before(entry.expires) {
			return entry.overlay, nil
		}
	}

	overlay, err := c.source.GetOverlay(ctx, orgID)
	if err != nil {
		return model.OrgOverlay{}, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[orgID] = overlayEntry{overlay: overlay, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return overlay, nil
}

// Invalidate drops the cached overlay for orgID. Callers that edit an overlay
// invalidate so the next run sees the new rules immediately.
func (c *OverlayCache) Invalidate(orgID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, orgID)
	c.mu.Unlock()
}
