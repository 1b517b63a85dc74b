package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/visibility/internal/model"
)

type countingSource struct {
	fetches int
	overlay model.OrgOverlay
	err     error
}

func (s *countingSource) GetOverlay(_ context.Context, orgID uuid.UUID) (model.OrgOverlay, error) {
	s.fetches++
	if s.err != nil {
		return model.OrgOverlay{}, s.err
	}
	overlay := s.overlay
	overlay.OrgID = orgID
	return overlay, nil
}

func TestOverlayCacheServesFromCacheWithinTTL(t *testing.T) {
	src := &countingSource{overlay: model.OrgOverlay{BrandVariants: []string{"Acme"}}}
	cache := NewOverlayCache(src, time.Minute)
	orgID := uuid.New()

	first, err := cache.Get(context.Background(), orgID)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), orgID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.fetches)
}

func TestOverlayCacheExpires(t *testing.T) {
	src := &countingSource{}
	clock := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	cache := NewOverlayCache(src, time.Minute).WithNow(func() time.Time { return clock })
	orgID := uuid.New()

	_, err := cache.Get(context.Background(), orgID)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = cache.Get(context.Background(), orgID)
	require.NoError(t, err)

	assert.Equal(t, 2, src.fetches)
}

func TestOverlayCacheZeroTTLDisablesCaching(t *testing.T) {
	src := &countingSource{}
	cache := NewOverlayCache(src, 0)
	orgID := uuid.New()

	for range 3 {
		_, err := cache.Get(context.Background(), orgID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.fetches)
}

func TestOverlayCacheInvalidate(t *testing.T) {
	src := &countingSource{}
	cache := NewOverlayCache(src, time.Hour)
	orgID := uuid.New()

	_, err := cache.Get(context.Background(), orgID)
	require.NoError(t, err)

	cache.Invalidate(orgID)
	_, err = cache.Get(context.Background(), orgID)
	require.NoError(t, err)

	assert.Equal(t, 2, src.fetches)
}

func TestOverlayCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: eris.New("overlay: boom")}
	cache := NewOverlayCache(src, time.Hour)
	orgID := uuid.New()

	_, err := cache.Get(context.Background(), orgID)
	require.Error(t, err)

	src.err = nil
	_, err = cache.Get(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.fetches)
}

func TestOverlayCacheKeysByOrganization(t *testing.T) {
	src := &countingSource{}
	cache := NewOverlayCache(src, time.Hour)

	_, err := cache.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 2, src.fetches)
}
