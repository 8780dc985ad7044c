package catalog

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// MockClient satisfies Client without network access: one synthetic
// low-cloud scene a few days old, and band-plausible uniform-random grids.
// Used in development mode and as the pipeline's acquisition fallback.
type MockClient struct {
	size int
	now  func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockClient builds a mock client generating size x size bands.
func NewMockClient(size int) *MockClient {
	if size <= 0 {
		size = raster.DefaultSyntheticSize
	}
	return &MockClient{
		size: size,
		now:  time.Now,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockClient) Source() string { return SourceMock }

// SearchScenes always returns exactly one synthetic scene.
func (m *MockClient) SearchScenes(_ context.Context, _ geometry.Polygon, _ SearchOptions) ([]Scene, error) {
	return []Scene{{
		ID:         "mock-scene-001",
		CapturedAt: m.now().UTC().Add(-3 * 24 * time.Hour),
		CloudCover: 5.0,
		RedURL:     "mock://sentinel-2/B04.tif",
		NIRURL:     "mock://sentinel-2/B08.tif",
		GreenURL:   "mock://sentinel-2/B03.tif",
		BlueURL:    "mock://sentinel-2/B02.tif",
	}}, nil
}

// FetchMaskedBand generates a synthetic grid in the band's typical
// reflectance range.
func (m *MockClient) FetchMaskedBand(_ context.Context, _ string, band raster.Band, _ geometry.Polygon) (*raster.Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return raster.Synthetic(band, m.size, m.size, m.rng), nil
}
