package catalog

import (
	"context"
	"sync"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// Client is the imagery acquisition capability: scene search plus masked
// band fetch. Two variants exist, the real STAC/COG client and a synthetic
// one, and the choice is made once at construction, not per call site.
type Client interface {
	// SearchScenes returns scenes intersecting the boundary, ascending by
	// cloud cover, truncated to opts.Limit. Catalog unavailability yields an
	// empty list, not an error: callers treat "no imagery" as a state.
	SearchScenes(ctx context.Context, boundary geometry.Polygon, opts SearchOptions) ([]Scene, error)

	// FetchMaskedBand streams the band asset, reading only the window
	// covering the boundary, and masks pixels outside the exact polygon with
	// the no-data sentinel.
	FetchMaskedBand(ctx context.Context, assetURL string, band raster.Band, boundary geometry.Polygon) (*raster.Grid, error)

	// Source tags analysis records produced from this client's imagery.
	Source() string
}

var (
	defaultMu     sync.Mutex
	defaultClient Client
)

// Default returns the process-wide client handle, constructing it on first
// use. Safe for concurrent callers; later calls ignore the build function.
func Default(build func() Client) Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = build()
	}
	return defaultClient
}
