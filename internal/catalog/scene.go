// Package catalog searches a remote STAC imagery catalog for satellite
// scenes covering a farm boundary and exposes per-band asset locators.
package catalog

import (
	"time"

	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// SourceMock and SourceSentinel2 tag where a run's imagery came from.
const (
	SourceMock      = "mock"
	SourceSentinel2 = "sentinel-2"
)

// Scene is one satellite observation with per-band COG locators. Red and NIR
// are always present; green and blue are optional (needed only for the
// false-color composite). Scenes are ephemeral: produced by search, consumed
// once, never persisted.
type Scene struct {
	ID         string
	CapturedAt time.Time
	CloudCover float64

	RedURL   string
	NIRURL   string
	GreenURL string // optional
	BlueURL  string // optional
}

// AssetURL returns the locator for the given band, if the scene carries it.
func (s Scene) AssetURL(band raster.Band) (string, bool) {
	switch band {
	case raster.BandRed:
		return s.RedURL, s.RedURL != ""
	case raster.BandNIR:
		return s.NIRURL, s.NIRURL != ""
	case raster.BandGreen:
		return s.GreenURL, s.GreenURL != ""
	case raster.BandBlue:
		return s.BlueURL, s.BlueURL != ""
	default:
		return "", false
	}
}

// SearchOptions narrow a scene search. Zero-value dates default to the
// trailing 30 days ending now.
type SearchOptions struct {
	From          time.Time
	To            time.Time
	MaxCloudCover float64
	Limit         int
}

const (
	defaultDateWindow    = 30 * 24 * time.Hour
	defaultMaxCloudCover = 30.0
	defaultSearchLimit   = 5
)

func (o SearchOptions) normalized(now time.Time) SearchOptions {
	n := o
	if n.To.IsZero() {
		n.To = now
	}
	if n.From.IsZero() {
		n.From = n.To.Add(-defaultDateWindow)
	}
	if n.MaxCloudCover <= 0 {
		n.MaxCloudCover = defaultMaxCloudCover
	}
	if n.Limit <= 0 {
		n.Limit = defaultSearchLimit
	}
	return n
}
