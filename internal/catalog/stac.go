package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

const (
	// Element84 Earth Search: free Sentinel-2 L2A catalog, no API key.
	DefaultSTACURL      = "https://earth-search.aws.element84.com/v1"
	sentinel2Collection = "sentinel-2-l2a"

	searchTimeout = 25 * time.Second
)

// BandFetcher streams and masks a single band asset. Implemented by
// imagery.Streamer; injected so catalog search stays testable without GDAL.
type BandFetcher interface {
	FetchMaskedBand(ctx context.Context, assetURL string, band raster.Band, boundary geometry.Polygon) (*raster.Grid, error)
}

// STACClient searches a STAC API for Sentinel-2 scenes and streams bands
// through the injected fetcher. Search failures trip a circuit breaker so a
// flapping catalog does not hold every pipeline run for the full timeout.
type STACClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	fetcher BandFetcher
	now     func() time.Time
}

// NewSTACClient builds a client against the given STAC endpoint. An empty
// url selects Earth Search.
func NewSTACClient(url string, fetcher BandFetcher) *STACClient {
	if url == "" {
		url = DefaultSTACURL
	}
	return &STACClient{
		baseURL: url,
		http:    &http.Client{Timeout: searchTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "stac-search",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		fetcher: fetcher,
		now:     time.Now,
	}
}

func (c *STACClient) Source() string { return SourceSentinel2 }

// stacSearchRequest is the fixed wire shape of the POST /search endpoint.
type stacSearchRequest struct {
	Collections []string        `json:"collections"`
	Intersects  json.RawMessage `json:"intersects"`
	Datetime    string          `json:"datetime"`
	Query       map[string]any  `json:"query,omitempty"`
	SortBy      []stacSortField `json:"sortby,omitempty"`
	Limit       int             `json:"limit"`
}

type stacSortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type stacSearchResponse struct {
	Features []stacItem `json:"features"`
}

type stacItem struct {
	ID         string               `json:"id"`
	Properties stacItemProperties   `json:"properties"`
	Assets     map[string]stacAsset `json:"assets"`
}

type stacItemProperties struct {
	Datetime   string  `json:"datetime"`
	CloudCover float64 `json:"eo:cloud_cover"`
}

type stacAsset struct {
	Href string `json:"href"`
}

// SearchScenes queries the catalog for scenes intersecting the boundary.
// Any transport or decode failure is logged and reported as "no imagery".
func (c *STACClient) SearchScenes(ctx context.Context, boundary geometry.Polygon, opts SearchOptions) ([]Scene, error) {
	opts = opts.normalized(c.now().UTC())

	geom, err := boundary.MarshalGeoJSON()
	if err != nil {
		slog.Error("[STAC] Failed to encode boundary geometry", "error", err)
		return nil, nil
	}

	reqBody := stacSearchRequest{
		Collections: []string{sentinel2Collection},
		Intersects:  geom,
		Datetime:    fmt.Sprintf("%s/%s", opts.From.UTC().Format(time.RFC3339), opts.To.UTC().Format(time.RFC3339)),
		Query: map[string]any{
			"eo:cloud_cover": map[string]any{"lt": opts.MaxCloudCover},
		},
		SortBy: []stacSortField{{Field: "properties.eo:cloud_cover", Direction: "asc"}},
		Limit:  opts.Limit,
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doSearch(ctx, reqBody)
	})
	if err != nil {
		slog.Error("[STAC] Scene search failed", "error", err, "limit", opts.Limit)
		return nil, nil
	}

	scenes := c.parseItems(result.(*stacSearchResponse).Features, opts)
	slog.Info("[STAC] Scene search complete",
		"found", len(scenes),
		"window", reqBody.Datetime,
		"max_cloud_cover", opts.MaxCloudCover,
	)
	return scenes, nil
}

func (c *STACClient) doSearch(ctx context.Context, body stacSearchRequest) (*stacSearchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %s", resp.Status)
	}

	var out stacSearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return &out, nil
}

// parseItems converts STAC items to scenes, dropping any without both red
// and NIR assets, re-applying the cloud filter and ordering locally.
func (c *STACClient) parseItems(items []stacItem, opts SearchOptions) []Scene {
	scenes := make([]Scene, 0, len(items))
	for _, item := range items {
		if item.Properties.CloudCover >= opts.MaxCloudCover {
			continue
		}
		scene, ok := c.parseItem(item)
		if !ok {
			slog.Warn("[STAC] Dropping scene without red/NIR assets", "scene_id", item.ID)
			continue
		}
		scenes = append(scenes, scene)
	}

	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].CloudCover < scenes[j].CloudCover
	})
	if len(scenes) > opts.Limit {
		scenes = scenes[:opts.Limit]
	}
	return scenes
}

func (c *STACClient) parseItem(item stacItem) (Scene, bool) {
	red := assetHref(item.Assets, "red", "B04")
	nir := assetHref(item.Assets, "nir", "B08")
	if red == "" || nir == "" {
		return Scene{}, false
	}

	capturedAt, err := time.Parse(time.RFC3339, item.Properties.Datetime)
	if err != nil {
		// Tolerate missing/odd datetimes; the scene is still usable.
		capturedAt = time.Time{}
	}

	return Scene{
		ID:         item.ID,
		CapturedAt: capturedAt,
		CloudCover: item.Properties.CloudCover,
		RedURL:     red,
		NIRURL:     nir,
		GreenURL:   assetHref(item.Assets, "green", "B03"),
		BlueURL:    assetHref(item.Assets, "blue", "B02"),
	}, true
}

func assetHref(assets map[string]stacAsset, keys ...string) string {
	for _, k := range keys {
		if a, ok := assets[k]; ok && a.Href != "" {
			return a.Href
		}
	}
	return ""
}

// FetchMaskedBand delegates to the COG streamer.
func (c *STACClient) FetchMaskedBand(ctx context.Context, assetURL string, band raster.Band, boundary geometry.Polygon) (*raster.Grid, error) {
	return c.fetcher.FetchMaskedBand(ctx, assetURL, band, boundary)
}
