package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

func testBoundary(t *testing.T) geometry.Polygon {
	t.Helper()
	p, err := geometry.NewPolygon([]geometry.Point{
		{Lon: -93.0, Lat: 41.0},
		{Lon: -92.99, Lat: 41.0},
		{Lon: -92.99, Lat: 41.01},
		{Lon: -93.0, Lat: 41.01},
		{Lon: -93.0, Lat: 41.0},
	})
	require.NoError(t, err)
	return p
}

func stacItemJSON(id string, cloud float64, assets map[string]string) map[string]any {
	a := map[string]any{}
	for k, href := range assets {
		a[k] = map[string]any{"href": href}
	}
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"datetime":       "2026-08-20T17:02:11Z",
			"eo:cloud_cover": cloud,
		},
		"assets": a,
	}
}

func newTestServer(t *testing.T, features []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []any{"sentinel-2-l2a"}, req["collections"])
		require.NotEmpty(t, req["datetime"])

		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(map[string]any{"features": features})
	}))
}

func bothBands(prefix string) map[string]string {
	return map[string]string{
		"red": prefix + "/B04.tif",
		"nir": prefix + "/B08.tif",
	}
}

func TestSTACClient_SearchScenes_FiltersAndRanks(t *testing.T) {
	srv := newTestServer(t, []map[string]any{
		stacItemJSON("scene-cloudy", 40, bothBands("a")),
		stacItemJSON("scene-clear", 5, bothBands("b")),
		stacItemJSON("scene-ok", 20, bothBands("c")),
	})
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{MaxCloudCover: 30})
	require.NoError(t, err)

	require.Len(t, scenes, 2)
	require.Equal(t, "scene-clear", scenes[0].ID)
	require.Equal(t, 5.0, scenes[0].CloudCover)
	require.Equal(t, "scene-ok", scenes[1].ID)
	require.Equal(t, 20.0, scenes[1].CloudCover)
}

func TestSTACClient_SearchScenes_DropsScenesMissingRequiredBands(t *testing.T) {
	srv := newTestServer(t, []map[string]any{
		stacItemJSON("no-nir", 5, map[string]string{"red": "x/B04.tif"}),
		stacItemJSON("no-red", 6, map[string]string{"nir": "x/B08.tif"}),
		stacItemJSON("complete", 7, bothBands("y")),
	})
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{})
	require.NoError(t, err)

	require.Len(t, scenes, 1)
	require.Equal(t, "complete", scenes[0].ID)
}

func TestSTACClient_SearchScenes_AltAssetKeys(t *testing.T) {
	srv := newTestServer(t, []map[string]any{
		stacItemJSON("l1c-style", 5, map[string]string{
			"B04": "x/B04.tif",
			"B08": "x/B08.tif",
			"B03": "x/B03.tif",
		}),
	})
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{})
	require.NoError(t, err)

	require.Len(t, scenes, 1)
	require.Equal(t, "x/B04.tif", scenes[0].RedURL)
	require.Equal(t, "x/B08.tif", scenes[0].NIRURL)
	require.Equal(t, "x/B03.tif", scenes[0].GreenURL)
	require.Empty(t, scenes[0].BlueURL)
}

func TestSTACClient_SearchScenes_Limit(t *testing.T) {
	srv := newTestServer(t, []map[string]any{
		stacItemJSON("s1", 1, bothBands("a")),
		stacItemJSON("s2", 2, bothBands("b")),
		stacItemJSON("s3", 3, bothBands("c")),
	})
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, scenes, 2)
}

func TestSTACClient_SearchScenes_CatalogDownReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, scenes)
}

func TestSTACClient_SearchScenes_MalformedResponseReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not geojson"))
	}))
	defer srv.Close()

	c := NewSTACClient(srv.URL, nil)
	scenes, err := c.SearchScenes(context.Background(), testBoundary(t), SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, scenes)
}

func TestMockClient_SearchScenes(t *testing.T) {
	m := NewMockClient(0)
	scenes, err := m.SearchScenes(context.Background(), testBoundary(t), SearchOptions{})
	require.NoError(t, err)

	require.Len(t, scenes, 1)
	require.Equal(t, 5.0, scenes[0].CloudCover)
	require.WithinDuration(t, time.Now().Add(-72*time.Hour), scenes[0].CapturedAt, time.Minute)

	_, ok := scenes[0].AssetURL(raster.BandRed)
	require.True(t, ok)
	_, ok = scenes[0].AssetURL(raster.BandNIR)
	require.True(t, ok)
}

func TestMockClient_FetchMaskedBand_Ranges(t *testing.T) {
	m := NewMockClient(16)

	red, err := m.FetchMaskedBand(context.Background(), "mock://B04", raster.BandRed, testBoundary(t))
	require.NoError(t, err)
	nir, err := m.FetchMaskedBand(context.Background(), "mock://B08", raster.BandNIR, testBoundary(t))
	require.NoError(t, err)

	require.Equal(t, 16, red.Rows)
	require.Equal(t, 16*16, len(red.Values))
	for i := range red.Values {
		require.Less(t, red.Values[i], nir.Values[i]) // vegetation signature
	}
}
