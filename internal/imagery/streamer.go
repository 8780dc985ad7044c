// Package imagery streams spectral bands out of cloud-optimized GeoTIFFs
// and renders the pipeline's raster artifacts. All GDAL access lives here.
package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// Streamer reads boundary-sized windows out of remote COG assets. Only the
// tiles intersecting the boundary's bounding box are fetched (GDAL issues
// HTTP range requests through /vsicurl/); the full asset is never
// downloaded.
type Streamer struct{}

// NewStreamer returns a COG band streamer.
func NewStreamer() *Streamer {
	registerDrivers()
	return &Streamer{}
}

// FetchMaskedBand reads the window of the asset covering the boundary's
// bounding box and masks every pixel whose center falls outside the exact
// polygon with the no-data sentinel. Any failure (unreachable locator,
// corrupt tile, unsupported format) is returned as an error; callers fall
// back to synthetic data rather than propagating it.
func (s *Streamer) FetchMaskedBand(ctx context.Context, assetURL string, band raster.Band, boundary geometry.Polygon) (*raster.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, err := godal.Open(vsiPath(assetURL))
	if err != nil {
		return nil, fmt.Errorf("open band asset: %w", err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("read geotransform: %w", err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("rotated rasters are not supported")
	}

	footprint, err := projectBoundary(ds, boundary)
	if err != nil {
		return nil, err
	}

	win, err := windowFor(footprint, gt, ds.Structure().SizeX, ds.Structure().SizeY)
	if err != nil {
		return nil, err
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("asset has no raster bands")
	}

	values := make([]float64, win.cols*win.rows)
	if err := bands[0].Read(win.col0, win.row0, values, win.cols, win.rows); err != nil {
		return nil, fmt.Errorf("read band window: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grid, err := raster.FromValues(band, win.rows, win.cols, values)
	if err != nil {
		return nil, err
	}
	maskOutsidePolygon(grid, footprint, gt, win)

	slog.Debug("[Imagery] Streamed band window",
		"band", band,
		"rows", win.rows,
		"cols", win.cols,
	)
	return grid, nil
}

func vsiPath(assetURL string) string {
	if strings.HasPrefix(assetURL, "http://") || strings.HasPrefix(assetURL, "https://") {
		return "/vsicurl/" + assetURL
	}
	return assetURL
}

// projectBoundary transforms the boundary from EPSG:4326 into the dataset's
// CRS so windowing and masking happen in the raster's coordinate space. The
// projected points reuse the Point shape with Lon/Lat holding x/y.
func projectBoundary(ds *godal.Dataset, boundary geometry.Polygon) (geometry.Polygon, error) {
	src, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return geometry.Polygon{}, fmt.Errorf("create wgs84 ref: %w", err)
	}
	defer src.Close()

	dst := ds.SpatialRef()
	if dst == nil || src.IsSame(dst) {
		return boundary, nil
	}

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return geometry.Polygon{}, fmt.Errorf("create crs transform: %w", err)
	}
	defer tr.Close()

	ring := boundary.Ring()
	xs := make([]float64, len(ring))
	ys := make([]float64, len(ring))
	for i, pt := range ring {
		xs[i], ys[i] = pt.Lon, pt.Lat
	}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return geometry.Polygon{}, fmt.Errorf("project boundary: %w", err)
	}

	out := make([]geometry.Point, len(ring))
	for i := range ring {
		out[i] = geometry.Point{Lon: xs[i], Lat: ys[i]}
	}
	projected, err := geometry.NewPolygon(out)
	if err != nil {
		return geometry.Polygon{}, fmt.Errorf("projected boundary degenerated: %w", err)
	}
	return projected, nil
}

type window struct {
	col0, row0 int
	cols, rows int
}

func windowFor(footprint geometry.Polygon, gt [6]float64, sizeX, sizeY int) (window, error) {
	minX, minY, maxX, maxY := footprint.Bounds()

	// gt[5] is negative for north-up rasters: maxY maps to the top row.
	col0 := int(math.Floor((minX - gt[0]) / gt[1]))
	col1 := int(math.Ceil((maxX - gt[0]) / gt[1]))
	row0 := int(math.Floor((maxY - gt[3]) / gt[5]))
	row1 := int(math.Ceil((minY - gt[3]) / gt[5]))

	col0 = clamp(col0, 0, sizeX)
	col1 = clamp(col1, 0, sizeX)
	row0 = clamp(row0, 0, sizeY)
	row1 = clamp(row1, 0, sizeY)

	w := window{col0: col0, row0: row0, cols: col1 - col0, rows: row1 - row0}
	if w.cols <= 0 || w.rows <= 0 {
		return window{}, fmt.Errorf("boundary does not intersect the asset extent")
	}
	return w, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maskOutsidePolygon sets pixels whose centers fall outside the exact
// boundary to NaN.
func maskOutsidePolygon(grid *raster.Grid, footprint geometry.Polygon, gt [6]float64, win window) {
	for row := 0; row < grid.Rows; row++ {
		y := gt[3] + (float64(win.row0+row)+0.5)*gt[5]
		for col := 0; col < grid.Cols; col++ {
			x := gt[0] + (float64(win.col0+col)+0.5)*gt[1]
			if !footprint.Contains(x, y) {
				grid.Set(row, col, math.NaN())
			}
		}
	}
}
