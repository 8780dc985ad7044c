package imagery

import (
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// WriteGeoTIFF writes a single-band float64 GeoTIFF georeferenced in
// EPSG:4326, with the pixel grid stretched over the boundary's bounding
// box. The file at path is overwritten.
func WriteGeoTIFF(path string, grid *raster.Grid, boundary geometry.Polygon) error {
	registerDrivers()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, grid.Cols, grid.Rows)
	if err != nil {
		return fmt.Errorf("create geotiff: %w", err)
	}
	defer ds.Close()

	minLon, minLat, maxLon, maxLat := boundary.Bounds()
	gt := [6]float64{
		minLon, (maxLon - minLon) / float64(grid.Cols), 0,
		maxLat, 0, -(maxLat - minLat) / float64(grid.Rows),
	}
	if err := ds.SetGeoTransform(gt); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("create wgs84 ref: %w", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("set spatial ref: %w", err)
	}

	if err := ds.Bands()[0].Write(0, 0, grid.Values, grid.Cols, grid.Rows); err != nil {
		return fmt.Errorf("write band: %w", err)
	}
	return nil
}
