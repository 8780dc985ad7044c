package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Validation sentinels. Callers treat boundary validation failures as
// permanent: the orchestrator rejects them before acquisition and never
// retries them.
var (
	ErrTooFewPoints  = errors.New("boundary ring must contain at least 4 points")
	ErrRingNotClosed = errors.New("boundary ring must be closed (first point == last point)")
)

const (
	webMercatorRadius = 6378137.0
	sqMetersPerAcre   = 4046.8564224

	// Returned by AreaAcres when the projected-area computation degenerates
	// (e.g. vertices at the poles), instead of failing farm creation.
	placeholderAreaAcres = 2.5
)

// Point is a (longitude, latitude) pair in EPSG:4326.
type Point struct {
	Lon float64
	Lat float64
}

// Polygon is an immutable closed ring of geographic points. Construct via
// NewPolygon; the zero value is invalid.
type Polygon struct {
	ring []Point
}

// NewPolygon validates and copies the given ring. The ring must have at
// least 4 points and be explicitly closed.
func NewPolygon(ring []Point) (Polygon, error) {
	if len(ring) < 4 {
		return Polygon{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		return Polygon{}, ErrRingNotClosed
	}
	p := Polygon{ring: make([]Point, len(ring))}
	copy(p.ring, ring)
	return p, nil
}

// Ring returns a copy of the closed ring.
func (p Polygon) Ring() []Point {
	out := make([]Point, len(p.ring))
	copy(out, p.ring)
	return out
}

// Bounds returns the bounding box as (minLon, minLat, maxLon, maxLat).
func (p Polygon) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	minLon, minLat = math.Inf(1), math.Inf(1)
	maxLon, maxLat = math.Inf(-1), math.Inf(-1)
	for _, pt := range p.ring {
		minLon = math.Min(minLon, pt.Lon)
		minLat = math.Min(minLat, pt.Lat)
		maxLon = math.Max(maxLon, pt.Lon)
		maxLat = math.Max(maxLat, pt.Lat)
	}
	return minLon, minLat, maxLon, maxLat
}

// Contains reports whether the point lies inside the polygon (ray casting,
// boundary pixels count as inside on the crossing edge). The band streamer
// calls this once per pixel center, so it stays allocation free.
func (p Polygon) Contains(lon, lat float64) bool {
	inside := false
	n := len(p.ring) - 1
	for i := 0; i < n; i++ {
		a, b := p.ring[i], p.ring[i+1]
		if (a.Lat > lat) != (b.Lat > lat) {
			x := a.Lon + (lat-a.Lat)/(b.Lat-a.Lat)*(b.Lon-a.Lon)
			if lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// AreaAcres approximates the polygon area by projecting vertices to Web
// Mercator and applying the shoelace formula. Falls back to a fixed
// placeholder when the projection degenerates.
func (p Polygon) AreaAcres() float64 {
	n := len(p.ring) - 1
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, pt := range p.ring[:n] {
		xs[i] = webMercatorRadius * pt.Lon * math.Pi / 180
		lat := pt.Lat * math.Pi / 180
		ys[i] = webMercatorRadius * math.Log(math.Tan(math.Pi/4+lat/2))
	}

	var area float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += xs[i]*ys[j] - xs[j]*ys[i]
	}
	area = math.Abs(area) / 2

	acres := area / sqMetersPerAcre
	if !isUsableArea(acres) {
		return placeholderAreaAcres
	}
	return math.Round(acres*100) / 100
}

func isUsableArea(acres float64) bool {
	return !math.IsNaN(acres) && !math.IsInf(acres, 0) && acres > 0
}

// geoJSONPolygon mirrors the GeoJSON Polygon wire shape used by the STAC
// search endpoint.
type geoJSONPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// MarshalGeoJSON encodes the polygon as a GeoJSON Polygon geometry.
func (p Polygon) MarshalGeoJSON() ([]byte, error) {
	coords := make([][2]float64, len(p.ring))
	for i, pt := range p.ring {
		coords[i] = [2]float64{pt.Lon, pt.Lat}
	}
	return json.Marshal(geoJSONPolygon{
		Type:        "Polygon",
		Coordinates: [][][2]float64{coords},
	})
}

// UnmarshalGeoJSON decodes a GeoJSON Polygon geometry into a validated
// Polygon. Only the outer ring is kept; holes are not supported.
func UnmarshalGeoJSON(data []byte) (Polygon, error) {
	var g geoJSONPolygon
	if err := json.Unmarshal(data, &g); err != nil {
		return Polygon{}, fmt.Errorf("decode geojson polygon: %w", err)
	}
	if g.Type != "Polygon" || len(g.Coordinates) == 0 {
		return Polygon{}, fmt.Errorf("unsupported geojson geometry %q", g.Type)
	}
	ring := make([]Point, len(g.Coordinates[0]))
	for i, c := range g.Coordinates[0] {
		ring[i] = Point{Lon: c[0], Lat: c[1]}
	}
	return NewPolygon(ring)
}
