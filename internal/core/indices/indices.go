// Package indices implements vegetation and moisture index computation over
// reflectance rasters. All functions are pure: they never mutate their
// inputs and are safe to call concurrently.
package indices

import (
	"fmt"
	"math"

	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// Index names as persisted and reported.
const (
	IndexNDVI = "ndvi"
	IndexNDWI = "ndwi"
	IndexEVI  = "evi"
	IndexSAVI = "savi"
	IndexNDRE = "ndre"
)

// EVIParams are the standard MODIS/Sentinel EVI coefficients.
type EVIParams struct {
	Gain float64
	C1   float64
	C2   float64
	L    float64
}

// DefaultEVIParams returns gain 2.5, C1 6.0, C2 7.5, L 1.0.
func DefaultEVIParams() EVIParams {
	return EVIParams{Gain: 2.5, C1: 6.0, C2: 7.5, L: 1.0}
}

// DefaultSAVIL is the soil brightness correction factor for mixed cover.
const DefaultSAVIL = 0.5

// NDVI computes (NIR - RED) / (NIR + RED). A zero denominator yields 0;
// no-data pixels stay no-data.
func NDVI(nir, red *raster.Grid) (*raster.Grid, error) {
	return normalizedDifference(IndexNDVI, nir, red)
}

// NDWI computes (NIR - SWIR) / (NIR + SWIR).
func NDWI(nir, swir *raster.Grid) (*raster.Grid, error) {
	return normalizedDifference(IndexNDWI, nir, swir)
}

// NDRE computes (NIR - RedEdge) / (NIR + RedEdge).
func NDRE(nir, redEdge *raster.Grid) (*raster.Grid, error) {
	return normalizedDifference(IndexNDRE, nir, redEdge)
}

// SAVI computes ((NIR - RED) / (NIR + RED + L)) * (1 + L).
func SAVI(nir, red *raster.Grid, l float64) (*raster.Grid, error) {
	if !nir.SameShape(red) {
		return nil, shapeError(IndexSAVI, nir, red)
	}
	out := raster.NewGrid(raster.Band(IndexSAVI), nir.Rows, nir.Cols)
	for i := range out.Values {
		n, r := nir.Values[i], red.Values[i]
		if math.IsNaN(n) || math.IsNaN(r) {
			continue
		}
		denom := n + r + l
		if denom == 0 {
			out.Values[i] = 0
			continue
		}
		out.Values[i] = finiteOrZero((n - r) / denom * (1 + l))
	}
	return out, nil
}

// EVI computes gain * (NIR - RED) / (NIR + C1*RED - C2*BLUE + L), clamped to
// [-1, 1]. The clamp holds for arbitrarily extreme band values.
func EVI(nir, red, blue *raster.Grid, params EVIParams) (*raster.Grid, error) {
	if !nir.SameShape(red) || !nir.SameShape(blue) {
		return nil, shapeError(IndexEVI, nir, red)
	}
	out := raster.NewGrid(raster.Band(IndexEVI), nir.Rows, nir.Cols)
	for i := range out.Values {
		n, r, b := nir.Values[i], red.Values[i], blue.Values[i]
		if math.IsNaN(n) || math.IsNaN(r) || math.IsNaN(b) {
			continue
		}
		denom := n + params.C1*r - params.C2*b + params.L
		if denom == 0 {
			out.Values[i] = 0
			continue
		}
		v := finiteOrZero(params.Gain * (n - r) / denom)
		out.Values[i] = math.Max(-1, math.Min(1, v))
	}
	return out, nil
}

func normalizedDifference(name string, a, b *raster.Grid) (*raster.Grid, error) {
	if !a.SameShape(b) {
		return nil, shapeError(name, a, b)
	}
	out := raster.NewGrid(raster.Band(name), a.Rows, a.Cols)
	for i := range out.Values {
		av, bv := a.Values[i], b.Values[i]
		if math.IsNaN(av) || math.IsNaN(bv) {
			continue
		}
		denom := av + bv
		if denom == 0 {
			out.Values[i] = 0
			continue
		}
		out.Values[i] = finiteOrZero((av - bv) / denom)
	}
	return out, nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func shapeError(name string, a, b *raster.Grid) error {
	return fmt.Errorf("%s: band shape mismatch %dx%d vs %dx%d", name, a.Rows, a.Cols, b.Rows, b.Cols)
}
