package raster

import (
	"fmt"
	"math"
)

// Band identifies the spectral channel a grid was read from.
type Band string

const (
	BandRed     Band = "red"     // Sentinel-2 B04
	BandNIR     Band = "nir"     // Sentinel-2 B08
	BandGreen   Band = "green"   // Sentinel-2 B03
	BandBlue    Band = "blue"    // Sentinel-2 B02
	BandSWIR    Band = "swir"    // Sentinel-2 B11
	BandRedEdge Band = "rededge" // Sentinel-2 B05
)

// Grid is a 2-D reflectance raster for a single band. Values are
// conventionally in [0, 1]; NaN marks no-data pixels (outside the boundary
// polygon or missing measurements).
type Grid struct {
	Band   Band
	Rows   int
	Cols   int
	Values []float64 // row-major, len == Rows*Cols
}

// NewGrid allocates a grid with every pixel set to the no-data sentinel.
func NewGrid(band Band, rows, cols int) *Grid {
	g := &Grid{
		Band:   band,
		Rows:   rows,
		Cols:   cols,
		Values: make([]float64, rows*cols),
	}
	for i := range g.Values {
		g.Values[i] = math.NaN()
	}
	return g
}

// FromValues wraps an existing row-major slice. The slice is owned by the
// grid afterwards.
func FromValues(band Band, rows, cols int, values []float64) (*Grid, error) {
	if len(values) != rows*cols {
		return nil, fmt.Errorf("raster: %d values for %dx%d grid", len(values), rows, cols)
	}
	return &Grid{Band: band, Rows: rows, Cols: cols, Values: values}, nil
}

// At returns the pixel value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Values[row*g.Cols+col]
}

// Set writes the pixel value at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Values[row*g.Cols+col] = v
}

// SameShape reports whether the two grids have identical dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.Rows == other.Rows && g.Cols == other.Cols
}

// ValidValues returns the pixels that carry a measurement, skipping no-data
// sentinels.
func (g *Grid) ValidValues() []float64 {
	out := make([]float64, 0, len(g.Values))
	for _, v := range g.Values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
