package raster

import "math/rand"

// DefaultSyntheticSize is the resolution of generated mock bands.
const DefaultSyntheticSize = 100

// syntheticRanges holds per-band uniform value ranges tuned to look like a
// healthy vegetated field: low red reflectance (chlorophyll absorption),
// high near-infrared.
var syntheticRanges = map[Band][2]float64{
	BandRed:     {0.02, 0.15},
	BandNIR:     {0.35, 0.75},
	BandGreen:   {0.05, 0.20},
	BandBlue:    {0.01, 0.08},
	BandSWIR:    {0.10, 0.40},
	BandRedEdge: {0.10, 0.30},
}

// Synthetic generates a uniform-random grid whose value range matches the
// band's typical vegetation signature. Unknown bands get the NIR range so
// mock NDVI still reads as healthy.
func Synthetic(band Band, rows, cols int, rng *rand.Rand) *Grid {
	r, ok := syntheticRanges[band]
	if !ok {
		r = syntheticRanges[BandNIR]
	}
	g := NewGrid(band, rows, cols)
	for i := range g.Values {
		g.Values[i] = r[0] + rng.Float64()*(r[1]-r[0])
	}
	return g
}
