package imagery

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// FalseColorPNG renders a NIR/Red/Green composite: each channel is
// independently normalized to its 2nd-98th percentile range and stretched to
// 8 bits. Vegetation reads as bright red.
func FalseColorPNG(nir, red, green *raster.Grid) ([]byte, error) {
	if !nir.SameShape(red) || !nir.SameShape(green) {
		return nil, fmt.Errorf("composite: band shapes differ")
	}

	r := stretchChannel(nir)
	g := stretchChannel(red)
	b := stretchChannel(green)

	img := image.NewRGBA(image.Rect(0, 0, nir.Cols, nir.Rows))
	for row := 0; row < nir.Rows; row++ {
		for col := 0; col < nir.Cols; col++ {
			i := row*nir.Cols + col
			img.SetRGBA(col, row, color.RGBA{R: r[i], G: g[i], B: b[i], A: 255})
		}
	}
	return encodePNG(img)
}

// NDVIColorPNG renders a single-index visualization on a brown-yellow-green
// ramp. Used when the scene has no green band for a false-color composite.
func NDVIColorPNG(ndvi *raster.Grid) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, ndvi.Cols, ndvi.Rows))
	for row := 0; row < ndvi.Rows; row++ {
		for col := 0; col < ndvi.Cols; col++ {
			img.SetRGBA(col, row, rampColor(ndvi.At(row, col)))
		}
	}
	return encodePNG(img)
}

// stretchChannel maps a band to 8-bit using a 2-98 percentile stretch.
// No-data pixels render as 0.
func stretchChannel(g *raster.Grid) []uint8 {
	valid := g.ValidValues()
	out := make([]uint8, len(g.Values))
	if len(valid) == 0 {
		return out
	}

	lo, _ := stats.Percentile(valid, 2)
	hi, _ := stats.Percentile(valid, 98)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	for i, v := range g.Values {
		if math.IsNaN(v) {
			continue
		}
		scaled := (v - lo) / span * 255
		out[i] = uint8(math.Max(0, math.Min(255, scaled)))
	}
	return out
}

var (
	rampBrown  = [3]float64{139, 90, 43}
	rampYellow = [3]float64{222, 214, 48}
	rampGreen  = [3]float64{34, 139, 34}
	noDataGray = color.RGBA{R: 64, G: 64, B: 64, A: 255}
)

// rampColor maps an NDVI value in [-1, 1] onto brown -> yellow -> green.
func rampColor(v float64) color.RGBA {
	if math.IsNaN(v) {
		return noDataGray
	}
	t := math.Max(0, math.Min(1, (v+1)/2))

	var from, to [3]float64
	var f float64
	if t < 0.5 {
		from, to, f = rampBrown, rampYellow, t*2
	} else {
		from, to, f = rampYellow, rampGreen, (t-0.5)*2
	}
	return color.RGBA{
		R: uint8(from[0] + (to[0]-from[0])*f),
		G: uint8(from[1] + (to[1]-from[1])*f),
		B: uint8(from[2] + (to[2]-from[2])*f),
		A: 255,
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
