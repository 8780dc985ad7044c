package indices

import (
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/cropsight-lab/cropsight/internal/core/raster"
)

// Status labels assigned by the generic per-index thresholds.
const (
	StatusNoData = "no_data"

	StatusAdequateMoisture = "adequate_moisture"
	StatusModerateMoisture = "moderate_moisture"
	StatusLowMoisture      = "low_moisture"

	StatusDenseVegetation    = "dense_vegetation"
	StatusModerateVegetation = "moderate_vegetation"
	StatusSparseVegetation   = "sparse_vegetation"

	StatusCalculated = "calculated"
)

// Stats summarizes an index raster over its valid pixels. Numeric fields are
// nil when no valid pixels remain.
type Stats struct {
	Index  string   `json:"index_name"`
	Mean   *float64 `json:"mean"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	StdDev *float64 `json:"std"`
	Status string   `json:"status"`
}

// Compute derives mean/min/max/population-std-dev over the valid pixels of
// an index grid, rounded to 4 decimal places, and assigns a status per the
// index-specific thresholds. Status is classified on the unrounded mean.
func Compute(grid *raster.Grid, indexName string) Stats {
	valid := grid.ValidValues()
	if len(valid) == 0 {
		return Stats{Index: indexName, Status: StatusNoData}
	}

	mean, _ := stats.Mean(valid)
	min, _ := stats.Min(valid)
	max, _ := stats.Max(valid)
	std, _ := stats.StandardDeviationPopulation(valid)

	return Stats{
		Index:  indexName,
		Mean:   round4(mean),
		Min:    round4(min),
		Max:    round4(max),
		StdDev: round4(std),
		Status: statusFor(indexName, mean),
	}
}

func statusFor(indexName string, mean float64) string {
	switch indexName {
	case IndexNDWI:
		switch {
		case mean > 0.2:
			return StatusAdequateMoisture
		case mean > 0:
			return StatusModerateMoisture
		default:
			return StatusLowMoisture
		}
	case IndexEVI:
		switch {
		case mean > 0.4:
			return StatusDenseVegetation
		case mean > 0.2:
			return StatusModerateVegetation
		default:
			return StatusSparseVegetation
		}
	default:
		return StatusCalculated
	}
}

func round4(v float64) *float64 {
	r := decimal.NewFromFloat(v).Round(4).InexactFloat64()
	return &r
}
