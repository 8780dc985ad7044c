package indices

import (
	"math"

	"github.com/cropsight-lab/cropsight/internal/core/raster"
	"github.com/montanaflynn/stats"
)

// Health status labels persisted on analysis records. These thresholds are
// the primary crop-health classification and are stricter than the generic
// per-index statuses.
const (
	HealthHealthy     = "healthy"
	HealthModerate    = "moderate"
	HealthCritical    = "critical"
	HealthDataMissing = "data_missing"
)

// HealthStats is the NDVI summary persisted with every analysis record.
// Unlike Stats, Mean is always present: a raster with zero valid pixels
// reports mean 0 and status data_missing.
type HealthStats struct {
	Mean   float64  `json:"mean_ndvi"`
	Min    *float64 `json:"min_ndvi"`
	Max    *float64 `json:"max_ndvi"`
	StdDev *float64 `json:"std_ndvi"`
	Status string   `json:"status"`
}

// ComputeHealth derives the persisted NDVI statistics and health status:
// mean >= 0.50 healthy, >= 0.25 moderate, otherwise critical.
func ComputeHealth(ndvi *raster.Grid) HealthStats {
	valid := ndvi.ValidValues()
	if len(valid) == 0 {
		return HealthStats{Mean: 0, Status: HealthDataMissing}
	}

	mean, _ := stats.Mean(valid)
	min, _ := stats.Min(valid)
	max, _ := stats.Max(valid)
	std, _ := stats.StandardDeviationPopulation(valid)

	return HealthStats{
		Mean:   *round4(mean),
		Min:    round4(min),
		Max:    round4(max),
		StdDev: round4(std),
		Status: ClassifyHealth(mean),
	}
}

// ClassifyHealth maps a mean NDVI to its health label. Boundary values are
// inclusive: exactly 0.50 is healthy, exactly 0.25 is moderate.
func ClassifyHealth(meanNDVI float64) string {
	switch {
	case math.IsNaN(meanNDVI):
		return HealthDataMissing
	case meanNDVI >= 0.50:
		return HealthHealthy
	case meanNDVI >= 0.25:
		return HealthModerate
	default:
		return HealthCritical
	}
}
