package indices

// Summary labels for the joint NDVI/NDWI/EVI assessment.
const (
	OverallGood     = "good"
	OverallModerate = "moderate"
	OverallPoor     = "poor"

	MoistureAdequate = "adequate"
	MoistureStressed = "stressed"

	DensityHigh     = "high"
	DensityModerate = "moderate"
	DensityLow      = "low"
)

// Summary is the composite field condition derived from the NDVI, NDWI and
// EVI means of a single run.
type Summary struct {
	OverallHealth     string   `json:"overall_health"`
	MoistureStatus    string   `json:"moisture_status"`
	VegetationDensity string   `json:"vegetation_density"`
	Recommendations   []string `json:"recommendations"`
}

// Summarize evaluates the joint thresholds over the three index means.
func Summarize(ndviMean, ndwiMean, eviMean float64) Summary {
	s := Summary{
		OverallHealth:     OverallPoor,
		MoistureStatus:    MoistureStressed,
		VegetationDensity: DensityLow,
	}

	switch {
	case ndviMean > 0.4 && ndwiMean > 0:
		s.OverallHealth = OverallGood
	case ndviMean > 0.25:
		s.OverallHealth = OverallModerate
	}

	if ndwiMean > 0 {
		s.MoistureStatus = MoistureAdequate
	}

	switch {
	case eviMean > 0.4:
		s.VegetationDensity = DensityHigh
	case eviMean > 0.2:
		s.VegetationDensity = DensityModerate
	}

	if ndviMean < 0.3 {
		s.Recommendations = append(s.Recommendations, "Low vegetation detected - consider crop inspection")
	} else if ndviMean > 0.6 {
		s.Recommendations = append(s.Recommendations, "Dense healthy vegetation - optimal conditions")
	}

	if ndwiMean < 0 {
		s.Recommendations = append(s.Recommendations, "Water stress detected - irrigation recommended")
	} else if ndwiMean > 0.3 {
		s.Recommendations = append(s.Recommendations, "Good moisture levels - no irrigation needed")
	}

	if eviMean > 0.5 && ndviMean > 0.7 {
		s.Recommendations = append(s.Recommendations, "Very dense canopy - consider EVI for ongoing monitoring")
	}

	return s
}
