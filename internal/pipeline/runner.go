// Package pipeline orchestrates one analysis run: scene acquisition, band
// streaming, index computation, artifact persistence and the analysis record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cropsight-lab/cropsight/internal/artifact"
	"github.com/cropsight-lab/cropsight/internal/catalog"
	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/indices"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
	"github.com/cropsight-lab/cropsight/internal/imagery"
)

// Run states, logged as the run progresses. FALLBACK_MOCK is entered from any
// acquisition or streaming failure and proceeds to COMPUTING with synthetic
// bands, so a run never fails for lack of imagery.
const (
	stateAcquiring    = "ACQUIRING"
	stateStreaming    = "STREAMING"
	stateFallbackMock = "FALLBACK_MOCK"
	stateComputing    = "COMPUTING"
	statePersisting   = "PERSISTING"
	stateDone         = "DONE"
)

// Request identifies one analysis run. Boundary is optional; when empty the
// farm's stored boundary is used.
type Request struct {
	UserID   uuid.UUID
	FarmID   uuid.UUID
	Boundary geometry.Polygon
}

// Result is the synchronous outcome of a completed run.
type Result struct {
	AnalysisID uuid.UUID           `json:"analysis_id"`
	FarmID     uuid.UUID           `json:"farm_id"`
	TIFFURL    string              `json:"tiff_url"`
	PNGURL     string              `json:"png_url"`
	Health     indices.HealthStats `json:"ndvi"`
	Indices    []indices.Stats     `json:"indices,omitempty"`
	Summary    *indices.Summary    `json:"summary,omitempty"`
	Source     string              `json:"satellite_source"`
	SceneID    string              `json:"scene_id,omitempty"`
	SceneDate  *time.Time          `json:"scene_date,omitempty"`
	CloudCover *float64            `json:"cloud_cover,omitempty"`
	AreaAcres  float64             `json:"area_acres"`
}

// Options configure a Runner. Zero-value fields get defaults from
// normalized(); Client, Farms, Analyses and Artifacts are required.
type Options struct {
	Client    catalog.Client
	Farms     storage.FarmStore
	Analyses  storage.AnalysisStore
	Artifacts artifact.Store

	// MockSize is the square resolution of fallback synthetic bands.
	MockSize int

	Now func() time.Time

	// WriteGeoTIFF is swappable for tests that run without GDAL.
	WriteGeoTIFF func(path string, grid *raster.Grid, boundary geometry.Polygon) error
}

func (o Options) normalized() Options {
	n := o
	if n.MockSize <= 0 {
		n.MockSize = raster.DefaultSyntheticSize
	}
	if n.Now == nil {
		n.Now = time.Now
	}
	if n.WriteGeoTIFF == nil {
		n.WriteGeoTIFF = imagery.WriteGeoTIFF
	}
	return n
}

// Runner executes analysis runs. Safe for concurrent use.
type Runner struct {
	opts Options

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRunner(opts Options) *Runner {
	return &Runner{
		opts: opts.normalized(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the full pipeline for one farm. Only farm lookup and
// persistence failures are terminal; every acquisition or streaming problem
// falls back to synthetic bands and the run still completes.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	farm, err := r.opts.Farms.GetFarm(ctx, req.FarmID, req.UserID)
	if err != nil {
		return nil, err
	}

	boundary := req.Boundary
	if len(boundary.Ring()) == 0 {
		boundary = farm.Boundary
	}

	bands, scene := r.acquireBands(ctx, boundary)

	slog.Info("[Pipeline] Computing indices",
		"farm_id", req.FarmID,
		"state", stateComputing,
		"source", r.sourceTag(scene),
	)

	ndvi, err := indices.NDVI(bands.nir, bands.red)
	if err != nil {
		return nil, fmt.Errorf("compute ndvi: %w", err)
	}
	health := indices.ComputeHealth(ndvi)
	extra, summary := r.computeExtras(bands, health)

	slog.Info("[Pipeline] Persisting artifacts and record",
		"farm_id", req.FarmID,
		"state", statePersisting,
		"status", health.Status,
	)

	key := artifactKey(req.UserID, req.FarmID, r.opts.Now())
	tiffURL, pngURL, err := r.persistArtifacts(ctx, key, ndvi, bands, boundary)
	if err != nil {
		return nil, err
	}

	rec := &storage.AnalysisRecord{
		FarmID:          req.FarmID,
		TIFFURL:         tiffURL,
		PNGURL:          pngURL,
		MeanNDVI:        health.Mean,
		MinNDVI:         health.Min,
		MaxNDVI:         health.Max,
		StdNDVI:         health.StdDev,
		Status:          health.Status,
		SatelliteSource: r.sourceTag(scene),
	}
	if scene != nil {
		capturedAt := scene.CapturedAt
		cloud := scene.CloudCover
		rec.SceneDate = &capturedAt
		rec.CloudCover = &cloud
	}
	if err := r.opts.Analyses.CreateAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	slog.Info("[Pipeline] Run complete",
		"farm_id", req.FarmID,
		"state", stateDone,
		"analysis_id", rec.ID,
		"mean_ndvi", health.Mean,
		"status", health.Status,
	)

	res := &Result{
		AnalysisID: rec.ID,
		FarmID:     req.FarmID,
		TIFFURL:    tiffURL,
		PNGURL:     pngURL,
		Health:     health,
		Indices:    extra,
		Summary:    summary,
		Source:     rec.SatelliteSource,
		AreaAcres:  farm.AreaAcres,
		SceneDate:  rec.SceneDate,
		CloudCover: rec.CloudCover,
	}
	if scene != nil {
		res.SceneID = scene.ID
	}
	return res, nil
}

// bandSet holds the per-run band grids. Red and NIR are always set after
// acquisition (real or synthetic); the rest may be nil on the real path.
type bandSet struct {
	red     *raster.Grid
	nir     *raster.Grid
	green   *raster.Grid
	blue    *raster.Grid
	swir    *raster.Grid
	redEdge *raster.Grid
}

// acquireBands runs ACQUIRING and STREAMING, falling back to synthetic bands
// on any failure. The returned scene is nil when the mock branch was taken.
func (r *Runner) acquireBands(ctx context.Context, boundary geometry.Polygon) (bandSet, *catalog.Scene) {
	slog.Info("[Pipeline] Searching scenes", "state", stateAcquiring)

	scenes, err := r.opts.Client.SearchScenes(ctx, boundary, catalog.SearchOptions{})
	if err != nil || len(scenes) == 0 {
		slog.Warn("[Pipeline] No usable scene, using synthetic bands",
			"state", stateFallbackMock,
			"error", err,
		)
		return r.syntheticBands(), nil
	}
	scene := scenes[0]

	slog.Info("[Pipeline] Streaming bands",
		"state", stateStreaming,
		"scene_id", scene.ID,
		"cloud_cover", scene.CloudCover,
	)

	bands, err := r.streamBands(ctx, scene, boundary)
	if err != nil {
		slog.Warn("[Pipeline] Band streaming failed, using synthetic bands",
			"state", stateFallbackMock,
			"scene_id", scene.ID,
			"error", err,
		)
		return r.syntheticBands(), nil
	}
	return bands, &scene
}

// streamBands fetches all available bands in parallel and joins them before
// returning. Red and NIR failures abort the fetch; green and blue are
// best-effort extras for the visual composite.
func (r *Runner) streamBands(ctx context.Context, scene catalog.Scene, boundary geometry.Polygon) (bandSet, error) {
	var bands bandSet

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		grid, err := r.opts.Client.FetchMaskedBand(gctx, scene.RedURL, raster.BandRed, boundary)
		if err != nil {
			return fmt.Errorf("fetch red band: %w", err)
		}
		bands.red = grid
		return nil
	})
	g.Go(func() error {
		grid, err := r.opts.Client.FetchMaskedBand(gctx, scene.NIRURL, raster.BandNIR, boundary)
		if err != nil {
			return fmt.Errorf("fetch nir band: %w", err)
		}
		bands.nir = grid
		return nil
	})

	for _, opt := range []struct {
		band raster.Band
		url  string
		dst  **raster.Grid
	}{
		{raster.BandGreen, scene.GreenURL, &bands.green},
		{raster.BandBlue, scene.BlueURL, &bands.blue},
	} {
		if opt.url == "" {
			continue
		}
		opt := opt
		g.Go(func() error {
			grid, err := r.opts.Client.FetchMaskedBand(gctx, opt.url, opt.band, boundary)
			if err != nil {
				slog.Warn("[Pipeline] Optional band fetch failed",
					"band", string(opt.band),
					"error", err,
				)
				return nil
			}
			*opt.dst = grid
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return bandSet{}, err
	}
	if !bands.red.SameShape(bands.nir) {
		return bandSet{}, fmt.Errorf("red and nir band shapes differ")
	}
	return bands, nil
}

// syntheticBands generates a full band set so every index can be computed.
func (r *Runner) syntheticBands() bandSet {
	size := r.opts.MockSize
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return bandSet{
		red:     raster.Synthetic(raster.BandRed, size, size, r.rng),
		nir:     raster.Synthetic(raster.BandNIR, size, size, r.rng),
		green:   raster.Synthetic(raster.BandGreen, size, size, r.rng),
		blue:    raster.Synthetic(raster.BandBlue, size, size, r.rng),
		swir:    raster.Synthetic(raster.BandSWIR, size, size, r.rng),
		redEdge: raster.Synthetic(raster.BandRedEdge, size, size, r.rng),
	}
}

func (r *Runner) sourceTag(scene *catalog.Scene) string {
	if scene == nil {
		return catalog.SourceMock
	}
	return r.opts.Client.Source()
}

// computeExtras derives whichever additional indices the band set allows,
// and the composite summary when NDVI, NDWI and EVI are all available.
func (r *Runner) computeExtras(bands bandSet, health indices.HealthStats) ([]indices.Stats, *indices.Summary) {
	var extra []indices.Stats
	var ndwiStats, eviStats *indices.Stats

	if bands.swir != nil {
		if grid, err := indices.NDWI(bands.nir, bands.swir); err == nil {
			s := indices.Compute(grid, indices.IndexNDWI)
			ndwiStats = &s
			extra = append(extra, s)
		}
	}
	if bands.blue != nil {
		if grid, err := indices.EVI(bands.nir, bands.red, bands.blue, indices.DefaultEVIParams()); err == nil {
			s := indices.Compute(grid, indices.IndexEVI)
			eviStats = &s
			extra = append(extra, s)
		}
	}
	if grid, err := indices.SAVI(bands.nir, bands.red, indices.DefaultSAVIL); err == nil {
		extra = append(extra, indices.Compute(grid, indices.IndexSAVI))
	}
	if bands.redEdge != nil {
		if grid, err := indices.NDRE(bands.nir, bands.redEdge); err == nil {
			extra = append(extra, indices.Compute(grid, indices.IndexNDRE))
		}
	}

	if ndwiStats != nil && eviStats != nil && ndwiStats.Mean != nil && eviStats.Mean != nil {
		s := indices.Summarize(health.Mean, *ndwiStats.Mean, *eviStats.Mean)
		return extra, &s
	}
	return extra, nil
}

// persistArtifacts writes the NDVI GeoTIFF and the visual composite to the
// artifact store. Failures here are terminal for the run.
func (r *Runner) persistArtifacts(ctx context.Context, key string, ndvi *raster.Grid, bands bandSet, boundary geometry.Polygon) (tiffURL, pngURL string, err error) {
	tmpDir, err := os.MkdirTemp("", "cropsight-run-")
	if err != nil {
		return "", "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, key+".tif")
	if err := r.opts.WriteGeoTIFF(tmpPath, ndvi, boundary); err != nil {
		return "", "", fmt.Errorf("write geotiff: %w", err)
	}
	tiffBytes, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", "", fmt.Errorf("read geotiff: %w", err)
	}
	tiffURL, err = r.opts.Artifacts.Put(ctx, key+".tif", tiffBytes)
	if err != nil {
		return "", "", fmt.Errorf("store geotiff: %w", err)
	}

	var pngBytes []byte
	if bands.green != nil {
		pngBytes, err = imagery.FalseColorPNG(bands.nir, bands.red, bands.green)
	} else {
		pngBytes, err = imagery.NDVIColorPNG(ndvi)
	}
	if err != nil {
		return "", "", fmt.Errorf("render composite: %w", err)
	}
	pngURL, err = r.opts.Artifacts.Put(ctx, key+".png", pngBytes)
	if err != nil {
		return "", "", fmt.Errorf("store composite: %w", err)
	}
	return tiffURL, pngURL, nil
}

// artifactKey builds the unique per-run artifact name.
func artifactKey(userID, farmID uuid.UUID, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s", userID, farmID, ts.UTC().Format("20060102_150405"))
}
