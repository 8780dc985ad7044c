package tasks

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cropsight-lab/cropsight/internal/catalog"
	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/raster"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
	"github.com/cropsight-lab/cropsight/internal/pipeline"
)

type scriptedCatalog struct {
	mu       sync.Mutex
	calls    int
	failures int
	delay    time.Duration
	honorCtx bool
}

func (c *scriptedCatalog) SearchScenes(ctx context.Context, _ geometry.Polygon, _ catalog.SearchOptions) ([]catalog.Scene, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.delay > 0 {
		if c.honorCtx {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			time.Sleep(c.delay)
		}
	}
	if call <= c.failures {
		return nil, errors.New("catalog unreachable")
	}
	return []catalog.Scene{{
		ID:         "scene-a",
		CapturedAt: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
		CloudCover: 4.2,
		RedURL:     "mock://red",
		NIRURL:     "mock://nir",
	}}, nil
}

func (c *scriptedCatalog) FetchMaskedBand(_ context.Context, _ string, band raster.Band, _ geometry.Polygon) (*raster.Grid, error) {
	g := raster.NewGrid(band, 2, 2)
	for i := range g.Values {
		g.Values[i] = 0.5
	}
	return g, nil
}

func (c *scriptedCatalog) Source() string { return catalog.SourceMock }

func (c *scriptedCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type memFarms struct {
	farms []storage.Farm
}

func (m *memFarms) GetFarm(_ context.Context, farmID, ownerID uuid.UUID) (*storage.Farm, error) {
	for i := range m.farms {
		if m.farms[i].ID == farmID && m.farms[i].OwnerID == ownerID {
			return &m.farms[i], nil
		}
	}
	return nil, storage.ErrFarmNotFound
}

func (m *memFarms) ListFarms(context.Context) ([]storage.Farm, error) {
	return append([]storage.Farm(nil), m.farms...), nil
}

type memAnalyses struct {
	mu      sync.Mutex
	records []storage.AnalysisRecord
}

func (m *memAnalyses) CreateAnalysis(_ context.Context, rec *storage.AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.mu.Lock()
	m.records = append(m.records, *rec)
	m.mu.Unlock()
	return nil
}

func (m *memAnalyses) ListAnalyses(context.Context, uuid.UUID, int) ([]storage.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.AnalysisRecord(nil), m.records...), nil
}

type memArtifacts struct{}

func (memArtifacts) Put(_ context.Context, key string, _ []byte) (string, error) {
	return "mem://" + key, nil
}

func squareBoundary(t *testing.T) geometry.Polygon {
	t.Helper()
	p, err := geometry.NewPolygon([]geometry.Point{
		{Lon: 0, Lat: 0}, {Lon: 0.01, Lat: 0},
		{Lon: 0.01, Lat: 0.01}, {Lon: 0, Lat: 0.01}, {Lon: 0, Lat: 0},
	})
	require.NoError(t, err)
	return p
}

func fastOptions(client catalog.Client, farms storage.FarmStore) Options {
	return Options{
		Client:            client,
		Farms:             farms,
		WorkerCount:       2,
		RetryDelay:        time.Millisecond,
		ImageryRetryDelay: time.Millisecond,
		SoftTimeout:       time.Second,
		HardTimeout:       2 * time.Second,
	}
}

func waitDone(t *testing.T, o *Orchestrator, id uuid.UUID) Record {
	t.Helper()
	var rec Record
	require.Eventually(t, func() bool {
		r, err := o.Status(id)
		if err != nil {
			return false
		}
		rec = r
		return rec.done()
	}, 5*time.Second, 2*time.Millisecond)
	return rec
}

func TestOrchestrator_ImageryFetchSucceeds(t *testing.T) {
	client := &scriptedCatalog{}
	o := NewOrchestrator(fastOptions(client, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusSucceeded, rec.Status)
	require.Equal(t, 1, rec.Attempts)

	report, ok := rec.Result.(*SceneReport)
	require.True(t, ok)
	require.Equal(t, "scene-a", report.SceneID)
	require.Equal(t, 4.2, report.CloudCover)
}

func TestOrchestrator_TransientErrorRetriesThenSucceeds(t *testing.T) {
	client := &scriptedCatalog{failures: 2}
	o := NewOrchestrator(fastOptions(client, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusSucceeded, rec.Status)
	require.Equal(t, 3, rec.Attempts)
}

func TestOrchestrator_ExhaustedRetriesFailPermanently(t *testing.T) {
	client := &scriptedCatalog{failures: 100}
	o := NewOrchestrator(fastOptions(client, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, 3, rec.Attempts)
	require.Contains(t, rec.Error, "catalog unreachable")
	require.Equal(t, 3, client.callCount())
}

func TestOrchestrator_InvalidBoundaryRejectedBeforeQueueing(t *testing.T) {
	o := NewOrchestrator(fastOptions(&scriptedCatalog{}, nil))

	_, err := o.ScheduleImageryFetch(geometry.Polygon{}, catalog.SearchOptions{})
	require.ErrorIs(t, err, geometry.ErrTooFewPoints)

	// Nothing was queued: there is no handle to poll.
	o.mu.Lock()
	defer o.mu.Unlock()
	require.Empty(t, o.records)
}

func TestOrchestrator_HardTimeoutFailsWithoutRetry(t *testing.T) {
	client := &scriptedCatalog{delay: time.Second, honorCtx: false}
	opts := fastOptions(client, nil)
	opts.SoftTimeout = 10 * time.Millisecond
	opts.HardTimeout = 30 * time.Millisecond
	o := NewOrchestrator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, 1, rec.Attempts)
	require.Contains(t, rec.Error, "hard time limit")
}

func TestOrchestrator_SoftTimeoutIsRetryable(t *testing.T) {
	client := &scriptedCatalog{delay: time.Second, honorCtx: true}
	opts := fastOptions(client, nil)
	opts.SoftTimeout = 5 * time.Millisecond
	opts.HardTimeout = time.Second
	o := NewOrchestrator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, 3, rec.Attempts)
}

func TestOrchestrator_QueueFull(t *testing.T) {
	opts := fastOptions(&scriptedCatalog{}, nil)
	opts.QueueSize = 1
	o := NewOrchestrator(opts)
	// Workers never started, so the queue cannot drain.

	_, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)
	_, err = o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestOrchestrator_AnalysisTaskRunsPipeline(t *testing.T) {
	boundary := squareBoundary(t)
	farm := storage.Farm{ID: uuid.New(), OwnerID: uuid.New(), Boundary: boundary}
	farms := &memFarms{farms: []storage.Farm{farm}}
	analyses := &memAnalyses{}

	runner := pipeline.NewRunner(pipeline.Options{
		Client:    &scriptedCatalog{},
		Farms:     farms,
		Analyses:  analyses,
		Artifacts: memArtifacts{},
		MockSize:  4,
		WriteGeoTIFF: func(path string, _ *raster.Grid, _ geometry.Polygon) error {
			return os.WriteFile(path, []byte("tiff"), 0o644)
		},
	})

	opts := fastOptions(&scriptedCatalog{}, farms)
	opts.Runner = runner
	o := NewOrchestrator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleAnalysis(pipeline.Request{UserID: farm.OwnerID, FarmID: farm.ID, Boundary: boundary})
	require.NoError(t, err)

	rec := waitDone(t, o, id)
	require.Equal(t, StatusSucceeded, rec.Status)

	res, ok := rec.Result.(*pipeline.Result)
	require.True(t, ok)
	require.Equal(t, farm.ID, res.FarmID)
	require.Len(t, analyses.records, 1)
}

func TestOrchestrator_FleetScanQueuesEveryFarm(t *testing.T) {
	boundary := squareBoundary(t)
	owner := uuid.New()
	farms := &memFarms{farms: []storage.Farm{
		{ID: uuid.New(), OwnerID: owner, Boundary: boundary},
		{ID: uuid.New(), OwnerID: owner, Boundary: boundary},
		{ID: uuid.New(), OwnerID: owner, Boundary: boundary},
	}}
	analyses := &memAnalyses{}

	runner := pipeline.NewRunner(pipeline.Options{
		Client:    &scriptedCatalog{},
		Farms:     farms,
		Analyses:  analyses,
		Artifacts: memArtifacts{},
		MockSize:  4,
		WriteGeoTIFF: func(path string, _ *raster.Grid, _ geometry.Polygon) error {
			return os.WriteFile(path, []byte("tiff"), 0o644)
		},
	})

	opts := fastOptions(&scriptedCatalog{}, farms)
	opts.Runner = runner
	o := NewOrchestrator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	queued, err := o.RunFleetScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, queued)

	require.Eventually(t, func() bool {
		analyses.mu.Lock()
		defer analyses.mu.Unlock()
		return len(analyses.records) == 3
	}, 5*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_ExpiredResultsAreDropped(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	var nowMu sync.Mutex
	opts := fastOptions(&scriptedCatalog{}, nil)
	opts.ResultTTL = 30 * time.Minute
	opts.Now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}
	o := NewOrchestrator(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	id, err := o.ScheduleImageryFetch(squareBoundary(t), catalog.SearchOptions{})
	require.NoError(t, err)
	waitDone(t, o, id)

	// Within the retention window the record is still pollable.
	o.expireResults()
	_, err = o.Status(id)
	require.NoError(t, err)

	nowMu.Lock()
	now = now.Add(time.Hour)
	nowMu.Unlock()

	o.expireResults()
	_, err = o.Status(id)
	require.ErrorIs(t, err, ErrUnknownTask)
}
