package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cropsight-lab/cropsight/internal/core/storage"
)

func newTestAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare(regexp.QuoteMeta(querySaveAnalysis))
	mock.ExpectPrepare(regexp.QuoteMeta(queryListAnalyses))

	stmtSave, err := db.Prepare(querySaveAnalysis)
	require.NoError(t, err)
	stmtList, err := db.Prepare(queryListAnalyses)
	require.NoError(t, err)

	return &Adapter{db: db, stmtSaveAnalysis: stmtSave, stmtListAnalyses: stmtList}, mock
}

var analysisColumns = []string{
	"id", "farm_id", "tiff_url", "png_url",
	"mean_ndvi", "min_ndvi", "max_ndvi", "std_ndvi",
	"status", "satellite_source", "scene_date", "cloud_cover", "created_at",
}

func TestAdapter_CreateAnalysis_AssignsIDAndTimestamp(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rec := &storage.AnalysisRecord{
		FarmID:          uuid.New(),
		TIFFURL:         "/artifacts/tiff/a.tif",
		PNGURL:          "/artifacts/png/a.png",
		MeanNDVI:        0.61,
		Status:          "healthy",
		SatelliteSource: "mock",
	}

	mock.ExpectExec(regexp.QuoteMeta(querySaveAnalysis)).
		WithArgs(
			sqlmock.AnyArg(), rec.FarmID, rec.TIFFURL, rec.PNGURL,
			rec.MeanNDVI, nil, nil, nil,
			rec.Status, rec.SatelliteSource, nil, nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.CreateAnalysis(context.Background(), rec)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, rec.ID)
	require.False(t, rec.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ListAnalyses_NewestFirstRoundTrip(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	farmID := uuid.New()
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	min, max, std := 0.1, 0.9, 0.12
	mock.ExpectQuery(regexp.QuoteMeta(queryListAnalyses)).
		WithArgs(farmID, 2).
		WillReturnRows(sqlmock.NewRows(analysisColumns).
			AddRow(uuid.New(), farmID, "t2.tif", "p2.png", 0.40, &min, &max, &std, "moderate", "sentinel-2", &now, 12.5, now).
			AddRow(uuid.New(), farmID, "t1.tif", "p1.png", 0.60, &min, &max, &std, "healthy", "mock", nil, nil, now.Add(-24*time.Hour)))

	records, err := adapter.ListAnalyses(context.Background(), farmID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Persist-then-read returns stored statistics unchanged.
	require.Equal(t, 0.40, records[0].MeanNDVI)
	require.Equal(t, 0.1, *records[0].MinNDVI)
	require.Equal(t, 0.9, *records[0].MaxNDVI)
	require.Equal(t, 0.12, *records[0].StdNDVI)
	require.Equal(t, "moderate", records[0].Status)
	require.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetFarm_NotFound(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	farmID, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetFarm)).
		WithArgs(farmID, ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "boundary", "area_acres", "created_at"}))

	_, err := adapter.GetFarm(context.Background(), farmID, ownerID)
	require.ErrorIs(t, err, storage.ErrFarmNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetFarm_DecodesBoundary(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	farmID, ownerID := uuid.New(), uuid.New()
	boundary := []byte(`{"type":"Polygon","coordinates":[[[-93,41],[-92.99,41],[-92.99,41.01],[-93,41.01],[-93,41]]]}`)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetFarm)).
		WithArgs(farmID, ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "boundary", "area_acres", "created_at"}).
			AddRow(farmID, ownerID, "north field", boundary, 240.0, time.Now()))

	farm, err := adapter.GetFarm(context.Background(), farmID, ownerID)
	require.NoError(t, err)
	require.Equal(t, "north field", farm.Name)
	require.Len(t, farm.Boundary.Ring(), 5)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CompareAndCreateAlert_InsertsInOneTransaction(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	farmID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryTopTwoAnalyses)).
		WithArgs(farmID).
		WillReturnRows(sqlmock.NewRows(analysisColumns).
			AddRow(uuid.New(), farmID, "t2", "p2", 0.40, nil, nil, nil, "moderate", "mock", nil, nil, now).
			AddRow(uuid.New(), farmID, "t1", "p1", 0.60, nil, nil, nil, "healthy", "mock", nil, nil, now.Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertAlert)).
		WithArgs(sqlmock.AnyArg(), farmID, "ndvi_drop", "medium", sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := adapter.CompareAndCreateAlert(context.Background(), farmID,
		func(latest, previous *storage.AnalysisRecord) *storage.Alert {
			require.Equal(t, 0.40, latest.MeanNDVI)
			require.Equal(t, 0.60, previous.MeanNDVI)
			return &storage.Alert{FarmID: farmID, Type: "ndvi_drop", Severity: "medium", Message: "drop"}
		})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CompareAndCreateAlert_SkipsWithSingleRecord(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	farmID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryTopTwoAnalyses)).
		WithArgs(farmID).
		WillReturnRows(sqlmock.NewRows(analysisColumns).
			AddRow(uuid.New(), farmID, "t1", "p1", 0.60, nil, nil, nil, "healthy", "mock", nil, nil, time.Now()))
	mock.ExpectCommit()

	created, err := adapter.CompareAndCreateAlert(context.Background(), farmID,
		func(latest, previous *storage.AnalysisRecord) *storage.Alert {
			require.NotNil(t, latest)
			require.Nil(t, previous)
			return nil
		})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_MarkAlertRead_NotFound(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	alertID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(queryMarkAlertRead)).
		WithArgs(alertID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.MarkAlertRead(context.Background(), alertID)
	require.ErrorIs(t, err, storage.ErrAlertNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
