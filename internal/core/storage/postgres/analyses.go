package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/core/storage"
)

// CreateAnalysis inserts one append-only analysis record, assigning its id
// and creation timestamp.
func (a *Adapter) CreateAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := a.stmtSaveAnalysis.ExecContext(ctx,
		rec.ID, rec.FarmID, rec.TIFFURL, rec.PNGURL,
		rec.MeanNDVI, rec.MinNDVI, rec.MaxNDVI, rec.StdNDVI,
		rec.Status, rec.SatelliteSource, rec.SceneDate, rec.CloudCover, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the farm's records newest first. limit <= 0 returns
// all records.
func (a *Adapter) ListAnalyses(ctx context.Context, farmID uuid.UUID, limit int) ([]storage.AnalysisRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := a.stmtListAnalyses.QueryContext(ctx, farmID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var records []storage.AnalysisRecord
	for rows.Next() {
		var rec storage.AnalysisRecord
		if err := scanAnalysis(rows, &rec); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAnalysis(row rowScanner, rec *storage.AnalysisRecord) error {
	return row.Scan(
		&rec.ID, &rec.FarmID, &rec.TIFFURL, &rec.PNGURL,
		&rec.MeanNDVI, &rec.MinNDVI, &rec.MaxNDVI, &rec.StdNDVI,
		&rec.Status, &rec.SatelliteSource, &rec.SceneDate, &rec.CloudCover, &rec.CreatedAt,
	)
}
