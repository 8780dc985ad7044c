package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/core/storage"
)

// CompareAndCreateAlert reads the farm's two most recent analysis records
// and performs the potential alert insert in one transaction, so the
// comparison never observes a half-committed run.
func (a *Adapter) CompareAndCreateAlert(ctx context.Context, farmID uuid.UUID, fn func(latest, previous *storage.AnalysisRecord) *storage.Alert) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin alert check: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryTopTwoAnalyses, farmID)
	if err != nil {
		return false, fmt.Errorf("load recent analyses: %w", err)
	}

	var recent []storage.AnalysisRecord
	for rows.Next() {
		var rec storage.AnalysisRecord
		if err := scanAnalysis(rows, &rec); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan analysis: %w", err)
		}
		recent = append(recent, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, err
	}
	rows.Close()

	var latest, previous *storage.AnalysisRecord
	if len(recent) > 0 {
		latest = &recent[0]
	}
	if len(recent) > 1 {
		previous = &recent[1]
	}

	alert := fn(latest, previous)
	if alert == nil {
		return false, tx.Commit()
	}

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, queryInsertAlert,
		alert.ID, alert.FarmID, alert.Type, alert.Severity, alert.Message, alert.IsRead, alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return true, tx.Commit()
}

// ListAlerts returns the farm's alerts newest first.
func (a *Adapter) ListAlerts(ctx context.Context, farmID uuid.UUID) ([]storage.Alert, error) {
	rows, err := a.db.QueryContext(ctx, queryListAlerts, farmID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []storage.Alert
	for rows.Next() {
		var al storage.Alert
		if err := rows.Scan(&al.ID, &al.FarmID, &al.Type, &al.Severity, &al.Message, &al.IsRead, &al.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, al)
	}
	return alerts, rows.Err()
}

// MarkAlertRead flips the read flag; unknown ids map to ErrAlertNotFound.
func (a *Adapter) MarkAlertRead(ctx context.Context, alertID uuid.UUID) error {
	return a.execOnAlert(ctx, queryMarkAlertRead, alertID)
}

// DeleteAlert removes the alert; unknown ids map to ErrAlertNotFound.
func (a *Adapter) DeleteAlert(ctx context.Context, alertID uuid.UUID) error {
	return a.execOnAlert(ctx, queryDeleteAlert, alertID)
}

func (a *Adapter) execOnAlert(ctx context.Context, query string, alertID uuid.UUID) error {
	res, err := a.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return fmt.Errorf("alert update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrAlertNotFound
	}
	return err
}
