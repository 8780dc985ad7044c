// Package storage defines the persistence contracts for farms, analysis
// records and alerts. The pipeline and the background engines depend only
// on these interfaces; PostgreSQL lives in the postgres subpackage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
)

// ErrFarmNotFound is returned when a farm id does not exist or is not owned
// by the requesting user. Pipeline runs treat it as a terminal failure.
var ErrFarmNotFound = errors.New("farm not found")

// ErrAlertNotFound is returned by mark-read and delete for unknown alerts.
var ErrAlertNotFound = errors.New("alert not found")

// Farm is the boundary/ownership projection the core needs. Full farm CRUD
// lives outside the core.
type Farm struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Boundary  geometry.Polygon
	AreaAcres float64
	CreatedAt time.Time
}

// AnalysisRecord is one completed pipeline run for a farm. Records are
// append-only; ordering by CreatedAt drives the trend and alert logic.
type AnalysisRecord struct {
	ID     uuid.UUID `json:"id"`
	FarmID uuid.UUID `json:"farm_id"`

	TIFFURL string `json:"tiff_url"`
	PNGURL  string `json:"png_url"`

	MeanNDVI float64  `json:"mean_ndvi"`
	MinNDVI  *float64 `json:"min_ndvi"`
	MaxNDVI  *float64 `json:"max_ndvi"`
	StdNDVI  *float64 `json:"std_ndvi"`
	Status   string   `json:"status"`

	SatelliteSource string     `json:"satellite_source"`
	SceneDate       *time.Time `json:"scene_date,omitempty"`
	CloudCover      *float64   `json:"cloud_cover,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Alert flags a significant regression on a farm. Created only by the alert
// engine; mutated only by MarkAlertRead; deleted explicitly by the owner.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	FarmID    uuid.UUID `json:"farm_id"`
	Type      string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// FarmStore resolves boundaries and enumerates the fleet.
type FarmStore interface {
	// GetFarm returns the farm only if it exists and belongs to ownerID.
	GetFarm(ctx context.Context, farmID, ownerID uuid.UUID) (*Farm, error)

	// ListFarms returns every farm, for the periodic fleet scan.
	ListFarms(ctx context.Context) ([]Farm, error)
}

// AnalysisStore persists pipeline results.
type AnalysisStore interface {
	// CreateAnalysis inserts the record and fills in ID and CreatedAt.
	// The insert is committed in a single transaction.
	CreateAnalysis(ctx context.Context, rec *AnalysisRecord) error

	// ListAnalyses returns the farm's records ordered by creation time
	// descending, truncated to limit (0 means no limit).
	ListAnalyses(ctx context.Context, farmID uuid.UUID, limit int) ([]AnalysisRecord, error)
}

// AlertStore persists alerts and runs the per-farm regression check.
type AlertStore interface {
	// CompareAndCreateAlert loads the farm's two most recent analysis
	// records and the potential alert insert inside one transaction, so a
	// concurrently finishing run cannot be half-observed. fn receives nil
	// for previous when fewer than two records exist; a non-nil return is
	// inserted before commit. Reports whether an alert was created.
	CompareAndCreateAlert(ctx context.Context, farmID uuid.UUID, fn func(latest, previous *AnalysisRecord) *Alert) (bool, error)

	// ListAlerts returns the farm's alerts, newest first.
	ListAlerts(ctx context.Context, farmID uuid.UUID) ([]Alert, error)

	// MarkAlertRead flips the read flag.
	MarkAlertRead(ctx context.Context, alertID uuid.UUID) error

	// DeleteAlert removes the alert.
	DeleteAlert(ctx context.Context, alertID uuid.UUID) error
}
