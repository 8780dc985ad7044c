package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
)

// GetFarm returns the farm only when owned by ownerID; otherwise
// storage.ErrFarmNotFound. Ownership and existence are deliberately
// indistinguishable to callers.
func (a *Adapter) GetFarm(ctx context.Context, farmID, ownerID uuid.UUID) (*storage.Farm, error) {
	row := a.db.QueryRowContext(ctx, queryGetFarm, farmID, ownerID)
	farm, err := scanFarm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFarmNotFound
		}
		return nil, fmt.Errorf("get farm: %w", err)
	}
	return farm, nil
}

// ListFarms returns the whole fleet in creation order.
func (a *Adapter) ListFarms(ctx context.Context) ([]storage.Farm, error) {
	rows, err := a.db.QueryContext(ctx, queryListFarms)
	if err != nil {
		return nil, fmt.Errorf("list farms: %w", err)
	}
	defer rows.Close()

	var farms []storage.Farm
	for rows.Next() {
		farm, err := scanFarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan farm: %w", err)
		}
		farms = append(farms, *farm)
	}
	return farms, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFarm(row rowScanner) (*storage.Farm, error) {
	var (
		farm     storage.Farm
		boundary []byte
	)
	if err := row.Scan(&farm.ID, &farm.OwnerID, &farm.Name, &boundary, &farm.AreaAcres, &farm.CreatedAt); err != nil {
		return nil, err
	}

	poly, err := geometry.UnmarshalGeoJSON(boundary)
	if err != nil {
		return nil, fmt.Errorf("decode farm boundary: %w", err)
	}
	farm.Boundary = poly
	return &farm, nil
}
