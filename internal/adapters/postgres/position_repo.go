package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// PositionRepo implements ports.PositionRepository over the tracking
// server's tc_positions and tc_devices tables.
type PositionRepo struct {
	db *DB
}

// NewPositionRepo creates a new PositionRepo.
func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

const positionColumns = `id, deviceid, fixtime, latitude, longitude, speed, course`

// Positions returns a device's valid fixes between from and to, oldest first.
func (r *PositionRepo) Positions(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM tc_positions
		WHERE deviceid = $1 AND fixtime BETWEEN $2 AND $3 AND valid
		ORDER BY fixtime, id
	`, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	return collectPositions(rows)
}

// PositionsAfter returns up to limit positions with an id above afterID,
// in id order. It feeds the live relay.
func (r *PositionRepo) PositionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Position, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM tc_positions
		WHERE id > $1 AND valid
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query positions after %d: %w", afterID, err)
	}
	return collectPositions(rows)
}

// LatestPositionID returns the highest position id, or 0 for an empty table.
func (r *PositionRepo) LatestPositionID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM tc_positions`).Scan(&id)
	return id, err
}

func (r *PositionRepo) DeviceByID(ctx context.Context, id int64) (*domain.Device, error) {
	return r.device(ctx, `SELECT id, name, uniqueid FROM tc_devices WHERE id = $1`, id)
}

// DeviceByName matches a device by name, ignoring case.
func (r *PositionRepo) DeviceByName(ctx context.Context, name string) (*domain.Device, error) {
	return r.device(ctx, `SELECT id, name, uniqueid FROM tc_devices WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name)
}

func (r *PositionRepo) device(ctx context.Context, query string, arg any) (*domain.Device, error) {
	var d domain.Device
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(&d.ID, &d.Name, &d.UniqueID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device %v: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.FixTime, &p.Latitude, &p.Longitude, &p.Speed, &p.Course); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
