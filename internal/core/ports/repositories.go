package ports

import (
	"context"
	"time"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// ManifestRepository reads manifests and their job rows from the
// dispatch system.
type ManifestRepository interface {
	ManifestByVehicle(ctx context.Context, vehicle string) (*domain.Manifest, error)
	JobsByVehicle(ctx context.Context, vehicle string) ([]domain.Job, error)
	ManifestByLoad(ctx context.Context, manifestNo string) (*domain.Manifest, error)
	JobsByLoad(ctx context.Context, manifestNo string) ([]domain.Job, error)
}

// ReportRepository reads computed trip reports from the tracking server.
type ReportRepository interface {
	Stops(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error)
}

// PositionRepository reads raw device positions and devices.
type PositionRepository interface {
	Positions(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error)
	PositionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Position, error)
	DeviceByID(ctx context.Context, id int64) (*domain.Device, error)
	DeviceByName(ctx context.Context, name string) (*domain.Device, error)
}

// PositionFeed walks the tracking server's positions in id order.
type PositionFeed interface {
	PositionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Position, error)
	LatestPositionID(ctx context.Context) (int64, error)
}
