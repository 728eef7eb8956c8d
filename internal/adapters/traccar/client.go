// Package traccar reads computed reports from a Traccar tracking server.
package traccar

import (
	"context"
	"strconv"
	"time"

	"github.com/samirrijal/manifestmap/internal/adapters/upstream"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
)

const endpointStops = "/api/reports/stops"

// Client implements ports.ReportRepository.
type Client struct {
	api *upstream.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{api: upstream.New("traccar", baseURL, token, timeout)}
}

// NewWithClient wraps an existing upstream client.
func NewWithClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

var _ ports.ReportRepository = (*Client)(nil)

// Stops returns the stops the device made between from and to.
func (c *Client) Stops(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
	query := map[string]string{
		"deviceId": strconv.FormatInt(deviceID, 10),
		"from":     from.UTC().Format(time.RFC3339Nano),
		"to":       to.UTC().Format(time.RFC3339Nano),
	}
	var stops []domain.ReportStop
	if err := c.api.GetJSON(ctx, endpointStops, query, &stops); err != nil {
		return nil, err
	}
	return stops, nil
}
