// Package datatrak reads manifests and job rows from the Data-Trak
// dispatch API.
package datatrak

import (
	"context"
	"time"

	"github.com/samirrijal/manifestmap/internal/adapters/upstream"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
)

const (
	endpointManifest       = "/manifest"
	endpointJobs           = "/manifest_jobs"
	endpointManifestByLoad = "/manifest_byload"
	endpointJobsByLoad     = "/manifest_jobs_byload"
)

// Client implements ports.ManifestRepository. Every call carries the API
// key as the key query parameter.
type Client struct {
	api *upstream.Client
	key string
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return NewWithClient(upstream.New("datatrak", baseURL, "", timeout), apiKey)
}

// NewWithClient wraps an existing upstream client.
func NewWithClient(api *upstream.Client, apiKey string) *Client {
	return &Client{api: api, key: apiKey}
}

var _ ports.ManifestRepository = (*Client)(nil)

func (c *Client) ManifestByVehicle(ctx context.Context, vehicle string) (*domain.Manifest, error) {
	var m domain.Manifest
	if err := c.api.GetJSON(ctx, endpointManifest, c.query("vehicle", vehicle), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) JobsByVehicle(ctx context.Context, vehicle string) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := c.api.GetJSON(ctx, endpointJobs, c.query("vehicle", vehicle), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) ManifestByLoad(ctx context.Context, manifestNo string) (*domain.Manifest, error) {
	var m domain.Manifest
	if err := c.api.GetJSON(ctx, endpointManifestByLoad, c.query("manifest", manifestNo), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) JobsByLoad(ctx context.Context, manifestNo string) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := c.api.GetJSON(ctx, endpointJobsByLoad, c.query("manifest", manifestNo), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) query(k, v string) map[string]string {
	q := map[string]string{k: v}
	if c.key != "" {
		q["key"] = c.key
	}
	return q
}
