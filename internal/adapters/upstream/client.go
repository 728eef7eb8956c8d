// Package upstream is a small JSON-over-HTTP client for the REST systems
// the service reads from.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/pkg/metrics"
	"github.com/samirrijal/manifestmap/internal/pkg/telemetry"
)

// Doer is satisfied by *fasthttp.Client.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Error is a non-2xx response.
type Error struct {
	Upstream string
	Endpoint string
	Status   int
	Body     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Upstream, e.Endpoint, e.Status, e.Body)
}

// Unwrap maps 404 responses onto domain.ErrNotFound.
func (e *Error) Unwrap() error {
	if e.Status == fasthttp.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// Client calls one upstream base URL.
type Client struct {
	Name    string
	BaseURL string
	// Token, if set, is sent as a bearer token.
	Token   string
	Timeout time.Duration
	HTTP    Doer
}

// New returns a client backed by a pooled fasthttp client.
func New(name, baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		Name:    name,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Timeout: timeout,
		HTTP: &fasthttp.Client{
			Name:                "manifestmap",
			MaxConnsPerHost:     32,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// GetJSON issues GET BaseURL+endpoint with the given query arguments and
// decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query map[string]string, out any) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanUpstreamCall, "upstream", c.Name, "endpoint", endpoint)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.ObserveUpstream(c.Name, endpoint, start, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + endpoint)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.Token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.Token)
	}
	args := req.URI().QueryArgs()
	for k, v := range query {
		args.Set(k, v)
	}

	if deadline, ok := ctx.Deadline(); ok {
		err = c.HTTP.DoDeadline(req, resp, deadline)
	} else {
		err = c.HTTP.DoTimeout(req, resp, c.Timeout)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.Name, endpoint, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		body := string(resp.Body())
		if len(body) > 256 {
			body = body[:256]
		}
		return &Error{Upstream: c.Name, Endpoint: endpoint, Status: status, Body: strings.TrimSpace(body)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.Name, endpoint, err)
	}
	return nil
}
