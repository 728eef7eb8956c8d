package traccar

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/samirrijal/manifestmap/internal/adapters/upstream"
)

func TestStops(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
			args := ctx.QueryArgs()
			if string(ctx.Path()) != "/api/reports/stops" {
				t.Errorf("unexpected path %s", ctx.Path())
			}
			if string(args.Peek("deviceId")) != "7" {
				t.Errorf("unexpected device %s", args.Peek("deviceId"))
			}
			if string(args.Peek("from")) != "2024-03-04T00:00:00Z" {
				t.Errorf("from must be UTC ISO-8601, got %s", args.Peek("from"))
			}
			if string(ctx.Request.Header.Peek("Accept")) != "application/json" {
				t.Errorf("expected json accept header")
			}
			ctx.SetBodyString(`[{"deviceId": 7, "latitude": 53.35, "longitude": -2.25,
				"startTime": "2024-03-04T10:00:00.000+00:00", "endTime": "2024-03-04T10:20:00.000+00:00", "duration": 1200000}]`)
		})
	}()
	t.Cleanup(func() { _ = ln.Close() })

	api := upstream.New("traccar", "http://traccar.test", "tok", time.Second)
	api.HTTP = &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	c := NewWithClient(api)

	bst := time.FixedZone("BST", 3600)
	from := time.Date(2024, 3, 4, 1, 0, 0, 0, bst)
	stops, err := c.Stops(context.Background(), 7, from, from.AddDate(0, 0, 1))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stops) != 1 || stops[0].Duration != 1200000 || stops[0].StartTime.Hour() != 10 {
		t.Errorf("unexpected stops %+v", stops)
	}
}
