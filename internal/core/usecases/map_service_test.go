package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/manifestmap/internal/adapters/maphost"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
)

// --- Mock ManifestRepository ---

type mockManifestRepo struct {
	byVehicleFn     func(ctx context.Context, vehicle string) (*domain.Manifest, error)
	jobsByVehicleFn func(ctx context.Context, vehicle string) ([]domain.Job, error)
	byLoadFn        func(ctx context.Context, manifestNo string) (*domain.Manifest, error)
	jobsByLoadFn    func(ctx context.Context, manifestNo string) ([]domain.Job, error)
	byVehicleCalls  int
}

func (m *mockManifestRepo) ManifestByVehicle(ctx context.Context, vehicle string) (*domain.Manifest, error) {
	m.byVehicleCalls++
	if m.byVehicleFn != nil {
		return m.byVehicleFn(ctx, vehicle)
	}
	return &domain.Manifest{ManifestNo: "1", MDate: "2024-03-04"}, nil
}

func (m *mockManifestRepo) JobsByVehicle(ctx context.Context, vehicle string) ([]domain.Job, error) {
	if m.jobsByVehicleFn != nil {
		return m.jobsByVehicleFn(ctx, vehicle)
	}
	return nil, nil
}

func (m *mockManifestRepo) ManifestByLoad(ctx context.Context, manifestNo string) (*domain.Manifest, error) {
	if m.byLoadFn != nil {
		return m.byLoadFn(ctx, manifestNo)
	}
	return nil, errors.New("not found")
}

func (m *mockManifestRepo) JobsByLoad(ctx context.Context, manifestNo string) ([]domain.Job, error) {
	if m.jobsByLoadFn != nil {
		return m.jobsByLoadFn(ctx, manifestNo)
	}
	return nil, nil
}

// --- Mock ReportRepository ---

type mockReportRepo struct {
	stopsFn func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error)
}

func (m *mockReportRepo) Stops(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
	if m.stopsFn != nil {
		return m.stopsFn(ctx, deviceID, from, to)
	}
	return nil, nil
}

// --- Mock PositionRepository ---

type mockPositionRepo struct {
	positionsFn    func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error)
	deviceByNameFn func(ctx context.Context, name string) (*domain.Device, error)
	deviceByIDFn   func(ctx context.Context, id int64) (*domain.Device, error)
}

func (m *mockPositionRepo) Positions(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
	if m.positionsFn != nil {
		return m.positionsFn(ctx, deviceID, from, to)
	}
	return nil, nil
}

func (m *mockPositionRepo) PositionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Position, error) {
	return nil, nil
}

func (m *mockPositionRepo) DeviceByID(ctx context.Context, id int64) (*domain.Device, error) {
	if m.deviceByIDFn != nil {
		return m.deviceByIDFn(ctx, id)
	}
	return nil, errors.New("no device")
}

func (m *mockPositionRepo) DeviceByName(ctx context.Context, name string) (*domain.Device, error) {
	if m.deviceByNameFn != nil {
		return m.deviceByNameFn(ctx, name)
	}
	return nil, errors.New("no device")
}

// --- Mock CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu      sync.Mutex
	updates []ports.SourceUpdate
}

func (p *mockPublisher) PublishPosition(ctx context.Context, pos *domain.Position) error { return nil }

func (p *mockPublisher) PublishSourceUpdate(ctx context.Context, u *ports.SourceUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, *u)
	return nil
}

func (p *mockPublisher) sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, u := range p.updates {
		out = append(out, u.SourceID)
	}
	return out
}

// --- Host ---

// guardedHost is the headless host with AddLayer refusals on demand.
type guardedHost struct {
	*maphost.Host
	reject map[string]bool
}

func (h *guardedHost) AddLayer(l domain.Layer) error {
	if h.reject[l.ID] {
		return errors.New("layer rejected")
	}
	return h.Host.AddLayer(l)
}

// --- Fixtures ---

var manifestDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func fixtureJobs() []domain.Job {
	return []domain.Job{
		{RowID: "1", JobOrder: "A100", PODRecieved: -1, Latitude: "53.4808", Longitude: "-2.2426"},
		{RowID: "2", JobOrder: "A100", PODRecieved: -1, Latitude: "53.4810", Longitude: "-2.2430"},
		{RowID: "3", JobOrder: "A101", PODRecieved: 0, Latitude: 53.40, Longitude: -2.10},
		{RowID: "4", JobOrder: "A102", PODRecieved: 2},
	}
}

func fixturePositions() []domain.Position {
	return []domain.Position{
		{ID: 10, DeviceID: 7, FixTime: manifestDay.Add(7 * time.Hour), Latitude: 53.30, Longitude: -2.30},
		{ID: 11, DeviceID: 7, FixTime: manifestDay.Add(8 * time.Hour), Latitude: 53.35, Longitude: -2.25},
		{ID: 12, DeviceID: 7, FixTime: manifestDay.Add(9 * time.Hour), Latitude: 53.40, Longitude: -2.20},
	}
}

type fixture struct {
	manifests *mockManifestRepo
	reports   *mockReportRepo
	positions *mockPositionRepo
	cache     *memCache
	publisher *mockPublisher
	host      *guardedHost // last host created
	svc       *usecases.MapService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		manifests: &mockManifestRepo{
			byVehicleFn: func(ctx context.Context, vehicle string) (*domain.Manifest, error) {
				return &domain.Manifest{ManifestNo: "5001", MDate: "2024-03-04T00:00:00", Registration: vehicle}, nil
			},
			jobsByVehicleFn: func(ctx context.Context, vehicle string) ([]domain.Job, error) {
				return fixtureJobs(), nil
			},
		},
		reports: &mockReportRepo{
			stopsFn: func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
				return []domain.ReportStop{{
					DeviceID: deviceID, Latitude: 53.3501, Longitude: -2.2501,
					StartTime: manifestDay.Add(10 * time.Hour), Duration: 20 * 60 * 1000,
				}}, nil
			},
		},
		positions: &mockPositionRepo{
			positionsFn: func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
				return fixturePositions(), nil
			},
			deviceByNameFn: func(ctx context.Context, name string) (*domain.Device, error) {
				switch name {
				case "AB12CDE":
					return &domain.Device{ID: 7, Name: name}, nil
				case "XY99ZZZ":
					return &domain.Device{ID: 9, Name: name}, nil
				}
				return nil, errors.New("no device")
			},
		},
		cache:     newMemCache(),
		publisher: &mockPublisher{},
	}
	f.svc = usecases.NewMapService(usecases.MapServiceDeps{
		Manifests: f.manifests,
		Reports:   f.reports,
		Positions: f.positions,
		Cache:     f.cache,
		Publisher: f.publisher,
		NewHost: func() ports.InteractiveHost {
			f.host = &guardedHost{Host: maphost.New(), reject: map[string]bool{}}
			return f.host
		},
	}, usecases.SessionOptions{Location: time.UTC, HitRadiusMeters: 30, CacheTTL: 60})
	return f
}

func (f *fixture) open(t *testing.T) *usecases.Summary {
	t.Helper()
	sum, err := f.svc.Open(context.Background(), usecases.OpenRequest{Vehicle: "AB12CDE", ViewportWidth: 1280, ShowTitles: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return sum
}

// --- Tests ---

func TestMapService_Open(t *testing.T) {
	f := newFixture(t)
	var stopsFrom, stopsTo time.Time
	f.reports.stopsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
		if deviceID != 7 {
			t.Errorf("expected device 7, got %d", deviceID)
		}
		stopsFrom, stopsTo = from, to
		return []domain.ReportStop{{Latitude: 53.3501, Longitude: -2.2501, StartTime: manifestDay.Add(10 * time.Hour)}}, nil
	}

	sum := f.open(t)

	if sum.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if sum.DeviceID != 7 || sum.Day != "2024-03-04" {
		t.Errorf("unexpected summary %+v", sum)
	}
	if !stopsFrom.Equal(manifestDay) || stopsTo.Day() != 4 || stopsTo.Hour() != 23 {
		t.Errorf("stops requested for %v - %v", stopsFrom, stopsTo)
	}
	if sum.Jobs != 4 || sum.JobOrders != 3 || sum.Delivered != 1 {
		t.Errorf("unexpected job counts %+v", sum)
	}
	if sum.Features[usecases.SourceJobs] != 2 {
		t.Errorf("expected one pin per located order, got %d", sum.Features[usecases.SourceJobs])
	}
	if sum.Features[usecases.SourceStops] != 1 || sum.Features[usecases.SourcePositions] != 2 {
		t.Errorf("unexpected feature counts %v", sum.Features)
	}
	if sum.Render.IconScale != domain.DesktopIconScale {
		t.Errorf("expected desktop icon scale, got %v", sum.Render.IconScale)
	}
	if sum.DistanceMeters <= 0 || sum.Bounds == nil {
		t.Errorf("expected track distance and bounds, got %v %v", sum.DistanceMeters, sum.Bounds)
	}
	if sum.Features[usecases.SourceRoute] != 1 {
		t.Errorf("expected one route line, got %d", sum.Features[usecases.SourceRoute])
	}
	if got := f.publisher.sources(); len(got) != 4 {
		t.Errorf("expected 4 source updates, got %v", got)
	}
	if ids := f.svc.Sessions(); len(ids) != 1 || ids[0] != sum.SessionID {
		t.Errorf("unexpected sessions %v", ids)
	}
}

func TestMapService_Open_RequiresVehicle(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(context.Background(), usecases.OpenRequest{})

	if !errors.Is(err, usecases.ErrNoVehicle) {
		t.Errorf("expected ErrNoVehicle, got %v", err)
	}
}

func TestMapService_Open_ByDeviceID(t *testing.T) {
	f := newFixture(t)
	f.positions.deviceByIDFn = func(ctx context.Context, id int64) (*domain.Device, error) {
		return &domain.Device{ID: id, Name: "AB12CDE"}, nil
	}

	sum, err := f.svc.Open(context.Background(), usecases.OpenRequest{DeviceID: 7})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Vehicle != "AB12CDE" {
		t.Errorf("expected vehicle resolved from device, got %q", sum.Vehicle)
	}
}

func TestMapService_Open_UntrackedVehicle(t *testing.T) {
	f := newFixture(t)
	f.reports.stopsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
		t.Error("stops must not be requested without a device")
		return nil, nil
	}

	sum, err := f.svc.Open(context.Background(), usecases.OpenRequest{Vehicle: "UNKNOWN"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.DeviceID != 0 || sum.Features[usecases.SourceJobs] != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestMapService_Open_ManifestError(t *testing.T) {
	f := newFixture(t)
	f.manifests.byVehicleFn = func(ctx context.Context, vehicle string) (*domain.Manifest, error) {
		return nil, errors.New("upstream down")
	}

	_, err := f.svc.Open(context.Background(), usecases.OpenRequest{Vehicle: "AB12CDE"})

	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("expected upstream error, got %v", err)
	}
	if len(f.svc.Sessions()) != 0 {
		t.Error("failed open must not leave a session behind")
	}
}

func TestMapService_Open_UsesCache(t *testing.T) {
	f := newFixture(t)

	f.open(t)
	f.open(t)

	if f.manifests.byVehicleCalls != 1 {
		t.Errorf("expected cached manifest on second open, got %d calls", f.manifests.byVehicleCalls)
	}
	raw, err := f.cache.Get(context.Background(), "manifest:vehicle:AB12CDE")
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	var cached struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &cached); err != nil || len(cached.Jobs) != 4 {
		t.Errorf("unexpected cache entry %s", raw)
	}
}

func TestMapService_Refresh_BypassesCache(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	if _, err := f.svc.Refresh(context.Background(), sum.SessionID); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if f.manifests.byVehicleCalls != 2 {
		t.Errorf("expected refresh to hit upstream, got %d calls", f.manifests.byVehicleCalls)
	}
}

func TestMapService_LoadManifest_FollowsRegistration(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	f.manifests.byLoadFn = func(ctx context.Context, manifestNo string) (*domain.Manifest, error) {
		return &domain.Manifest{ManifestNo: domain.FlexString(manifestNo), MDate: "2024-03-05", Registration: "XY99ZZZ"}, nil
	}
	f.manifests.jobsByLoadFn = func(ctx context.Context, manifestNo string) ([]domain.Job, error) {
		return fixtureJobs()[:1], nil
	}
	var device int64
	f.positions.positionsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
		device = deviceID
		return nil, nil
	}

	got, err := f.svc.LoadManifest(context.Background(), sum.SessionID, "6001")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Vehicle != "XY99ZZZ" || got.DeviceID != 9 || device != 9 {
		t.Errorf("expected session to follow XY99ZZZ, got %+v (positions for %d)", got, device)
	}
	if got.Day != "2024-03-05" || got.Manifest.ManifestNo != "6001" {
		t.Errorf("unexpected manifest %+v", got)
	}
	if got.Features[usecases.SourcePositions] != 0 || got.Features[usecases.SourceJobs] != 1 {
		t.Errorf("unexpected features %v", got.Features)
	}
}

func TestMapService_LoadManifest_Errors(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	if _, err := f.svc.LoadManifest(context.Background(), sum.SessionID, ""); !errors.Is(err, usecases.ErrNoManifest) {
		t.Errorf("expected ErrNoManifest, got %v", err)
	}
	if _, err := f.svc.LoadManifest(context.Background(), "missing", "1"); !errors.Is(err, usecases.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.LoadManifest(context.Background(), sum.SessionID, "404"); err == nil {
		t.Error("expected upstream error")
	}
}

func TestMapService_ClickOpensStopPopup(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	popups, err := f.svc.Click(sum.SessionID, -2.2501, 53.3501)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(popups) != 1 || !strings.Contains(popups[0].HTML, "Duration: 20m") {
		t.Fatalf("expected the stop popup, got %+v", popups)
	}

	popups, _ = f.svc.Click(sum.SessionID, -2.2426, 53.4808)
	if len(popups) != 0 {
		t.Errorf("job pins have no popup, got %+v", popups)
	}
}

func TestMapService_Hover(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	cursor, _ := f.svc.Hover(sum.SessionID, -2.20, 53.40)
	if cursor != "pointer" {
		t.Errorf("expected pointer over the finish marker, got %q", cursor)
	}
	cursor, _ = f.svc.Hover(sum.SessionID, 0, 0)
	if cursor != "" {
		t.Errorf("expected default cursor, got %q", cursor)
	}
}

func TestMapService_ApplyPosition(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	ctx := context.Background()

	n, err := f.svc.ApplyPosition(ctx, &domain.Position{ID: 13, DeviceID: 7, FixTime: manifestDay.Add(11 * time.Hour), Latitude: 53.50, Longitude: -2.10})
	if err != nil || n != 1 {
		t.Fatalf("expected one session updated, got %d (%v)", n, err)
	}

	skipped := []*domain.Position{
		{ID: 14, DeviceID: 8, FixTime: manifestDay.Add(11 * time.Hour)},
		{ID: 12, DeviceID: 7, FixTime: manifestDay.Add(12 * time.Hour)},
		{ID: 15, DeviceID: 7, FixTime: manifestDay.AddDate(0, 0, 1)},
		nil,
	}
	for _, p := range skipped {
		if n, _ := f.svc.ApplyPosition(ctx, p); n != 0 {
			t.Errorf("position %+v should not apply", p)
		}
	}

	got, _ := f.svc.Summary(sum.SessionID)
	if got.Positions != 4 {
		t.Errorf("expected 4 positions, got %d", got.Positions)
	}
	fc, err := f.svc.Source(sum.SessionID, usecases.SourcePositions)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if len(fc.Features) != 2 || fc.Features[1].Point().Lat() != 53.50 {
		t.Errorf("finish marker should move to the live position")
	}
}

func TestMapService_SetRenderConfig(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	cfg, err := f.svc.SetRenderConfig(sum.SessionID, 400, nil, false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IconScale != domain.PhoneIconScale || cfg.ShowTitles {
		t.Errorf("unexpected config %+v", cfg)
	}
	raw, err := f.svc.Style(sum.SessionID)
	if err != nil {
		t.Fatalf("style: %v", err)
	}
	var style maphost.Style
	if err := json.Unmarshal(raw, &style); err != nil {
		t.Fatalf("decode style: %v", err)
	}
	if len(style.Layers) != 4 {
		t.Fatalf("expected 4 layers, got %d", len(style.Layers))
	}
	for _, l := range style.Layers {
		if l.ID == usecases.SourceRoute {
			if l.Paint["line-width"] != 4.0 {
				t.Errorf("route not rebound: %v", l.Paint["line-width"])
			}
			continue
		}
		if l.Layout["icon-size"] != 1.0 {
			t.Errorf("layer %s not rebound: %v", l.ID, l.Layout["icon-size"])
		}
		if l.ID == usecases.SourceStops && l.Layout["text-field"] != nil {
			t.Errorf("titles should be off")
		}
	}
	if n := len(style.Sources[usecases.SourceJobs].Data.Features); n != 2 {
		t.Errorf("rebinding must keep data, got %d job features", n)
	}

	popups, _ := f.svc.Click(sum.SessionID, -2.2501, 53.3501)
	if len(popups) != 1 {
		t.Errorf("popups must survive a rebind")
	}
}

func TestMapService_SourceAndGroups(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	if _, err := f.svc.Source(sum.SessionID, "nope"); !errors.Is(err, usecases.ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
	groups, err := f.svc.JobGroups(sum.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 3 || groups[0].JobOrder != "A100" || !groups[0].Delivered || groups[1].Delivered {
		t.Errorf("unexpected groups %+v", groups)
	}
}

func TestMapService_Close(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	if err := f.svc.Close(sum.SessionID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := f.svc.Close(sum.SessionID); !errors.Is(err, usecases.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second close, got %v", err)
	}
	if _, err := f.svc.Click(sum.SessionID, 0, 0); !errors.Is(err, usecases.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after close, got %v", err)
	}
	if n, _ := f.svc.ApplyPosition(context.Background(), &domain.Position{ID: 99, DeviceID: 7, FixTime: manifestDay.Add(time.Hour)}); n != 0 {
		t.Error("closed sessions must not receive positions")
	}
}

func TestMapService_CloseAll(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.open(t)

	f.svc.CloseAll()

	if len(f.svc.Sessions()) != 0 {
		t.Error("expected no sessions")
	}
}

func TestMapService_SetRenderConfig_KeepsLayerOrder(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	want := []string{usecases.SourceRoute, usecases.SourceStops, usecases.SourcePositions, usecases.SourceJobs}

	for i := 0; i < 20; i++ {
		width := 400
		if i%2 == 1 {
			width = 1280
		}
		if _, err := f.svc.SetRenderConfig(sum.SessionID, width, nil, i%3 == 0); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if got := f.host.LayerIDs(); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("round %d: expected layers %v bottom to top, got %v", i, want, got)
		}
	}
}

func TestMapService_SetRenderConfig_FailedRebindKeepsConfig(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	f.host.reject[usecases.SourceJobs] = true

	if _, err := f.svc.SetRenderConfig(sum.SessionID, 400, nil, false); err == nil {
		t.Fatal("expected rebind error")
	}

	got, _ := f.svc.Summary(sum.SessionID)
	if got.Render != sum.Render {
		t.Errorf("expected render config %+v to stay, got %+v", sum.Render, got.Render)
	}
}

func TestMapService_Refresh_FailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	f.manifests.jobsByVehicleFn = func(ctx context.Context, vehicle string) ([]domain.Job, error) {
		return nil, nil
	}
	f.reports.stopsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.ReportStop, error) {
		return nil, errors.New("upstream down")
	}

	if _, err := f.svc.Refresh(context.Background(), sum.SessionID); err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected stops error, got %v", err)
	}

	got, _ := f.svc.Summary(sum.SessionID)
	if got.Jobs != sum.Jobs || got.Stops != sum.Stops || got.Positions != sum.Positions {
		t.Errorf("session data changed: before %+v after %+v", sum, got)
	}
	for src, n := range sum.Features {
		if got.Features[src] != n {
			t.Errorf("source %s: expected %d features, got %d", src, n, got.Features[src])
		}
	}
}

func TestMapService_LoadManifest_FailureKeepsDevice(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)
	f.manifests.byLoadFn = func(ctx context.Context, manifestNo string) (*domain.Manifest, error) {
		return &domain.Manifest{ManifestNo: domain.FlexString(manifestNo), MDate: "2024-03-05", Registration: "XY99ZZZ"}, nil
	}
	f.positions.positionsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
		return nil, errors.New("db down")
	}

	if _, err := f.svc.LoadManifest(context.Background(), sum.SessionID, "6001"); err == nil {
		t.Fatal("expected positions error")
	}

	got, _ := f.svc.Summary(sum.SessionID)
	if got.Vehicle != "AB12CDE" || got.DeviceID != 7 || got.Day != sum.Day {
		t.Errorf("session should still follow AB12CDE on %s, got %+v", sum.Day, got)
	}
	if got.Manifest == nil || got.Manifest.ManifestNo != sum.Manifest.ManifestNo {
		t.Errorf("manifest should not change, got %+v", got.Manifest)
	}

	// A later refresh still uses the vehicle, not the failed load number.
	f.positions.positionsFn = func(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Position, error) {
		return fixturePositions(), nil
	}
	calls := f.manifests.byVehicleCalls
	if _, err := f.svc.Refresh(context.Background(), sum.SessionID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.manifests.byVehicleCalls != calls+1 {
		t.Error("expected refresh by vehicle")
	}
}

func TestMapService_ApplyPosition_ExtendsRoute(t *testing.T) {
	f := newFixture(t)
	sum := f.open(t)

	if _, err := f.svc.ApplyPosition(context.Background(), &domain.Position{ID: 13, DeviceID: 7, FixTime: manifestDay.Add(11 * time.Hour), Latitude: 53.50, Longitude: -2.10}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	fc, err := f.svc.Source(sum.SessionID, usecases.SourceRoute)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected one route line, got %d", len(fc.Features))
	}
	if n := fc.Features[0].Properties["points"]; n != 4 {
		t.Errorf("expected 4 route points, got %v", n)
	}
}
