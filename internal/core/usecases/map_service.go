package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
	"github.com/samirrijal/manifestmap/internal/mapsync"
	"github.com/samirrijal/manifestmap/internal/pkg/geospatial"
	"github.com/samirrijal/manifestmap/internal/pkg/metrics"
	"github.com/samirrijal/manifestmap/internal/pkg/telemetry"
)

// Source ids of the bindings every session mounts.
const (
	SourceRoute     = "route"
	SourceStops     = "stops"
	SourcePositions = "positions"
	SourceJobs      = "jobs"
)

// sourceOrder is the bottom-to-top drawing order. Mounting and rebinding
// walk it forwards, teardown walks it backwards.
var sourceOrder = []string{SourceRoute, SourceStops, SourcePositions, SourceJobs}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSourceNotFound  = errors.New("source not found")
	ErrNoVehicle       = errors.New("a vehicle name or device id is required")
	ErrNoManifest      = errors.New("manifest number is required")
)

// SessionOptions tunes every session opened by a MapService.
type SessionOptions struct {
	Location        *time.Location
	DesktopWidth    int
	HitRadiusMeters float64
	CacheTTL        int // seconds; 0 disables caching
}

// MapServiceDeps are the ports a MapService drives. Cache and Publisher
// may be nil.
type MapServiceDeps struct {
	Manifests ports.ManifestRepository
	Reports   ports.ReportRepository
	Positions ports.PositionRepository
	Cache     ports.CacheService
	Publisher ports.EventPublisher
	NewHost   func() ports.InteractiveHost
	Logger    *slog.Logger
}

// OpenRequest identifies the vehicle whose manifest a session shows and
// the viewport it renders for.
type OpenRequest struct {
	Vehicle       string   `json:"vehicle"`
	DeviceID      int64    `json:"device_id"`
	ViewportWidth int      `json:"viewport_width"`
	IconScale     *float64 `json:"icon_scale,omitempty"`
	ShowTitles    bool     `json:"show_titles"`
}

// Summary describes a session's current state.
type Summary struct {
	SessionID      string              `json:"session_id"`
	Vehicle        string              `json:"vehicle"`
	DeviceID       int64               `json:"device_id"`
	Manifest       *domain.Manifest    `json:"manifest,omitempty"`
	Day            string              `json:"day,omitempty"`
	Render         domain.RenderConfig `json:"render"`
	Jobs           int                 `json:"jobs"`
	JobOrders      int                 `json:"job_orders"`
	Delivered      int                 `json:"delivered"`
	Stops          int                 `json:"stops"`
	Positions      int                 `json:"positions"`
	DistanceMeters float64             `json:"distance_meters"`
	Bounds         *domain.Bounds      `json:"bounds,omitempty"`
	Features       map[string]int      `json:"features"`
	OpenedAt       time.Time           `json:"opened_at"`
}

// session is one live map: a host, the bindings drawn on it and the data
// they were projected from. mu serialises every operation on the session.
type session struct {
	mu sync.Mutex

	id         string
	host       ports.InteractiveHost
	vehicle    string
	deviceID   int64
	manifestNo string // set when loaded by load number
	render     domain.RenderConfig
	openedAt   time.Time

	manifest  *domain.Manifest
	jobs      []domain.Job
	day       time.Time
	stops     []domain.ReportStop
	positions []domain.Position

	bindings map[string]*mapsync.Binding
	bridges  []*mapsync.Bridge
	closed   bool
}

// MapService keeps map sessions in sync with manifests, stop reports and
// live device positions.
type MapService struct {
	deps MapServiceDeps
	opts SessionOptions
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewMapService creates a new MapService.
func NewMapService(deps MapServiceDeps, opts SessionOptions) *MapService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DesktopWidth <= 0 {
		opts.DesktopWidth = domain.DesktopBreakpoint
	}
	if opts.HitRadiusMeters <= 0 {
		opts.HitRadiusMeters = 30
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MapService{
		deps:     deps,
		opts:     opts,
		log:      logger.With("component", "map_service"),
		sessions: make(map[string]*session),
	}
}

// Open creates a session for a vehicle, loads today's manifest and the
// matching day of stops and positions, and renders them.
func (s *MapService) Open(ctx context.Context, req OpenRequest) (*Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSessionOpen, "vehicle", req.Vehicle)
	defer span.End()

	if req.Vehicle == "" && req.DeviceID == 0 {
		return nil, ErrNoVehicle
	}
	vehicle, deviceID, err := s.resolveDevice(ctx, req.Vehicle, req.DeviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if vehicle == "" {
		return nil, ErrNoVehicle
	}

	sess := &session{
		id:       uuid.NewString(),
		vehicle:  vehicle,
		deviceID: deviceID,
		render:   domain.ResolveRenderConfig(req.ViewportWidth, s.opts.DesktopWidth, req.IconScale, req.ShowTitles),
		openedAt: time.Now().UTC(),
	}
	if err := s.mount(sess); err != nil {
		span.RecordError(err)
		return nil, err
	}

	manifest, jobs, err := s.manifestByVehicle(ctx, vehicle, false)
	if err == nil {
		err = s.applyManifest(ctx, sess, manifest, jobs, vehicle, deviceID)
	}
	if err != nil {
		s.teardown(sess)
		span.RecordError(err)
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.log.Info("session opened", "session", sess.id, "vehicle", vehicle, "device", deviceID, "jobs", len(jobs))
	return s.summary(sess), nil
}

// LoadManifest switches a session to the manifest with the given load
// number. When the manifest's registration names a known device, the
// session follows that device.
func (s *MapService) LoadManifest(ctx context.Context, id, manifestNo string) (*Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSessionLoad, "session", id, "manifest", manifestNo)
	defer span.End()

	if manifestNo == "" {
		return nil, ErrNoManifest
	}
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	manifest, jobs, err := s.manifestByLoad(ctx, manifestNo, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	vehicle, deviceID := s.registrationDevice(ctx, sess, manifest)
	switched := deviceID != sess.deviceID
	if err := s.applyManifest(ctx, sess, manifest, jobs, vehicle, deviceID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if switched {
		s.log.Info("session follows manifest vehicle", "session", sess.id, "vehicle", vehicle, "device", deviceID)
	}
	sess.manifestNo = manifestNo
	return s.summary(sess), nil
}

// Refresh reloads the session's manifest, jobs and day data from the
// upstream systems, bypassing the cache.
func (s *MapService) Refresh(ctx context.Context, id string) (*Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSessionRefresh, "session", id)
	defer span.End()

	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	var (
		manifest *domain.Manifest
		jobs     []domain.Job
	)
	if sess.manifestNo != "" {
		manifest, jobs, err = s.manifestByLoad(ctx, sess.manifestNo, true)
	} else {
		manifest, jobs, err = s.manifestByVehicle(ctx, sess.vehicle, true)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.applyManifest(ctx, sess, manifest, jobs, sess.vehicle, sess.deviceID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.summary(sess), nil
}

// ApplyPosition appends a live position to every session following its
// device on the position's day, and moves the finish marker. It returns
// how many sessions changed.
func (s *MapService) ApplyPosition(ctx context.Context, pos *domain.Position) (int, error) {
	if pos == nil {
		return 0, nil
	}
	s.mu.RLock()
	var targets []*session
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.RUnlock()

	updated := 0
	var errs []error
	for _, sess := range targets {
		sess.mu.Lock()
		if !sess.closed && sess.deviceID == pos.DeviceID && s.onDay(sess, pos.FixTime) && newer(sess.positions, pos) {
			sess.positions = append(sess.positions, *pos)
			if err := s.renderTrack(ctx, sess); err != nil {
				errs = append(errs, err)
			} else {
				updated++
			}
		}
		sess.mu.Unlock()
	}
	return updated, errors.Join(errs...)
}

// SetRenderConfig recomputes the layer parameters for a new viewport or
// preference and swaps every binding's layers. Source data is kept.
func (s *MapService) SetRenderConfig(id string, viewportWidth int, iconScale *float64, showTitles bool) (domain.RenderConfig, error) {
	sess, err := s.lock(id)
	if err != nil {
		return domain.RenderConfig{}, err
	}
	defer sess.mu.Unlock()

	cfg := domain.ResolveRenderConfig(viewportWidth, s.opts.DesktopWidth, iconScale, showTitles)
	if cfg == sess.render {
		return cfg, nil
	}
	var errs []error
	for _, sourceID := range sourceOrder {
		b, ok := sess.bindings[sourceID]
		if !ok {
			continue
		}
		if err := b.Rebind(layerSpec(sourceID, cfg)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return sess.render, err
	}
	sess.render = cfg
	return cfg, nil
}

// Click simulates a click at lon/lat and returns the popups it opened.
func (s *MapService) Click(id string, lon, lat float64) ([]domain.Popup, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	popups := sess.host.Click(orb.Point{lon, lat}, s.opts.HitRadiusMeters)
	metrics.PopupsOpened.Add(float64(len(popups)))
	return popups, nil
}

// Hover moves the pointer to lon/lat and returns the cursor style.
func (s *MapService) Hover(id string, lon, lat float64) (string, error) {
	sess, err := s.lock(id)
	if err != nil {
		return "", err
	}
	defer sess.mu.Unlock()

	return sess.host.Hover(orb.Point{lon, lat}, s.opts.HitRadiusMeters), nil
}

// Style returns the session's map style document as JSON.
func (s *MapService) Style(id string) ([]byte, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	return sess.host.MarshalStyle()
}

// Source returns the features currently held by one of the session's
// sources.
func (s *MapService) Source(id, sourceID string) (*geojson.FeatureCollection, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	fc, ok := sess.host.SourceData(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	return fc, nil
}

// JobGroups returns the session's jobs grouped by order.
func (s *MapService) JobGroups(id string) ([]domain.JobGroup, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	return domain.GroupJobs(sess.jobs), nil
}

// Summary describes a session.
func (s *MapService) Summary(id string) (*Summary, error) {
	sess, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	return s.summary(sess), nil
}

// Sessions lists open session ids in lexical order.
func (s *MapService) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close detaches a session's handlers and unmounts its bindings.
func (s *MapService) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	metrics.SessionsActive.Dec()
	s.log.Info("session closed", "session", id)
	return s.teardown(sess)
}

// CloseAll closes every open session.
func (s *MapService) CloseAll() {
	for _, id := range s.Sessions() {
		if err := s.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.log.Warn("close session", "session", id, "error", err)
		}
	}
}

// lock returns the session with its mutex held.
func (s *MapService) lock(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func layerSpec(sourceID string, cfg domain.RenderConfig) mapsync.LayerSpec {
	switch sourceID {
	case SourceJobs:
		return mapsync.JobPins{Config: cfg}
	case SourceRoute:
		return mapsync.RouteLine{Config: cfg}
	}
	return mapsync.MarkerSpec(cfg)
}

// mount creates the session's host, mounts its bindings and attaches
// popups to the marker layers.
func (s *MapService) mount(sess *session) error {
	if s.deps.NewHost == nil {
		return fmt.Errorf("map service: no host factory")
	}
	sess.host = s.deps.NewHost()
	sess.bindings = make(map[string]*mapsync.Binding, len(sourceOrder))

	for _, sourceID := range sourceOrder {
		b := &mapsync.Binding{Logger: s.log.With("session", sess.id)}
		if err := b.Mount(sess.host, sourceID, layerSpec(sourceID, sess.render)); err != nil {
			s.teardown(sess)
			return err
		}
		sess.bindings[sourceID] = b
		metrics.BindingsMounted.Inc()
	}
	for _, sourceID := range []string{SourceStops, SourcePositions} {
		br := &mapsync.Bridge{}
		if err := br.Attach(sess.host, sourceID, mapsync.Handlers{}); err != nil {
			s.teardown(sess)
			return err
		}
		sess.bridges = append(sess.bridges, br)
	}
	return nil
}

// teardown detaches every bridge before unmounting bindings in reverse
// mount order.
func (s *MapService) teardown(sess *session) error {
	for _, br := range sess.bridges {
		br.Detach()
	}
	sess.bridges = nil

	var errs []error
	for i := len(sourceOrder) - 1; i >= 0; i-- {
		b, ok := sess.bindings[sourceOrder[i]]
		if !ok {
			continue
		}
		if b.Mounted() {
			metrics.BindingsMounted.Dec()
		}
		if err := b.Unmount(); err != nil {
			errs = append(errs, err)
		}
	}
	sess.closed = true
	return errors.Join(errs...)
}

// dayData is everything fetched for a device's day.
type dayData struct {
	day       time.Time
	stops     []domain.ReportStop
	positions []domain.Position
}

// applyManifest fetches the manifest day's stops and positions for
// deviceID and only then switches the session to the manifest, jobs and
// device given, re-rendering every source. A failed fetch leaves the
// session as it was.
func (s *MapService) applyManifest(ctx context.Context, sess *session, manifest *domain.Manifest, jobs []domain.Job, vehicle string, deviceID int64) error {
	day, err := manifest.Day(s.opts.Location)
	if err != nil {
		s.log.Warn("manifest without usable date", "session", sess.id, "error", err)
		day = dayStart(time.Now(), s.opts.Location)
	}
	data, err := s.loadDay(ctx, deviceID, day)
	if err != nil {
		return err
	}

	sess.vehicle, sess.deviceID = vehicle, deviceID
	sess.manifest, sess.jobs = manifest, jobs
	sess.day, sess.stops, sess.positions = data.day, data.stops, data.positions

	return errors.Join(
		s.renderJobs(ctx, sess),
		s.renderStops(ctx, sess),
		s.renderTrack(ctx, sess),
	)
}

func (s *MapService) loadDay(ctx context.Context, deviceID int64, day time.Time) (dayData, error) {
	data := dayData{day: day}
	if deviceID == 0 {
		return data, nil
	}
	from, to := day, day.AddDate(0, 0, 1).Add(-time.Millisecond)

	if s.deps.Reports != nil {
		stops, err := s.deps.Reports.Stops(ctx, deviceID, from, to)
		if err != nil {
			return dayData{}, fmt.Errorf("load stops: %w", err)
		}
		data.stops = stops
	}
	if s.deps.Positions != nil {
		positions, err := s.deps.Positions.Positions(ctx, deviceID, from, to)
		if err != nil {
			return dayData{}, fmt.Errorf("load positions: %w", err)
		}
		data.positions = positions
	}
	return data, nil
}

func (s *MapService) renderJobs(ctx context.Context, sess *session) error {
	fc, stats := mapsync.Projector{Dedupe: true}.ProjectWithStats(mapsync.JobRecords(JobsWithLocation(sess.jobs)))
	return s.render(ctx, sess, SourceJobs, fc, stats)
}

func (s *MapService) renderStops(ctx context.Context, sess *session) error {
	p := mapsync.Projector{DefaultImage: mapsync.DefaultMarkerImage}
	fc, stats := p.ProjectWithStats(mapsync.MarkerRecords(StopMarkers(sess.stops, s.opts.Location)))
	return s.render(ctx, sess, SourceStops, fc, stats)
}

// renderTrack redraws the route line and the start and finish markers.
func (s *MapService) renderTrack(ctx context.Context, sess *session) error {
	route, routeStats := mapsync.Projector{}.ProjectPath(mapsync.PositionRecords(sess.positions))
	p := mapsync.Projector{DefaultImage: mapsync.DefaultMarkerImage}
	markers, markerStats := p.ProjectWithStats(mapsync.MarkerRecords(PositionMarkers(sess.positions)))
	return errors.Join(
		s.render(ctx, sess, SourceRoute, route, routeStats),
		s.render(ctx, sess, SourcePositions, markers, markerStats),
	)
}

// render hands a projected collection to its binding and announces it.
func (s *MapService) render(ctx context.Context, sess *session, sourceID string, fc *geojson.FeatureCollection, stats mapsync.Stats) error {
	b, ok := sess.bindings[sourceID]
	if !ok {
		return nil
	}
	metrics.FeaturesProjected.WithLabelValues(sourceID).Add(float64(stats.Emitted))
	if stats.Invalid > 0 {
		metrics.RecordsDropped.WithLabelValues(sourceID, "invalid_coordinates").Add(float64(stats.Invalid))
	}
	if stats.Duplicates > 0 {
		metrics.RecordsDropped.WithLabelValues(sourceID, "duplicate").Add(float64(stats.Duplicates))
	}

	if err := b.Update(fc); err != nil {
		return err
	}
	metrics.SourceUpdates.WithLabelValues(sourceID).Inc()
	s.publish(ctx, sess.id, sourceID, fc)
	return nil
}

func (s *MapService) publish(ctx context.Context, sessionID, sourceID string, fc *geojson.FeatureCollection) {
	if s.deps.Publisher == nil {
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		s.log.Warn("encode source update", "session", sessionID, "source", sourceID, "error", err)
		return
	}
	update := &ports.SourceUpdate{SessionID: sessionID, SourceID: sourceID, Features: len(fc.Features), Data: data}
	if err := s.deps.Publisher.PublishSourceUpdate(ctx, update); err != nil {
		s.log.Warn("publish source update", "session", sessionID, "source", sourceID, "error", err)
	}
}

func (s *MapService) resolveDevice(ctx context.Context, vehicle string, deviceID int64) (string, int64, error) {
	if s.deps.Positions == nil {
		return vehicle, deviceID, nil
	}
	switch {
	case vehicle == "":
		d, err := s.deps.Positions.DeviceByID(ctx, deviceID)
		if err != nil {
			return "", 0, fmt.Errorf("device %d: %w", deviceID, err)
		}
		return d.Name, d.ID, nil
	case deviceID == 0:
		d, err := s.deps.Positions.DeviceByName(ctx, vehicle)
		if err != nil {
			// Manifests can still be shown without a tracked device.
			s.log.Warn("vehicle has no tracked device", "vehicle", vehicle, "error", err)
			return vehicle, 0, nil
		}
		return vehicle, d.ID, nil
	}
	return vehicle, deviceID, nil
}

// registrationDevice returns the vehicle and device a session should
// follow for manifest: the device named by its registration when one is
// tracked, else the session's current one.
func (s *MapService) registrationDevice(ctx context.Context, sess *session, manifest *domain.Manifest) (string, int64) {
	if manifest.Registration == "" || manifest.Registration == sess.vehicle || s.deps.Positions == nil {
		return sess.vehicle, sess.deviceID
	}
	d, err := s.deps.Positions.DeviceByName(ctx, manifest.Registration)
	if err != nil || d == nil {
		return sess.vehicle, sess.deviceID
	}
	return d.Name, d.ID
}

type cachedManifest struct {
	Manifest *domain.Manifest `json:"manifest"`
	Jobs     []domain.Job     `json:"jobs"`
}

func (s *MapService) manifestByVehicle(ctx context.Context, vehicle string, fresh bool) (*domain.Manifest, []domain.Job, error) {
	return s.cachedManifest(ctx, "manifest:vehicle:"+vehicle, fresh, func() (*domain.Manifest, []domain.Job, error) {
		m, err := s.deps.Manifests.ManifestByVehicle(ctx, vehicle)
		if err != nil {
			return nil, nil, fmt.Errorf("manifest for %s: %w", vehicle, err)
		}
		jobs, err := s.deps.Manifests.JobsByVehicle(ctx, vehicle)
		if err != nil {
			return nil, nil, fmt.Errorf("jobs for %s: %w", vehicle, err)
		}
		return m, jobs, nil
	})
}

func (s *MapService) manifestByLoad(ctx context.Context, manifestNo string, fresh bool) (*domain.Manifest, []domain.Job, error) {
	return s.cachedManifest(ctx, "manifest:load:"+manifestNo, fresh, func() (*domain.Manifest, []domain.Job, error) {
		m, err := s.deps.Manifests.ManifestByLoad(ctx, manifestNo)
		if err != nil {
			return nil, nil, fmt.Errorf("manifest %s: %w", manifestNo, err)
		}
		jobs, err := s.deps.Manifests.JobsByLoad(ctx, manifestNo)
		if err != nil {
			return nil, nil, fmt.Errorf("jobs for manifest %s: %w", manifestNo, err)
		}
		return m, jobs, nil
	})
}

func (s *MapService) cachedManifest(ctx context.Context, key string, fresh bool, load func() (*domain.Manifest, []domain.Job, error)) (*domain.Manifest, []domain.Job, error) {
	useCache := s.deps.Cache != nil && s.opts.CacheTTL > 0
	if useCache && !fresh {
		if data, err := s.deps.Cache.Get(ctx, key); err == nil {
			var c cachedManifest
			if err := json.Unmarshal(data, &c); err == nil && c.Manifest != nil {
				metrics.CacheHits.WithLabelValues("manifest").Inc()
				return c.Manifest, c.Jobs, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("manifest").Inc()
	}

	m, jobs, err := load()
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, fmt.Errorf("%s: empty manifest", key)
	}

	if useCache {
		if data, err := json.Marshal(cachedManifest{Manifest: m, Jobs: jobs}); err == nil {
			_ = s.deps.Cache.Set(ctx, key, data, s.opts.CacheTTL)
		}
	}
	return m, jobs, nil
}

func (s *MapService) summary(sess *session) *Summary {
	sum := &Summary{
		SessionID: sess.id,
		Vehicle:   sess.vehicle,
		DeviceID:  sess.deviceID,
		Manifest:  sess.manifest,
		Render:    sess.render,
		Jobs:      len(sess.jobs),
		Stops:     len(sess.stops),
		Positions: len(sess.positions),
		Features:  make(map[string]int, len(sess.bindings)),
		OpenedAt:  sess.openedAt,
	}
	if !sess.day.IsZero() {
		sum.Day = sess.day.Format("2006-01-02")
	}
	groups := domain.GroupJobs(sess.jobs)
	sum.JobOrders = len(groups)
	for _, g := range groups {
		if g.Delivered {
			sum.Delivered++
		}
	}

	track := make([]domain.GeoPoint, len(sess.positions))
	for i, p := range sess.positions {
		track[i] = p.Point()
	}
	sum.DistanceMeters = geospatial.PathLength(track)
	if b, ok := geospatial.Bounds(track); ok {
		sum.Bounds = &b
	}

	for sourceID := range sess.bindings {
		if fc, ok := sess.host.SourceData(sourceID); ok {
			sum.Features[sourceID] = len(fc.Features)
		}
	}
	return sum
}

func (s *MapService) onDay(sess *session, t time.Time) bool {
	if sess.day.IsZero() {
		return false
	}
	return !t.Before(sess.day) && t.Before(sess.day.AddDate(0, 0, 1))
}

func newer(positions []domain.Position, pos *domain.Position) bool {
	if len(positions) == 0 {
		return true
	}
	last := positions[len(positions)-1]
	if pos.ID != 0 && last.ID != 0 {
		return pos.ID > last.ID
	}
	return pos.FixTime.After(last.FixTime)
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
