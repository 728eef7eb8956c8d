package maphost

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
	"github.com/samirrijal/manifestmap/internal/pkg/geospatial"
)

var (
	ErrSourceExists   = errors.New("maphost: source already exists")
	ErrSourceNotFound = errors.New("maphost: source not found")
	ErrSourceInUse    = errors.New("maphost: source still referenced by a layer")
	ErrLayerExists    = errors.New("maphost: layer already exists")
	ErrLayerNotFound  = errors.New("maphost: layer not found")
)

// Host is an in-memory map instance implementing ports.MapHost. It keeps
// the style (sources and ordered layers), the registered pointer handlers,
// the cursor and the popups that are open, and can hit-test synthetic
// pointer events against its point features.
//
// Host methods are safe for concurrent use. Event handlers run without the
// host lock held, so they may call back into the host.
type Host struct {
	mu        sync.RWMutex
	sources   map[string]*source
	layers    []domain.Layer // bottom to top
	listeners map[domain.EventType]map[string][]listener
	nextID    ports.ListenerID
	cursor    string
	popups    []domain.Popup
	hovered   map[string]bool
}

type listener struct {
	id ports.ListenerID
	fn ports.EventHandler
}

// New returns an empty host.
func New() *Host {
	return &Host{
		sources:   make(map[string]*source),
		listeners: make(map[domain.EventType]map[string][]listener),
		hovered:   make(map[string]bool),
	}
}

var _ ports.InteractiveHost = (*Host)(nil)

type source struct {
	host    *Host
	id      string
	data    *geojson.FeatureCollection
	version int
}

// SetData replaces the features. The collection is retained, not copied.
func (s *source) SetData(fc *geojson.FeatureCollection) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if s.host.sources[s.id] != s {
		return fmt.Errorf("set data %s: %w", s.id, ErrSourceNotFound)
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	s.data = fc
	s.version++
	return nil
}

func (h *Host) AddSource(id string, fc *geojson.FeatureCollection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sources[id]; ok {
		return fmt.Errorf("%w: %s", ErrSourceExists, id)
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	h.sources[id] = &source{host: h, id: id, data: fc}
	return nil
}

func (h *Host) GetSource(id string) (ports.Source, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sources[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (h *Host) RemoveSource(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	for _, l := range h.layers {
		if l.Source == id {
			return fmt.Errorf("%w: %s used by %s", ErrSourceInUse, id, l.ID)
		}
	}
	delete(h.sources, id)
	return nil
}

func (h *Host) AddLayer(layer domain.Layer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.layerIndex(layer.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrLayerExists, layer.ID)
	}
	if _, ok := h.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %s: %w: %s", layer.ID, ErrSourceNotFound, layer.Source)
	}
	h.layers = append(h.layers, layer)
	return nil
}

func (h *Host) GetLayer(id string) (domain.Layer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i := h.layerIndex(id)
	if i < 0 {
		return domain.Layer{}, false
	}
	return h.layers[i], true
}

func (h *Host) RemoveLayer(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	h.layers = append(h.layers[:i], h.layers[i+1:]...)
	delete(h.hovered, id)
	return nil
}

func (h *Host) layerIndex(id string) int {
	for i, l := range h.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (h *Host) On(event domain.EventType, layerID string, fn ports.EventHandler) ports.ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	byLayer, ok := h.listeners[event]
	if !ok {
		byLayer = make(map[string][]listener)
		h.listeners[event] = byLayer
	}
	byLayer[layerID] = append(byLayer[layerID], listener{id: h.nextID, fn: fn})
	return h.nextID
}

func (h *Host) Off(event domain.EventType, layerID string, id ports.ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := h.listeners[event][layerID]
	for i, l := range ls {
		if l.id == id {
			ls = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(h.listeners[event], layerID)
		return
	}
	h.listeners[event][layerID] = ls
}

func (h *Host) SetCursor(cursor string) {
	h.mu.Lock()
	h.cursor = cursor
	h.mu.Unlock()
}

func (h *Host) OpenPopup(p domain.Popup) {
	h.mu.Lock()
	h.popups = append(h.popups, p)
	h.mu.Unlock()
}

// Cursor returns the current pointer cursor style.
func (h *Host) Cursor() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cursor
}

// Popups returns the popups opened so far, oldest first.
func (h *Host) Popups() []domain.Popup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Popup(nil), h.popups...)
}

// ClosePopups discards every open popup.
func (h *Host) ClosePopups() {
	h.mu.Lock()
	h.popups = nil
	h.mu.Unlock()
}

// SourceData returns the features currently held by a source.
func (h *Host) SourceData(id string) (*geojson.FeatureCollection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sources[id]
	if !ok {
		return nil, false
	}
	return s.data, true
}

// SourceVersion counts SetData calls on a source.
func (h *Host) SourceVersion(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sources[id]; ok {
		return s.version
	}
	return 0
}

// LayerIDs lists layers bottom to top.
func (h *Host) LayerIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, len(h.layers))
	for i, l := range h.layers {
		ids[i] = l.ID
	}
	return ids
}

// SourceIDs lists registered sources in lexical order.
func (h *Host) SourceIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sources))
	for id := range h.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListenerCount returns how many handlers are registered for event on layerID.
func (h *Host) ListenerCount(event domain.EventType, layerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[event][layerID])
}

// Dispatch delivers e to the handlers registered for its type and layer.
func (h *Host) Dispatch(e *domain.Event) {
	h.mu.RLock()
	ls := append([]listener(nil), h.listeners[e.Type][e.LayerID]...)
	h.mu.RUnlock()
	for _, l := range ls {
		l.fn(e)
	}
}

// Click hit-tests point against every layer with click handlers, topmost
// layer first, and dispatches one click event per layer that has hits.
// It returns the popups opened while handling the click.
func (h *Host) Click(point orb.Point, radiusMeters float64) []domain.Popup {
	h.mu.RLock()
	before := len(h.popups)
	h.mu.RUnlock()

	for _, hit := range h.hitTest(domain.EventClick, point, radiusMeters) {
		h.Dispatch(&domain.Event{Type: domain.EventClick, LayerID: hit.layerID, LngLat: point, Features: hit.features})
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.popups) <= before {
		return nil
	}
	return append([]domain.Popup(nil), h.popups[before:]...)
}

// Hover moves the pointer to point, firing mouseleave for layers it left
// and mouseenter for layers it entered. It returns the resulting cursor.
func (h *Host) Hover(point orb.Point, radiusMeters float64) string {
	hits := h.hitTest(domain.EventMouseEnter, point, radiusMeters)
	under := make(map[string][]*geojson.Feature, len(hits))
	for _, hit := range hits {
		under[hit.layerID] = hit.features
	}

	h.mu.Lock()
	var left, entered []string
	for id := range h.hovered {
		if _, still := under[id]; !still {
			left = append(left, id)
			delete(h.hovered, id)
		}
	}
	for _, hit := range hits {
		if !h.hovered[hit.layerID] {
			entered = append(entered, hit.layerID)
			h.hovered[hit.layerID] = true
		}
	}
	h.mu.Unlock()

	sort.Strings(left)
	for _, id := range left {
		h.Dispatch(&domain.Event{Type: domain.EventMouseLeave, LayerID: id, LngLat: point})
	}
	for _, id := range entered {
		h.Dispatch(&domain.Event{Type: domain.EventMouseEnter, LayerID: id, LngLat: point, Features: under[id]})
	}
	return h.Cursor()
}

// QueryRenderedFeatures returns the features of layerID within radius of
// point, nearest first.
func (h *Host) QueryRenderedFeatures(layerID string, point orb.Point, radiusMeters float64) []*geojson.Feature {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i := h.layerIndex(layerID)
	if i < 0 {
		return nil
	}
	return h.queryLayer(h.layers[i], point, radiusMeters)
}

type layerHit struct {
	layerID  string
	features []*geojson.Feature
}

func (h *Host) hitTest(event domain.EventType, point orb.Point, radiusMeters float64) []layerHit {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var hits []layerHit
	for i := len(h.layers) - 1; i >= 0; i-- {
		l := h.layers[i]
		if len(h.listeners[event][l.ID]) == 0 {
			continue
		}
		if fs := h.queryLayer(l, point, radiusMeters); len(fs) > 0 {
			hits = append(hits, layerHit{layerID: l.ID, features: fs})
		}
	}
	return hits
}

// queryLayer must be called with h.mu held.
func (h *Host) queryLayer(l domain.Layer, point orb.Point, radiusMeters float64) []*geojson.Feature {
	src, ok := h.sources[l.Source]
	if !ok || src.data == nil {
		return nil
	}
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(point.Lat(), point.Lon(), radiusMeters)

	type candidate struct {
		f    *geojson.Feature
		dist float64
	}
	var found []candidate
	for _, f := range src.data.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok || !matchesFilter(l.Filter, f.Properties) {
			continue
		}
		if p.Lat() < minLat || p.Lat() > maxLat || p.Lon() < minLon || p.Lon() > maxLon {
			continue
		}
		d := geospatial.Haversine(point.Lat(), point.Lon(), p.Lat(), p.Lon())
		if d <= radiusMeters {
			found = append(found, candidate{f: f, dist: d})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].dist < found[j].dist })

	out := make([]*geojson.Feature, len(found))
	for i, c := range found {
		out[i] = c.f
	}
	return out
}

// matchesFilter understands the has / !has expressions used by marker
// layers. Any other expression is treated as matching.
func matchesFilter(filter []any, props geojson.Properties) bool {
	if len(filter) != 2 {
		return true
	}
	op, _ := filter[0].(string)
	key, _ := filter[1].(string)
	_, has := props[key]
	switch op {
	case "has":
		return has
	case "!has":
		return !has
	}
	return true
}
