package ports

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// ListenerID identifies a registered event handler so it can be removed.
type ListenerID uint64

// EventHandler receives pointer events scoped to a layer.
type EventHandler func(e *domain.Event)

// Source is a named GeoJSON source registered on a map host.
type Source interface {
	// SetData replaces the source's features wholesale.
	SetData(fc *geojson.FeatureCollection) error
}

// MapHost is the shared, mutable map instance every binding renders into.
// Any implementation of these primitives is substitutable.
type MapHost interface {
	AddSource(id string, fc *geojson.FeatureCollection) error
	GetSource(id string) (Source, bool)
	RemoveSource(id string) error

	AddLayer(layer domain.Layer) error
	GetLayer(id string) (domain.Layer, bool)
	RemoveLayer(id string) error

	On(event domain.EventType, layerID string, h EventHandler) ListenerID
	Off(event domain.EventType, layerID string, id ListenerID)

	// SetCursor sets the global pointer cursor style ("" restores the default).
	SetCursor(cursor string)
	// OpenPopup shows a transient overlay on the map.
	OpenPopup(p domain.Popup)
}

// InteractiveHost is a MapHost that can also be driven by pointer input
// and serialised, as the headless host is.
type InteractiveHost interface {
	MapHost

	// Click dispatches a click at point and returns the popups it opened.
	Click(point orb.Point, radiusMeters float64) []domain.Popup
	// Hover moves the pointer to point and returns the resulting cursor.
	Hover(point orb.Point, radiusMeters float64) string
	SourceData(id string) (*geojson.FeatureCollection, bool)
	MarshalStyle() ([]byte, error)
}
