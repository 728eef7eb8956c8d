package mapsync

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
)

const (
	DefaultCursor        = "pointer"
	DefaultPopupProperty = "popup"
)

// Handlers customises a Bridge. Zero values select the defaults.
type Handlers struct {
	// Cursor is shown while the pointer is over the layer.
	Cursor string
	// PopupProperty names the feature property holding popup HTML.
	PopupProperty string
	// OnSelect, if set, observes the feature picked by a click. It must
	// not modify the feature.
	OnSelect func(f *geojson.Feature)
}

// Bridge wires hover and click handling for one layer. The cursor style
// and popups it opens are its only side effects on the host.
//
// Detach must run before the layer's binding is unmounted.
type Bridge struct {
	host      ports.MapHost
	layerID   string
	handlers  Handlers
	listeners map[domain.EventType]ports.ListenerID
}

// Attach registers mouseenter, mouseleave and click handlers for layerID.
func (br *Bridge) Attach(host ports.MapHost, layerID string, h Handlers) error {
	if br.listeners != nil {
		return fmt.Errorf("mapsync: bridge already attached to %s", br.layerID)
	}
	if host == nil || layerID == "" {
		return fmt.Errorf("mapsync: attach needs a host and a layer id")
	}
	if h.Cursor == "" {
		h.Cursor = DefaultCursor
	}
	if h.PopupProperty == "" {
		h.PopupProperty = DefaultPopupProperty
	}

	br.host, br.layerID, br.handlers = host, layerID, h
	br.listeners = map[domain.EventType]ports.ListenerID{
		domain.EventMouseEnter: host.On(domain.EventMouseEnter, layerID, br.onEnter),
		domain.EventMouseLeave: host.On(domain.EventMouseLeave, layerID, br.onLeave),
		domain.EventClick:      host.On(domain.EventClick, layerID, br.onClick),
	}
	return nil
}

// Detach removes every handler registered by Attach. It is a no-op when
// the bridge is not attached.
func (br *Bridge) Detach() {
	if br.listeners == nil {
		return
	}
	for ev, id := range br.listeners {
		br.host.Off(ev, br.layerID, id)
	}
	br.listeners = nil
}

// Attached reports whether handlers are registered.
func (br *Bridge) Attached() bool { return br.listeners != nil }

func (br *Bridge) onEnter(*domain.Event) { br.host.SetCursor(br.handlers.Cursor) }

func (br *Bridge) onLeave(*domain.Event) { br.host.SetCursor("") }

// onClick resolves one click to at most one popup, using the first hit.
func (br *Bridge) onClick(e *domain.Event) {
	e.PreventDefault()
	if len(e.Features) == 0 || e.Features[0] == nil {
		return
	}
	f := e.Features[0]
	if br.handlers.OnSelect != nil {
		br.handlers.OnSelect(f)
	}

	html, _ := f.Properties[br.handlers.PopupProperty].(string)
	if html == "" {
		return
	}
	anchor := e.LngLat
	if p, ok := f.Geometry.(orb.Point); ok {
		anchor = p
	}
	br.host.OpenPopup(domain.Popup{LngLat: anchor, HTML: html})
}
