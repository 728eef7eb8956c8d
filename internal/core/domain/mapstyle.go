package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer is a rendering rule bound to one source. Field names follow the
// MapLibre style format so a Layer marshals straight into a style.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter []any          `json:"filter,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Popup is a transient overlay anchored at a coordinate.
type Popup struct {
	LngLat orb.Point `json:"lng_lat"`
	HTML   string    `json:"html"`
}

// EventType names a pointer event delivered by a map host.
type EventType string

const (
	EventMouseEnter EventType = "mouseenter"
	EventMouseLeave EventType = "mouseleave"
	EventClick      EventType = "click"
)

// Event is a pointer event scoped to one layer. Features are ordered by the
// host's hit test, topmost first.
type Event struct {
	Type     EventType
	LayerID  string
	LngLat   orb.Point
	Features []*geojson.Feature

	defaultPrevented bool
}

// PreventDefault stops the host from running its own handling of the event.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// DefaultPrevented reports whether a handler called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// RenderConfig holds the viewport dependent layer parameters.
type RenderConfig struct {
	IconScale  float64 `json:"icon_scale"`
	ShowTitles bool    `json:"show_titles"`
}

const (
	// DesktopBreakpoint is the viewport width (px) from which the desktop
	// icon scale applies.
	DesktopBreakpoint = 900

	DesktopIconScale = 0.75
	PhoneIconScale   = 1.0
)

// ResolveRenderConfig derives layer parameters from the viewport width and
// the user's stored preference. A nil or non-positive preference falls back
// to the breakpoint default.
func ResolveRenderConfig(viewportWidth, breakpoint int, preferredScale *float64, showTitles bool) RenderConfig {
	if breakpoint <= 0 {
		breakpoint = DesktopBreakpoint
	}
	scale := PhoneIconScale
	if viewportWidth >= breakpoint {
		scale = DesktopIconScale
	}
	if preferredScale != nil && *preferredScale > 0 {
		scale = *preferredScale
	}
	return RenderConfig{IconScale: scale, ShowTitles: showTitles}
}
