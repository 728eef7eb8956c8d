package mapsync

import "github.com/samirrijal/manifestmap/internal/core/domain"

// LayerSpec produces the layer definitions for a source. The first layer's
// id must equal sourceID so interaction can be scoped by binding id.
//
// Layer layout is fixed once added to a host; a changed spec takes effect
// only through Binding.Rebind or a fresh Mount.
type LayerSpec interface {
	Layers(sourceID string) []domain.Layer
}

// LabeledMarkers draws the marker icon with its title underneath.
// Clustered placeholder points are filtered out.
type LabeledMarkers struct {
	Config domain.RenderConfig
}

func (s LabeledMarkers) Layers(sourceID string) []domain.Layer {
	scale := iconScale(s.Config)
	return []domain.Layer{{
		ID:     sourceID,
		Type:   "symbol",
		Source: sourceID,
		Filter: []any{"!has", "point_count"},
		Layout: map[string]any{
			"icon-image":         "{image}",
			"icon-size":          scale,
			"icon-allow-overlap": true,
			"text-field":         "{title}",
			"text-allow-overlap": true,
			"text-anchor":        "bottom",
			"text-offset":        []float64{0, -2 * scale},
			"text-size":          12,
		},
		Paint: map[string]any{
			"text-halo-color": "white",
			"text-halo-width": 1,
		},
	}}
}

// IconMarkers draws the marker icon only.
type IconMarkers struct {
	Config domain.RenderConfig
}

func (s IconMarkers) Layers(sourceID string) []domain.Layer {
	return []domain.Layer{{
		ID:     sourceID,
		Type:   "symbol",
		Source: sourceID,
		Layout: map[string]any{
			"icon-image":         "{image}",
			"icon-size":          iconScale(s.Config),
			"icon-allow-overlap": true,
		},
	}}
}

// JobPins draws one badge per job order labelled with the order number.
type JobPins struct {
	Config domain.RenderConfig
}

func (s JobPins) Layers(sourceID string) []domain.Layer {
	return []domain.Layer{{
		ID:     sourceID,
		Type:   "symbol",
		Source: sourceID,
		Layout: map[string]any{
			"icon-image":         "background",
			"icon-size":          iconScale(s.Config),
			"icon-allow-overlap": true,
			"text-field":         "{order}",
			"text-size":          14,
			"text-allow-overlap": true,
		},
	}}
}

// RouteColor is the stroke of the vehicle track.
const RouteColor = "#3b6fd4"

// RouteLine draws a track as a rounded line. Its width follows the icon
// scale so the line stays in proportion to the markers above it.
type RouteLine struct {
	Config domain.RenderConfig
}

func (s RouteLine) Layers(sourceID string) []domain.Layer {
	return []domain.Layer{{
		ID:     sourceID,
		Type:   "line",
		Source: sourceID,
		Layout: map[string]any{
			"line-join": "round",
			"line-cap":  "round",
		},
		Paint: map[string]any{
			"line-color": RouteColor,
			"line-width": 4 * iconScale(s.Config),
		},
	}}
}

// MarkerSpec picks the labeled or icon-only variant from cfg.
func MarkerSpec(cfg domain.RenderConfig) LayerSpec {
	if cfg.ShowTitles {
		return LabeledMarkers{Config: cfg}
	}
	return IconMarkers{Config: cfg}
}

func iconScale(cfg domain.RenderConfig) float64 {
	if cfg.IconScale <= 0 {
		return domain.PhoneIconScale
	}
	return cfg.IconScale
}
