package maphost

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// StyleVersion is the MapLibre style version emitted.
const StyleVersion = 8

// Style is a MapLibre style document describing the host's sources and
// layers, ready to hand to a browser map.
type Style struct {
	Version int                    `json:"version"`
	Sources map[string]StyleSource `json:"sources"`
	Layers  []domain.Layer         `json:"layers"`
}

// StyleSource is an inline GeoJSON source.
type StyleSource struct {
	Type string                     `json:"type"`
	Data *geojson.FeatureCollection `json:"data"`
}

// Style snapshots the current sources and layers. Layers are listed bottom
// to top, as the renderer draws them.
func (h *Host) Style() Style {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Style{
		Version: StyleVersion,
		Sources: make(map[string]StyleSource, len(h.sources)),
		Layers:  append([]domain.Layer{}, h.layers...),
	}
	for id, s := range h.sources {
		st.Sources[id] = StyleSource{Type: "geojson", Data: s.data}
	}
	return st
}

// MarshalStyle encodes the current style as JSON.
func (h *Host) MarshalStyle() ([]byte, error) {
	return json.Marshal(h.Style())
}
