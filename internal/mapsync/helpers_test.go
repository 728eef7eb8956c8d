package mapsync_test

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/adapters/maphost"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
)

// recordingHost logs every style mutation and lookup before delegating to
// a real in-memory host.
type recordingHost struct {
	*maphost.Host
	calls []string
}

func newRecordingHost() *recordingHost {
	return &recordingHost{Host: maphost.New()}
}

func (r *recordingHost) AddSource(id string, fc *geojson.FeatureCollection) error {
	r.calls = append(r.calls, "AddSource "+id)
	return r.Host.AddSource(id, fc)
}

func (r *recordingHost) GetSource(id string) (ports.Source, bool) {
	r.calls = append(r.calls, "GetSource "+id)
	src, ok := r.Host.GetSource(id)
	if !ok {
		return nil, false
	}
	return recordingSource{Source: src, host: r, id: id}, true
}

func (r *recordingHost) RemoveSource(id string) error {
	r.calls = append(r.calls, "RemoveSource "+id)
	return r.Host.RemoveSource(id)
}

func (r *recordingHost) AddLayer(l domain.Layer) error {
	r.calls = append(r.calls, "AddLayer "+l.ID)
	return r.Host.AddLayer(l)
}

func (r *recordingHost) GetLayer(id string) (domain.Layer, bool) {
	r.calls = append(r.calls, "GetLayer "+id)
	return r.Host.GetLayer(id)
}

func (r *recordingHost) RemoveLayer(id string) error {
	r.calls = append(r.calls, "RemoveLayer "+id)
	return r.Host.RemoveLayer(id)
}

func (r *recordingHost) reset() { r.calls = nil }

// mutations filters the log down to calls that change host state.
func (r *recordingHost) mutations() []string {
	var out []string
	for _, c := range r.calls {
		if strings.HasPrefix(c, "Add") || strings.HasPrefix(c, "Remove") || strings.HasPrefix(c, "SetData") {
			out = append(out, c)
		}
	}
	return out
}

type recordingSource struct {
	ports.Source
	host *recordingHost
	id   string
}

func (s recordingSource) SetData(fc *geojson.FeatureCollection) error {
	s.host.calls = append(s.host.calls, "SetData "+s.id)
	return s.Source.SetData(fc)
}

// twoLayers is a spec with a base layer and a label layer on top.
type twoLayers struct{}

func (twoLayers) Layers(sourceID string) []domain.Layer {
	return []domain.Layer{
		{ID: sourceID, Type: "symbol", Source: sourceID, Layout: map[string]any{"icon-image": "{image}"}},
		{ID: sourceID + "-label", Type: "symbol", Source: sourceID, Layout: map[string]any{"text-field": "{title}"}},
	}
}

// clashingLayers repeats a layer id so the host rejects the second add.
type clashingLayers struct{}

func (clashingLayers) Layers(sourceID string) []domain.Layer {
	l := domain.Layer{ID: sourceID, Type: "symbol", Source: sourceID}
	return []domain.Layer{l, l}
}

func point(lon, lat float64, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lon, lat})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func collection(fs ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range fs {
		fc.Append(f)
	}
	return fc
}
