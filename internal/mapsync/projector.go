// Package mapsync keeps map sources and layers in step with domain data.
//
// A Projector turns records into GeoJSON point features, a Binding owns the
// lifecycle of one source and its layers on a map host, and a Bridge wires
// pointer interaction for a layer. None of the types here are safe for
// concurrent use; callers serialize access per host.
package mapsync

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cast"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// DefaultMarkerImage is the sprite used when a marker names none.
const DefaultMarkerImage = "default-neutral"

// Record is the common input shape for projection. Latitude and Longitude
// may be numbers, numeric strings or json.Number values.
type Record struct {
	Key        string
	Latitude   any
	Longitude  any
	Properties map[string]any
}

// Stats describes what a projection kept and dropped.
type Stats struct {
	Input      int
	Emitted    int
	Invalid    int
	Duplicates int
}

// Projector converts records into a feature collection. The zero value
// projects every record with valid coordinates.
type Projector struct {
	// Dedupe keeps only the first record emitted for each Key.
	Dedupe bool
	// DefaultImage fills the "image" property when a record has none.
	DefaultImage string
}

// Project returns one point feature per surviving record, in input order.
func (p Projector) Project(records []Record) *geojson.FeatureCollection {
	fc, _ := p.ProjectWithStats(records)
	return fc
}

// ProjectWithStats is Project plus drop counters.
func (p Projector) ProjectWithStats(records []Record) (*geojson.FeatureCollection, Stats) {
	fc := geojson.NewFeatureCollection()
	stats := p.walk(records, func(r Record, pt orb.Point) {
		f := geojson.NewFeature(pt)
		for k, v := range r.Properties {
			f.Properties[k] = v
		}
		if p.DefaultImage != "" {
			if img, _ := f.Properties["image"].(string); img == "" {
				f.Properties["image"] = p.DefaultImage
			}
		}
		fc.Append(f)
	})
	stats.Emitted = len(fc.Features)
	return fc, stats
}

// ProjectPath joins the surviving records, in input order, into a single
// LineString feature carrying a "points" property. Fewer than two points
// give an empty collection. Emitted counts features, so it is 0 or 1.
func (p Projector) ProjectPath(records []Record) (*geojson.FeatureCollection, Stats) {
	fc := geojson.NewFeatureCollection()
	var line orb.LineString
	stats := p.walk(records, func(_ Record, pt orb.Point) {
		line = append(line, pt)
	})
	if len(line) >= 2 {
		f := geojson.NewFeature(line)
		f.Properties["points"] = len(line)
		fc.Append(f)
	}
	stats.Emitted = len(fc.Features)
	return fc, stats
}

// walk validates coordinates, then applies dedup, and hands every
// surviving record to emit in input order.
func (p Projector) walk(records []Record, emit func(Record, orb.Point)) Stats {
	stats := Stats{Input: len(records)}

	var seen map[string]struct{}
	if p.Dedupe {
		seen = make(map[string]struct{}, len(records))
	}

	for _, r := range records {
		lat, okLat := coerce(r.Latitude)
		lon, okLon := coerce(r.Longitude)
		if !okLat || !okLon {
			stats.Invalid++
			continue
		}
		if p.Dedupe {
			if _, dup := seen[r.Key]; dup {
				stats.Duplicates++
				continue
			}
			seen[r.Key] = struct{}{}
		}
		emit(r, orb.Point{lon, lat})
	}
	return stats
}

// coerce converts a coordinate to a finite float64. Missing values,
// booleans and unparsable strings fail rather than turning into zero.
func coerce(v any) (float64, bool) {
	switch t := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, false
		}
		v = t
	case json.Number:
		if t == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarkerRecords adapts generic markers. Markers are never deduplicated, so
// Key is left empty.
func MarkerRecords(markers []domain.Marker) []Record {
	records := make([]Record, 0, len(markers))
	for _, m := range markers {
		props := map[string]any{
			"image": m.Image,
			"title": m.Title,
		}
		if m.Popup != "" {
			props["popup"] = m.Popup
		}
		records = append(records, Record{
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			Properties: props,
		})
	}
	return records
}

// PositionRecords adapts a device track. Positions are never
// deduplicated.
func PositionRecords(positions []domain.Position) []Record {
	records := make([]Record, 0, len(positions))
	for _, pos := range positions {
		records = append(records, Record{Latitude: pos.Latitude, Longitude: pos.Longitude})
	}
	return records
}

// JobRecords adapts manifest job rows keyed by job order. The "order"
// property feeds the pin label and "status" carries the POD value.
func JobRecords(jobs []domain.Job) []Record {
	records := make([]Record, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, Record{
			Key:       j.JobOrder.String(),
			Latitude:  j.Latitude,
			Longitude: j.Longitude,
			Properties: map[string]any{
				"order":  j.JobOrder.String(),
				"status": j.PODRecieved,
			},
		})
	}
	return records
}
