package geospatial

import (
	"math"
	"testing"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// London (Charing Cross) to Birmingham (New Street), roughly 163 km.
	d := Haversine(51.5074, -0.1278, 52.4778, -1.8990)
	if d < 160000 || d > 166000 {
		t.Errorf("expected ~163km, got %.0fm", d)
	}
}

func TestHaversine_SamePoint(t *testing.T) {
	if d := Haversine(53.48, -2.24, 53.48, -2.24); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	minLat, minLon, maxLat, maxLon := BoundingBox(53.0, -2.0, 1000)
	if Haversine(53.0, -2.0, maxLat, -2.0) < 999 || Haversine(53.0, -2.0, minLat, -2.0) < 999 {
		t.Error("latitude span smaller than radius")
	}
	if Haversine(53.0, -2.0, 53.0, maxLon) < 999 || Haversine(53.0, -2.0, 53.0, minLon) < 999 {
		t.Error("longitude span smaller than radius")
	}
}

func TestPathLength(t *testing.T) {
	pts := []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}}
	got := PathLength(pts)
	want := 2 * Haversine(0, 0, 0, 1)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if PathLength(pts[:1]) != 0 {
		t.Error("single point path should have zero length")
	}
}

func TestBounds(t *testing.T) {
	if _, ok := Bounds(nil); ok {
		t.Error("expected no bounds for empty input")
	}
	b, ok := Bounds([]domain.GeoPoint{{Lat: 51, Lon: -1}, {Lat: 52.5, Lon: -3}, {Lat: 50, Lon: 0.5}})
	if !ok {
		t.Fatal("expected bounds")
	}
	want := domain.Bounds{MinLat: 50, MinLon: -3, MaxLat: 52.5, MaxLon: 0.5}
	if b != want {
		t.Errorf("expected %+v, got %+v", want, b)
	}
}

func TestInvalidPointsSkipped(t *testing.T) {
	pts := []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: math.NaN(), Lon: 5}, {Lat: 0, Lon: 1}, {Lat: 120, Lon: 0}}
	if got, want := PathLength(pts), Haversine(0, 0, 0, 1); math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, got)
	}
	b, ok := Bounds(pts)
	if !ok || b != (domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 0, MaxLon: 1}) {
		t.Errorf("unexpected bounds %+v (ok=%v)", b, ok)
	}
	if _, ok := Bounds([]domain.GeoPoint{{Lat: math.Inf(1), Lon: 0}}); ok {
		t.Error("expected no bounds for invalid-only input")
	}
}
