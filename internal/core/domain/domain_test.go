package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestResolveRenderConfig(t *testing.T) {
	big := 1.5
	zero := 0.0
	cases := []struct {
		name  string
		width int
		pref  *float64
		want  float64
	}{
		{"phone", 400, nil, PhoneIconScale},
		{"desktop at breakpoint", 900, nil, DesktopIconScale},
		{"preference wins", 1200, &big, 1.5},
		{"non-positive preference ignored", 1200, &zero, DesktopIconScale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveRenderConfig(tc.width, 0, tc.pref, true)
			if got.IconScale != tc.want || !got.ShowTitles {
				t.Errorf("expected scale %v with titles, got %+v", tc.want, got)
			}
		})
	}
}

func TestJobLocationAndDelivery(t *testing.T) {
	cases := []struct {
		job     Job
		located bool
	}{
		{Job{Latitude: 53.1, Longitude: -2.2}, true},
		{Job{Latitude: "53.1", Longitude: "-2.2"}, true},
		{Job{Latitude: json.Number("0"), Longitude: -2.2}, false},
		{Job{Latitude: "", Longitude: -2.2}, false},
		{Job{Longitude: -2.2}, false},
	}
	for i, tc := range cases {
		if got := tc.job.HasLocation(); got != tc.located {
			t.Errorf("case %d: HasLocation = %v, want %v", i, got, tc.located)
		}
	}
	if !(Job{PODRecieved: -1}).Delivered() || (Job{PODRecieved: 0}).Delivered() {
		t.Error("only negative PODRecieved counts as delivered")
	}
}

func TestGroupJobs(t *testing.T) {
	jobs := []Job{
		{RowID: "1", JobOrder: "B", PODRecieved: -1},
		{RowID: "2", JobOrder: "A", PODRecieved: -1},
		{RowID: "3", JobOrder: "B", PODRecieved: 0},
	}
	groups := GroupJobs(jobs)
	if len(groups) != 2 || groups[0].JobOrder != "B" || groups[1].JobOrder != "A" {
		t.Fatalf("expected groups B then A, got %+v", groups)
	}
	if groups[0].Delivered || len(groups[0].Jobs) != 2 {
		t.Errorf("group B should hold 2 jobs and be pending, got %+v", groups[0])
	}
	if !groups[1].Delivered {
		t.Error("group A should be delivered")
	}
	if GroupJobs(nil) != nil {
		t.Error("expected no groups for no jobs")
	}
}

func TestFlexString(t *testing.T) {
	var m Manifest
	if err := json.Unmarshal([]byte(`{"ManifestNo": 1234, "RoadShowLoad": "L-9"}`), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ManifestNo != "1234" || m.RoadShowLoad != "L-9" {
		t.Errorf("unexpected manifest %+v", m)
	}
	if err := json.Unmarshal([]byte(`{"ManifestNo": null}`), &m); err != nil || m.ManifestNo != "" {
		t.Errorf("null should clear, got %q (%v)", m.ManifestNo, err)
	}
	if err := json.Unmarshal([]byte(`{"ManifestNo": {}}`), &m); err == nil {
		t.Error("expected error for an object id")
	}
}

func TestManifestDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	for _, raw := range []string{"2024-03-04T09:30:00", "2024-03-04", "04/03/2024"} {
		day, err := Manifest{MDate: raw}.Day(loc)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if want := time.Date(2024, 3, 4, 0, 0, 0, 0, loc); !day.Equal(want) {
			t.Errorf("%s: expected %v, got %v", raw, want, day)
		}
	}
	if _, err := (Manifest{MDate: "soon"}).Day(loc); err == nil {
		t.Error("expected error for unparseable date")
	}
	if _, err := (Manifest{}).Day(loc); err == nil {
		t.Error("expected error for missing date")
	}
}

func TestGeoPointValid(t *testing.T) {
	if !(GeoPoint{Lat: 53.35, Lon: -2.25}).Valid() {
		t.Error("expected valid point")
	}
	if (GeoPoint{Lat: 91, Lon: 0}).Valid() || (GeoPoint{Lat: 0, Lon: 181}).Valid() {
		t.Error("expected out-of-range points to be invalid")
	}
	if p := (Position{Latitude: 1, Longitude: 2}).Point(); p.Lat != 1 || p.Lon != 2 {
		t.Errorf("unexpected point %+v", p)
	}
}
