package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Manifest is a vehicle's delivery manifest for one working day.
type Manifest struct {
	ManifestNo      FlexString `json:"ManifestNo"`
	RoadShowLoad    FlexString `json:"RoadShowLoad"`
	ManifestType    string     `json:"ManifestType"`
	MDate           string     `json:"MDate"`
	StartTime       string     `json:"StartTime"`
	TrlName         string     `json:"TrlName"`
	DriverShortName string     `json:"DriverShortName"`
	Registration    string     `json:"registration"`
}

var manifestDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Day returns the manifest date truncated to midnight in loc.
func (m Manifest) Day(loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(m.MDate)
	if raw == "" {
		return time.Time{}, fmt.Errorf("manifest %s has no date", m.ManifestNo)
	}
	for _, layout := range manifestDateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			t = t.In(loc)
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("manifest %s: unrecognised date %q", m.ManifestNo, raw)
}

// Job is one row of a manifest. Several rows may share a JobOrder.
type Job struct {
	RowID       FlexString `json:"RowID"`
	JobOrder    FlexString `json:"JobOrder"`
	Collect1    string     `json:"Collect1"`
	Deliver1    string     `json:"Deliver1"`
	DPostCode   string     `json:"DPostCode"`
	PODRecieved int        `json:"PODRecieved"`
	Latitude    any        `json:"latitudeValues"`
	Longitude   any        `json:"longitudeValues"`
}

// HasLocation reports whether both coordinate fields carry a value.
// Zero, empty and missing values all count as "no location".
func (j Job) HasLocation() bool {
	return present(j.Latitude) && present(j.Longitude)
}

// Delivered reports whether a proof of delivery was received.
func (j Job) Delivered() bool {
	return j.PODRecieved < 0
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t != "" && t != "0"
	case bool:
		return t
	default:
		return true
	}
}

// JobGroup collapses every row of one job order.
type JobGroup struct {
	JobOrder  string `json:"job_order"`
	Delivered bool   `json:"delivered"`
	Jobs      []Job  `json:"jobs"`
}

// GroupJobs groups jobs by order, keeping the order of first appearance.
// A group counts as delivered only when every row is delivered.
func GroupJobs(jobs []Job) []JobGroup {
	index := make(map[string]int)
	var groups []JobGroup
	for _, j := range jobs {
		key := string(j.JobOrder)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, JobGroup{JobOrder: key, Delivered: true})
		}
		groups[i].Jobs = append(groups[i].Jobs, j)
		if !j.Delivered() {
			groups[i].Delivered = false
		}
	}
	return groups
}

// ReportStop is a stop detected by the tracking server's stops report.
type ReportStop struct {
	DeviceID   int64     `json:"deviceId"`
	DeviceName string    `json:"deviceName,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address,omitempty"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Duration   int64     `json:"duration"` // milliseconds
}

// Position is a single GPS fix of a tracked device.
type Position struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"deviceId"`
	FixTime   time.Time `json:"fixTime"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`  // knots
	Course    float64   `json:"course"` // degrees
}

// Device is a tracked vehicle.
type Device struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	UniqueID string `json:"uniqueId"`
}

// Marker is a generic map pin descriptor.
type Marker struct {
	Latitude  any    `json:"latitude"`
	Longitude any    `json:"longitude"`
	Image     string `json:"image,omitempty"`
	Title     string `json:"title,omitempty"`
	Popup     string `json:"popup,omitempty"`
}

// FlexString accepts either a JSON string or a JSON number.
// Upstream manifest feeds are not consistent about identifier types.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }
