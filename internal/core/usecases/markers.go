package usecases

import (
	"fmt"
	"html"
	"time"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// Marker images known to the map's sprite.
const (
	ImageStop   = "person-info"
	ImageStart  = "default-success"
	ImageFinish = "default-error"
)

const (
	stopPopup   = `<div style="color: black;"><strong>Stop</strong> <br>Time: %s<br>Duration: %s</div>`
	finishPopup = `<div style="color: black;"><strong>FINISH</strong></div>`
)

// StopMarkers turns a stops report into markers whose popup shows when the
// stop began (in loc) and how long it lasted.
func StopMarkers(stops []domain.ReportStop, loc *time.Location) []domain.Marker {
	if loc == nil {
		loc = time.UTC
	}
	markers := make([]domain.Marker, 0, len(stops))
	for _, s := range stops {
		markers = append(markers, domain.Marker{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Image:     ImageStop,
			Popup: fmt.Sprintf(stopPopup,
				html.EscapeString(s.StartTime.In(loc).Format("2006-01-02 15:04")),
				html.EscapeString(FormatHours(time.Duration(s.Duration)*time.Millisecond))),
		})
	}
	return markers
}

// PositionMarkers marks where the day's track starts and finishes. It
// returns nil when there are no positions.
func PositionMarkers(positions []domain.Position) []domain.Marker {
	if len(positions) == 0 {
		return nil
	}
	first, last := positions[0], positions[len(positions)-1]
	return []domain.Marker{
		{Latitude: first.Latitude, Longitude: first.Longitude, Image: ImageStart},
		{Latitude: last.Latitude, Longitude: last.Longitude, Image: ImageFinish, Popup: finishPopup},
	}
}

// JobsWithLocation keeps the jobs that carry both coordinates.
func JobsWithLocation(jobs []domain.Job) []domain.Job {
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.HasLocation() {
			out = append(out, j)
		}
	}
	return out
}

// FormatHours renders d as "1h 05m", or "12m" under an hour.
func FormatHours(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
