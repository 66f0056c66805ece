package stats

import (
	"math"
	"time"
)

// Window is an inclusive contribution window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns the window covering days days up to the end of now's
// calendar day, in now's location.
func WindowEndingAt(now time.Time, days int) Window {
	if days <= 0 {
		days = 365
	}
	loc := now.Location()
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	from := end.AddDate(0, 0, -days)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: end}
}

// Contains reports whether ts falls inside the window, bounds included.
func (w Window) Contains(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// TimelinePoint is one calendar month of attributed commits.
type TimelinePoint struct {
	Month   string `json:"month"`
	Year    int    `json:"year"`
	Key     string `json:"key"`
	Commits int    `json:"commits"`
}

// buildTimeline buckets dates by calendar month, one point per month from the
// window's first month through its last. Dates outside the window are dropped.
func buildTimeline(window Window, dates []time.Time) []TimelinePoint {
	loc := window.End.Location()
	first := time.Date(window.Start.Year(), window.Start.Month(), 1, 0, 0, 0, 0, loc)
	last := time.Date(window.End.Year(), window.End.Month(), 1, 0, 0, 0, 0, loc)

	points := make([]TimelinePoint, 0, 13)
	index := make(map[string]int, 13)
	for month := first; !month.After(last); month = month.AddDate(0, 1, 0) {
		key := month.Format("2006-01")
		index[key] = len(points)
		points = append(points, TimelinePoint{
			Month: month.Format("Jan"),
			Year:  month.Year(),
			Key:   key,
		})
	}

	for _, date := range dates {
		if !window.Contains(date) {
			continue
		}
		if i, ok := index[date.In(loc).Format("2006-01")]; ok {
			points[i].Commits++
		}
	}
	return points
}

// scaleTimeline multiplies every bucket by total/sampled, rounding half away from zero.
func scaleTimeline(points []TimelinePoint, total, sampled int) []TimelinePoint {
	if sampled <= 0 {
		return points
	}
	factor := float64(total) / float64(sampled)
	scaled := make([]TimelinePoint, len(points))
	for i, point := range points {
		point.Commits = int(math.Round(float64(point.Commits) * factor))
		scaled[i] = point
	}
	return scaled
}

func timelineTotal(points []TimelinePoint) int {
	total := 0
	for _, point := range points {
		total += point.Commits
	}
	return total
}
