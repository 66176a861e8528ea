package sleep

import (
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Segment is an offline span between an offline event and the next online event.
type Segment struct {
	Start time.Time
	End   time.Time
	Hours float64
}

func newSegment(start, end time.Time) Segment {
	return Segment{Start: start, End: end, Hours: end.Sub(start).Hours()}
}

// Segments extracts offline spans from an alternating stream.
//
// Each online event closes the span opened by the most recent unmatched
// offline event. A later offline event overwrites an unmatched one. A trailing
// offline event yields nothing: an open-ended sleep is not reported until it
// is closed.
func Segments(events []presence.Event) []Segment {
	var (
		out     []Segment
		start   time.Time
		pending bool
	)

	for _, e := range events {
		switch e.Status {
		case presence.Offline:
			start = e.Timestamp
			pending = true
		case presence.Online:
			if pending {
				out = append(out, newSegment(start, e.Timestamp))
				pending = false
			}
		}
	}
	return out
}
