package sleep

import (
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// FilterNoise drops online→offline pairs whose online span is shorter than
// minOnline. Such blips are connectivity artifacts, not real wake-ups.
//
// The offline events surrounding a dropped pair are left adjacent; run Dedup
// afterwards to collapse them. A minOnline <= 0 disables filtering.
func FilterNoise(events []presence.Event, minOnline time.Duration) []presence.Event {
	if len(events) == 0 {
		return nil
	}
	if minOnline <= 0 {
		return append([]presence.Event(nil), events...)
	}

	out := make([]presence.Event, 0, len(events))
	for i := 0; i < len(events); i++ {
		cur := events[i]
		if cur.Status == presence.Online && i+1 < len(events) {
			next := events[i+1]
			if next.Status == presence.Offline && next.Timestamp.Sub(cur.Timestamp) < minOnline {
				i++ // skip the pair
				continue
			}
		}
		out = append(out, cur)
	}
	return out
}

// Dedup collapses runs of consecutive events with the same status, keeping
// the first event of each run.
func Dedup(events []presence.Event) []presence.Event {
	if len(events) == 0 {
		return nil
	}
	out := []presence.Event{events[0]}
	for _, e := range events[1:] {
		if e.Status != out[len(out)-1].Status {
			out = append(out, e)
		}
	}
	return out
}
