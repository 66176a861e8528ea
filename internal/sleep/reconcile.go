// Package sleep infers sleep periods and daily timezone estimates from a
// stream of binary presence events.
//
// Every stage is a pure function of its input: nothing here performs I/O or
// keeps state between calls, so the pipeline may run concurrently for
// different users. Callers that persist results must serialize runs for the
// same user themselves.
package sleep

import (
	"slices"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Merge reconciles events from any number of sources into one combined stream.
//
// The combined status is online while at least one known source reports
// online, and offline only when every known source reports offline. A source
// that has not reported yet does not take part. The first event always
// produces a combined event, even an offline one, so an initial offline
// observation can open a sleep segment. After that an event is emitted only
// when the combined status changes, so the output strictly alternates.
// Timestamp and raw kind come from the triggering event; Source is always
// presence.SourceCombined.
//
// The input is sorted stably by timestamp; it is not modified.
func Merge(events []presence.Event) []presence.Event {
	if len(events) == 0 {
		return nil
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b presence.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	known := make(map[string]presence.Status)
	var (
		combined presence.Status // unset until the first event
		out      []presence.Event
	)

	for _, e := range sorted {
		known[e.Source] = e.Status

		next := presence.Offline
		for _, s := range known {
			if s.IsOnline() {
				next = presence.Online
				break
			}
		}

		if next != combined {
			combined = next
			out = append(out, presence.Event{
				UserID:    e.UserID,
				Timestamp: e.Timestamp,
				Status:    combined,
				RawKind:   e.RawKind,
				Source:    presence.SourceCombined,
			})
		}
	}

	return out
}
