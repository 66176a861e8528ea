package sleep

import (
	"slices"

	"github.com/graaaaa/nickutc/internal/presence"
)

// AggregateDaily picks the main sleep of every wake date: the period with the
// largest gap. Its offset and wake instant become that date's estimate, so
// naps on the same date do not disturb the timezone signal.
//
// When two periods of a date have equal gaps, the one that comes first in
// periods wins. The result is sorted by date ascending.
func AggregateDaily(periods []presence.SleepPeriod) []presence.DailyTimezone {
	if len(periods) == 0 {
		return nil
	}

	best := make(map[string]presence.SleepPeriod)
	var dates []string
	for _, p := range periods {
		cur, ok := best[p.WakeDate]
		if !ok {
			dates = append(dates, p.WakeDate)
			best[p.WakeDate] = p
			continue
		}
		if p.GapHours > cur.GapHours {
			best[p.WakeDate] = p
		}
	}

	slices.Sort(dates)

	out := make([]presence.DailyTimezone, 0, len(dates))
	for _, d := range dates {
		top := best[d]
		out = append(out, presence.DailyTimezone{
			Date:        d,
			OffsetHours: top.OffsetHours,
			WakeupAt:    top.OnlineAt,
		})
	}
	return out
}
