package sleep

import (
	"math"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Offset bounds in hours.
const (
	MinOffsetHours = -12
	MaxOffsetHours = 14
)

// EstimateOffset returns the UTC offset, in hours, implied by waking at the
// UTC instant wake when the person is assumed to wake at assumedHour local time.
//
// The raw offset is normalized into [-12, +14] by a single ±24 shift and then
// rounded to the nearest half hour, ties to even.
func EstimateOffset(wake time.Time, assumedHour int) float64 {
	wake = wake.UTC()
	offset := float64(assumedHour) - (float64(wake.Hour()) + float64(wake.Minute())/60)

	if offset < MinOffsetHours {
		offset += 24
	} else if offset > MaxOffsetHours {
		offset -= 24
	}

	r := math.RoundToEven(offset*2) / 2
	if r == 0 {
		return 0 // no negative zero
	}
	return r
}

// Qualify keeps segments of at least thresholdHours and turns them into
// sleep periods with an offset estimate and the UTC wake date.
func Qualify(segments []Segment, thresholdHours float64, assumedHour int) []presence.SleepPeriod {
	var out []presence.SleepPeriod
	for _, s := range segments {
		if s.Hours < thresholdHours {
			continue
		}
		out = append(out, presence.SleepPeriod{
			OfflineAt:   s.Start,
			OnlineAt:    s.End,
			GapHours:    roundHundredths(s.Hours),
			OffsetHours: EstimateOffset(s.End, assumedHour),
			WakeDate:    presence.FormatDate(s.End),
		})
	}
	return out
}

func roundHundredths(v float64) float64 {
	return math.Round(v*100) / 100
}
