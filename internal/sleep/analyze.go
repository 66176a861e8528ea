package sleep

import (
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Params configures the pipeline.
type Params struct {
	// ThresholdHours is the minimum span that counts as a night's sleep.
	ThresholdHours float64
	// MinOnlineSeconds is the shortest online span treated as a real wake-up.
	MinOnlineSeconds int
	// AssumedWakeupHour is the local hour a person is assumed to wake up.
	AssumedWakeupHour int
	// MaxInterruptionMinutes is the longest awake gap merged into one sleep.
	MaxInterruptionMinutes int
}

// DefaultParams returns the default pipeline configuration.
func DefaultParams() Params {
	return Params{
		ThresholdHours:         4.0,
		MinOnlineSeconds:       30,
		AssumedWakeupHour:      9,
		MaxInterruptionMinutes: 45,
	}
}

func (p Params) minOnline() time.Duration {
	return time.Duration(p.MinOnlineSeconds) * time.Second
}

func (p Params) maxInterruption() time.Duration {
	return time.Duration(p.MaxInterruptionMinutes) * time.Minute
}

// Result holds the outputs of one pipeline run.
type Result struct {
	Periods []presence.SleepPeriod
	Daily   []presence.DailyTimezone
}

// CurrentOffset returns the offset of the most recent daily estimate, or
// false when there is none.
func (r Result) CurrentOffset() (float64, bool) {
	if len(r.Daily) == 0 {
		return 0, false
	}
	return r.Daily[len(r.Daily)-1].OffsetHours, true
}

// DetectPeriods runs reconciliation, noise filtering, segmentation,
// interruption merging and the threshold filter.
func DetectPeriods(events []presence.Event, p Params) []presence.SleepPeriod {
	combined := Merge(events)
	cleaned := Dedup(FilterNoise(combined, p.minOnline()))

	segments := Segments(cleaned)
	if len(segments) == 0 {
		return nil
	}

	merged := MergeInterruptions(segments, p.ThresholdHours, p.maxInterruption())
	return Qualify(merged, p.ThresholdHours, p.AssumedWakeupHour)
}

// Analyze runs the full pipeline. An empty input yields an empty Result.
func Analyze(events []presence.Event, p Params) Result {
	if len(events) == 0 {
		return Result{}
	}
	periods := DetectPeriods(events, p)
	return Result{
		Periods: periods,
		Daily:   AggregateDaily(periods),
	}
}
