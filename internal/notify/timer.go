// Package notify announces timezone changes over Discord webhooks and
// Telegram bot messages.
package notify

import "time"

// TimerHandle cancels a scheduled flush. *time.Timer satisfies it.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) TimerHandle

func stdAfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
