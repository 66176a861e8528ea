// Package presence provides the shared presence model for nickutc.
// This package is used by sleep, derive, ingest, store, api, and notify packages.
package presence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the binary presence state of a tracked identity.
type Status string

// Status values.
const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Source identifiers.
const (
	SourceTelegram = "telegram"
	SourceDiscord  = "discord"
	SourceCombined = "combined"
)

// ErrInvalidStatus is returned when a status string is neither online nor offline.
var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus parses "online" or "offline" (case-insensitive).
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case Online:
		return Online, nil
	case Offline:
		return Offline, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsOnline reports whether s is Online.
func (s Status) IsOnline() bool {
	return s == Online
}

// Event is a single online/offline transition reported by one source.
// Ordering key is Timestamp; ties are broken by ID (storage order).
type Event struct {
	ID        int64     `json:"-"`
	UserID    int64     `json:"-"`
	Timestamp time.Time `json:"timestamp_utc"`
	Status    Status    `json:"status"`
	RawKind   string    `json:"raw_status_type"`
	Source    string    `json:"source"`
}

// SleepPeriod is a detected sleep gap with its timezone estimate.
type SleepPeriod struct {
	OfflineAt   time.Time `json:"offline_at_utc"`
	OnlineAt    time.Time `json:"online_at_utc"`
	GapHours    float64   `json:"gap_hours"`
	OffsetHours float64   `json:"estimated_tz_offset"`
	WakeDate    string    `json:"date"`
}

// DailyTimezone is the timezone estimate for one calendar date.
type DailyTimezone struct {
	Date        string    `json:"date"`
	OffsetHours float64   `json:"offset_hours"`
	WakeupAt    time.Time `json:"wakeup_utc"`
}

// User is a tracked identity that may be observed on several platforms.
type User struct {
	ID             int64    `json:"user_id"`
	TelegramID     *int64   `json:"telegram_id,omitempty"`
	DiscordID      *int64   `json:"discord_id,omitempty"`
	Username       *string  `json:"username"`
	Label          string   `json:"label"`
	CurrentStatus  *Status  `json:"current_status"`
	TelegramStatus *Status  `json:"telegram_status,omitempty"`
	DiscordStatus  *Status  `json:"discord_status,omitempty"`
	CurrentOffset  *float64 `json:"current_tz_offset"`
}

// Int64Ptr returns a pointer to the given value.
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}
