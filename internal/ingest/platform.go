package ingest

import (
	"fmt"
	"strings"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Platforms understood by Classify.
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformGeneric  = "generic"
)

// Telegram user status type names.
const (
	telegramOnline   = "UserStatusOnline"
	telegramOffline  = "UserStatusOffline"
	telegramRecently = "UserStatusRecently"
)

// Classification is a platform status reduced to the binary model.
type Classification struct {
	Status  presence.Status
	RawKind string
	Source  string
}

// Classify maps a platform-specific status to online/offline.
//
// Telegram: UserStatusOnline and UserStatusOffline map directly; every other
// status (recently, last week, hidden) is ErrIgnoredStatus.
// Discord: only "online" counts as online; idle, dnd, invisible and offline
// all count as offline.
// Generic: "online" or "offline".
func Classify(platform, status string) (Classification, error) {
	switch strings.ToLower(platform) {
	case PlatformTelegram:
		return classifyTelegram(status)
	case PlatformDiscord:
		return classifyDiscord(status)
	case PlatformGeneric:
		st, err := presence.ParseStatus(status)
		if err != nil {
			return Classification{}, err
		}
		return Classification{Status: st, RawKind: string(st), Source: PlatformGeneric}, nil
	default:
		return Classification{}, fmt.Errorf("unknown platform %q", platform)
	}
}

func classifyTelegram(status string) (Classification, error) {
	c := Classification{RawKind: status, Source: presence.SourceTelegram}
	switch status {
	case telegramOnline:
		c.Status = presence.Online
	case telegramOffline:
		c.Status = presence.Offline
	default:
		return Classification{}, fmt.Errorf("%w: telegram %s", ErrIgnoredStatus, status)
	}
	return c, nil
}

func classifyDiscord(status string) (Classification, error) {
	s := strings.ToLower(strings.TrimSpace(status))
	c := Classification{Source: presence.SourceDiscord}
	switch s {
	case "online":
		c.Status = presence.Online
		c.RawKind = "DiscordOnline"
	case "idle", "dnd", "invisible", "offline":
		c.Status = presence.Offline
		c.RawKind = "Discord" + strings.ToUpper(s[:1]) + s[1:]
	default:
		return Classification{}, fmt.Errorf("unknown discord status %q", status)
	}
	return c, nil
}
