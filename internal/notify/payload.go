package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Discord embed color constants.
const (
	ColorEast = 0x57F287 // offset moved east
	ColorWest = 0xED4245 // offset moved west
)

// MaxEmbedsPerRequest is the Discord API limit for embeds per message.
const MaxEmbedsPerRequest = 10

// Item is one timezone change ready to be announced.
type Item struct {
	UserID   int64
	Label    string
	Previous float64
	Current  float64
	Date     string // daily estimate that produced Current
	At       time.Time
}

func (it Item) name() string {
	if it.Label != "" {
		return it.Label
	}
	return fmt.Sprintf("user %d", it.UserID)
}

func (it Item) summary() string {
	prev, cur := it.Previous, it.Current
	return fmt.Sprintf("%s → %s", presence.FormatOffset(&prev), presence.FormatOffset(&cur))
}

// DiscordPayload represents a Discord webhook request body.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed.
type DiscordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// BuildDiscordPayloads creates one embed per change.
// May return multiple payloads if items exceed MaxEmbedsPerRequest.
func BuildDiscordPayloads(items []Item) []DiscordPayload {
	if len(items) == 0 {
		return nil
	}

	embeds := make([]DiscordEmbed, 0, len(items))
	for _, it := range items {
		color := ColorEast
		if it.Current < it.Previous {
			color = ColorWest
		}
		desc := fmt.Sprintf("**%s** %s", it.name(), it.summary())
		if it.Date != "" {
			desc += fmt.Sprintf("\nEstimated from the wake-up on %s", it.Date)
		}
		embeds = append(embeds, DiscordEmbed{
			Title:       "Timezone Changed",
			Description: desc,
			Color:       color,
			Timestamp:   it.At.UTC().Format(time.RFC3339),
		})
	}

	var payloads []DiscordPayload
	for i := 0; i < len(embeds); i += MaxEmbedsPerRequest {
		end := min(i+MaxEmbedsPerRequest, len(embeds))
		payloads = append(payloads, DiscordPayload{Embeds: embeds[i:end]})
	}
	return payloads
}

// BuildTelegramText renders items as one HTML message.
func BuildTelegramText(items []Item) string {
	if len(items) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(items) == 1 {
		sb.WriteString("<b>Timezone changed</b>\n")
	} else {
		fmt.Fprintf(&sb, "<b>%d timezone changes</b>\n", len(items))
	}
	for _, it := range items {
		fmt.Fprintf(&sb, "%s: %s", htmlEscape(it.name()), it.summary())
		if it.Date != "" {
			fmt.Fprintf(&sb, " (%s)", it.Date)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
