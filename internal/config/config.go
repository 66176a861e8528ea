package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/graaaaa/nickutc/internal/sleep"
)

// CurrentSchemaVersion is the current config schema version.
const CurrentSchemaVersion = 1

// MinPollingIntervalSeconds is the shortest accepted polling interval.
const MinPollingIntervalSeconds = 10

// Environment variable names for config overrides.
// Priority: Environment > Config File > Default
const (
	EnvPort                   = "NICKUTC_PORT"
	EnvLanEnabled             = "NICKUTC_LAN_ENABLED"
	EnvLogLevel               = "NICKUTC_LOG_LEVEL"
	EnvSleepThresholdHours    = "NICKUTC_SLEEP_THRESHOLD_HOURS"
	EnvMinOnlineSeconds       = "NICKUTC_MIN_ONLINE_SECONDS"
	EnvAssumedWakeupHour      = "NICKUTC_ASSUMED_WAKEUP_HOUR"
	EnvMaxInterruptionMinutes = "NICKUTC_MAX_INTERRUPTION_MINUTES"
	EnvPollingIntervalSeconds = "NICKUTC_POLLING_INTERVAL_SECONDS"
	EnvReportFile             = "NICKUTC_REPORT_FILE"
	EnvKafkaBrokers           = "NICKUTC_KAFKA_BROKERS"
	EnvKafkaTopic             = "NICKUTC_KAFKA_TOPIC"
)

// Tracking holds the sleep inference parameters.
type Tracking struct {
	SleepThresholdHours      float64 `json:"sleep_threshold_hours"`
	MinOnlineDurationSeconds int     `json:"min_online_duration_seconds"`
	AssumedWakeupHour        int     `json:"assumed_wakeup_hour"`
	MaxInterruptionMinutes   int     `json:"max_interruption_minutes"`
	PollingIntervalSeconds   int     `json:"polling_interval_seconds"`
}

// Params converts the tracking settings to pipeline parameters.
func (t Tracking) Params() sleep.Params {
	return sleep.Params{
		ThresholdHours:         t.SleepThresholdHours,
		MinOnlineSeconds:       t.MinOnlineDurationSeconds,
		AssumedWakeupHour:      t.AssumedWakeupHour,
		MaxInterruptionMinutes: t.MaxInterruptionMinutes,
	}
}

// TrackedUser is a person registered at startup.
// At least one of TelegramID and DiscordID must be set.
type TrackedUser struct {
	Label      string `json:"label"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
	DiscordID  *int64 `json:"discord_id,omitempty"`
	Username   string `json:"username,omitempty"`
	// ProbeURL, when set, is polled for the user's current status.
	ProbeURL string `json:"probe_url,omitempty"`
}

// KafkaConfig configures the Kafka report source.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	GroupID string   `json:"group_id"`
}

// Enabled reports whether the Kafka source is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Sources configures where presence reports come from.
type Sources struct {
	ReportFile string      `json:"report_file"`
	Follow     bool        `json:"follow"`
	Kafka      KafkaConfig `json:"kafka"`
}

// Notify configures timezone-change notifications.
type Notify struct {
	OnTimezoneChange bool  `json:"on_timezone_change"`
	BatchSec         int   `json:"batch_sec"`
	TelegramChatID   int64 `json:"telegram_chat_id"`
}

// RateLimit configures per-IP API rate limiting.
type RateLimit struct {
	PerSecond int `json:"per_second"`
	PerMinute int `json:"per_minute"`
}

// Config holds non-sensitive application configuration.
type Config struct {
	SchemaVersion  int           `json:"schema_version"`
	Port           int           `json:"port"`
	LanEnabled     bool          `json:"lan_enabled"`
	LogLevel       string        `json:"log_level"`
	Tracking       Tracking      `json:"tracking"`
	TrackedUsers   []TrackedUser `json:"tracked_users"`
	Sources        Sources       `json:"sources"`
	Notify         Notify        `json:"notify"`
	RateLimit      RateLimit     `json:"rate_limit"`
	VacuumSchedule string        `json:"vacuum_schedule"`
	// AllowedOrigins may read the API cross-origin (CORS).
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// AllowedHosts may send writes besides loopback, e.g. the LAN name
	// the dashboard is opened under.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	p := sleep.DefaultParams()
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		Port:          8000,
		LogLevel:      "info",
		Tracking: Tracking{
			SleepThresholdHours:      p.ThresholdHours,
			MinOnlineDurationSeconds: p.MinOnlineSeconds,
			AssumedWakeupHour:        p.AssumedWakeupHour,
			MaxInterruptionMinutes:   p.MaxInterruptionMinutes,
			PollingIntervalSeconds:   300,
		},
		Sources: Sources{Follow: true},
		Notify: Notify{
			OnTimezoneChange: true,
			BatchSec:         3,
		},
		RateLimit: RateLimit{
			PerSecond: 30,
			PerMinute: 300,
		},
		VacuumSchedule: "@daily",
	}
}

// LoadConfig reads config from disk. If the file doesn't exist or is corrupt,
// it returns DefaultConfig with a warning logged (non-fatal).
func LoadConfig() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	return LoadConfigFrom(path)
}

// LoadConfigFrom reads config from the specified path.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		slog.Warn("config file is corrupt, using defaults", "path", path, "error", err)
		return DefaultConfig(), nil
	}

	if cfg.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("config schema version mismatch, using defaults",
			"got", cfg.SchemaVersion, "want", CurrentSchemaVersion)
		return DefaultConfig(), nil
	}

	return Normalize(cfg), nil
}

// Normalize replaces out-of-range values with their defaults.
func Normalize(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.SchemaVersion = CurrentSchemaVersion

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaults.Port
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	default:
		cfg.LogLevel = defaults.LogLevel
	}

	cfg.Tracking = NormalizeTracking(cfg.Tracking)

	if cfg.Notify.BatchSec < 0 {
		cfg.Notify.BatchSec = defaults.Notify.BatchSec
	}
	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = defaults.RateLimit.PerSecond
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = defaults.RateLimit.PerMinute
	}
	if strings.TrimSpace(cfg.VacuumSchedule) == "" {
		cfg.VacuumSchedule = defaults.VacuumSchedule
	}
	if cfg.Sources.Kafka.GroupID == "" {
		cfg.Sources.Kafka.GroupID = "nickutc"
	}

	cfg.AllowedOrigins = compactStrings(cfg.AllowedOrigins)
	cfg.AllowedHosts = compactStrings(cfg.AllowedHosts)

	users := cfg.TrackedUsers[:0]
	for _, u := range cfg.TrackedUsers {
		if u.TelegramID == nil && u.DiscordID == nil {
			slog.Warn("tracked user has no platform id, skipping", "label", u.Label)
			continue
		}
		users = append(users, u)
	}
	cfg.TrackedUsers = users

	return cfg
}

// compactStrings trims entries and drops empty ones.
func compactStrings(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// NormalizeTracking replaces out-of-range tracking values with defaults.
func NormalizeTracking(t Tracking) Tracking {
	d := DefaultConfig().Tracking
	if t.SleepThresholdHours <= 0 {
		t.SleepThresholdHours = d.SleepThresholdHours
	}
	if t.MinOnlineDurationSeconds < 0 {
		t.MinOnlineDurationSeconds = d.MinOnlineDurationSeconds
	}
	if t.AssumedWakeupHour < 0 || t.AssumedWakeupHour > 23 {
		t.AssumedWakeupHour = d.AssumedWakeupHour
	}
	if t.MaxInterruptionMinutes < 0 {
		t.MaxInterruptionMinutes = d.MaxInterruptionMinutes
	}
	if t.PollingIntervalSeconds < MinPollingIntervalSeconds {
		t.PollingIntervalSeconds = d.PollingIntervalSeconds
	}
	return t
}

// SaveConfig writes config to disk atomically.
func SaveConfig(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	return SaveConfigTo(cfg, path)
}

// SaveConfigTo writes config to the specified path atomically.
func SaveConfigTo(cfg Config, path string) error {
	cfg.SchemaVersion = CurrentSchemaVersion

	return writeJSONAtomic(path, cfg)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
// Invalid values are ignored.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}

	if v := os.Getenv(EnvLanEnabled); v != "" {
		cfg.LanEnabled = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv(EnvSleepThresholdHours); v != "" {
		if h, err := strconv.ParseFloat(v, 64); err == nil && h > 0 {
			cfg.Tracking.SleepThresholdHours = h
		}
	}
	envInt(EnvMinOnlineSeconds, 0, &cfg.Tracking.MinOnlineDurationSeconds)
	envInt(EnvMaxInterruptionMinutes, 0, &cfg.Tracking.MaxInterruptionMinutes)
	envInt(EnvPollingIntervalSeconds, MinPollingIntervalSeconds, &cfg.Tracking.PollingIntervalSeconds)
	if v := os.Getenv(EnvAssumedWakeupHour); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			cfg.Tracking.AssumedWakeupHour = h
		}
	}

	if v := os.Getenv(EnvReportFile); v != "" {
		cfg.Sources.ReportFile = v
	}

	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Sources.Kafka.Brokers = brokers
	}
	if v := os.Getenv(EnvKafkaTopic); v != "" {
		cfg.Sources.Kafka.Topic = v
	}

	return cfg
}

// envInt sets *dst from the integer variable name when it parses and is at
// least minValue.
func envInt(name string, minValue int, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n >= minValue {
		*dst = n
	}
}

// parseBool parses a boolean from various string representations.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// All other values are treated as false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
