package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/graaaaa/nickutc/internal/config"
)

// ConfigUsecase defines the configuration management use case.
type ConfigUsecase interface {
	// GetConfig returns the current configuration.
	GetConfig(ctx context.Context) ConfigResponse

	// UpdateConfig applies the given changes. Tracking changes take effect
	// at once; the response says whether anything else needs a restart.
	UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error)
}

// ConfigResponse represents the current configuration (excludes secret values).
type ConfigResponse struct {
	Port                     int             `json:"port"`
	LanEnabled               bool            `json:"lan_enabled"`
	LogLevel                 string          `json:"log_level"`
	Tracking                 config.Tracking `json:"tracking"`
	TrackedUsers             int             `json:"tracked_users"`
	NotifyOnTimezoneChange   bool            `json:"notify_on_timezone_change"`
	NotifyBatchSec           int             `json:"notify_batch_sec"`
	DiscordWebhookConfigured bool            `json:"discord_webhook_configured"`
	TelegramConfigured       bool            `json:"telegram_configured"`
}

// ConfigUpdateRequest contains optional fields for updating configuration.
type ConfigUpdateRequest struct {
	Port                     *int     `json:"port,omitempty"`
	LanEnabled               *bool    `json:"lan_enabled,omitempty"`
	LogLevel                 *string  `json:"log_level,omitempty"`
	SleepThresholdHours      *float64 `json:"sleep_threshold_hours,omitempty"`
	MinOnlineDurationSeconds *int     `json:"min_online_duration_seconds,omitempty"`
	AssumedWakeupHour        *int     `json:"assumed_wakeup_hour,omitempty"`
	MaxInterruptionMinutes   *int     `json:"max_interruption_minutes,omitempty"`
	PollingIntervalSeconds   *int     `json:"polling_interval_seconds,omitempty"`
	NotifyOnTimezoneChange   *bool    `json:"notify_on_timezone_change,omitempty"`
	NotifyBatchSec           *int     `json:"notify_batch_sec,omitempty"`
	DiscordWebhookURL        *string  `json:"discord_webhook_url,omitempty"`
	TelegramBotToken         *string  `json:"telegram_bot_token,omitempty"`
}

// ConfigUpdateResponse indicates the result of a configuration update.
type ConfigUpdateResponse struct {
	Success         bool `json:"success"`
	RestartRequired bool `json:"restart_required"`
	NewPort         int  `json:"new_port,omitempty"`
}

// ConfigService implements ConfigUsecase.
type ConfigService struct {
	ConfigPath  string
	SecretsPath string
	// OnTracking, when set, receives new tracking parameters after they
	// were saved.
	OnTracking func(config.Tracking)
}

// GetConfig returns the current configuration.
func (s ConfigService) GetConfig(ctx context.Context) ConfigResponse {
	cfg, _ := config.LoadConfigFrom(s.ConfigPath)
	sec, _, _ := config.LoadSecretsFrom(s.SecretsPath)

	return ConfigResponse{
		Port:                     cfg.Port,
		LanEnabled:               cfg.LanEnabled,
		LogLevel:                 cfg.LogLevel,
		Tracking:                 cfg.Tracking,
		TrackedUsers:             len(cfg.TrackedUsers),
		NotifyOnTimezoneChange:   cfg.Notify.OnTimezoneChange,
		NotifyBatchSec:           cfg.Notify.BatchSec,
		DiscordWebhookConfigured: !sec.DiscordWebhookURL.IsEmpty(),
		TelegramConfigured:       !sec.TelegramBotToken.IsEmpty() && cfg.Notify.TelegramChatID != 0,
	}
}

// UpdateConfig updates the configuration.
func (s ConfigService) UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error) {
	cfg, err := config.LoadConfigFrom(s.ConfigPath)
	if err != nil {
		return ConfigUpdateResponse{}, fmt.Errorf("load config: %w", err)
	}

	sec, status, err := config.LoadSecretsFrom(s.SecretsPath)
	if err != nil && status == config.SecretsFallback {
		return ConfigUpdateResponse{}, fmt.Errorf("load secrets: %w", err)
	}

	originalPort := cfg.Port
	var restart, trackingChanged, configChanged, secretsChanged bool

	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			return ConfigUpdateResponse{}, invalidf("port must be between 1 and 65535")
		}
		cfg.Port = *req.Port
		restart = true
	}
	if req.LanEnabled != nil {
		cfg.LanEnabled = *req.LanEnabled
		restart = true
	}
	if req.LogLevel != nil {
		switch lvl := strings.ToLower(*req.LogLevel); lvl {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = lvl
		default:
			return ConfigUpdateResponse{}, invalidf("log_level must be one of debug, info, warn, error")
		}
		restart = true
	}

	t := cfg.Tracking
	if req.SleepThresholdHours != nil {
		if *req.SleepThresholdHours <= 0 {
			return ConfigUpdateResponse{}, invalidf("sleep_threshold_hours must be positive")
		}
		t.SleepThresholdHours = *req.SleepThresholdHours
	}
	if req.MinOnlineDurationSeconds != nil {
		if *req.MinOnlineDurationSeconds < 0 {
			return ConfigUpdateResponse{}, invalidf("min_online_duration_seconds must be non-negative")
		}
		t.MinOnlineDurationSeconds = *req.MinOnlineDurationSeconds
	}
	if req.AssumedWakeupHour != nil {
		if *req.AssumedWakeupHour < 0 || *req.AssumedWakeupHour > 23 {
			return ConfigUpdateResponse{}, invalidf("assumed_wakeup_hour must be between 0 and 23")
		}
		t.AssumedWakeupHour = *req.AssumedWakeupHour
	}
	if req.MaxInterruptionMinutes != nil {
		if *req.MaxInterruptionMinutes < 0 {
			return ConfigUpdateResponse{}, invalidf("max_interruption_minutes must be non-negative")
		}
		t.MaxInterruptionMinutes = *req.MaxInterruptionMinutes
	}
	if req.PollingIntervalSeconds != nil {
		if *req.PollingIntervalSeconds < config.MinPollingIntervalSeconds {
			return ConfigUpdateResponse{}, invalidf("polling_interval_seconds must be at least %d", config.MinPollingIntervalSeconds)
		}
		if *req.PollingIntervalSeconds != t.PollingIntervalSeconds {
			restart = true
		}
		t.PollingIntervalSeconds = *req.PollingIntervalSeconds
	}
	if t != cfg.Tracking {
		cfg.Tracking = t
		trackingChanged = true
	}

	if req.NotifyOnTimezoneChange != nil {
		cfg.Notify.OnTimezoneChange = *req.NotifyOnTimezoneChange
		restart = true
	}
	if req.NotifyBatchSec != nil {
		if *req.NotifyBatchSec < 0 {
			return ConfigUpdateResponse{}, invalidf("notify_batch_sec must be non-negative")
		}
		cfg.Notify.BatchSec = *req.NotifyBatchSec
		restart = true
	}
	configChanged = restart || trackingChanged

	if req.DiscordWebhookURL != nil {
		url := *req.DiscordWebhookURL
		if url != "" && !isValidDiscordWebhookURL(url) {
			return ConfigUpdateResponse{}, invalidf("invalid Discord webhook URL")
		}
		sec.DiscordWebhookURL = config.Secret(url)
		secretsChanged = true
	}
	if req.TelegramBotToken != nil {
		sec.TelegramBotToken = config.Secret(strings.TrimSpace(*req.TelegramBotToken))
		secretsChanged = true
	}

	if configChanged {
		if err := config.SaveConfigTo(cfg, s.ConfigPath); err != nil {
			return ConfigUpdateResponse{}, fmt.Errorf("save config: %w", err)
		}
	}
	if secretsChanged {
		if err := config.SaveSecretsTo(sec, s.SecretsPath); err != nil {
			return ConfigUpdateResponse{}, fmt.Errorf("save secrets: %w", err)
		}
	}
	if trackingChanged && s.OnTracking != nil {
		s.OnTracking(cfg.Tracking)
	}

	resp := ConfigUpdateResponse{
		Success:         true,
		RestartRequired: restart || secretsChanged,
	}
	if cfg.Port != originalPort {
		resp.NewPort = cfg.Port
	}
	return resp, nil
}

// ValidationError reports a rejected configuration value. Its message is
// safe to show to clients.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// isValidDiscordWebhookURL validates Discord webhook URL format.
func isValidDiscordWebhookURL(url string) bool {
	return strings.HasPrefix(url, "https://discord.com/api/webhooks/") ||
		strings.HasPrefix(url, "https://discordapp.com/api/webhooks/")
}
