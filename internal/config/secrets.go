package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override stored notifier credentials.
const (
	EnvDiscordWebhookURL = "NICKUTC_DISCORD_WEBHOOK_URL"
	EnvTelegramBotToken  = "NICKUTC_TELEGRAM_BOT_TOKEN"
)

const (
	passwordLength   = 24
	defaultUsername  = "admin"
	passwordFileName = "generated_password.txt"
	redacted         = "[REDACTED]"
)

// SecretsLoadStatus tells callers whether the secrets file may be rewritten.
type SecretsLoadStatus int

const (
	// SecretsLoaded: the file was read and decoded.
	SecretsLoaded SecretsLoadStatus = iota
	// SecretsMissing: there is no file yet, creating one is safe.
	SecretsMissing
	// SecretsFallback: the file exists but is unreadable; never overwrite it.
	SecretsFallback
)

// Secret is a credential that redacts itself in fmt and slog output.
// Value returns the real string.
type Secret string

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Value returns the unmasked secret.
func (s Secret) Value() string { return string(s) }

// IsEmpty reports whether no secret is set.
func (s Secret) IsEmpty() bool { return s == "" }

// Secrets holds credentials kept apart from config.json. The JSON encoding
// carries the real values, so never log the struct through json.Marshal.
type Secrets struct {
	SchemaVersion     int    `json:"schema_version"`
	DiscordWebhookURL Secret `json:"discord_webhook_url"`
	TelegramBotToken  Secret `json:"telegram_bot_token"`
	BasicAuthUsername string `json:"basic_auth_username"`
	BasicAuthPassword Secret `json:"basic_auth_password"`
}

// DefaultSecrets returns empty secrets at the current schema version.
func DefaultSecrets() Secrets {
	return Secrets{SchemaVersion: CurrentSchemaVersion}
}

// LoadSecrets reads secrets.json from the data directory.
func LoadSecrets() (Secrets, SecretsLoadStatus, error) {
	path, err := SecretsPath()
	if err != nil {
		return DefaultSecrets(), SecretsFallback, err
	}
	return LoadSecretsFrom(path)
}

// LoadSecretsFrom reads secrets from path. On any failure other than a
// missing file it returns empty secrets with SecretsFallback.
func LoadSecretsFrom(path string) (Secrets, SecretsLoadStatus, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSecrets(), SecretsMissing, nil
	}
	if err != nil {
		return secretsFallback(fmt.Errorf("read secrets: %w", err))
	}

	sec := DefaultSecrets()
	if err := json.Unmarshal(data, &sec); err != nil {
		return secretsFallback(fmt.Errorf("decode secrets: %w", err))
	}
	if sec.SchemaVersion != CurrentSchemaVersion {
		return secretsFallback(fmt.Errorf("secrets schema version %d, expected %d", sec.SchemaVersion, CurrentSchemaVersion))
	}
	return sec, SecretsLoaded, nil
}

func secretsFallback(err error) (Secrets, SecretsLoadStatus, error) {
	slog.Warn("using empty secrets", "error", err)
	return DefaultSecrets(), SecretsFallback, err
}

// SaveSecrets writes secrets.json in the data directory.
func SaveSecrets(sec Secrets) error {
	path, err := SecretsPath()
	if err != nil {
		return err
	}
	return SaveSecretsTo(sec, path)
}

// SaveSecretsTo atomically writes sec to path.
func SaveSecretsTo(sec Secrets, path string) error {
	sec.SchemaVersion = CurrentSchemaVersion
	return writeJSONAtomic(path, sec)
}

// ApplySecretEnvOverrides replaces notifier credentials with values from
// the environment. Apply it after saving so overrides never reach disk.
func ApplySecretEnvOverrides(sec Secrets) Secrets {
	if v := strings.TrimSpace(os.Getenv(EnvDiscordWebhookURL)); v != "" {
		sec.DiscordWebhookURL = Secret(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramBotToken)); v != "" {
		sec.TelegramBotToken = Secret(v)
	}
	return sec
}

// GeneratePassword returns a random base32 password of the given length.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("generate password: length must be positive")
	}
	var sb strings.Builder
	for sb.Len() < length {
		sb.WriteString(rand.Text())
	}
	return sb.String()[:length], nil
}

// EnsureLanAuth fills in missing Basic Auth credentials when LAN mode is on.
// generatedPassword is non-empty only when a new password was created, so
// the caller can show it once.
func EnsureLanAuth(s *Secrets, lanEnabled bool) (updated bool, generatedPassword string, err error) {
	if !lanEnabled {
		return false, "", nil
	}

	if s.BasicAuthUsername == "" {
		s.BasicAuthUsername = defaultUsername
		updated = true
	}
	if s.BasicAuthPassword.IsEmpty() {
		generatedPassword, err = GeneratePassword(passwordLength)
		if err != nil {
			return false, "", err
		}
		s.BasicAuthPassword = Secret(generatedPassword)
		updated = true
	}
	return updated, generatedPassword, nil
}

// WritePasswordFile stores freshly generated credentials in a 0600 file in
// the data directory and returns its path.
func WritePasswordFile(username, password string) (string, error) {
	dir, err := EnsureDataDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, passwordFileName)

	var sb strings.Builder
	fmt.Fprintf(&sb, "nickutc dashboard credentials\n\n")
	fmt.Fprintf(&sb, "Username: %s\nPassword: %s\n\n", username, password)
	sb.WriteString("Delete this file once the credentials are stored elsewhere.\n")

	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return "", fmt.Errorf("write password file: %w", err)
	}
	return path, nil
}
