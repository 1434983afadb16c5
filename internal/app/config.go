package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/auth"
	"portal-admin/internal/export"
	"portal-admin/internal/gate"
)

const MemoryStoreDSN = "memory"

type Config struct {
	APIURL               string
	APITimeout           time.Duration
	SessionStoreDSN      string
	SessionSealKey       string
	LoginMaxAttempts     int
	LoginLockWindow      time.Duration
	SessionCheckInterval time.Duration
	PageLimit            int
	ExportS3             export.S3Config
	MetricsTextfile      string
	SentryDSN            string
	Environment          string
}

func LoadConfig(options Options) (Config, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg := Config{
		APIURL:               strings.TrimRight(envOrDefault("PORTAL_API_URL", apiclient.DefaultBaseURL), "/"),
		APITimeout:           envSecondsOrDefault("PORTAL_API_TIMEOUT_SECONDS", int(apiclient.DefaultTimeout/time.Second)),
		SessionStoreDSN:      envOrDefault("SESSION_STORE_DSN", defaultStoreDSN()),
		SessionSealKey:       strings.TrimSpace(os.Getenv("SESSION_SEAL_KEY")),
		LoginMaxAttempts:     envIntOrDefault("LOGIN_MAX_ATTEMPTS", auth.DefaultMaxAttempts),
		LoginLockWindow:      envMinutesOrDefault("LOGIN_LOCK_MINUTES", int(auth.DefaultLockWindow/time.Minute)),
		SessionCheckInterval: envSecondsOrDefault("SESSION_CHECK_INTERVAL_SECONDS", int(gate.DefaultInterval/time.Second)),
		PageLimit:            envIntOrDefault("REGISTRATIONS_PAGE_LIMIT", apiclient.DefaultLimit),
		ExportS3: export.S3Config{
			Region:          os.Getenv("EXPORT_S3_REGION"),
			Endpoint:        os.Getenv("EXPORT_S3_ENDPOINT"),
			PathStyle:       EnvBoolOrDefault("EXPORT_S3_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("EXPORT_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("EXPORT_S3_SECRET_ACCESS_KEY"),
		},
		MetricsTextfile: strings.TrimSpace(os.Getenv("METRICS_TEXTFILE")),
		SentryDSN:       strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		Environment:     envOrDefault("APP_ENV", "development"),
	}

	if cfg.Environment == "production" && cfg.SessionStoreDSN != MemoryStoreDSN {
		key, err := mustEnv("SESSION_SEAL_KEY")
		if err != nil {
			return Config{}, err
		}
		cfg.SessionSealKey = key
	}

	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return Config{}, fmt.Errorf("PORTAL_API_URL must be an http(s) url, got %q", cfg.APIURL)
	}

	return cfg, nil
}

func defaultStoreDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".portal-admin", "session.db")
	}
	return filepath.Join(dir, "portal-admin", "session.db")
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
