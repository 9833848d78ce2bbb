// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the relay options:
// display-name handling, snippet expansion, attachment policy, inline-reply
// relaying, reactions, auto-alerts, and storage paths.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Attachment storage modes.
const (
	// AttachmentStorageLocal saves attachments to disk and links them.
	AttachmentStorageLocal = "local"
	// AttachmentStorageRelay treats the transport's own attachment URLs
	// as canonical after a successful send.
	AttachmentStorageRelay = "relay"
)

// Display-name preferences for staff replies.
const (
	NameModeUsername = "username"
	NameModeNickname = "nickname"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the relay.
type Config struct {
	// Storage
	DBPath        string // SQLite path
	AttachmentDir string // base dir for the disk attachment store
	AttachmentURL string // public base URL for saved attachments

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Display names
	NameMode         string // username|nickname
	EscapeNameFormat bool   // escape markdown in display names
	ShowRoleNames    bool   // prefix replies with the author's role label
	AnonymousName    string // name shown on anonymous replies

	// Snippets
	SnippetsInline        bool
	SnippetStartDelimiter string
	SnippetEndDelimiter   string

	// Attachments
	AttachmentStorage     string // local|relay
	RelaySmallAttachments bool   // re-upload small incoming attachments
	SmallAttachmentLimit  int64  // byte threshold for "small"

	// Relay behavior
	RelayInlineReplies bool   // resolve reply references across channels
	ReactOnReceive     bool   // acknowledge incoming messages
	ReactionEmoji      string
	MessageCharLimit   int    // single-message ceiling for staff replies

	// Auto alerts
	AutoAlert      bool
	AutoAlertDelay time.Duration

	// Downtime recovery
	RecoveryFetchLimit int

	// Transport pacing
	SendRatePerSecond float64 // token refill rate for the send limiter
	SendBurst         int

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment (a .env file is honored when
// present), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Storage
		DBPath:        getenv("DB_PATH", "modmail.db"),
		AttachmentDir: getenv("ATTACHMENT_DIR", "attachments"),
		AttachmentURL: getenv("ATTACHMENT_URL", "http://localhost:8890"),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Display names
		NameMode:         strings.ToLower(getenv("NAME_MODE", NameModeNickname)),
		EscapeNameFormat: getbool("ESCAPE_NAME_FORMAT", true),
		ShowRoleNames:    getbool("SHOW_ROLE_NAMES", true),
		AnonymousName:    getenv("ANONYMOUS_NAME", "Moderator"),

		// Snippets
		SnippetsInline:        getbool("SNIPPETS_INLINE", false),
		SnippetStartDelimiter: getenv("SNIPPET_START_DELIMITER", "{{"),
		SnippetEndDelimiter:   getenv("SNIPPET_END_DELIMITER", "}}"),

		// Attachments
		AttachmentStorage:     strings.ToLower(getenv("ATTACHMENT_STORAGE", AttachmentStorageLocal)),
		RelaySmallAttachments: getbool("RELAY_SMALL_ATTACHMENTS", false),
		SmallAttachmentLimit:  int64(getint("SMALL_ATTACHMENT_LIMIT", 2<<20)),

		// Relay behavior
		RelayInlineReplies: getbool("RELAY_INLINE_REPLIES", true),
		ReactOnReceive:     getbool("REACT_ON_RECEIVE", false),
		ReactionEmoji:      getenv("REACTION_EMOJI", "📨"),
		MessageCharLimit:   getint("MESSAGE_CHAR_LIMIT", 2000),

		// Auto alerts
		AutoAlert:      getbool("AUTO_ALERT", false),
		AutoAlertDelay: getdur("AUTO_ALERT_DELAY", 2*time.Minute),

		// Downtime recovery
		RecoveryFetchLimit: getint("RECOVERY_FETCH_LIMIT", 50),

		// Transport pacing
		SendRatePerSecond: getfloat("SEND_RATE_PER_SECOND", 5.0),
		SendBurst:         getint("SEND_BURST", 5),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-modmail-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	switch cfg.NameMode {
	case NameModeUsername, NameModeNickname:
	default:
		return cfg, errors.New("NAME_MODE must be one of: username, nickname")
	}
	switch cfg.AttachmentStorage {
	case AttachmentStorageLocal, AttachmentStorageRelay:
	default:
		return cfg, errors.New("ATTACHMENT_STORAGE must be one of: local, relay")
	}
	if cfg.SnippetStartDelimiter == "" || cfg.SnippetEndDelimiter == "" {
		return cfg, errors.New("snippet delimiters must not be empty")
	}
	if cfg.MessageCharLimit <= 0 {
		return cfg, errors.New("MESSAGE_CHAR_LIMIT must be > 0")
	}
	if cfg.SmallAttachmentLimit < 0 {
		return cfg, errors.New("SMALL_ATTACHMENT_LIMIT must be >= 0")
	}
	if cfg.AutoAlertDelay <= 0 {
		return cfg, errors.New("AUTO_ALERT_DELAY must be > 0")
	}
	if cfg.RecoveryFetchLimit < 1 {
		return cfg, errors.New("RECOVERY_FETCH_LIMIT must be >= 1")
	}
	if cfg.SendRatePerSecond < 0 {
		return cfg, errors.New("SEND_RATE_PER_SECOND must be >= 0")
	}
	if cfg.SendBurst < 1 {
		return cfg, errors.New("SEND_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
