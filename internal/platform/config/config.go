package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 2 * time.Minute
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 90 * time.Second
	defaultShutdownTimeout      = 15 * time.Second
	defaultEnvironment          = "local"
	defaultMaxImageBytes        = int64(10 * 1024 * 1024)
	defaultMaxMultipartBytes    = int64(64 * 1024 * 1024)
	defaultUploadTimeout        = 30 * time.Second
	defaultSessionTTL           = 2 * time.Hour
	defaultSweepInterval        = 5 * time.Minute
	defaultMaxConcurrentUploads = 8
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PubSub        PubSubConfig
	Editor        EditorConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig controls where product images are written and how they are served.
type StorageConfig struct {
	AssetsBucket      string
	PublicBaseURL     string
	ObjectPrefix      string
	MaxImageBytes     int64
	MaxMultipartBytes int64
	UploadTimeout     time.Duration
}

// PubSubConfig configures product event delivery. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID          string
	ProductEventsTopic string
	EmulatorHost       string
}

// EditorConfig tunes product editor sessions.
type EditorConfig struct {
	SessionTTL           time.Duration
	SweepInterval        time.Duration
	MaxConcurrentUploads int
}

// ObservabilityConfig carries logging and tracing metadata.
type ObservabilityConfig struct {
	Environment    string
	TraceProjectID string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and explicit maps (in increasing precedence).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "CONSOLE_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "CONSOLE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "CONSOLE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "CONSOLE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  durationWithDefault(lookup, "CONSOLE_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "CONSOLE_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CONSOLE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CONSOLE_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			AssetsBucket:      stringWithDefault(lookup, "CONSOLE_STORAGE_ASSETS_BUCKET", ""),
			PublicBaseURL:     stringWithDefault(lookup, "CONSOLE_STORAGE_PUBLIC_BASE_URL", ""),
			ObjectPrefix:      stringWithDefault(lookup, "CONSOLE_STORAGE_OBJECT_PREFIX", ""),
			MaxImageBytes:     int64WithDefault(lookup, "CONSOLE_STORAGE_MAX_IMAGE_BYTES", defaultMaxImageBytes),
			MaxMultipartBytes: int64WithDefault(lookup, "CONSOLE_STORAGE_MAX_MULTIPART_BYTES", defaultMaxMultipartBytes),
			UploadTimeout:     durationWithDefault(lookup, "CONSOLE_STORAGE_UPLOAD_TIMEOUT", defaultUploadTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:          stringWithDefault(lookup, "CONSOLE_PUBSUB_PROJECT_ID", ""),
			ProductEventsTopic: stringWithDefault(lookup, "CONSOLE_PUBSUB_PRODUCT_EVENTS_TOPIC", ""),
			EmulatorHost:       stringWithDefault(lookup, "CONSOLE_PUBSUB_EMULATOR_HOST", ""),
		},
		Editor: EditorConfig{
			SessionTTL:           durationWithDefault(lookup, "CONSOLE_EDITOR_SESSION_TTL", defaultSessionTTL),
			SweepInterval:        durationWithDefault(lookup, "CONSOLE_EDITOR_SWEEP_INTERVAL", defaultSweepInterval),
			MaxConcurrentUploads: intWithDefault(lookup, "CONSOLE_EDITOR_MAX_CONCURRENT_UPLOADS", defaultMaxConcurrentUploads),
		},
		Observability: ObservabilityConfig{
			Environment:    strings.ToLower(stringWithDefault(lookup, "CONSOLE_ENVIRONMENT", defaultEnvironment)),
			TraceProjectID: stringWithDefault(lookup, "CONSOLE_TRACE_PROJECT_ID", ""),
		},
	}

	// Pub/Sub and tracing default to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Observability.TraceProjectID == "" {
		cfg.Observability.TraceProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		missing = append(missing, "Server.RequestTimeout")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storage.AssetsBucket == "" {
		missing = append(missing, "Storage.AssetsBucket")
	}
	if cfg.Storage.MaxImageBytes <= 0 {
		missing = append(missing, "Storage.MaxImageBytes")
	}
	if cfg.Storage.MaxMultipartBytes < cfg.Storage.MaxImageBytes {
		missing = append(missing, "Storage.MaxMultipartBytes")
	}
	if cfg.Storage.UploadTimeout <= 0 {
		missing = append(missing, "Storage.UploadTimeout")
	}
	if cfg.Editor.SessionTTL <= 0 {
		missing = append(missing, "Editor.SessionTTL")
	}
	if cfg.Editor.SweepInterval <= 0 {
		missing = append(missing, "Editor.SweepInterval")
	}
	if cfg.Editor.MaxConcurrentUploads < 0 {
		missing = append(missing, "Editor.MaxConcurrentUploads")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
