package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"CONSOLE_FIRESTORE_PROJECT_ID":  "catalog-dev",
		"CONSOLE_STORAGE_ASSETS_BUCKET": "catalog-assets-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "catalog-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.ProductEventsTopic != "" {
		t.Errorf("expected publishing disabled by default, got topic %s", cfg.PubSub.ProductEventsTopic)
	}
	if cfg.Observability.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Observability.Environment)
	}
	if cfg.Observability.TraceProjectID != "catalog-dev" {
		t.Errorf("expected trace project to default to firestore project, got %s", cfg.Observability.TraceProjectID)
	}
	if cfg.Storage.MaxImageBytes != defaultMaxImageBytes {
		t.Errorf("unexpected max image bytes: %d", cfg.Storage.MaxImageBytes)
	}
	if cfg.Storage.UploadTimeout != defaultUploadTimeout {
		t.Errorf("unexpected upload timeout: %s", cfg.Storage.UploadTimeout)
	}
	if cfg.Editor.SessionTTL != defaultSessionTTL {
		t.Errorf("unexpected session ttl: %s", cfg.Editor.SessionTTL)
	}
	if cfg.Editor.MaxConcurrentUploads != defaultMaxConcurrentUploads {
		t.Errorf("unexpected upload concurrency: %d", cfg.Editor.MaxConcurrentUploads)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"CONSOLE_SERVER_PORT":                   "9090",
		"CONSOLE_SERVER_READ_TIMEOUT":           "20s",
		"CONSOLE_SERVER_WRITE_TIMEOUT":          "not-a-duration",
		"CONSOLE_FIRESTORE_PROJECT_ID":          "catalog-prod",
		"CONSOLE_STORAGE_ASSETS_BUCKET":         "assets-prod",
		"CONSOLE_STORAGE_PUBLIC_BASE_URL":       "https://cdn.example.com",
		"CONSOLE_STORAGE_MAX_IMAGE_BYTES":       "2048",
		"CONSOLE_PUBSUB_PROJECT_ID":             "events-prod",
		"CONSOLE_PUBSUB_PRODUCT_EVENTS_TOPIC":   "product-events",
		"CONSOLE_EDITOR_SESSION_TTL":            "45m",
		"CONSOLE_EDITOR_MAX_CONCURRENT_UPLOADS": "0",
		"CONSOLE_ENVIRONMENT":                   " PROD ",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected invalid duration to fall back, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.com" {
		t.Errorf("unexpected public base url: %s", cfg.Storage.PublicBaseURL)
	}
	if cfg.Storage.MaxImageBytes != 2048 {
		t.Errorf("unexpected max image bytes: %d", cfg.Storage.MaxImageBytes)
	}
	if cfg.PubSub.ProjectID != "events-prod" || cfg.PubSub.ProductEventsTopic != "product-events" {
		t.Errorf("unexpected pubsub config: %#v", cfg.PubSub)
	}
	if cfg.Editor.SessionTTL != 45*time.Minute {
		t.Errorf("unexpected session ttl: %s", cfg.Editor.SessionTTL)
	}
	if cfg.Editor.MaxConcurrentUploads != 0 {
		t.Errorf("expected unbounded uploads, got %d", cfg.Editor.MaxConcurrentUploads)
	}
	if cfg.Observability.Environment != "prod" {
		t.Errorf("expected normalised environment prod, got %q", cfg.Observability.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nCONSOLE_SERVER_PORT=7070\nCONSOLE_FIRESTORE_PROJECT_ID=catalog-dot\nexport CONSOLE_STORAGE_ASSETS_BUCKET=\"assets-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(
		WithEnvFile(envPath),
		WithEnvMap(map[string]string{"CONSOLE_SERVER_PORT": "6060"}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "catalog-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.AssetsBucket != "assets-dot" {
		t.Errorf("expected quoted bucket from dotenv, got %s", cfg.Storage.AssetsBucket)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	env := map[string]string{
		"CONSOLE_FIRESTORE_PROJECT_ID":  "catalog-dev",
		"CONSOLE_STORAGE_ASSETS_BUCKET": "assets",
	}
	missing := filepath.Join(t.TempDir(), "absent.env")
	if _, err := Load(WithEnvFile(missing), WithEnvMap(env), WithoutSystemEnv()); err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	for _, want := range []string{"Firestore.ProjectID", "Storage.AssetsBucket"} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	env := map[string]string{
		"CONSOLE_FIRESTORE_PROJECT_ID":          "catalog-dev",
		"CONSOLE_STORAGE_ASSETS_BUCKET":         "assets",
		"CONSOLE_STORAGE_MAX_IMAGE_BYTES":       "4096",
		"CONSOLE_STORAGE_MAX_MULTIPART_BYTES":   "1024",
		"CONSOLE_EDITOR_MAX_CONCURRENT_UPLOADS": "-1",
	}
	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validationErr.Fields()
	if !slices.Contains(fields, "Storage.MaxMultipartBytes") || !slices.Contains(fields, "Editor.MaxConcurrentUploads") {
		t.Fatalf("unexpected fields %v", fields)
	}
}
