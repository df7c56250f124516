package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "km-dev",
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
	if cfg.PubSub.ProjectID != "km-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.SyncTopic != "subsite-sync-events" {
		t.Errorf("unexpected default sync topic: %s", cfg.PubSub.SyncTopic)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.AdminTokenTTL != defaultAdminTokenTTL {
		t.Errorf("unexpected default admin token ttl: %s", cfg.Security.AdminTokenTTL)
	}
	if cfg.Sync.SweepInterval != defaultSyncSweepInterval {
		t.Errorf("unexpected default sweep interval: %s", cfg.Sync.SweepInterval)
	}
	if cfg.Sync.BatchSize != defaultSyncBatchSize {
		t.Errorf("unexpected default sync batch size: %d", cfg.Sync.BatchSize)
	}
	if cfg.Cart.TTL != defaultCartTTL {
		t.Errorf("unexpected default cart ttl: %s", cfg.Cart.TTL)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIRESTORE_PROJECT_ID":         "km-prod",
		"API_PUBSUB_PROJECT_ID":            "km-events",
		"API_PUBSUB_ORDER_TOPIC":           "orders",
		"API_PUBSUB_SYNC_TOPIC":            "sync",
		"API_PUBSUB_SETTLEMENT_TOPIC":      "settlements",
		"API_SECURITY_ENVIRONMENT":         "prod",
		"API_SECURITY_ADMIN_JWT_KEY":       "admin-signing-key",
		"API_SECURITY_ADMIN_TOKEN_TTL":     "1h",
		"API_SYNC_SWEEP_INTERVAL":          "30s",
		"API_SYNC_BATCH_SIZE":              "25",
		"API_SYNC_REQUEST_TIMEOUT":         "10s",
		"API_CART_TTL":                     "48h",
		"API_CART_REAP_INTERVAL":           "15m",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PubSub.ProjectID != "km-events" {
		t.Errorf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.SettlementTopic != "settlements" {
		t.Errorf("unexpected settlement topic: %s", cfg.PubSub.SettlementTopic)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Security.AdminJWTKey != "admin-signing-key" {
		t.Errorf("unexpected admin jwt key %s", cfg.Security.AdminJWTKey)
	}
	if cfg.Security.AdminTokenTTL != time.Hour {
		t.Errorf("unexpected admin token ttl %s", cfg.Security.AdminTokenTTL)
	}
	if cfg.Sync.SweepInterval != 30*time.Second {
		t.Errorf("unexpected sweep interval %s", cfg.Sync.SweepInterval)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("unexpected sync batch size %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.RequestTimeout != 10*time.Second {
		t.Errorf("unexpected sync request timeout %s", cfg.Sync.RequestTimeout)
	}
	if cfg.Cart.TTL != 48*time.Hour {
		t.Errorf("unexpected cart ttl %s", cfg.Cart.TTL)
	}
	if cfg.Cart.ReapInterval != 15*time.Minute {
		t.Errorf("unexpected cart reap interval %s", cfg.Cart.ReapInterval)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=km-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "km-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRequiresAdminKeyOutsideLocal(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "km-prod",
		"API_SECURITY_ENVIRONMENT": "prod",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	found := false
	for _, field := range verr.Fields() {
		if field == "Security.AdminJWTKey" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Security.AdminJWTKey in missing fields, got %v", verr.Fields())
	}
}
