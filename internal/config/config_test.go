package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080, PublicBaseURL: "https://orchestrator.example.com"},
		ACS:   ACSConfig{Endpoint: "https://contoso.communication.azure.com", AccessKey: "c2VjcmV0"},
		Admin: AdminAuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "APP_PORT", "PUBLIC_BASE_URL", "ACS_ENDPOINT", "ADMIN_JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Store.Backend != StoreMemory {
		t.Fatalf("expected memory store default, got %q", c.Store.Backend)
	}
	if c.ACS.APIVersion != "2023-10-15" || c.ACS.RawIDPrefix != "4" || c.ACS.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected acs defaults %+v", c.ACS)
	}
	if c.Orchestrator.RetryDelay != 500*time.Millisecond || c.Orchestrator.MaxUpdateAttempts != 10 {
		t.Fatalf("unexpected orchestrator defaults %+v", c.Orchestrator)
	}
	if c.Webhook.KeyCacheTTL != time.Hour || c.Webhook.TokenCacheTTL != 5*time.Minute || c.Webhook.TokenCacheSize != 4096 {
		t.Fatalf("unexpected cache ttls %+v", c.Webhook)
	}
	if c.RateLimit.RPS != 50 || c.RateLimit.Burst != 100 {
		t.Fatalf("unexpected rate limit defaults %+v", c.RateLimit)
	}
}

func TestValidate_PostgresLocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	c.Store.Backend = StorePostgres
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "orchestrator"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ProductionIsStrict(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Store.Backend = StorePostgres
	c.DB = DBConfig{Host: "db", Port: 5432, User: "postgres", Name: "orchestrator"}

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected production errors")
	}
	for _, want := range []string{"DB_SSLMODE", "WEBHOOK_AUTH_ENABLED", "ADMIN_JWT_ISSUER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_UnknownStoreBackend(t *testing.T) {
	c := validLocal()
	c.Store.Backend = "sqlite"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "STORE_BACKEND") {
		t.Fatalf("expected STORE_BACKEND error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://orchestrator.example.com/")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ACS_ENDPOINT", "https://contoso.communication.azure.com")
	t.Setenv("ACS_ACCESS_KEY", "c2VjcmV0")
	t.Setenv("PROVIDER_RETRY_DELAY", "250ms")
	t.Setenv("WEBHOOK_AUTH_ENABLED", "true")
	t.Setenv("WEBHOOK_HMAC_SECRET", "hook-secret")
	t.Setenv("ADMIN_JWT_SECRET", "admin-secret")
	t.Setenv("RATE_LIMIT_RPS", "5.5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" || c.RedisAddr() != "cache:6379" || c.Redis.DB != 2 {
		t.Fatalf("unexpected addresses %s %s db=%d", c.HTTPAddr(), c.RedisAddr(), c.Redis.DB)
	}
	if c.Orchestrator.RetryDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms retry delay, got %v", c.Orchestrator.RetryDelay)
	}
	if c.Orchestrator.RetryAttempts != DefaultRetryAttempts {
		t.Fatalf("expected default retry attempts when unset, got %d", c.Orchestrator.RetryAttempts)
	}
	if !c.Webhook.Enabled || c.RateLimit.RPS != 5.5 {
		t.Fatalf("unexpected webhook/rate config %+v %+v", c.Webhook, c.RateLimit)
	}
	if got := c.CallbackURL("rec 1"); got != "https://orchestrator.example.com/api/calls/rec%201/events" {
		t.Fatalf("unexpected callback url %s", got)
	}
}

func TestLoad_ReportsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "not-a-port")
	t.Setenv("PROVIDER_RETRY_DELAY", "soon")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "PROVIDER_RETRY_DELAY") {
		t.Fatalf("expected both parse errors, got %q", err.Error())
	}
}

func TestLoad_ZeroRetryAttemptsDisablesRetry(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("PUBLIC_BASE_URL", "https://orchestrator.example.com")
	t.Setenv("ACS_ENDPOINT", "https://contoso.communication.azure.com")
	t.Setenv("ACS_ACCESS_KEY", "c2VjcmV0")
	t.Setenv("ADMIN_JWT_SECRET", "admin-secret")
	t.Setenv("PROVIDER_RETRY_ATTEMPTS", "0")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Orchestrator.RetryAttempts != 0 {
		t.Fatalf("expected retries disabled, got %d", c.Orchestrator.RetryAttempts)
	}

	t.Setenv("PROVIDER_RETRY_ATTEMPTS", "-1")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PROVIDER_RETRY_ATTEMPTS") {
		t.Fatalf("expected negative retry attempts rejected, got %v", err)
	}
}
