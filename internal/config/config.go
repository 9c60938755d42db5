package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the orchestrator process.
// All values come from env, optionally seeded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	DB           DBConfig
	Redis        RedisConfig
	ACS          ACSConfig
	Orchestrator OrchestratorConfig
	Webhook      WebhookAuthConfig
	Admin        AdminAuthConfig
	RateLimit    RateLimitConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is where the provider reaches our callback endpoints.
	PublicBaseURL string
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// DefaultRetryAttempts applies when PROVIDER_RETRY_ATTEMPTS is unset.
const DefaultRetryAttempts = 10

type StoreConfig struct {
	Backend string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type ACSConfig struct {
	Endpoint       string
	AccessKey      string
	APIVersion     string
	RawIDPrefix    string
	RequestTimeout time.Duration
}

type OrchestratorConfig struct {
	RetryAttempts     int
	RetryDelay        time.Duration
	MaxUpdateAttempts int
}

// WebhookAuthConfig covers bearer tokens on provider callbacks and Event Grid deliveries.
type WebhookAuthConfig struct {
	Enabled bool

	JWKSURL  string
	Issuer   string
	Audience string

	EventGridIssuer   string
	EventGridAudience string

	// HMACSecret enables HS256 tokens for local testing instead of JWKS.
	HMACSecret string

	KeyCacheTTL    time.Duration
	TokenCacheTTL  time.Duration
	TokenCacheSize int
}

type AdminAuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads .env (when present) and then the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.Store.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optInt("DB_PORT", 5432)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optInt("REDIS_DB", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.ACS.Endpoint = strings.TrimSpace(os.Getenv("ACS_ENDPOINT"))
	c.ACS.AccessKey = strings.TrimSpace(os.Getenv("ACS_ACCESS_KEY"))
	c.ACS.APIVersion = strings.TrimSpace(os.Getenv("ACS_API_VERSION"))
	c.ACS.RawIDPrefix = strings.TrimSpace(os.Getenv("ACS_RAW_ID_PREFIX"))
	// Duration env vars are optional; defaults applied in Validate().
	c.ACS.RequestTimeout, parseErrs = optDuration(parseErrs, "ACS_REQUEST_TIMEOUT")

	{
		// Unset means the default; an explicit 0 turns retries off.
		n, err := optInt("PROVIDER_RETRY_ATTEMPTS", DefaultRetryAttempts)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Orchestrator.RetryAttempts = n
	}
	c.Orchestrator.RetryDelay, parseErrs = optDuration(parseErrs, "PROVIDER_RETRY_DELAY")
	{
		n, err := optInt("STORE_MAX_UPDATE_ATTEMPTS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Orchestrator.MaxUpdateAttempts = n
	}

	{
		b, err := optBool("WEBHOOK_AUTH_ENABLED", strings.TrimSpace(os.Getenv("APP_ENV")) == "production")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Webhook.Enabled = b
	}
	c.Webhook.JWKSURL = strings.TrimSpace(os.Getenv("WEBHOOK_JWKS_URL"))
	c.Webhook.Issuer = strings.TrimSpace(os.Getenv("WEBHOOK_ISSUER"))
	c.Webhook.Audience = strings.TrimSpace(os.Getenv("WEBHOOK_AUDIENCE"))
	c.Webhook.EventGridIssuer = strings.TrimSpace(os.Getenv("EVENTGRID_ISSUER"))
	c.Webhook.EventGridAudience = strings.TrimSpace(os.Getenv("EVENTGRID_AUDIENCE"))
	c.Webhook.HMACSecret = os.Getenv("WEBHOOK_HMAC_SECRET")
	c.Webhook.KeyCacheTTL, parseErrs = optDuration(parseErrs, "AUTH_KEY_CACHE_TTL")
	c.Webhook.TokenCacheTTL, parseErrs = optDuration(parseErrs, "AUTH_TOKEN_CACHE_TTL")
	{
		n, err := optInt("AUTH_TOKEN_CACHE_SIZE", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Webhook.TokenCacheSize = n
	}

	c.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	c.Admin.JWTIssuer = strings.TrimSpace(os.Getenv("ADMIN_JWT_ISSUER"))
	c.Admin.TokenTTL, parseErrs = optDuration(parseErrs, "ADMIN_TOKEN_TTL")

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("RATE_LIMIT_RPS must be a number, got %q", v))
		}
		c.RateLimit.RPS = f
	}
	{
		n, err := optInt("RATE_LIMIT_BURST", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.RateLimit.Burst = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute url, got %q", c.App.PublicBaseURL))
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	switch c.Store.Backend {
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND must not be memory in production"))
		}
	case StorePostgres:
		errs = append(errs, c.validateDB()...)
	case StoreRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis store"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of memory, postgres, redis, got %q", c.Store.Backend))
	}

	if c.ACS.Endpoint == "" {
		errs = append(errs, errors.New("ACS_ENDPOINT is required"))
	}
	if c.ACS.AccessKey == "" {
		errs = append(errs, errors.New("ACS_ACCESS_KEY is required"))
	}
	if c.ACS.APIVersion == "" {
		c.ACS.APIVersion = "2023-10-15"
	}
	if c.ACS.RawIDPrefix == "" {
		c.ACS.RawIDPrefix = "4"
	}
	if c.ACS.RequestTimeout <= 0 {
		c.ACS.RequestTimeout = 10 * time.Second
	}

	if c.Orchestrator.RetryAttempts < 0 {
		errs = append(errs, errors.New("PROVIDER_RETRY_ATTEMPTS must not be negative"))
	}
	if c.Orchestrator.RetryDelay <= 0 {
		c.Orchestrator.RetryDelay = 500 * time.Millisecond
	}
	if c.Orchestrator.MaxUpdateAttempts <= 0 {
		c.Orchestrator.MaxUpdateAttempts = 10
	}

	if c.Webhook.Enabled {
		if c.Webhook.JWKSURL == "" && c.Webhook.HMACSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_JWKS_URL or WEBHOOK_HMAC_SECRET is required when WEBHOOK_AUTH_ENABLED"))
		}
		if c.IsProduction() && c.Webhook.JWKSURL == "" {
			errs = append(errs, errors.New("WEBHOOK_JWKS_URL is required in production"))
		}
		if c.IsProduction() && c.Webhook.Audience == "" {
			errs = append(errs, errors.New("WEBHOOK_AUDIENCE is required in production"))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("WEBHOOK_AUTH_ENABLED must be true in production"))
	}
	if c.Webhook.KeyCacheTTL <= 0 {
		c.Webhook.KeyCacheTTL = time.Hour
	}
	if c.Webhook.TokenCacheTTL <= 0 {
		c.Webhook.TokenCacheTTL = 5 * time.Minute
	}
	if c.Webhook.TokenCacheSize <= 0 {
		c.Webhook.TokenCacheSize = 4096
	}

	if c.Admin.JWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Admin.JWTIssuer == "" {
		errs = append(errs, errors.New("ADMIN_JWT_ISSUER is required in production"))
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = time.Hour
	}

	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required for the postgres store"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required for the postgres store"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// CallbackURL is the per-record webhook handed to the provider.
func (c Config) CallbackURL(recordID string) string {
	return c.App.PublicBaseURL + "/api/calls/" + url.PathEscape(recordID) + "/events"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// optDuration returns 0 when key is unset so Validate can apply the default.
func optDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
