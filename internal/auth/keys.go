package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"conference-orchestrator/pkg/logger"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// KeySource hands the parser a key lookup bound to the request context.
// keyfunc.Keyfunc satisfies it.
type KeySource interface {
	KeyfuncCtx(ctx context.Context) jwt.Keyfunc
}

type KeySetConfig struct {
	URL string
	// RefreshInterval is how often the set is refetched in the background.
	RefreshInterval time.Duration
	// UnknownKIDInterval spaces out refetches triggered by a kid not in the set.
	UnknownKIDInterval time.Duration
	HTTPClient         *http.Client
}

// NewKeySet loads the remote JWK set and keeps it fresh until ctx is done.
// A failed refresh keeps serving the last good keys. An unknown kid triggers
// at most one refetch per UnknownKIDInterval and never queues a request
// behind the limiter.
func NewKeySet(ctx context.Context, cfg KeySetConfig) (keyfunc.Keyfunc, error) {
	if cfg.URL == "" {
		return nil, errors.New("auth: jwks url is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.UnknownKIDInterval <= 0 {
		cfg.UnknownKIDInterval = 5 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	timeout := cfg.HTTPClient.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	remote, err := jwkset.NewStorageFromHTTP(u, jwkset.HTTPClientStorageOptions{
		Client:                    cfg.HTTPClient,
		Ctx:                       ctx,
		HTTPTimeout:               timeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			logger.From(ctx).Warn("jwks refresh failed", "url", cfg.URL, "err", err)
		},
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, err
	}
	set, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.URL: remote},
		RateLimitWaitMax:  time.Second,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(cfg.UnknownKIDInterval), 1),
	})
	if err != nil {
		return nil, err
	}
	return keyfunc.New(keyfunc.Options{
		Ctx:          ctx,
		Storage:      set,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
}
