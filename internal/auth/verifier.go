package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

type VerifierConfig struct {
	Issuer   string
	Audience string

	// Keys verifies RS256 tokens. HMACSecret, when set, additionally accepts HS256.
	Keys       KeySource
	HMACSecret string

	Cache  *TokenCache
	Leeway time.Duration
	Now    func() time.Time
}

// Verifier checks webhook bearer tokens for one issuer/audience pair.
type Verifier struct {
	cfg     VerifierConfig
	methods []string
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	var methods []string
	if cfg.Keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if cfg.HMACSecret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("auth: verifier needs a key source or an hmac secret")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg, methods: methods}, nil
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (WebhookClaims, error) {
	if tokenString == "" {
		return WebhookClaims{}, ErrMissingToken
	}
	if v.cfg.Cache != nil {
		if claims, ok := v.cfg.Cache.Get(tokenString); ok {
			return claims, nil
		}
	}

	var claims WebhookClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.methods),
		jwt.WithoutClaimsValidation(),
	)
	var remote jwt.Keyfunc
	if v.cfg.Keys != nil {
		remote = v.cfg.Keys.KeyfuncCtx(ctx)
	}
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(v.cfg.HMACSecret), nil
		case *jwt.SigningMethodRSA:
			return remote(token)
		default:
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
	})
	if err != nil {
		return WebhookClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.cfg.Now),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if err := jwt.NewValidator(opts...).Validate(claims.RegisteredClaims); err != nil {
		return WebhookClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v.cfg.Cache != nil {
		v.cfg.Cache.Put(tokenString, claims)
	}
	return claims, nil
}
