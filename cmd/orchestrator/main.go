package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conference-orchestrator/internal/audit"
	"conference-orchestrator/internal/auth"
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/config"
	"conference-orchestrator/internal/httpapi"
	"conference-orchestrator/internal/metrics"
	"conference-orchestrator/internal/orchestrator"
	"conference-orchestrator/internal/rbac"
	"conference-orchestrator/internal/telephony"
	"conference-orchestrator/pkg/logger"
	"conference-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	adminAuth, err := auth.NewManager(cfg.Admin)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// orchestrator issue-token <subject> <role> prints an admin token and exits.
	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if len(os.Args) != 4 {
			fmt.Fprintln(os.Stderr, "usage: orchestrator issue-token <subject> <role>")
			os.Exit(2)
		}
		if !rbac.IsKnownRole(os.Args[3]) {
			fmt.Fprintf(os.Stderr, "unknown role %q (want admin, operator or viewer)\n", os.Args[3])
			os.Exit(2)
		}
		tok, err := adminAuth.Issue(time.Now(), os.Args[2], os.Args[3])
		if err != nil {
			log.Error("issue token failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	be, err := openBackend(rootCtx, cfg)
	if err != nil {
		log.Error("store init failed", "backend", cfg.Store.Backend, "err", err)
		os.Exit(1)
	}
	defer be.close()
	journal := audit.NewService(be.journal)

	acs, err := telephony.NewACSClient(telephony.ACSConfig{
		Endpoint:    cfg.ACS.Endpoint,
		AccessKey:   cfg.ACS.AccessKey,
		APIVersion:  cfg.ACS.APIVersion,
		RawIDPrefix: cfg.ACS.RawIDPrefix,
		Timeout:     cfg.ACS.RequestTimeout,
	})
	if err != nil {
		log.Error("provider client init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Error("metrics init failed", "err", err)
		os.Exit(1)
	}

	orch, err := orchestrator.New(be.store, acs, orchestrator.Options{
		CallbackURL:       cfg.CallbackURL,
		RawIDPrefix:       cfg.ACS.RawIDPrefix,
		MaxUpdateAttempts: cfg.Orchestrator.MaxUpdateAttempts,
		RetryAttempts:     cfg.Orchestrator.RetryAttempts,
		RetryDelay:        cfg.Orchestrator.RetryDelay,
		Journal:           journal,
		Metrics:           m,
		Logger:            log,
	})
	if err != nil {
		log.Error("orchestrator init failed", "err", err)
		os.Exit(1)
	}

	callbackAuth, incomingAuth, err := webhookAuth(rootCtx, cfg)
	if err != nil {
		log.Error("webhook auth init failed", "err", err)
		os.Exit(1)
	}

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		Rate:  rateLimit(cfg.RateLimit.RPS),
		Burst: cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers:     httpapi.Handlers{Orchestrator: orch, Audit: journal},
		health:       httpapi.Health{Checks: map[string]httpapi.Check{"store": be.ready}},
		callbackAuth: callbackAuth,
		incomingAuth: incomingAuth,
		adminAuth:    auth.RequireAdminToken(adminAuth),
		rateLimit:    limiter.Middleware(),
		metrics:      reg,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second, // provider retries run inside the webhook request
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("orchestrator listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// backend is the record store, the journal repository next to it, and the
// readiness check for whatever they run on.
type backend struct {
	store   calls.Store
	journal audit.Repository
	ready   httpapi.Check
	close   func()
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return backend{}, err
		}
		store := calls.NewPostgresStore(db)
		repo := audit.NewPostgresRepo(db)
		if err := errors.Join(store.Migrate(ctx), repo.Migrate(ctx)); err != nil {
			_ = db.Close()
			return backend{}, fmt.Errorf("migrate: %w", err)
		}
		return backend{
			store:   store,
			journal: repo,
			ready:   func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) },
			close:   func() { _ = db.Close() },
		}, nil

	case config.StoreRedis:
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{
			store: calls.NewRedisStore(rdb, "orchestrator"),
			// TODO: persist the journal next to records once a redis stream repo exists.
			journal: audit.NewMemoryRepo(),
			ready:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			close:   func() { _ = rdb.Close() },
		}, nil

	default:
		return backend{
			store:   calls.NewMemoryStore(),
			journal: audit.NewMemoryRepo(),
			ready:   func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}
}

// webhookAuth returns the bearer middleware for provider callbacks and for
// Event Grid deliveries. Both are pass-through when verification is disabled.
func webhookAuth(ctx context.Context, cfg config.Config) (gin.HandlerFunc, gin.HandlerFunc, error) {
	if !cfg.Webhook.Enabled {
		pass := func(c *gin.Context) { c.Next() }
		return pass, pass, nil
	}

	var keys auth.KeySource
	if cfg.Webhook.JWKSURL != "" {
		set, err := auth.NewKeySet(ctx, auth.KeySetConfig{
			URL:             cfg.Webhook.JWKSURL,
			RefreshInterval: cfg.Webhook.KeyCacheTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("jwks: %w", err)
		}
		keys = set
	}

	callback, err := auth.NewVerifier(auth.VerifierConfig{
		Issuer:     cfg.Webhook.Issuer,
		Audience:   cfg.Webhook.Audience,
		Keys:       keys,
		HMACSecret: cfg.Webhook.HMACSecret,
		Cache:      auth.NewTokenCache(cfg.Webhook.TokenCacheSize, cfg.Webhook.TokenCacheTTL),
	})
	if err != nil {
		return nil, nil, err
	}
	incoming, err := auth.NewVerifier(auth.VerifierConfig{
		Issuer:     cfg.Webhook.EventGridIssuer,
		Audience:   cfg.Webhook.EventGridAudience,
		Keys:       keys,
		HMACSecret: cfg.Webhook.HMACSecret,
		Cache:      auth.NewTokenCache(cfg.Webhook.TokenCacheSize, cfg.Webhook.TokenCacheTTL),
	})
	if err != nil {
		return nil, nil, err
	}
	return auth.RequireBearer(callback), auth.RequireBearer(incoming), nil
}
