package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/auth"
	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/health"
	"github.com/noah-isme/storefront-api/internal/lock"
	"github.com/noah-isme/storefront-api/internal/notify"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/order"
	"github.com/noah-isme/storefront-api/internal/ratelimit"
	"github.com/noah-isme/storefront-api/internal/security"
	"github.com/noah-isme/storefront-api/internal/shipping"
	"github.com/noah-isme/storefront-api/internal/user"
	"github.com/noah-isme/storefront-api/internal/voucher"
	"github.com/noah-isme/storefront-api/internal/wishlist"
)

// Deps are the process-wide clients the API router is built from.
type Deps struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Events  events.Emitter
	Metrics *obs.HTTPMetrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds every service and mounts the REST surface.
func NewRouter(d Deps) (http.Handler, error) {
	cfg := d.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	queries := db.New(d.Pool)

	auditSvc := &audit.Service{Store: queries, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate}
	quoter, err := shipping.NewFlatRate(cfg.ShippingFlatFee, cfg.ShippingFreeThreshold)
	if err != nil {
		return nil, fmt.Errorf("shipping: %w", err)
	}

	authSvc, err := auth.NewService(auth.Config{
		Store:           auth.NewPGStore(d.Pool),
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
	})
	if err != nil {
		return nil, err
	}
	authHandler := &auth.Handler{
		Service:           authSvc,
		RefreshCookieName: cfg.RefreshCookieName,
		CookieDomain:      cfg.CookieDomain,
		CookieSecure:      cfg.CookieSecure,
		CookieSameSite:    http.SameSiteStrictMode,
	}
	authMW := auth.Middleware{Service: authSvc}
	adminOnly := auth.RequireRole(common.RoleAdmin)

	voucherSvc := &voucher.Service{
		Store:    voucher.NewPGStore(d.Pool),
		Shipping: quoter,
		TaxBPS:   cfg.TaxRateBPS,
		Events:   d.Events,
		Audit:    auditSvc,
	}
	catalogSvc := &catalog.Service{
		Store:        catalog.NewPGStore(d.Pool),
		Cache:        catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		Audit:        auditSvc,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	}
	orderSvc := &order.Service{
		Store:    order.NewPGStore(d.Pool),
		Locker:   lock.Locker{R: d.Redis, RetryBackoff: 50 * time.Millisecond, MaxWait: 2 * time.Second},
		LockTTL:  cfg.CheckoutLockTTL,
		Shipping: quoter,
		TaxBPS:   cfg.TaxRateBPS,
		Vouchers: voucherSvc,
		Events:   d.Events,
		Audit:    auditSvc,
	}

	catalogHandler := &catalog.Handler{Svc: catalogSvc}
	cartHandler := &cart.Handler{Svc: &cart.Service{Store: cart.NewPGStore(d.Pool), Shipping: quoter, TaxBPS: cfg.TaxRateBPS}}
	orderHandler := &order.Handler{Svc: orderSvc}
	voucherHandler := &voucher.Handler{Svc: voucherSvc}
	userHandler := &user.Handler{Svc: &user.Service{Store: user.NewPGStore(d.Pool), Audit: auditSvc}}
	notifyHandler := &notify.Handler{Svc: &notify.Service{Store: notify.NewStore(queries)}}
	wishlistHandler := &wishlist.Handler{Svc: &wishlist.Service{Store: wishlist.NewStore(queries), Audit: auditSvc, Events: d.Events}}
	auditHandler := audit.Handler{Store: queries}
	auditHTTP := audit.HTTPRecorder{Service: auditSvc, OnError: func(err error) {
		d.Logger.Warn().Err(err).Msg("audit_record_failed")
	}}

	authLimit, err := newAuthLimiter(d, cfg.AuthRateLimit)
	if err != nil {
		return nil, err
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}
	csrf := security.CSRF{SessionCookie: cfg.RefreshCookieName}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(d.Metrics.Middleware)
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, HSTSMaxAge: cfg.HSTSMaxAge}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	healthHandler := health.Handler{
		Checker:      health.Deps{DB: d.Pool, Redis: d.Redis},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(audit.CaptureRequest)

		v.Route("/auth", func(a chi.Router) {
			a.With(authLimit.Middleware).Post("/register", authHandler.Register)
			a.With(authLimit.Middleware).Post("/login", authHandler.Login)
			a.With(csrf.Middleware).Post("/refresh", authHandler.Refresh)
			a.With(csrf.Middleware).Post("/logout", authHandler.Logout)
			a.With(authMW.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/vouchers", voucherHandler.List)
		v.Get("/vouchers/{id}", voucherHandler.Get)

		v.Group(func(u chi.Router) {
			u.Use(authMW.RequireAuth)

			u.Route("/users", func(us chi.Router) {
				us.Get("/profile", userHandler.Profile)
				us.Put("/profile", userHandler.UpdateProfile)
				us.Get("/rank", userHandler.Rank)
				us.Get("/addresses", userHandler.Addresses)
				us.Post("/addresses", userHandler.AddAddress)
				us.Put("/addresses/{id}", userHandler.UpdateAddress)
				us.Delete("/addresses/{id}", userHandler.DeleteAddress)
				us.Get("/vouchers", voucherHandler.Mine)
				us.Get("/notifications", notifyHandler.List)
				us.Put("/notifications/{id}/read", notifyHandler.MarkRead)

				us.With(adminOnly).Get("/", userHandler.List)
				us.With(adminOnly).Put("/{id}/role", userHandler.UpdateRole)
			})

			u.Route("/carts", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Group(func(w chi.Router) {
					w.Use(idem.Middleware)
					w.Post("/items", cartHandler.AddItem)
					w.Put("/items/{id}", cartHandler.UpdateItem)
					w.Delete("/items/{id}", cartHandler.RemoveItem)
				})
			})

			u.Get("/orders", orderHandler.List)
			u.With(idem.Middleware).Post("/orders", orderHandler.Create)
			u.Get("/orders/{id}", orderHandler.Get)
			u.With(adminOnly).Patch("/orders/{id}/status", orderHandler.UpdateStatus)

			u.With(idem.Middleware).Post("/vouchers/apply", voucherHandler.Apply)
			u.Post("/vouchers/preview", voucherHandler.Preview)
			u.With(adminOnly).Post("/vouchers", voucherHandler.Create)
			u.With(adminOnly).Post("/vouchers/{id}/assign", voucherHandler.Assign)

			u.Get("/wishlists", wishlistHandler.List)
			u.Post("/wishlists", wishlistHandler.Add)
			u.Delete("/wishlists/{id}", wishlistHandler.Remove)
			u.With(adminOnly).Get("/wishlists/all", wishlistHandler.All)

			u.Group(func(admin chi.Router) {
				admin.Use(adminOnly)
				admin.Post("/products", catalogHandler.Create)
				admin.Put("/products/{id}", catalogHandler.Update)
				admin.Delete("/products/{id}", catalogHandler.Delete)
				admin.With(auditHTTP.Middleware(audit.HTTPConfig{
					Action:       "LIST_AUDIT_LOGS",
					ResourceType: "audit_logs",
				})).Get("/admin/audit-logs", auditHandler.List)
			})
		})
	})

	return r, nil
}

func newAuthLimiter(d Deps, rate string) (ratelimit.Handler, error) {
	h := ratelimit.Handler{Scope: "auth", Key: ratelimit.ByIP, OnError: func(err error) {
		d.Logger.Warn().Err(err).Msg("rate_limit_store_failed")
	}}
	if d.Redis == nil || rate == "" {
		return h, nil
	}
	store, err := ratelimit.NewRedisStore(d.Redis, "ratelimit")
	if err != nil {
		return h, fmt.Errorf("rate limit store: %w", err)
	}
	lim, err := ratelimit.New(store, rate)
	if err != nil {
		return h, fmt.Errorf("rate limit %q: %w", rate, err)
	}
	h.Limiter = lim
	return h, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
