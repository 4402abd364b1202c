// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/cache"
	"github.com/danovmusic/go-booking-backend/internal/config"
	"github.com/danovmusic/go-booking-backend/internal/http/handlers"
	"github.com/danovmusic/go-booking-backend/internal/http/middleware"
	"github.com/danovmusic/go-booking-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v* with the admin surface nested behind the
// token guard.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logger (PII-redacting outside debug mode)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS, security headers, compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store cache.Cache, notifier services.Notifier, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging. Debug mode logs raw values for local work;
	// anything else scrubs PII (emails, phones, mail-link tokens).
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderAdminToken},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderAdminToken},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Response compression for the JSON payloads (availability grids, lists)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache/mail
	loc := studioLocation(cfg.Timezone)
	gate := &services.AbuseGate{
		DB:              db,
		MaxPerWindow:    cfg.Abuse.MaxPerWindow,
		RateWindow:      cfg.Abuse.RateWindow,
		DuplicateWindow: cfg.Abuse.DuplicateWindow,
		BlockThreshold:  cfg.Abuse.BlockThreshold,
		RejectScore:     cfg.Abuse.RejectScore,
	}
	bookingSvc := &services.BookingService{
		DB:       db,
		Gate:     gate,
		Notifier: notifier,
		Cache:    store,
		Loc:      loc,
	}
	availSvc := &services.AvailabilityService{
		DB:         db,
		Cache:      store,
		CacheTTL:   cfg.CacheTTL,
		WindowDays: cfg.WindowDays,
		Loc:        loc,
	}

	h := handlers.New(bookingSvc, availSvc, gate)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Bookings
		api.POST("/bookings", h.SubmitBooking)
		api.GET("/bookings/confirm/:token", h.ConfirmBookingByToken)
		api.GET("/bookings/reject/:token", h.RejectBookingByToken)

		// Availability
		api.GET("/availability", h.UpcomingDates)
		api.GET("/availability/:date", h.DayAvailability)
	}

	// Admin surface behind the shared-token guard
	admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/bookings/search", h.SearchBookings)
		admin.GET("/bookings/:id", h.GetBooking)
		admin.POST("/bookings/:id/confirm", h.ConfirmBooking)
		admin.POST("/bookings/:id/reject", h.RejectBooking)
		admin.DELETE("/bookings/:id", h.DeleteBooking)

		admin.PUT("/schedule/:date", h.SetDaySchedule)
		admin.POST("/slots/block", h.BlockSlot)
		admin.POST("/slots/unblock", h.UnblockSlot)

		admin.GET("/abuse/records", h.ListAbuseRecords)
		admin.GET("/abuse/attempts", h.ListAttempts)
		admin.POST("/abuse/unblock", h.UnblockIP)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// studioLocation resolves the configured time zone, falling back to the host
// zone when the name does not resolve.
func studioLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Str("timezone", name).Err(err).Msg("unknown time zone, using host local")
		return time.Local
	}
	return loc
}
