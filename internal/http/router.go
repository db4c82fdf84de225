// Package httpapi wires the gin transport to the back-office services. It
// owns middleware ordering, the health/metrics/docs endpoints and the
// mounting of one generic handler per resource under the versioned API
// base path.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/restaurant-backoffice/docs"
	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/cache"
	"github.com/tbourn/restaurant-backoffice/internal/config"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/http/handlers"
	"github.com/tbourn/restaurant-backoffice/internal/http/middleware"
	"github.com/tbourn/restaurant-backoffice/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// RegisterRoutes installs the middleware stack and every endpoint on r.
// A nil store disables the response cache.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID and Identity: correlation id and caller
//  3. Logger: redacting access log
//  4. Recovery: panics become JSON 500
//  5. ErrorReporter: Honeybadger, inside Recovery so re-panics are caught
//  6. Body size limit
//  7. gzip
//  8. Metrics
//  9. Idempotency validator (before the limiter so replays bypass it)
//  10. Rate limiter
//  11. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store cache.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorReporter(middleware.HoneybadgerOptions{
		APIKey: cfg.HoneybadgerAPIKey,
		Env:    cfg.AppEnv,
	}))
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.Metrics())

	idem := handlers.GormIdempotency{DB: db, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Exists))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, api.CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if store == nil {
		store = cache.Noop{}
	}
	paging := handlers.Paging{Default: cfg.DefaultPageSize, Max: cfg.MaxPageSize}
	v1 := groupWithPrefix(r, cfg.APIBasePath)

	mount[domain.Brand](v1, db, store, domain.Brands, idem, paging)
	mount[domain.Restaurant](v1, db, store, domain.Restaurants, idem, paging)
	mount[domain.Category](v1, db, store, domain.Categories, idem, paging)
	mount[domain.MenuItem](v1, db, store, domain.MenuItems, idem, paging)
	mount[domain.Discount](v1, db, store, domain.Discounts, idem, paging)
	mount[domain.TaxGroup](v1, db, store, domain.TaxGroups, idem, paging)
	mount[domain.DiningTable](v1, db, store, domain.Tables, idem, paging)
	mount[domain.Role](v1, db, store, domain.Roles, idem, paging)
	mount[domain.User](v1, db, store, domain.Users, idem, paging)
}

func mount[T domain.Entity](g *gin.RouterGroup, db *gorm.DB, store cache.Store, desc domain.Descriptor, idem handlers.IdempotencyStore, paging handlers.Paging) {
	svc := services.NewCrudService[T](db, desc, store)
	if paging.Default > 0 {
		svc.DefaultLimit = paging.Default
	}
	handlers.NewResourceHandler[T](svc, idem, paging).Register(g)
}

// health reports 503 when the database does not answer a ping within 2s.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health check failed")
			handlers.Fail(c, http.StatusServiceUnavailable, api.CodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// corsMiddleware allows every origin when none are configured; otherwise it
// echoes allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		api.HeaderUserID, api.HeaderRequestID, api.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{api.HeaderRequestID, "ETag", api.HeaderIdempotentReplay, "Retry-After", "Content-Length"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO on every response, even without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps request bodies at maxBytes; larger bodies fail on read.
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
