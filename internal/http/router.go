// Package httpapi wires the HTTP transport (Gin) to the handlers and the
// shared middleware stack: tracing, correlation ids, identity, redacted
// logging, panic recovery, metrics, idempotency, rate limiting, compression,
// CORS and security headers.
//
// Stream endpoints (SSE and WebSocket) go through the same stack. They are
// excluded from gzip, which would buffer fragments, and from the request
// latency histogram.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/http/docs"
	"github.com/tbourn/go-docchat-backend/internal/http/handlers"
	"github.com/tbourn/go-docchat-backend/internal/http/middleware"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

// maxJSONBody caps request bodies outside of uploads.
const maxJSONBody = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to r and mounts
// the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. Identity (everything below keys on the caller)
//  4. RedactingLogger
//  5. Recovery
//  6. Body size limiter (uploads enforce their own cap)
//  7. Metrics
//  8. Idempotency validator, before the limiter so replays bypass it
//  9. Rate limiter
//  10. Gzip, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, h *handlers.Handlers) {
	r.HandleMethodNotAllowed = true
	api := cfg.APIBasePath
	if api == "/" {
		api = ""
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity(middleware.IdentityOptions{}))
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		SkipPaths:   []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxJSONBody, api+"/uploads"))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, threadID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, threadID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{
		`^` + api + `/streams/`,
		`^/metrics$`,
	})))

	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{api + "/streams", api + "/threads", api + "/uploads"},
		EnablePolicy:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	g := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Uploads and documentations
		g.POST("/uploads", h.Upload)
		g.POST("/documentations/files", h.CreateFilesDocumentation)
		g.POST("/documentations/web", h.CreateWebDocumentation)
		g.GET("/documentations", h.ListDocumentations)
		g.GET("/documentations/options", h.DocumentationOptions)
		g.GET("/documentations/:id", h.GetDocumentation)
		g.PUT("/documentations/:id/name", h.RenameDocumentation)
		g.DELETE("/documentations/:id", h.DeleteDocumentation)
		g.GET("/documentations/:id/web", h.GetWebInfo)

		// Units
		g.GET("/documentations/:id/files", h.ListFiles)
		g.POST("/documentations/:id/files", h.AddFiles)
		g.POST("/documentations/:id/files/:fileId/rescan", h.RescanFile)
		g.DELETE("/documentations/:id/files/:fileId", h.DeleteFile)
		g.GET("/documentations/:id/pages", h.ListPages)
		g.POST("/documentations/:id/pages", h.StartPage)
		g.POST("/documentations/:id/pages/scan-all", h.ScanAllPages)
		g.DELETE("/documentations/:id/pages", h.DeleteLinkPage)

		// Threads and messages
		g.POST("/threads", h.CreateThread)
		g.GET("/threads", h.ListThreads)
		g.GET("/threads/:id", h.GetThread)
		g.PUT("/threads/:id/name", h.RenameThread)
		g.PUT("/threads/:id/selection", h.UpdateThreadSelection)
		g.DELETE("/threads/:id", h.DeleteThread)
		g.POST("/threads/:id/messages", h.PostMessage)
		g.GET("/threads/:id/messages", h.ListMessages)

		// Streams
		g.GET("/streams/:id", h.GetStream)
		g.GET("/streams/:id/events", h.StreamEvents)
		g.GET("/streams/:id/ws", h.StreamSocket)
	}
}

// corsMiddleware returns the CORS posture for cfg. Without an allowlist every
// origin is accepted without credentials; otherwise only listed origins are
// echoed back.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "Last-Event-ID", "If-None-Match"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		AllowWebSockets:  true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header (health checks, curl).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = cfg.AllowedOrigins
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
		cors.New(base),
	}
}

// limitBody caps request bodies to maxBytes with http.MaxBytesReader. Paths
// under one of skipPrefixes are left alone.
func limitBody(maxBytes int64, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}
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
