package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/handler"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// joinLimiter guards session creation; the caller owns its lifetime.
// Request logging goes through log rather than gin's own logger.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	joinLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestContext(log.With().Str("component", "http").Logger()))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Join (Public, Rate Limited) ────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", joinLimiter.Middleware(), middleware.Compress(middleware.DefaultCompressMin), handlers.Session.CreateSession)
		api.GET("/system/status", handlers.System.Status)
	}

	// ─── 2. Session Group (Stream Token) ───────────────────────────────
	sessions := router.Group("/api/v1/sessions/:session_id")
	sessions.Use(middleware.RequireSessionToken(tokens), middleware.Compress(middleware.DefaultCompressMin))
	{
		sessions.GET("", handlers.Session.GetSession)
		sessions.DELETE("", handlers.Session.DeleteSession)
	}

	// ─── 3. WebSocket Group (Token in Query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionToken(tokens))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
