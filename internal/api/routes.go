package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/olymp/arena/internal/api/handlers"
	"github.com/olymp/arena/internal/config"
	"github.com/olymp/arena/internal/game"
	"github.com/olymp/arena/internal/middleware"
	"github.com/olymp/arena/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, engine *game.Engine, hub *ws.Hub, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/config", handlers.GetConfig(engine.Settings()))

		pvp := v1.Group("/pvp")
		{
			// Browsers cannot send headers on upgrade; the token comes in
			// the query and a bad one is answered with a close code.
			pvp.GET("/matches/:id/ws",
				middleware.WebSocketCORSCheck(cfg),
				handlers.OptionalAuth(cfg),
				handlers.HandleMatchWebSocket(hub))

			authed := pvp.Group("", handlers.AuthMiddleware(cfg))
			authed.POST("/queue", handlers.JoinQueue(engine))
			authed.GET("/history", handlers.GetHistory(engine))
			authed.GET("/matches/:id/status", handlers.GetMatchStatus(engine))
			authed.POST("/matches/:id/cancel", handlers.CancelMatch(engine))
		}
	}
}
