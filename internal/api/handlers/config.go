package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/olymp/arena/internal/game"
)

// GetConfig returns the match rules the frontend needs to render a round
func GetConfig(settings game.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"match_duration_seconds":          int(settings.RoundDuration.Seconds()),
			"allow_resubmit":                  settings.AllowResubmit,
			"disconnect_grace_period_seconds": int(settings.Grace.Seconds()),
		})
	}
}
