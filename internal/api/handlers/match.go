package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/olymp/arena/internal/game"
)

// matchID parses the :id path parameter, writing 400 on failure
func matchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return 0, false
	}
	return id, true
}

// writeGameError maps engine errors to HTTP responses
func writeGameError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
	case errors.Is(err, game.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "no access"})
	default:
		log.Printf("[API] %s failed: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// JoinQueue puts the caller in the PvP queue, pairing them if an
// opponent is waiting.
func JoinQueue(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := engine.JoinQueue(c.Request.Context(), currentPlayer(c))
		if err != nil {
			writeGameError(c, "join queue", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"match_id": m.ID,
			"status":   m.Status,
		})
	}
}

// GetMatchStatus returns the state snapshot for polling clients
func GetMatchStatus(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := matchID(c)
		if !ok {
			return
		}
		st, err := engine.Status(c.Request.Context(), id, currentPlayer(c))
		if err != nil {
			writeGameError(c, "match status", err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// CancelMatch cancels a match that has not started or surrenders a
// running one.
func CancelMatch(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := matchID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		action, err := engine.CancelOrSurrender(ctx, id, currentPlayer(c))
		if err != nil {
			writeGameError(c, "cancel match", err)
			return
		}
		m, err := engine.Match(ctx, id)
		if err != nil {
			writeGameError(c, "cancel match", err)
			return
		}

		var result *string
		if m.Result.Valid {
			result = &m.Result.String
		}
		c.JSON(http.StatusOK, gin.H{
			"match_id": m.ID,
			"status":   m.Status,
			"result":   result,
			"action":   action,
		})
	}
}

// GetHistory returns the caller's recent matches and rating trend
func GetHistory(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := engine.History(c.Request.Context(), currentPlayer(c))
		if err != nil {
			writeGameError(c, "history", err)
			return
		}
		c.JSON(http.StatusOK, h)
	}
}
