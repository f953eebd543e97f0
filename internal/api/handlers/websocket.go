package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/olymp/arena/internal/ws"
)

// HandleMatchWebSocket opens a live session on a match. Unknown matches and
// non-participants are rejected with a close code after the upgrade.
func HandleMatchWebSocket(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		hub.ServeWS(c.Writer, c.Request, id, currentPlayer(c))
	}
}
