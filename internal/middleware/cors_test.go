package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/olymp/arena/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	dev := &config.Config{Environment: "development", FrontendURL: "https://arena.example"}
	assert.True(t, OriginAllowed(dev, ""))
	assert.True(t, OriginAllowed(dev, "http://localhost:5173"))
	assert.True(t, OriginAllowed(dev, "http://127.0.0.1:3000"))
	assert.True(t, OriginAllowed(dev, "https://arena.example"))
	assert.False(t, OriginAllowed(dev, "https://evil.example"))

	prod := &config.Config{Environment: "production", FrontendURL: "https://arena.example"}
	assert.True(t, OriginAllowed(prod, "https://arena.example"))
	assert.False(t, OriginAllowed(prod, "http://localhost:5173"))

	bare := &config.Config{Environment: "production"}
	assert.False(t, OriginAllowed(bare, "https://arena.example"))
	assert.True(t, OriginAllowed(bare, ""))
}

func TestWebSocketCORSCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Environment: "production", FrontendURL: "https://arena.example"}

	router := gin.New()
	router.GET("/ws", WebSocketCORSCheck(cfg), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		origin  string
		upgrade bool
		want    int
	}{
		{"https://evil.example", true, http.StatusForbidden},
		{"https://arena.example", true, http.StatusNoContent},
		{"https://evil.example", false, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Origin", tc.origin)
		if tc.upgrade {
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "origin=%s upgrade=%v", tc.origin, tc.upgrade)
	}
}
