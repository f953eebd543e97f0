package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/olymp/arena/internal/config"
)

var errMissingToken = errors.New("missing token")

// IssueToken signs a bearer token for playerID
func IssueToken(secret string, playerID int64, ttl time.Duration) (string, error) {
	exp := time.Now().Add(ttl)
	claims := jwt.MapClaims{"player_id": playerID, "exp": exp.Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parsePlayerToken validates a bearer token and returns its player_id claim
func parsePlayerToken(secret, token string) (int64, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	// JSON numbers decode as float64
	playerIDf, ok := claims["player_id"].(float64)
	if !ok || playerIDf <= 0 {
		return 0, errors.New("missing player_id claim")
	}
	return int64(playerIDf), nil
}

// requestToken reads the bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades where browsers
// cannot set headers.
func requestToken(c *gin.Context) (string, error) {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), nil
	}
	if t := c.Query("token"); t != "" {
		return t, nil
	}
	return "", errMissingToken
}

// AuthMiddleware validates bearer JWT and sets player_id in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := requestToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		playerID, err := parsePlayerToken(cfg.JWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("player_id", playerID)
		c.Next()
	}
}

// OptionalAuth sets player_id when the request carries a valid token and
// lets it through either way. The websocket route uses it so rejection
// happens with a close code after the upgrade.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := requestToken(c); err == nil {
			if playerID, err := parsePlayerToken(cfg.JWTSecret, token); err == nil {
				c.Set("player_id", playerID)
			}
		}
		c.Next()
	}
}

// currentPlayer returns the authenticated player id, or 0
func currentPlayer(c *gin.Context) int64 {
	v, ok := c.Get("player_id")
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
