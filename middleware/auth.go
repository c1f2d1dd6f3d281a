package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"pingme/pkg/config"
	tokenstore "pingme/pkg/token"
)

const (
	ContextUserIDKey = "current_user_id"
	ContextJTIKey    = "current_jti"
)

// ParseUserID validates a bearer token string and returns the user id it
// carries. Shared between the HTTP middleware and the websocket handlers,
// which authenticate via a ?token= query parameter instead of a header.
func ParseUserID(tokenStr string) (userID string, jti string, ok bool) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", false
	}
	claims, okClaims := token.Claims.(jwt.MapClaims)
	if !okClaims {
		return "", "", false
	}
	jti, _ = claims["jti"].(string)
	if tokenstore.IsRevoked(jti) {
		return "", "", false
	}
	if sub, ok := claims["sub"].(string); ok {
		userID = sub
	} else if subf, ok := claims["sub"].(float64); ok {
		// jwt lib may parse numeric as float64
		userID = strconv.Itoa(int(subf))
	}
	if userID == "" {
		return "", "", false
	}
	return userID, jti, true
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}

		userID, jti, ok := ParseUserID(parts[1])
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextJTIKey, jti)
		c.Next()
	}
}
