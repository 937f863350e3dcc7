package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated subject.
const UserIDKey = "userId"

// Validator is the minimal interface the middleware depends on
type Validator interface {
	Validate(token string) (string, bool)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	for _, v := range c.Request.Header.Values("Authorization") {
		if strings.HasPrefix(v, "Bearer ") {
			tok := v[len("Bearer "):]
			return tok, tok != ""
		}
	}
	return "", false
}

// AuthMiddleware verifies the bearer token and stores its subject under
// UserIDKey. Every failure is answered with the same 401.
func AuthMiddleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := BearerToken(c)
		if !ok || v == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		userID, ok := v.Validate(tok)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the subject set by AuthMiddleware.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
