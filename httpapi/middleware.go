package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-relay/auth"
)

const userIDKey = "user_id"

// BearerAuth validates the Authorization header and stores the
// authenticated user id in the request context. Query-string tokens are
// accepted too so browser clients can share the websocket credential.
func BearerAuth(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			if after, found := strings.CutPrefix(header, "Bearer "); found {
				token = after
			}
		}
		claims, err := authenticator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func authenticatedUser(c *gin.Context) string {
	value, _ := c.Get(userIDKey)
	userID, _ := value.(string)
	return userID
}
