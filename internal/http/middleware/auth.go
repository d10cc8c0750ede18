package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sos_unifio/backend/internal/auth"
)

// IdentityKey holds the verified auth.Identity in the gin context.
const IdentityKey = "identity"

// ResponderAuth requires a valid responder token. A nil tokens disables the
// check and leaves the request anonymous.
func ResponderAuth(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		id, err := tokens.Verify(auth.FromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Valid responder token required",
				},
			})
			return
		}
		c.Set(IdentityKey, id)
		c.Next()
	}
}
