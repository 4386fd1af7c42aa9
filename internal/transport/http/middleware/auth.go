package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"crawlmind/internal/identity"
	"crawlmind/internal/transport/http/response"
)

const ContextProfileKey = "profile"

var anonymous = identity.UserProfile{Provider: "none"}

// Authenticate resolves the caller's profile. A nil verifier means a
// single-tenant deployment: every request runs as the empty identity.
func Authenticate(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			profile := anonymous
			c.Set(ContextProfileKey, &profile)
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		profile, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextProfileKey, profile)
		c.Next()
	}
}

func ProfileFrom(c *gin.Context) (*identity.UserProfile, bool) {
	v, ok := c.Get(ContextProfileKey)
	if !ok {
		return nil, false
	}
	profile, ok := v.(*identity.UserProfile)
	return profile, ok && profile != nil
}
