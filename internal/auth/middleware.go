package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"presence/internal/apperror"
)

// CookieName holds the admin session token for browser requests.
const CookieName = "presence_admin"

// AdminAuth accepts a bearer token or the session cookie. API requests
// without a valid token get 401; browser page requests are redirected to
// loginPath. When a is disabled every request passes.
func AdminAuth(a Authenticator, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(CookieName)
		}
		if token != "" {
			if claims, err := a.Verify(token); err == nil {
				c.Set("claims", claims)
				c.Next()
				return
			}
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			httpErr := apperror.ToHTTP(apperror.New(apperror.CodeUnauthorized, "admin session required", http.StatusUnauthorized))
			c.AbortWithStatusJSON(httpErr.Status, gin.H{"code": httpErr.Code, "message": httpErr.Message})
			return
		}
		c.Redirect(http.StatusSeeOther, loginPath)
		c.Abort()
	}
}

func bearerToken(authz string) string {
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
