package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

const headerAdminToken = "X-Admin-Token"

type AdminMiddleware struct {
	log   *logger.Logger
	token []byte
}

// NewAdminMiddleware guards admin routes with a static shared token. An empty
// token disables the routes entirely.
func NewAdminMiddleware(log *logger.Logger, token string) *AdminMiddleware {
	return &AdminMiddleware{
		log:   log.With("Middleware", "AdminMiddleware"),
		token: []byte(strings.TrimSpace(token)),
	}
}

func (am *AdminMiddleware) Enabled() bool { return am != nil && len(am.token) > 0 }

func (am *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": gin.H{"message": "admin routes disabled", "code": "not_found"},
			})
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader(headerAdminToken)))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, am.token) != 1 {
			am.log.Warn("admin token rejected", "path", c.FullPath(), "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid admin token", "code": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}
