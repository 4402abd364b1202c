package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken carries the shared secret for the admin surface.
const HeaderAdminToken = "X-Admin-Token"

// AdminAuth returns a guard for the admin route group. Requests must present
// the configured token in the X-Admin-Token header; everything else is
// rejected with 401 before reaching a handler.
//
// When no token is configured the guard denies every request, so an
// unconfigured deployment cannot expose the admin surface by accident.
// Comparison is constant time.
func AdminAuth(token string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader(HeaderAdminToken)))
		if len(want) == 0 || len(got) != len(want) || subtle.ConstantTimeCompare(got, want) != 1 {
			rid, _ := c.Get("requestID")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": rid,
				"code":       "unauthorized",
				"message":    "admin token missing or invalid",
			})
			return
		}
		c.Next()
	}
}
