package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(token string) *gin.Engine {
		r := gin.New()
		r.Use(RequestID())
		grp := r.Group("/admin", AdminAuth(token))
		grp.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		return r
	}

	do := func(r *gin.Engine, header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		if header != "" {
			req.Header.Set(HeaderAdminToken, header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("valid token passes", func(t *testing.T) {
		r := newRouter("hunter2")
		if w := do(r, "hunter2"); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("token is trimmed before compare", func(t *testing.T) {
		r := newRouter("hunter2")
		if w := do(r, "  hunter2  "); w.Code != http.StatusOK {
			t.Fatalf("expected 200 for padded token, got %d", w.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		r := newRouter("hunter2")
		w := do(r, "hunter3")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"unauthorized"`) {
			t.Fatalf("expected unauthorized code in body, got %s", w.Body.String())
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		r := newRouter("hunter2")
		if w := do(r, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for missing header, got %d", w.Code)
		}
	})

	t.Run("unconfigured token denies everything", func(t *testing.T) {
		r := newRouter("")
		if w := do(r, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 with no configured token, got %d", w.Code)
		}
		// Even an empty presented header must not match an empty secret.
		if w := do(r, "   "); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for blank header, got %d", w.Code)
		}
	})
}
