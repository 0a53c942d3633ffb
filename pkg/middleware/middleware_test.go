package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newEngine(t *testing.T, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	enforcer, err := authz.New(nil)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Error())
	r.GET("/orders", Authenticate(), Authorize(enforcer, authz.ObjOrders, authz.ActRead), handler)
	return r
}

func TestAuthenticate_MissingIdentity(t *testing.T) {
	r := newEngine(t, func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), `"unauthorized"`)
}

func TestAuthorize(t *testing.T) {
	var seen Principal
	r := newEngine(t, func(c *gin.Context) {
		seen = PrincipalFrom(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderUserID, "user-1")
	req.Header.Set(HeaderOrgID, "org-1")
	req.Header.Set(HeaderPermissions, "orders:read, reps:read")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "org-1", seen.OrgID)
	require.Equal(t, []string{"orders:read", "reps:read"}, seen.Permissions)

	req.Header.Set(HeaderPermissions, "rep")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestError_MapsStatus(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("order already refunded", nil))
	})
	r.GET("/exhausted", func(c *gin.Context) {
		_ = c.Error(errutil.CollisionExhausted("identifier retry budget exhausted", nil))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
	})

	cases := map[string]int{
		"/conflict":  http.StatusConflict,
		"/exhausted": http.StatusInternalServerError,
		"/plain":     http.StatusInternalServerError,
	}
	for path, want := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, w.Code, path)
	}
}
