package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "test-secret"

func sign(t *testing.T, claims JWTClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()))
	auth := r.Group("/", JWTAuth(secret))
	auth.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(KeyOperatorID))
	})
	auth.GET("/admin", RequireRole("supervisor"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func claimsFor(uid string, roles ...string) JWTClaims {
	return JWTClaims{
		UserID: uid,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTAuth(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer " + sign(t, claimsFor("op-7"), secret), status: http.StatusOK, body: "op-7"},
		{name: "query token", query: "?token=" + sign(t, claimsFor("op-8"), secret), status: http.StatusOK, body: "op-8"},
		{name: "wrong key", header: "Bearer " + sign(t, claimsFor("op-7"), "other"), status: http.StatusUnauthorized},
		{name: "no operator", header: "Bearer " + sign(t, claimsFor(""), secret), status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	for _, tc := range []struct {
		roles  []string
		status int
	}{
		{nil, http.StatusForbidden},
		{[]string{"operator"}, http.StatusForbidden},
		{[]string{"supervisor"}, http.StatusOK},
		{[]string{AdminRole}, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, claimsFor("op-1", tc.roles...), secret))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, "roles=%v", tc.roles)
	}
}
