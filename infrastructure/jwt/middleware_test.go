package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/jwt"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw gin.HandlerFunc, got *jwt.Identity, found *bool) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/whoami", func(c *gin.Context) {
		*got, *found = jwt.GetIdentity(c)
		c.Status(http.StatusOK)
	})
	return r
}

func signed(t *testing.T, claims *jwt.Claims) string {
	t.Helper()

	tok, err := jwt.Sign(testSecret, claims)
	require.NoError(t, err)
	return tok
}

func TestMiddleware_Identity(t *testing.T) {
	t.Parallel()

	future := gojwt.NewNumericDate(time.Now().Add(time.Hour))
	past := gojwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name       string
		header     string
		wantCode   int
		wantID     string
		privileged bool
	}{
		{
			name:     "missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "malformed header",
			header:   "Token abc",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "reviewer",
			header:   "Bearer " + signed(t, &jwt.Claims{Sub: "mod-1", RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: future}}),
			wantCode: http.StatusOK,
			wantID:   "mod-1",
		},
		{
			name:       "privileged claim",
			header:     "Bearer " + signed(t, &jwt.Claims{Sub: "lead", PrivilegedReviewer: true}),
			wantCode:   http.StatusOK,
			wantID:     "lead",
			privileged: true,
		},
		{
			name:       "privileged role",
			header:     "Bearer " + signed(t, &jwt.Claims{Sub: "lead", Roles: []string{"reviewer", jwt.PrivilegedRole}}),
			wantCode:   http.StatusOK,
			wantID:     "lead",
			privileged: true,
		},
		{
			name:     "expired",
			header:   "Bearer " + signed(t, &jwt.Claims{Sub: "mod-1", RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: past}}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing subject",
			header:   "Bearer " + signed(t, &jwt.Claims{}),
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got jwt.Identity
			var found bool
			r := newRouter(jwt.Middleware(testSecret), &got, &found)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				require.True(t, found)
				assert.Equal(t, tt.wantID, got.ModeratorID)
				assert.Equal(t, tt.privileged, got.Privileged)
			}
		})
	}
}

func TestMiddleware_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := jwt.Sign("other-secret", &jwt.Claims{Sub: "mod-1"})
	require.NoError(t, err)

	_, err = jwt.Parse(testSecret, tok)
	assert.Error(t, err)
}

func TestHeaderMiddleware(t *testing.T) {
	t.Parallel()

	var got jwt.Identity
	var found bool
	r := newRouter(jwt.HeaderMiddleware(), &got, &found)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.Header.Set(jwt.ModeratorHeader, "mod-7")
	req.Header.Set(jwt.PrivilegedHeader, "true")
	r.ServeHTTP(w, req)

	require.True(t, found)
	assert.Equal(t, jwt.Identity{ModeratorID: "mod-7", Privileged: true}, got)

	found = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, found)
}
