package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

const testSecret = "test-secret"

func newTestEcho() *echo.Echo {
	e := echo.New()
	echoCaller := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"user_id": c.Get("user_id"),
			"role":    c.Get("role"),
			"email":   c.Get("email"),
		})
	}
	api := e.Group("", JWT(testSecret))
	api.GET("/me", echoCaller)
	api.GET("/admin", echoCaller, AdminGuard)
	api.GET("/customers", echoCaller, RequireRoles(RoleCustomer))
	return e
}

func get(t *testing.T, e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTSetsCaller(t *testing.T) {
	e := newTestEcho()
	tok, err := utils.IssueToken(testSecret, "user-1", RoleCustomer, "ama@example.com", time.Hour)
	require.NoError(t, err)

	rec := get(t, e, "/me", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"user-1","role":"user","email":"ama@example.com"}`, rec.Body.String())
}

func TestJWTRejectsMissingOrForeignToken(t *testing.T) {
	e := newTestEcho()

	assert.Equal(t, http.StatusUnauthorized, get(t, e, "/me", "").Code)

	forged, err := utils.IssueToken("other-secret", "user-1", RoleAdmin, "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, e, "/me", forged).Code)

	expired, err := utils.IssueToken(testSecret, "user-1", RoleCustomer, "", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, e, "/me", expired).Code)
}

func TestRoleChecks(t *testing.T) {
	e := newTestEcho()
	customer, _ := utils.IssueToken(testSecret, "user-1", RoleCustomer, "", time.Hour)
	admin, _ := utils.IssueToken(testSecret, "admin-1", RoleAdmin, "", time.Hour)

	assert.Equal(t, http.StatusForbidden, get(t, e, "/admin", customer).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/admin", admin).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/customers", customer).Code)
	assert.Equal(t, http.StatusForbidden, get(t, e, "/customers", admin).Code)
}
