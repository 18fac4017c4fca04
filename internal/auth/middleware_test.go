package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginTokens(t *testing.T, service *Service, username string) TokenPair {
	t.Helper()
	result, err := service.Login(context.Background(), LoginInput{Username: username, Password: "p1"})
	require.NoError(t, err)
	return result.Tokens
}

func whoamiRouter(service *Service, middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", middleware, func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, user.Username)
	})
	return router
}

func TestAuthenticateAcceptsBearerHeader(t *testing.T) {
	service, _, _ := newTestService(t)
	registerAna(t, service)
	tokens := loginTokens(t, service, "ana")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "bearer "+tokens.AccessToken)
	rec := httptest.NewRecorder()
	whoamiRouter(service, Authenticate(service)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", rec.Body.String())
}

func TestAuthenticatePrefersCookie(t *testing.T) {
	service, _, _ := newTestService(t)
	registerAna(t, service)
	tokens := loginTokens(t, service, "ana")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "garbage"})
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := httptest.NewRecorder()
	whoamiRouter(service, Authenticate(service)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRejectsMissingAndInvalidTokens(t *testing.T) {
	service, _, _ := newTestService(t)
	router := whoamiRouter(service, Authenticate(service))

	for _, header := range []string{"", "Bearer", "Bearer not-a-token", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Contains(t, rec.Body.String(), `"success":false`)
	}
}

func TestAuthenticateRejectsTokenOfDeletedUser(t *testing.T) {
	service, _, _ := newTestService(t)
	registerAna(t, service)
	tokens := loginTokens(t, service, "ana")

	other, _, _ := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := httptest.NewRecorder()
	whoamiRouter(other, Authenticate(other)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthenticate(t *testing.T) {
	service, _, _ := newTestService(t)
	registerAna(t, service)
	tokens := loginTokens(t, service, "ana")
	router := whoamiRouter(service, OptionalAuthenticate(service))

	cases := []struct {
		header string
		want   string
	}{
		{header: "", want: "anonymous"},
		{header: "Bearer not-a-token", want: "anonymous"},
		{header: "Bearer " + tokens.AccessToken, want: "ana"},
	}
	for _, tc := range cases {
		header, want := tc.header, tc.want
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Body.String())
	}
}
