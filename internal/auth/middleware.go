package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/response"
	"github.com/videotube/api/internal/users"
)

// Cookie names carrying the session tokens.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

const userContextKey = "videotubeUser"

// Authenticate rejects requests without a valid access token and attaches
// the sanitized user to the context.
func Authenticate(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := service.AuthenticateToken(c.Request.Context(), accessToken(c))
		if err != nil {
			response.Fail(c, err)
			return
		}

		c.Set(userContextKey, profile)
		c.Next()
	}
}

// OptionalAuthenticate attaches the user when a valid access token is
// present. Missing or rejected tokens leave the request anonymous.
func OptionalAuthenticate(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			c.Next()
			return
		}

		profile, err := service.AuthenticateToken(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(userContextKey, profile)
		case !apperr.Is(err, apperr.KindUnauthorized):
			response.Fail(c, err)
			return
		}
		c.Next()
	}
}

// CurrentUser extracts the authenticated user from the context.
func CurrentUser(c *gin.Context) (users.Profile, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return users.Profile{}, false
	}
	profile, ok := value.(users.Profile)
	return profile, ok
}

// RequireUser returns the authenticated user or an Unauthorized error.
func RequireUser(c *gin.Context) (users.Profile, error) {
	profile, ok := CurrentUser(c)
	if !ok {
		return users.Profile{}, apperr.Unauthorized("unauthorized request", nil)
	}
	return profile, nil
}

// accessToken reads the access token cookie, falling back to a bearer header.
func accessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	return extractBearerToken(c.GetHeader("Authorization"))
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
