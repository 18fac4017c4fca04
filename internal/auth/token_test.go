package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videotube/api/internal/config"
	"github.com/videotube/api/internal/users"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		PasswordHasher:     config.HasherBcrypt,
		BcryptCost:         4,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())
	user := users.User{ID: "user-1", Username: "ana", Email: "a@x.com", FullName: "Ana"}

	token, expiresAt, err := manager.IssueAccessToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	claims, err := manager.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, KindAccess, claims.Type)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, "videotube", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssuedTokensAreUnique(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())

	first, _, err := manager.IssueRefreshToken("user-1")
	require.NoError(t, err)
	second, _, err := manager.IssueRefreshToken("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokensAreBoundToTheirSecret(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())

	refresh, _, err := manager.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = manager.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalidSignature)

	claims, err := manager.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyRejectsWrongTokenKind(t *testing.T) {
	cfg := testAuthConfig()
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret
	manager := NewTokenManager(cfg)

	refresh, _, err := manager.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = manager.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyReportsExpiry(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())
	manager.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := manager.IssueAccessToken(users.User{ID: "user-1"})
	require.NoError(t, err)

	manager.nowFunc = time.Now
	_, err = manager.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestExpiryWinsOverBadSignature(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }

	forger := NewTokenManager(config.AuthConfig{
		AccessTokenSecret:  "someone-else",
		RefreshTokenSecret: "someone-else-refresh",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
	})
	forger.nowFunc = past

	token, _, err := forger.IssueAccessToken(users.User{ID: "user-1"})
	require.NoError(t, err)

	_, err = NewTokenManager(testAuthConfig()).VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsForeignAlgorithms(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())
	now := time.Now()
	claims := Claims{
		Type: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = manager.VerifyAccessToken(hs512)
	assert.ErrorIs(t, err, ErrTokenInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = manager.VerifyAccessToken(none)
	assert.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	manager := NewTokenManager(testAuthConfig())

	for _, raw := range []string{"", "   ", "not-a-jwt", "a.b.c", strings.Repeat("x", 40)} {
		_, err := manager.VerifyAccessToken(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed, raw)
	}
}
