package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/videotube/api/internal/config"
	"github.com/videotube/api/internal/users"
)

const tokenIssuer = "videotube"

// TokenKind distinguishes access from refresh tokens inside the payload.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the payload of both token kinds. Profile fields are only set on access tokens.
type Claims struct {
	Type     TokenKind `json:"typ"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens. Access and refresh tokens
// are signed with different secrets.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowFunc       func() time.Time
	parser        *jwt.Parser
}

// NewTokenManager builds a TokenManager from cfg.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	m := &TokenManager{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		nowFunc:       time.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.nowFunc() }),
	)
	return m
}

// AccessTTL is the access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL is the refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken signs a short-lived token carrying the user's identity.
func (m *TokenManager) IssueAccessToken(user users.User) (string, time.Time, error) {
	claims := Claims{
		Type:     KindAccess,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}
	return m.sign(claims, user.ID, m.accessTTL, m.accessSecret)
}

// IssueRefreshToken signs a long-lived token carrying only the user id.
func (m *TokenManager) IssueRefreshToken(userID string) (string, time.Time, error) {
	return m.sign(Claims{Type: KindRefresh}, userID, m.refreshTTL, m.refreshSecret)
}

func (m *TokenManager) sign(claims Claims, subject string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	now := m.nowFunc()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken validates an access token and returns its claims.
func (m *TokenManager) VerifyAccessToken(raw string) (Claims, error) {
	return m.verify(raw, m.accessSecret, KindAccess)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
func (m *TokenManager) VerifyRefreshToken(raw string) (Claims, error) {
	return m.verify(raw, m.refreshSecret, KindRefresh)
}

func (m *TokenManager) verify(raw string, secret []byte, kind TokenKind) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrTokenMalformed
	}

	var claims Claims
	_, err := m.parser.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, m.classify(err, claims)
	}

	if claims.Type != kind || claims.Subject == "" {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// classify maps parser errors onto the three verification failures. An
// elapsed expiry wins over a bad signature.
func (m *TokenManager) classify(err error, claims Claims) error {
	if claims.ExpiresAt != nil && !m.nowFunc().Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
