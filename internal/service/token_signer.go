package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"space-auth/internal/model"
)

// refreshTokenBytes is the amount of randomness in a refresh token (256 bits).
const refreshTokenBytes = 32

type SignerConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	DisplayName string   `json:"name,omitempty"`
	Roles       []string `json:"roles"`
}

// TokenSigner mints HS256 access tokens and opaque refresh tokens.
type TokenSigner struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

func NewTokenSigner(cfg SignerConfig) (*TokenSigner, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token signer: secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("token signer: access token lifetime must be positive")
	}

	return &TokenSigner{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: cfg.AccessTTL,
		now:       time.Now,
	}, nil
}

// IssueAccessToken returns the signed token and the instant it stops being valid.
func (s *TokenSigner) IssueAccessToken(user model.User, roles []string) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)
	if roles == nil {
		roles = []string{}
	}

	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       roles,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	// Tokens carry whole seconds, so report the expiry the verifier will see.
	return signed, claims.ExpiresAt.Time.UTC(), nil
}

// IssueRefreshToken returns a URL-safe random string. It carries no claims and
// is only meaningful through a store lookup.
func (s *TokenSigner) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ParseAccessToken checks signature, algorithm, expiry, issuer and audience.
func (s *TokenSigner) ParseAccessToken(tokenString string) (*model.AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &accessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, model.ErrUnauthorized
	}

	if claims.Subject == "" {
		return nil, model.ErrUnauthorized
	}

	return &model.AccessClaims{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Roles:       claims.Roles,
		TokenID:     claims.ID,
	}, nil
}
