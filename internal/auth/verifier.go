// Package auth verifies bearer tokens and extracts the requesting user.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// ErrUnauthorized is returned for any token that cannot be trusted.
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the JWT claims the API relies on. Subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*Claims, error)
	Close() error
}

// HMACVerifier verifies tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACVerifier creates a verifier for HS256/384/512 tokens.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// VerifyToken implements TokenVerifier.
func (v *HMACVerifier) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	return checkClaims(claims)
}

// Close is a no-op.
func (v *HMACVerifier) Close() error {
	return nil
}

// JWKSVerifier verifies asymmetric tokens against a remote JWKS, e.g. the one
// published by the identity provider. Keys are cached and refreshed by keyfunc.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
	cancel context.CancelFunc
	logger *logger.Logger
}

// NewJWKSVerifier creates a verifier that fetches keys from jwksURL.
func NewJWKSVerifier(ctx context.Context, jwksURL string, log *logger.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(ctx)
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	log.Info("JWT verifier initialized", zap.String("jwks_url", jwksURL))

	return &JWKSVerifier{
		jwks: jwks,
		// Asymmetric algorithms only.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"})),
		cancel: cancel,
		logger: log,
	}, nil
}

// VerifyToken implements TokenVerifier.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil || !token.Valid {
		v.logger.Debug("token rejected", zap.Error(err))
		return nil, ErrUnauthorized
	}
	return checkClaims(claims)
}

// Close stops the background JWKS refresh.
func (v *JWKSVerifier) Close() error {
	v.cancel()
	return nil
}

// checkClaims rejects tokens without a subject and anonymous sessions.
func checkClaims(claims *Claims) (*Claims, error) {
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	if claims.Role == "anon" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
