package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Access-token verification used by the authorization gate
// ============================================================

// JWTClaims are the claims of an auth-provider access token.
type JWTClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens issued by the auth provider
// and implements port.IdentityResolver.
type JWTVerifier struct {
	secret   []byte
	audience string
}

// NewJWTVerifier creates a verifier. An empty audience skips the aud check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience}
}

// ValidateAccessToken parses and validates a token.
func (v *JWTVerifier) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}

// ResolveIdentity returns the subject of a valid token.
func (v *JWTVerifier) ResolveIdentity(_ context.Context, token string) (string, error) {
	claims, err := v.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
