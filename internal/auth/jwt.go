// Package auth parses the identity tokens issued by the external auth
// layer.
//
// The marketplace never checks passwords. Whoever sits in front of it
// (an identity provider, an API gateway) signs an HS256 JWT whose subject
// is the stable external user id and whose extra claims carry the display
// name, email and avatar. This package only verifies that signature and
// hands back a models.Identity; authorisation (ownership, roles, bans)
// happens in the market package.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// Claims are the JWT claims embedded in each identity token. The external
// subject lives in RegisteredClaims.Subject.
type Claims struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the caller identity the core expects.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		Subject:   c.Subject,
		Name:      c.Name,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
	}
}

// GenerateToken signs an identity token. Production tokens come from the
// auth provider; this is used by tests and the local demo seed.
func GenerateToken(id models.Identity, secret, issuer string, ttl time.Duration) (string, error) {
	if id.Subject == "" {
		return "", errors.New("identity subject is required")
	}
	now := time.Now().UTC()
	claims := Claims{
		Name:      id.Name,
		Email:     id.Email,
		AvatarURL: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a JWT string and returns the embedded claims.
// It rejects tokens with:
//   - wrong or missing signature
//   - expired tokens
//   - an issuer other than issuer (when issuer is non-empty)
//   - no subject
//   - an unexpected signing algorithm
func ParseToken(tokenStr, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
