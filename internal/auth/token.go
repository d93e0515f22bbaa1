// Package auth resolves bearer credentials into a types.Actor.
//
// End users present HS256 access tokens minted by the identity provider; the
// scheduler presents a shared secret. The two never overlap: a user token is
// not accepted on cron routes and the cron secret is not a valid user token.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blackhub/internal/types"
)

// Claims are the fields read from an identity provider access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifierConfig configures a TokenVerifier. Issuer is optional.
type TokenVerifierConfig struct {
	Secret types.SecretString
	Issuer string
	// Leeway tolerates clock skew between the identity provider and us.
	Leeway time.Duration
	Now    func() time.Time
}

// TokenVerifier validates HS256 access tokens. It satisfies
// core.Authenticator.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(cfg TokenVerifierConfig) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}
	return &TokenVerifier{
		secret: []byte(cfg.Secret.Unmask()),
		parser: jwt.NewParser(opts...),
	}
}

// ResolveToken verifies the signature and expiry of token and returns the
// user it names. Expired tokens yield ErrCodeAuthTokenExpired; every other
// failure yields ErrCodeAuthTokenInvalid.
func (v *TokenVerifier) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	if len(v.secret) == 0 {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "token secret not configured", nil)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}
	if claims.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token has no subject", nil)
	}

	return &types.Actor{
		ID:    claims.Subject,
		Email: CanonicalizeEmail(claims.Email),
		Type:  types.ActorTypeUser,
	}, nil
}

// IssueToken signs an HS256 access token for userID. The identity provider
// mints tokens in production; this is used by local tooling and tests.
func IssueToken(secret types.SecretString, userID, email, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret.Unmask()))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// CanonicalizeEmail normalizes an address for comparison.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin reports whether actor is the configured administrator. An empty
// adminEmail disables administration entirely.
func IsAdmin(actor types.Actor, adminEmail string) bool {
	admin := CanonicalizeEmail(adminEmail)
	if admin == "" || actor.Type != types.ActorTypeUser {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(CanonicalizeEmail(actor.Email)), []byte(admin)) == 1
}
