package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the smoke driver can learn about a bearer token without the signing key
type TokenInfo struct {
	Opaque    bool
	Algorithm string
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry that has passed
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

// Inspect decodes a token without verifying its signature.
// Tokens that are not JWTs are reported as opaque; this is never an error.
func Inspect(tokenString string) TokenInfo {
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return TokenInfo{Opaque: true}
	}

	info := TokenInfo{Algorithm: token.Method.Alg()}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	// Servers that do not set "sub" usually put the id in a custom claim
	if info.Subject == "" {
		for _, key := range []string{"userId", "user_id", "id"} {
			if v, ok := claims[key].(string); ok && v != "" {
				info.Subject = v
				break
			}
		}
	}
	if iss, err := claims.GetIssuer(); err == nil {
		info.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info
}
