package renteasy

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of bearer-token claims the client cares about.
// Tokens are decoded without signature verification; the server remains the
// authority, the client only reads self-describing metadata (expiry,
// identity) out of tokens it was handed.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Role      string
	SessionID string
	ExpiresAt time.Time // zero when the token carries no exp claim
	IssuedAt  time.Time
}

// ErrMalformedToken is returned when a bearer token cannot be decoded.
var ErrMalformedToken = errors.New("renteasy: malformed bearer token")

var claimsParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// DecodeClaims parses a bearer token's payload without verifying its
// signature. Returns ErrMalformedToken when the token is not a decodable JWT.
func DecodeClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(token, mapClaims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}

	claims := &Claims{
		Subject:   stringClaim(mapClaims, "sub"),
		Email:     stringClaim(mapClaims, "email"),
		Name:      stringClaim(mapClaims, "name"),
		Role:      stringClaim(mapClaims, "role"),
		SessionID: stringClaim(mapClaims, "sid"),
	}

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	return claims, nil
}

// tokenExpiry returns the expiry baked into a bearer token, or zero when the
// token is undecodable or carries no exp claim. A zero expiry is treated as
// "not expired" everywhere; the refresh policy is the actual safety net.
func tokenExpiry(token string) time.Time {
	claims, err := DecodeClaims(token)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
