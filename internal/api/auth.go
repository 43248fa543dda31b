package api

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// errTokenInvalid is returned by parseToken for any unusable token.
var errTokenInvalid = errors.New("api: invalid token")

// parseToken validates an HS256 token signed with secret. When issuer is
// non-empty the iss claim must match it. Tokens must carry a subject and
// must not be expired.
func parseToken(raw, secret, issuer string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid {
		return nil, errTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errTokenInvalid)
	}
	return claims, nil
}
