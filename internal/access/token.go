package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RoleClaims are the claims carried by a capability token. The role claim
// is the only thing the gate cares about; issuer and expiry come from the
// registered claims.
type RoleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RoleFromToken resolves the caller role from a signed capability token.
//
// An empty token is the standard role: most of the application never
// touches restricted collections and needs no token at all. A present but
// invalid token is an error, not a silent demotion, so a misconfigured
// privileged caller finds out immediately.
func RoleFromToken(tokenString, signingKey string) (Role, error) {
	if tokenString == "" {
		return RoleStandard, nil
	}
	if signingKey == "" {
		return RoleStandard, errors.New("capability token supplied but no signing key configured")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&RoleClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(signingKey), nil
		},
	)
	if err != nil {
		return RoleStandard, fmt.Errorf("parse capability token: %w", err)
	}

	claims, ok := token.Claims.(*RoleClaims)
	if !ok || !token.Valid {
		return RoleStandard, errors.New("invalid capability token")
	}
	switch Role(claims.Role) {
	case RolePrivileged:
		return RolePrivileged, nil
	case RoleStandard, "":
		return RoleStandard, nil
	default:
		return RoleStandard, fmt.Errorf("unknown role %q in capability token", claims.Role)
	}
}

// IssueToken signs a capability token for the given role. Used by the
// token subcommand and by tests; production deployments are expected to
// mint tokens out of band.
func IssueToken(role Role, signingKey string, ttl time.Duration) (string, error) {
	if signingKey == "" {
		return "", errors.New("signing key is required")
	}
	claims := RoleClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingKey))
}
