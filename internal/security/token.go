package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "quizaccess"

var (
	// ErrInvalidToken indicates a token that fails signature, expiry or claim checks.
	ErrInvalidToken = errors.New("security: invalid token")
	// ErrMissingSecret indicates no signing secret is configured.
	ErrMissingSecret = errors.New("security: missing jwt secret")
)

// Claims identifies the caller of a request.
type Claims struct {
	jwt.RegisteredClaims
	UserID           uint64 `json:"uid"`
	Admin            bool   `json:"admin,omitempty"`
	IgnoreTimeLimits bool   `json:"ignore_time_limits,omitempty"`
}

// Identity is the parsed caller identity handlers work with.
type Identity struct {
	UserID           uint64
	Admin            bool
	IgnoreTimeLimits bool
}

// IssueToken signs an HS256 token for identity valid for expiry.
func IssueToken(secret string, identity Identity, expiry time.Duration, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrMissingSecret
	}
	if identity.UserID == 0 {
		return "", fmt.Errorf("security: issue token: missing user id")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(identity.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:           identity.UserID,
		Admin:            identity.Admin,
		IgnoreTimeLimits: identity.IgnoreTimeLimits,
	})
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseToken validates raw and returns the caller identity.
func ParseToken(secret, raw string, now time.Time) (Identity, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Identity{}, ErrMissingSecret
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	token, errParse := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if errParse != nil || token == nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, errParse)
	}
	if claims.UserID == 0 {
		return Identity{}, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	return Identity{
		UserID:           claims.UserID,
		Admin:            claims.Admin,
		IgnoreTimeLimits: claims.IgnoreTimeLimits,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", errors.New("invalid authorization format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}
