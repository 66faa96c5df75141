package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "assistant-hub"

// ErrTokenExpired is returned by ParseUserToken for tokens past their expiry.
var ErrTokenExpired = errors.New("security: token expired")

// UserClaims are the JWT claims issued to signed-in users.
type UserClaims struct {
	UserID uint64 `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueUserToken signs an HS256 token for the user valid for ttl.
func IssueUserToken(secret string, userID uint64, role string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("security: empty jwt secret")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, expiresAt, nil
}

// ParseUserToken validates an HS256 token and returns its claims.
func ParseUserToken(secret, token string) (*UserClaims, error) {
	claims := &UserClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("security: parse token: %w", errParse)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return nil, errors.New("security: invalid token")
	}
	return claims, nil
}
