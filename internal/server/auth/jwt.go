// Package auth implements credential primitives: signed access tokens,
// opaque refresh token values, and password hashing.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Claims is the access-token payload: registered claims plus a flat
// {UserID, Role} pair. The shape is the same on issue and verify.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

// GenerateToken mints an HS256-signed access token for the user with the
// given role, expiring after validityDuration.
func GenerateToken(userID string, role models.Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
		Role:   role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry of an access token and returns
// the embedded identity. Expired tokens map to common.ErrTokenExpired, every
// other failure to common.ErrInvalidToken; raw library errors never escape.
func ParseToken(tokenString string, secretKey []byte) (string, models.Role, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", common.ErrTokenExpired
		}
		return "", "", common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.UserID, claims.Role, nil
}

// RefreshTokenByteSize is the entropy of an opaque refresh token in bytes.
// 32 bytes keeps the value unguessable; it is only ever matched against the
// stored row, never decoded.
const RefreshTokenByteSize = 32

// NewRefreshTokenValue generates a random hex-encoded refresh token value.
func NewRefreshTokenValue() (string, error) {
	return common.MakeRandHexString(RefreshTokenByteSize)
}
