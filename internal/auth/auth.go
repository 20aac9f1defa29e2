// Package auth issues and checks the bearer tokens guarding write endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("bearer token required")
	ErrInvalidToken = errors.New("invalid token")
)

// Issuer is the iss claim on every token.
const Issuer = "ideaboard"

// Claims identifies the installation a token was issued to.
type Claims struct {
	Device string `json:"device"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for device valid for ttl.
func Issue(secret []byte, device string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   device,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and checks its signature, issuer and lifetime.
func Verify(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !claims.VerifyIssuer(Issuer, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromRequest extracts and verifies the Authorization bearer token.
func FromRequest(secret []byte, r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if header == "" || tokenString == header {
		return nil, ErrMissingToken
	}
	return Verify(secret, tokenString)
}
