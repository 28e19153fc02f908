// Package auth implements the stateless token issuer: HS256 JWTs signed
// with two independent keys, one for short-lived access tokens and one for
// long-lived refresh tokens. Verification is a pure function of the token
// and the key; revocation of refresh tokens is the session layer's job.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the registered claims plus the user the token was minted
// for.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Issuer signs and verifies token pairs. The access and refresh keys are
// distinct so leaking one never lets an attacker mint the other class.
type Issuer struct {
	accessKey       []byte
	refreshKey      []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration
}

func NewIssuer(accessKey, refreshKey []byte, accessLifetime, refreshLifetime time.Duration) *Issuer {
	return &Issuer{
		accessKey:       accessKey,
		refreshKey:      refreshKey,
		accessLifetime:  accessLifetime,
		refreshLifetime: refreshLifetime,
	}
}

// IssueAccessToken mints a short-lived token for userID.
func (i *Issuer) IssueAccessToken(userID string) (string, error) {
	return sign(userID, i.accessKey, i.accessLifetime)
}

// IssueRefreshToken mints a long-lived token for userID with the refresh
// key.
func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	return sign(userID, i.refreshKey, i.refreshLifetime)
}

// VerifyAccessToken checks signature and expiry against the access key and
// returns the user ID from the claims.
func (i *Issuer) VerifyAccessToken(token string) (string, error) {
	return verify(token, i.accessKey)
}

// VerifyRefreshToken checks signature and expiry against the refresh key.
// It does not consult any store; a cryptographically valid token may still
// be rejected by the session layer's rotation cross-check.
func (i *Issuer) VerifyRefreshToken(token string) (string, error) {
	return verify(token, i.refreshKey)
}

func sign(userID string, key []byte, lifetime time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti makes every token unique even when two are minted
			// for the same user within the same second; rotation relies
			// on the new refresh token differing from the old one.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		UserID: userID,
	})
	return token.SignedString(key)
}

func verify(tokenString string, key []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}
