// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danielhkuo/livevote/clock"
)

// Token lifetimes
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims identify the session holder
type Claims struct {
	VoterID string `json:"id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed token and its expiry
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenIssuer is the session service consumed by the login flow.
// The core never inspects token contents beyond the parsed claims.
type TokenIssuer interface {
	IssueAccess(voterID, role string) (Token, error)
	IssueRefresh(voterID, role string) (Token, error)
	ParseAccess(token string) (*Claims, error)
	ParseRefresh(token string) (*Claims, error)
}

// JWTIssuer signs HS256 tokens with separate access and refresh secrets
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	clock         clock.Clock
}

func NewJWTIssuer(accessSecret, refreshSecret string, clk clock.Clock) *JWTIssuer {
	return &JWTIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		clock:         clk,
	}
}

func (j *JWTIssuer) IssueAccess(voterID, role string) (Token, error) {
	return j.issue(voterID, role, j.accessSecret, AccessTokenTTL)
}

func (j *JWTIssuer) IssueRefresh(voterID, role string) (Token, error) {
	return j.issue(voterID, role, j.refreshSecret, RefreshTokenTTL)
}

func (j *JWTIssuer) ParseAccess(token string) (*Claims, error) {
	return j.parse(token, j.accessSecret)
}

func (j *JWTIssuer) ParseRefresh(token string) (*Claims, error) {
	return j.parse(token, j.refreshSecret)
}

func (j *JWTIssuer) issue(voterID, role string, secret []byte, ttl time.Duration) (Token, error) {
	now := j.clock.Now()
	expiresAt := now.Add(ttl)

	// jti keeps two tokens issued in the same second distinct
	jti, err := GenerateID(8)
	if err != nil {
		return Token{}, err
	}

	claims := Claims{
		VoterID: voterID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   voterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

func (j *JWTIssuer) parse(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.VoterID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
