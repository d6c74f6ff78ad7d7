package utils // package utils provides token and reference helpers

import (
	"errors"  // sentinel errors for invalid tokens
	"fmt"     // formatting the subject claim
	"strconv" // parsing the subject claim
	"time"    // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are issued by the account service that owns sign-in; this
// service only verifies them, and mints them for development through the
// token command.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims are the identity claims the reservation API relies on.
type Claims struct {
	Subject uint64
	Role    string
}

// NewAccessToken builds and signs an HS256 JWT with subject (sub), role,
// expiration (exp) and issued at (iat).  sub is written as a decimal string.
func NewAccessToken(secret string, actorID uint64, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(actorID, 10),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and returns its claims.  Only
// HMAC signatures are accepted.  sub may be a string or a JSON number, as
// issuers differ.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than HMAC so a token cannot choose
		// its own verification method.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mc["role"].(string)
	var sub string
	switch v := mc["sub"].(type) {
	case string:
		sub = v
	case float64:
		sub = fmt.Sprintf("%.0f", v)
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 || role == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: id, Role: role}, nil
}
