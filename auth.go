package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// VerifyToken resolves a handshake token to a user id. Expired or
// malformed tokens fail here, before the connection enters the registry.
func VerifyToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.UserID, nil
}

// IssueToken mints a session token for userID. The auth service owns
// token issuance in production; tests and tooling use this directly.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// CheckSignMD5 verifies the request signature on the internal dispatch
// endpoint: md5(secret + body + timestamp) must equal the sign parameter.
func CheckSignMD5(secret, data, timestamp, sign string) bool {
	h := md5.New()
	h.Write([]byte(secret + data + timestamp))
	return hex.EncodeToString(h.Sum(nil)) == sign
}

// SignMD5 produces the signature CheckSignMD5 expects. Business-logic
// services calling the dispatch endpoint sign their payloads with it.
func SignMD5(secret, data, timestamp string) string {
	h := md5.New()
	h.Write([]byte(secret + data + timestamp))
	return hex.EncodeToString(h.Sum(nil))
}
