// Package auth は接続者のアイデンティティを検証します
// ユーザー登録やログインは外部の責務で、ここでは署名済みトークンの検証だけを行います
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "steamvc-talk"

// ErrInvalidToken はトークンの署名・期限・内容が不正な場合です
var ErrInvalidToken = errors.New("invalid token")

// Claims はトークンに含める情報です。Subject がユーザー名です
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier はトークンからユーザー名を取り出します
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier はHS256で署名したトークンを発行・検証します
type JWTVerifier struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTVerifier は新しいJWTVerifierを作成します
func NewJWTVerifier(secret string, ttl time.Duration) *JWTVerifier {
	return &JWTVerifier{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue はユーザー名に対するトークンを発行します
func (v *JWTVerifier) Issue(username string) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

// Verify はトークンの署名と有効期限を検証し、ユーザー名を返します
func (v *JWTVerifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
