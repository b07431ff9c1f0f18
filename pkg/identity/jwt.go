package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// 認証サービスが発行したトークンの内容をGateway側で読み取るために使用する。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Roles はユーザーに付与されたロール。
	Roles []string `json:"roles"`
}

// JWTVerifier は認証サービスと共有したHS256鍵でトークンを検証する。
// 認証サービスへの問い合わせを省略したいデプロイ向けの検証者。
type JWTVerifier struct {
	// secret は署名検証用の共有鍵。
	secret []byte
	// issuer が空でない場合、issクレームの一致を要求する。
	issuer string
}

// NewJWTVerifier は新しいJWTVerifierを生成する。
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify はトークンの署名と有効期限を検証する。
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidCredential
	}
	return &Identity{UserID: claims.UserID, Roles: claims.Roles}, nil
}
