package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidCredential はトークンが無効であることを表す。
// 検証者への通信失敗とは区別される。
var ErrInvalidCredential = errors.New("認証情報が無効です")

// Identity は検証済みの呼び出し元。
type Identity struct {
	// UserID はユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Roles はユーザーに付与されたロール。
	Roles []string `json:"roles"`
}

// RolesHeader はX-User-Rolesヘッダーの値（カンマ区切り）を返す。
func (i *Identity) RolesHeader() string {
	return strings.Join(i.Roles, ",")
}

// Verifier はBearerトークンから識別情報を解決する。
type Verifier interface {
	// Verify はトークンを検証する。無効な場合はErrInvalidCredentialを返す。
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken はAuthorizationヘッダーの値からBearerトークンを取り出す。
func BearerToken(authHeader string) (string, bool) {
	token, found := strings.CutPrefix(authHeader, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}
