package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/shopgate/pkg/httpclient"
)

// RemoteVerifier は認証サービスにトークンの検証を委譲する。
// 認証サービスは GET {path} に対して 200 {"user_id": ..., "roles": [...]} を返す。
type RemoteVerifier struct {
	// client は認証サービスへのHTTPクライアント。
	client *httpclient.Client
	// path は検証エンドポイントのパス。
	path string
}

// NewRemoteVerifier は新しいRemoteVerifierを生成する。
func NewRemoteVerifier(client *httpclient.Client, path string) *RemoteVerifier {
	return &RemoteVerifier{client: client, path: path}
}

// Verify は認証サービスにトークンを問い合わせる。
// 401/403は ErrInvalidCredential、それ以外の失敗は通信エラーとして返す。
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	err := v.client.GetJSON(httpclient.WithBearerToken(ctx, token), v.path, &id)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("認証サービスへの問い合わせに失敗: %w", err)
	}
	if id.UserID == "" {
		return nil, ErrInvalidCredential
	}
	return &id, nil
}
