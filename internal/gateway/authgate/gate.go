// Package authgate はパスの公開/保護の分類と、呼び出し元の識別情報の解決を行う。
package authgate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nao1215/shopgate/pkg/identity"
)

// DefaultPublicPrefixes は認証不要のパスプレフィックスのデフォルト値。
// ヘルスチェック、サービス一覧、カタログ閲覧、フェデレーションログインの入口を含む。
var DefaultPublicPrefixes = []string{
	"/health",
	"/services",
	"/products",
	"/categories",
	"/search",
	"/auth/login",
	"/auth/register",
	"/auth/google",
	"/auth/github",
	"/auth/callback",
}

// Gate はパスの認証要否を判定し、識別情報を解決する。
type Gate struct {
	publicPrefixes []string
	verifier       identity.Verifier
	logger         *zap.Logger
}

// New は新しいGateを生成する。verifierがnilの場合、識別情報は常に解決されない。
func New(publicPrefixes []string, verifier identity.Verifier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefixes := make([]string, len(publicPrefixes))
	copy(prefixes, publicPrefixes)
	return &Gate{
		publicPrefixes: prefixes,
		verifier:       verifier,
		logger:         logger,
	}
}

// RequiresAuth はパスが公開プレフィックスに一致しなければtrueを返す。
func (g *Gate) RequiresAuth(path string) bool {
	for _, prefix := range g.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Resolve はAuthorizationヘッダーのBearerトークンから識別情報を解決する。
// トークンがない、無効、または検証者に到達できない場合はnilを返す。
func (g *Gate) Resolve(ctx context.Context, r *http.Request) *identity.Identity {
	if g.verifier == nil {
		return nil
	}
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			g.logger.Debug("無効な認証情報です", zap.String("path", r.URL.Path))
		} else {
			g.logger.Warn("識別情報の検証に失敗", zap.String("path", r.URL.Path), zap.Error(err))
		}
		return nil
	}
	return id
}
