package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// signToken はテスト用のトークンを署名する。
func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

// validClaims は有効期限内のクレームを返す。
func validClaims(userID string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "storefront-auth",
		},
		UserID: userID,
		Roles:  roles,
	}
}

// TestJWTVerifier はJWTVerifierの検証を確認する。
func TestJWTVerifier(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンから識別情報を取得できること", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-123", "customer", "admin"))
		id, err := NewJWTVerifier(testSecret, "storefront-auth").Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", id.UserID)
		assert.Equal(t, []string{"customer", "admin"}, id.Roles)
		assert.Equal(t, "customer,admin", id.RolesHeader())
	})

	t.Run("異なる秘密鍵で署名されたトークンは無効であること", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, jwt.SigningMethodHS256, []byte("wrong-secret"), validClaims("user-123"))
		_, err := NewJWTVerifier(testSecret, "").Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("期限切れのトークンは無効であること", func(t *testing.T) {
		t.Parallel()

		claims := validClaims("user-123")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
		_, err := NewJWTVerifier(testSecret, "").Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("発行者が一致しないトークンは無効であること", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-123"))
		_, err := NewJWTVerifier(testSecret, "other-issuer").Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("HS256以外のアルゴリズムは拒否されること", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("user-123"))
		_, err := NewJWTVerifier(testSecret, "").Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("user_idが空のトークンは無効であること", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(""))
		_, err := NewJWTVerifier(testSecret, "").Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("不正な形式のトークンは無効であること", func(t *testing.T) {
		t.Parallel()

		_, err := NewJWTVerifier(testSecret, "").Verify(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

// TestBearerToken はAuthorizationヘッダーの解析を検証する。
func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"Bearerトークンを取り出せること", "Bearer abc.def", "abc.def", true},
		{"空ヘッダーは失敗すること", "", "", false},
		{"Basic認証は失敗すること", "Basic dXNlcjpwYXNz", "", false},
		{"トークンが空の場合は失敗すること", "Bearer   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
