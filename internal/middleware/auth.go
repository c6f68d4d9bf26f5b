// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/foliora/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	roleContextKey   = contextKey("role")
)

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
type TokenVerifier interface {
	VerifyToken(token string) (userID string, role model.Role, err error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーのIDとロールをリクエストコンテキストに注入する。
// トークンがない場合は401 TOKEN_MISSING、無効または期限切れの場合は401 TOKEN_INVALIDを返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token, ok := bearerToken(r)
			if !ok {
				WriteAPIError(w, model.NewTokenMissingError())
				return
			}

			// 2. トークンを検証
			userID, role, err := verifier.VerifyToken(token)
			if err != nil || userID == "" {
				WriteAPIError(w, model.NewTokenInvalidError())
				return
			}

			// 3. 認証済みユーザーをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID, role)))
		})
	}
}

// RequireAdmin は管理者ロール以外のリクエストを403で拒否する。
// NewAuthMiddlewareの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFromContext(r.Context()) != model.RoleAdmin {
			WriteAPIError(w, model.NewAdminOnlyError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// RoleFromContext はリクエストコンテキストからロールを取得する。未認証の場合は空を返す。
func RoleFromContext(ctx context.Context) model.Role {
	role, _ := ctx.Value(roleContextKey).(model.Role)
	return role
}

// ContextWithUser はコンテキストにユーザーIDとロールを注入する。
// ロギングミドルウェアが記録用の領域を用意している場合は、そこにもユーザーIDを書き込む。
func ContextWithUser(ctx context.Context, userID string, role model.Role) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.setUserID(userID)
	}
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, roleContextKey, role)
}
