package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/accountd/internal/auth"
	"github.com/hitoshi/accountd/internal/model"
)

// Authenticator はベアラートークンの検証と権限判定に必要なインターフェース。
// auth.Gateが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*model.User, error)
	RequireAdmin(user *model.User) error
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 認証済みのアクティブユーザーをリクエストコンテキストに注入するミドルウェアを返す。
//
//	トークン欠落・検証失敗・ユーザー不在 → 401（WWW-Authenticate: Bearer）
//	無効化ユーザー                       → 400
func NewBearerAuthMiddleware(gate Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				writeGateError(w, err)
				return
			}

			ctx := ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAdminMiddleware は認証済みユーザーが管理者であることを要求するミドルウェアを返す。
// NewBearerAuthMiddlewareの後に配置する。
func NewRequireAdminMiddleware(gate Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeGateError(w, auth.ErrUnauthenticated)
				return
			}
			if err := gate.RequireAdmin(user); err != nil {
				writeGateError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken はAuthorizationヘッダーからトークン部分を取り出す。
// スキーム名の大文字小文字は区別しない。該当しない場合は空文字を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeGateError はアクセス制御の判定結果をHTTPレスポンスに変換する。
func writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case errors.Is(err, auth.ErrInactive):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewInactiveUserError())
	case errors.Is(err, auth.ErrForbidden):
		WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
	default:
		slog.Error("access control failed", slog.String("error", err.Error()))
		WriteInternalServerError(w)
	}
}
