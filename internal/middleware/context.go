// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/hitoshi/accountd/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey は認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// requestStateKey はロギングミドルウェアが用意するリクエスト状態のキー。
	requestStateKey = contextKey("request_state")
)

// requestState はロギングミドルウェアと内側のミドルウェアで共有する可変状態。
// 認証は内側のルートグループで行われるため、ポインタ経由でユーザーIDを受け渡す。
type requestState struct {
	requestID string
	userID    int64
	hasUser   bool
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// ベアラー認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// ロギングミドルウェアの内側であれば、ログのuser_idにも反映される。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok && user != nil {
		st.userID = user.ID
		st.hasUser = true
	}
	return context.WithValue(ctx, userContextKey, user)
}

// RequestIDFromContext はロギングミドルウェアが採番したリクエストIDを返す。
func RequestIDFromContext(ctx context.Context) string {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		return st.requestID
	}
	return ""
}

// ClientIP はリクエスト元のIPアドレスを返す。
// 信頼できるプロキシ配下（TRUST_PROXY_HEADERS）でのみ、chiのRealIPミドルウェアがRemoteAddrを書き換える。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
