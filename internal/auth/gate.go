package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/accountd/internal/model"
)

// アクセス制御の判定結果。トークン起因の失敗はすべてErrUnauthenticatedに集約し、
// 期限切れ・署名不正・形式不正を呼び出し側から区別できないようにする。
var (
	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrInactive        = errors.New("inactive user")
	ErrForbidden       = errors.New("not enough permissions")
)

// 判定結果のラベル。メトリクスに使用する。
const (
	OutcomeAuthenticated   = "authenticated"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeInactive        = "inactive"
	OutcomeForbidden       = "forbidden"
)

// TokenValidator はトークンを検証しsubjectを返すインターフェース。
// token.Serviceが実装する。
type TokenValidator interface {
	Validate(token string) (string, error)
}

// UserFinder はsubject（メールアドレス）からユーザーを解決するインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// Gate はベアラートークンから認証済みユーザーを導出し、
// active/adminの権限段階を判定する。読み取りのみを行い、状態を変更しない。
type Gate struct {
	tokens   TokenValidator
	users    UserFinder
	recorder Recorder
}

// NewGate はGateを生成する。recorderがnilの場合は記録しない。
func NewGate(tokens TokenValidator, users UserFinder, recorder Recorder) *Gate {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gate{
		tokens:   tokens,
		users:    users,
		recorder: recorder,
	}
}

// Authenticate はトークンを検証し、対応するアクティブなユーザーを返す。
//
// 判定順序:
//
//	トークン欠落 → 検証 → ユーザー解決 → アクティブ判定
//
// トークン欠落・検証失敗・ユーザー不在はErrUnauthenticated、
// 無効化ユーザーはErrInactiveを返す。ストアのエラーはそのままラップして返す。
func (g *Gate) Authenticate(ctx context.Context, rawToken string) (*model.User, error) {
	if rawToken == "" {
		g.recorder.RecordAuthOutcome(OutcomeUnauthenticated)
		return nil, ErrUnauthenticated
	}

	subject, err := g.tokens.Validate(rawToken)
	if err != nil {
		// 詳細な原因はログにのみ残す
		slog.Debug("token validation failed", slog.String("reason", err.Error()))
		g.recorder.RecordAuthOutcome(OutcomeUnauthenticated)
		return nil, ErrUnauthenticated
	}

	user, err := g.users.FindByEmail(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token subject: %w", err)
	}
	if user == nil {
		slog.Debug("token subject not found")
		g.recorder.RecordAuthOutcome(OutcomeUnauthenticated)
		return nil, ErrUnauthenticated
	}

	if !user.IsActive {
		g.recorder.RecordAuthOutcome(OutcomeInactive)
		return nil, ErrInactive
	}

	g.recorder.RecordAuthOutcome(OutcomeAuthenticated)
	return user, nil
}

// RequireAdmin は認証済みユーザーが管理者でない場合にErrForbiddenを返す。
func (g *Gate) RequireAdmin(user *model.User) error {
	if user == nil || !user.IsAdmin {
		g.recorder.RecordAuthOutcome(OutcomeForbidden)
		return ErrForbidden
	}
	return nil
}

// Check はAuthenticateとRequireAdminを1回の呼び出しで行う。
// requireAdminがfalseの場合はアクティブ判定までで終了する。
func (g *Gate) Check(ctx context.Context, rawToken string, requireAdmin bool) (*model.User, error) {
	user, err := g.Authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if requireAdmin {
		if err := g.RequireAdmin(user); err != nil {
			return nil, err
		}
	}
	return user, nil
}
