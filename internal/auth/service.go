// Package auth はパスワード認証、トークン発行、ベアラートークンによるアクセス制御を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
)

// ログイン・登録フローのエラー。
var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrDuplicateEmail     = errors.New("email already registered")
)

// TokenTypeBearer はログイン応答のtoken_type。
const TokenTypeBearer = "bearer"

// ログイン・登録結果のラベル。メトリクスに使用する。
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultDuplicateEmail     = "duplicate_email"
	ResultInvalid            = "invalid"
	ResultError              = "error"
)

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
// password.Hasherが実装する。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// TokenIssuer はデフォルト有効期間でトークンを発行するインターフェース。
// token.Serviceが実装する。
type TokenIssuer interface {
	IssueDefault(subject string) (string, error)
	DefaultTTL() time.Duration
}

// TokenResponse はログイン成功時に返すアクセストークン。
type TokenResponse struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Service は登録・ログイン・ログアウトのビジネスロジックを提供する。
// リクエスト間で共有する可変状態は持たない。
type Service struct {
	users    repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	recorder Recorder

	// dummyDigest はユーザー不在時にも照合コストを揃えるためのダイジェスト。
	dummyOnce   sync.Once
	dummyDigest string
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Register は新しいユーザーを登録する。
// メールアドレスが登録済みの場合はErrDuplicateEmailを返す。
// 作成されたユーザーはis_active=true、is_admin=falseとなる。
func (s *Service) Register(ctx context.Context, email, plain string) (*model.User, error) {
	if err := validateCredentials(email, plain); err != nil {
		s.recorder.RecordRegistration(ResultInvalid)
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.recorder.RecordRegistration(ResultError)
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		s.recorder.RecordRegistration(ResultDuplicateEmail)
		return nil, ErrDuplicateEmail
	}

	digest, err := s.hasher.Hash(plain)
	if errors.Is(err, password.ErrPasswordTooLong) {
		s.recorder.RecordRegistration(ResultInvalid)
		return nil, model.NewValidationError("password must be at most 72 bytes")
	}
	if err != nil {
		s.recorder.RecordRegistration(ResultError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, digest)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 事前チェック後に同一メールアドレスが登録された
		s.recorder.RecordRegistration(ResultDuplicateEmail)
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		s.recorder.RecordRegistration(ResultError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.recorder.RecordRegistration(ResultSuccess)
	slog.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを照合し、アクセストークンを発行する。
// ユーザー不在とパスワード不一致はどちらもErrInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, plain string) (*TokenResponse, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.recorder.RecordLogin(ResultError)
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在が推測されないよう照合を1回行う
		s.hasher.Verify(plain, s.dummy())
		s.recorder.RecordLogin(ResultInvalidCredentials)
		slog.Warn("login failed")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(plain, user.HashedPassword) {
		s.recorder.RecordLogin(ResultInvalidCredentials)
		slog.Warn("login failed", slog.Int64("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueDefault(user.Email)
	if err != nil {
		s.recorder.RecordLogin(ResultError)
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recorder.RecordLogin(ResultSuccess)
	slog.Info("user logged in", slog.Int64("user_id", user.ID))

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.tokens.DefaultTTL(),
	}, nil
}

// Logout はログアウトを受け付ける。
// トークンはステートレスなためサーバー側で無効化するものはない。
func (s *Service) Logout(ctx context.Context) error {
	slog.Info("user logged out")
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("dummy-password-for-timing")
		if err != nil {
			slog.Error("failed to prepare dummy digest", slog.String("error", err.Error()))
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// validateCredentials は登録時の入力値を検証する。
func validateCredentials(email, plain string) error {
	if email == "" {
		return model.NewValidationError("email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return model.NewValidationError("email is invalid")
	}
	if plain == "" {
		return model.NewValidationError("password is required")
	}
	return nil
}
