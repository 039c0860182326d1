// Package user は管理者向けのユーザー管理ロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
)

// 一覧取得のページング既定値。
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// PasswordHasher はパスワード更新時のハッシュ化インターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Service はユーザーの一覧・取得・更新・削除を提供する。
// 権限判定は呼び出し側（auth.Gate）で済んでいる前提とする。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// List はID昇順でユーザーを返す。
// skipが負の場合は0、limitが0以下の場合はDefaultLimit、MaxLimitを超える場合はMaxLimitとする。
func (s *Service) List(ctx context.Context, skip, limit int) ([]*model.User, error) {
	skip, limit = normalizePage(skip, limit)

	users, err := s.userRepo.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Get は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update は指定されたフィールドのみ更新する。
// 空文字のメールアドレス・パスワードは未指定として扱う。
// パスワードは保存前にハッシュ化する。
func (s *Service) Update(ctx context.Context, id int64, upd model.UserUpdate) (*model.User, error) {
	if upd.IsEmpty() {
		return s.Get(ctx, id)
	}

	var fields repository.UserFields

	if upd.Email != nil && *upd.Email != "" {
		email := *upd.Email
		if !validEmail(email) {
			return nil, model.NewValidationError("email is invalid")
		}
		fields.Email = &email
	}

	if upd.Password != nil && *upd.Password != "" {
		digest, err := s.hasher.Hash(*upd.Password)
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, model.NewValidationError("password must be at most 72 bytes")
		}
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		fields.HashedPassword = &digest
	}

	fields.IsActive = upd.IsActive
	fields.IsAdmin = upd.IsAdmin

	user, err := s.userRepo.Update(ctx, id, fields)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, model.NewEmailAlreadyRegisteredError()
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("ユーザーを更新しました",
		slog.Int64("user_id", user.ID),
		slog.Bool("password_changed", fields.HashedPassword != nil),
	)
	return user, nil
}

// Delete は指定IDのユーザーを削除し、削除前のユーザーを返す。
func (s *Service) Delete(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("ユーザーを削除しました", slog.Int64("user_id", id))
	return user, nil
}

func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return skip, limit
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
