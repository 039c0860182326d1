// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/accountd/internal/model"
)

// ErrDuplicateEmail は既に登録済みのメールアドレスでユーザーを作成・更新しようとした場合に返る。
// サービス層の事前チェックをすり抜けた同時登録に対するストア側の一意制約違反でもある。
var ErrDuplicateEmail = errors.New("email already registered")

// UserFields はUpdateで書き換えるフィールドを表す。nilのフィールドは変更しない。
// パスワードはハッシュ化済みのダイジェストで渡し、丸ごと置き換える。
type UserFields struct {
	Email          *string
	HashedPassword *string
	IsActive       *bool
	IsAdmin        *bool
}

// UserRepository はユーザーデータの永続化インターフェース。
// 読み取り系は該当なしをエラーではなくnilで表す。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List はID昇順でskip件を読み飛ばし、最大limit件のユーザーを返す。
	List(ctx context.Context, skip, limit int) ([]*model.User, error)

	// Create はis_active=true、is_admin=falseのユーザーを作成する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, email, hashedPassword string) (*model.User, error)

	// Update は指定IDのユーザーを部分更新し、更新後のユーザーを返す。
	// 見つからない場合はnil、メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Update(ctx context.Context, id int64, fields UserFields) (*model.User, error)

	// Delete は指定IDのユーザーを削除し、削除したユーザーを返す。
	// 見つからない場合はnilを返す。
	Delete(ctx context.Context, id int64) (*model.User, error)
}
