// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービスに登録されたアカウントを表す。
// HashedPasswordはbcryptダイジェストであり、平文パスワードは保持しない。
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	IsActive       bool
	IsAdmin        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserUpdate は管理者によるユーザー部分更新の入力を表す。
// nilのフィールドは更新しない。EmailとPasswordは空文字列も未指定として扱う。
type UserUpdate struct {
	Email    *string
	Password *string
	IsActive *bool
	IsAdmin  *bool
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u UserUpdate) IsEmpty() bool {
	return (u.Email == nil || *u.Email == "") &&
		(u.Password == nil || *u.Password == "") &&
		u.IsActive == nil &&
		u.IsAdmin == nil
}
