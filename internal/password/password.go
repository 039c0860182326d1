// Package password はパスワードの一方向ハッシュ化と検証を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength はbcryptが扱える平文の最大バイト長。
const MaxLength = 72

// ErrPasswordTooLong は平文がMaxLengthを超える場合に返る。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher はbcryptによるパスワードハッシュ化を行う。
// 状態を持たないため複数goroutineから同時に利用できる。
type Hasher struct {
	cost int
}

// NewHasher は指定コストのHasherを生成する。
// 範囲外のコストはbcrypt.DefaultCostに置き換える。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードのダイジェストを返す。
// ソルトは呼び出しごとにランダムに生成されるため、同じ入力でも結果は毎回異なる。
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文がダイジェストに一致する場合にtrueを返す。
// ダイジェストが壊れている、または別方式の場合はfalseを返す。
func (h *Hasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

var defaultHasher = NewHasher(bcrypt.DefaultCost)

// Hash はデフォルトコストで平文パスワードをハッシュ化する。
func Hash(plain string) (string, error) {
	return defaultHasher.Hash(plain)
}

// Verify はデフォルトHasherで平文とダイジェストを照合する。
func Verify(plain, digest string) bool {
	return defaultHasher.Verify(plain, digest)
}
