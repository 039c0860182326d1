package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/accountd/internal/model"
)

// MemoryUserRepo はプロセス内メモリにユーザーを保持するリポジトリ。
// テストおよびDATABASE_URL=memory://でのローカル起動に使用する。
// 返却値はすべてコピーであり、呼び出し側が変更しても内部状態には影響しない。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*model.User
	byEmail map[string]int64
	now     func() time.Time
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		nextID:  1,
		byID:    make(map[int64]*model.User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copyUser(user), nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copyUser(r.byID[id]), nil
}

// List はID昇順でユーザー一覧を返す。
func (r *MemoryUserRepo) List(ctx context.Context, skip, limit int) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if skip < 0 {
		skip = 0
	}
	users := make([]*model.User, 0)
	for i := skip; i < len(ids) && len(users) < limit; i++ {
		users = append(users, copyUser(r.byID[ids[i]]))
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *MemoryUserRepo) Create(ctx context.Context, email, hashedPassword string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, ErrDuplicateEmail
	}

	now := r.now()
	user := &model.User{
		ID:             r.nextID,
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       true,
		IsAdmin:        false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.nextID++
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID

	return copyUser(user), nil
}

// Update は指定IDのユーザーを部分更新する。
func (r *MemoryUserRepo) Update(ctx context.Context, id int64, fields UserFields) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, nil
	}

	if fields.Email != nil && *fields.Email != user.Email {
		if _, exists := r.byEmail[*fields.Email]; exists {
			return nil, ErrDuplicateEmail
		}
		delete(r.byEmail, user.Email)
		user.Email = *fields.Email
		r.byEmail[user.Email] = user.ID
	}
	if fields.HashedPassword != nil {
		user.HashedPassword = *fields.HashedPassword
	}
	if fields.IsActive != nil {
		user.IsActive = *fields.IsActive
	}
	if fields.IsAdmin != nil {
		user.IsAdmin = *fields.IsAdmin
	}
	user.UpdatedAt = r.now()

	return copyUser(user), nil
}

// Delete は指定IDのユーザーを削除し、削除したユーザーを返す。
func (r *MemoryUserRepo) Delete(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	delete(r.byID, id)
	delete(r.byEmail, user.Email)

	return copyUser(user), nil
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
