package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository
	listFn   func(ctx context.Context, skip, limit int) ([]*model.User, error)
	updateFn func(ctx context.Context, id int64, fields repository.UserFields) (*model.User, error)
	deleteFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) List(ctx context.Context, skip, limit int) ([]*model.User, error) {
	return m.listFn(ctx, skip, limit)
}

func (m *mockUserRepo) Update(ctx context.Context, id int64, fields repository.UserFields) (*model.User, error) {
	return m.updateFn(ctx, id, fields)
}

func (m *mockUserRepo) Delete(ctx context.Context, id int64) (*model.User, error) {
	return m.deleteFn(ctx, id)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newMemoryService(t *testing.T) (*Service, *repository.MemoryUserRepo) {
	t.Helper()
	repo := repository.NewMemoryUserRepo()
	return NewService(repo, password.NewHasher(bcrypt.MinCost)), repo
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

// TestService_List_NormalizesPaging はページング値の補正を検証する。
func TestService_List_NormalizesPaging(t *testing.T) {
	tests := []struct {
		name      string
		skip      int
		limit     int
		wantSkip  int
		wantLimit int
	}{
		{name: "defaults", skip: 0, limit: 0, wantSkip: 0, wantLimit: DefaultLimit},
		{name: "negative skip", skip: -5, limit: 10, wantSkip: 0, wantLimit: 10},
		{name: "negative limit", skip: 3, limit: -1, wantSkip: 3, wantLimit: DefaultLimit},
		{name: "limit above max", skip: 0, limit: 5000, wantSkip: 0, wantLimit: MaxLimit},
		{name: "pass through", skip: 20, limit: 50, wantSkip: 20, wantLimit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSkip, gotLimit int
			repo := &mockUserRepo{
				listFn: func(ctx context.Context, skip, limit int) ([]*model.User, error) {
					gotSkip, gotLimit = skip, limit
					return nil, nil
				},
			}
			svc := NewService(repo, nil)

			users, err := svc.List(context.Background(), tt.skip, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if users == nil {
				t.Error("List should return an empty slice, not nil")
			}
			if gotSkip != tt.wantSkip || gotLimit != tt.wantLimit {
				t.Errorf("repo called with (%d, %d), want (%d, %d)", gotSkip, gotLimit, tt.wantSkip, tt.wantLimit)
			}
		})
	}
}

func TestService_List_ReturnsInIDOrder(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if _, err := repo.Create(ctx, email, "d"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	users, err := svc.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0].Email != "b@x.com" {
		t.Errorf("List(1,1) = %+v, want b@x.com only", users)
	}
}

func TestService_List_RepoError(t *testing.T) {
	repo := &mockUserRepo{
		listFn: func(ctx context.Context, skip, limit int) ([]*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	if _, err := NewService(repo, nil).List(context.Background(), 0, 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := newMemoryService(t)

	_, err := svc.Get(context.Background(), 42)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_Update_PartialFields は指定フィールドのみが更新されることを検証する。
func TestService_Update_PartialFields(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	created, _ := repo.Create(ctx, "a@x.com", "digest")

	updated, err := svc.Update(ctx, created.ID, model.UserUpdate{IsAdmin: boolPtr(true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.IsAdmin {
		t.Error("IsAdmin should be true")
	}
	if !updated.IsActive {
		t.Error("IsActive should stay true")
	}
	if updated.Email != "a@x.com" || updated.HashedPassword != "digest" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
}

func TestService_Update_PasswordIsHashed(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	created, _ := repo.Create(ctx, "a@x.com", "digest")

	updated, err := svc.Update(ctx, created.ID, model.UserUpdate{Password: strPtr("new-pw")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.HashedPassword == "new-pw" {
		t.Fatal("password stored in plain text")
	}
	if !password.Verify("new-pw", updated.HashedPassword) {
		t.Error("stored digest should verify against the new password")
	}
}

func TestService_Update_EmptyStringsIgnored(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	created, _ := repo.Create(ctx, "a@x.com", "digest")

	updated, err := svc.Update(ctx, created.ID, model.UserUpdate{
		Email:    strPtr(""),
		Password: strPtr(""),
		IsActive: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Email != "a@x.com" {
		t.Errorf("Email = %q, want unchanged", updated.Email)
	}
	if updated.HashedPassword != "digest" {
		t.Error("password should be unchanged")
	}
	if updated.IsActive {
		t.Error("IsActive should be false")
	}
}

func TestService_Update_NoFields_ReturnsCurrent(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	created, _ := repo.Create(ctx, "a@x.com", "digest")

	got, err := svc.Update(ctx, created.ID, model.UserUpdate{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}

	_, err = svc.Update(ctx, 999, model.UserUpdate{})
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestService_Update_Errors(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	a, _ := repo.Create(ctx, "a@x.com", "d")
	if _, err := repo.Create(ctx, "b@x.com", "d"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name     string
		id       int64
		upd      model.UserUpdate
		wantCode string
	}{
		{name: "duplicate email", id: a.ID, upd: model.UserUpdate{Email: strPtr("b@x.com")}, wantCode: model.ErrCodeEmailAlreadyRegistered},
		{name: "invalid email", id: a.ID, upd: model.UserUpdate{Email: strPtr("nope")}, wantCode: model.ErrCodeValidation},
		{name: "password too long", id: a.ID, upd: model.UserUpdate{Password: strPtr(strings.Repeat("x", 73))}, wantCode: model.ErrCodeValidation},
		{name: "not found", id: 999, upd: model.UserUpdate{IsAdmin: boolPtr(true)}, wantCode: model.ErrCodeUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.id, tt.upd)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo := newMemoryService(t)
	ctx := context.Background()
	created, _ := repo.Create(ctx, "a@x.com", "d")

	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.Email != "a@x.com" {
		t.Errorf("deleted.Email = %q", deleted.Email)
	}

	_, err = svc.Get(ctx, created.ID)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)

	_, err = svc.Delete(ctx, created.ID)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestService_Delete_RepoError(t *testing.T) {
	repo := &mockUserRepo{
		deleteFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	_, err := NewService(repo, nil).Delete(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Error("store errors should not become APIError")
	}
}
