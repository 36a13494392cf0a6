package authpw

import (
	"context"
	"errors"
	"testing"

	"lahtotiedot/api/internal/store"
)

type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func TestRegisterAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	user, err := svc.Register(ctx, RegisterRequest{
		Email:       "Liisa@Example.fi",
		Password:    "salasana123",
		DisplayName: "Liisa Edustaja",
		Role:        "edustaja",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "liisa@example.fi" {
		t.Errorf("email should be lowercased, got %q", user.Email)
	}
	if user.PasswordHash == "salasana123" {
		t.Fatalf("password stored unhashed")
	}

	got, err := svc.SignIn(ctx, "liisa@example.fi", "salasana123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("signed in as %q, want %q", got.ID, user.ID)
	}

	if _, err := svc.SignIn(ctx, "liisa@example.fi", "väärä"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password should fail with ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Password: "salasana123", DisplayName: "X"}},
		{"missing password", RegisterRequest{Email: "a@example.fi", DisplayName: "X"}},
		{"short password", RegisterRequest{Email: "a@example.fi", Password: "1234567", DisplayName: "X"}},
		{"missing display name", RegisterRequest{Email: "a@example.fi", Password: "salasana123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.req); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	req := RegisterRequest{Email: "a@example.fi", Password: "salasana123", DisplayName: "A"}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, req); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterNormalizesUnknownRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	user, err := svc.Register(ctx, RegisterRequest{
		Email:       "b@example.fi",
		Password:    "salasana123",
		DisplayName: "B",
		Role:        "superuser",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != "edustaja" {
		t.Errorf("unknown role should normalize to edustaja, got %q", user.Role)
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserStore()
	svc := NewService(mock)

	if err := svc.EnsureAdmin(ctx, "admin@example.fi", "salasana123"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	user, err := mock.GetUserByEmail(ctx, "admin@example.fi")
	if err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	if user.Role != "admin" {
		t.Errorf("expected admin role, got %q", user.Role)
	}

	// Second call must not error or duplicate.
	if err := svc.EnsureAdmin(ctx, "admin@example.fi", "salasana123"); err != nil {
		t.Fatalf("repeat seed: %v", err)
	}
	if len(mock.users) != 1 {
		t.Errorf("expected one user, got %d", len(mock.users))
	}

	// Empty config is a no-op.
	if err := svc.EnsureAdmin(ctx, "", ""); err != nil {
		t.Fatalf("empty seed: %v", err)
	}
}
