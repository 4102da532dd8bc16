package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexio-platform/nexio/internal/shared"
)

type stubRepo struct {
	users map[string]*User
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	return nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := &stubRepo{users: map[string]*User{
		"mario@example.com": {ID: 1, Email: "mario@example.com", PasswordHash: hash(t, "s3cret"), Role: RoleAdmin, TenantID: 1, IsActive: true},
	}}
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "mario@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.False(t, user.Elevated())
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := &stubRepo{users: map[string]*User{
		"mario@example.com": {PasswordHash: hash(t, "s3cret"), IsActive: true},
	}}
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "mario@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := NewService(&stubRepo{users: map[string]*User{}})
	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "x")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	repo := &stubRepo{users: map[string]*User{
		"off@example.com": {PasswordHash: hash(t, "s3cret"), IsActive: false},
	}}
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "off@example.com", "s3cret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestElevatedRoles(t *testing.T) {
	require.True(t, (&User{Role: RoleSuperAdmin}).Elevated())
	require.False(t, (&User{Role: RoleAdmin}).Elevated())
	require.False(t, (&User{Role: RoleStandardUser}).Elevated())
}
