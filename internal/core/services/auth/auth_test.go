package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// MockUserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) UserSave(ctx context.Context, user *domain.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UserList(ctx context.Context) ([]domain.User, error) {
	args := m.Called()
	return args.Get(0).([]domain.User), args.Error(1)
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hashed)
}

func TestLogin(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	user := &domain.User{
		ID:           1,
		Username:     "admin",
		PasswordHash: hashFor(t, "secret123"),
		Role:         domain.RoleAdmin,
	}

	// Success; a login also records LastLogin.
	mockRepo.On("UserByUsername", "admin").Return(user, nil)
	mockRepo.On("UserSave", mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == 1 && !u.LastLogin.IsZero()
	})).Return(nil)

	token, err := svc.Login(context.Background(), domain.Credentials{Username: "admin", Password: "secret123"})
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Wrong password.
	token, err = svc.Login(context.Background(), domain.Credentials{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, token)

	// Unknown user is masked as invalid credentials.
	mockRepo.On("UserByUsername", "ghost").Return(nil, errors.New("user not found"))
	_, err = svc.Login(context.Background(), domain.Credentials{Username: "ghost", Password: "any"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRateLimit(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	mockRepo.On("UserByUsername", "bruteforce").Return(nil, errors.New("user not found"))

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(context.Background(), domain.Credentials{Username: "bruteforce", Password: "guess"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(context.Background(), domain.Credentials{Username: "bruteforce", Password: "guess"})
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestValidateToken(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	user := &domain.User{ID: 1, Username: "operator", PasswordHash: hashFor(t, "pass"), Role: domain.RoleOperator}
	mockRepo.On("UserByUsername", "operator").Return(user, nil)
	mockRepo.On("UserSave", mock.Anything).Return(nil)
	mockRepo.On("UserByID", int64(1)).Return(user, nil)

	token, err := svc.Login(context.Background(), domain.Credentials{Username: "operator", Password: "pass"})
	require.NoError(t, err)

	u, err := svc.ValidateToken(context.Background(), token)
	assert.NoError(t, err)
	assert.Equal(t, "operator", u.Username)

	u, err = svc.ValidateToken(context.Background(), "fake-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Nil(t, u)
}

func TestTokenExpiry(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	user := &domain.User{ID: 1, Username: "operator", PasswordHash: hashFor(t, "pass"), Role: domain.RoleOperator}
	mockRepo.On("UserByUsername", "operator").Return(user, nil)
	mockRepo.On("UserSave", mock.Anything).Return(nil)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	token, err := svc.Login(context.Background(), domain.Credentials{Username: "operator", Password: "pass"})
	require.NoError(t, err)

	clock = clock.Add(svc.sessionTTL + time.Second)
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// An expired token is removed, not merely rejected.
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogout(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	user := &domain.User{ID: 1, Username: "operator", PasswordHash: hashFor(t, "pass"), Role: domain.RoleOperator}
	mockRepo.On("UserByUsername", "operator").Return(user, nil)
	mockRepo.On("UserSave", mock.Anything).Return(nil)

	token, err := svc.Login(context.Background(), domain.Credentials{Username: "operator", Password: "pass"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), token))

	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestCreateUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := NewService(mockRepo)

	mockRepo.On("UserSave", mock.MatchedBy(func(u *domain.User) bool {
		return u.Username == "newuser" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password")) == nil
	})).Return(nil)

	err := svc.CreateUser(context.Background(), domain.User{Username: "newuser", Role: domain.RoleViewer}, "password")
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestCreateUserRejectsInvalidRole(t *testing.T) {
	svc := NewService(new(MockUserRepository))
	err := svc.CreateUser(context.Background(), domain.User{Username: "u", Role: "root"}, "password")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}
