// Package auth implements session-token authentication for the admin
// API. Tokens are opaque UUIDs held in memory; a restart invalidates
// all sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrTokenExpired       = errors.New("token expired")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)

const (
	defaultSessionTTL = 24 * time.Hour
	maxLoginAttempts  = 5
)

type session struct {
	UserID    int64
	Role      domain.Role
	ExpiresAt time.Time
}

// Service validates credentials against the user repository and tracks
// live sessions.
type Service struct {
	repo          ports.UserRepository
	sessions      map[string]session
	loginAttempts map[string]int
	mu            sync.RWMutex
	sessionTTL    time.Duration
	now           func() time.Time
}

var _ ports.AuthService = (*Service)(nil)

func NewService(repo ports.UserRepository) *Service {
	return &Service{
		repo:          repo,
		sessions:      make(map[string]session),
		loginAttempts: make(map[string]int),
		sessionTTL:    defaultSessionTTL,
		now:           time.Now,
	}
}

func (s *Service) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	s.mu.Lock()
	if s.loginAttempts[creds.Username] >= maxLoginAttempts {
		s.mu.Unlock()
		return "", ErrRateLimitExceeded
	}
	s.mu.Unlock()

	// Generic error on lookup failure to avoid username enumeration.
	user, err := s.repo.UserByUsername(ctx, creds.Username)
	if err != nil {
		s.recordFailure(creds.Username)
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		s.recordFailure(creds.Username)
		return "", ErrInvalidCredentials
	}

	user.LastLogin = s.now()
	if err := s.repo.UserSave(ctx, user); err != nil {
		return "", fmt.Errorf("failed to record login: %w", err)
	}

	token := uuid.New().String()
	s.mu.Lock()
	delete(s.loginAttempts, creds.Username)
	s.sessions[token] = session{
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	s.mu.Unlock()

	return token, nil
}

func (s *Service) recordFailure(username string) {
	s.mu.Lock()
	s.loginAttempts[username]++
	s.mu.Unlock()
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}

	if s.now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrTokenExpired
	}

	return s.repo.UserByID(ctx, sess.UserID)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *Service) CreateUser(ctx context.Context, user domain.User, password string) error {
	if err := user.Validate(); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.CreatedAt = s.now()

	return s.repo.UserSave(ctx, &user)
}
