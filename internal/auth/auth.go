// Package auth issues and checks the bearer tokens that identify a user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

const DefaultBcryptCost = 12

var (
	// ErrUnauthenticated is returned for any request without a valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials wraps ErrUnauthenticated for a failed login.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

type Service struct {
	secret     []byte
	expiry     time.Duration
	bcryptCost int
	users      store.UserRepository
	now        func() time.Time
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret string, expiry time.Duration, users store.UserRepository, opts ...Option) *Service {
	s := &Service{
		secret:     []byte(secret),
		expiry:     expiry,
		bcryptCost: DefaultBcryptCost,
		users:      users,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return core.User{}, fmt.Errorf("%w: invalid email %q", core.ErrValidation, email)
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	return s.users.CreateUser(ctx, core.User{Email: email, PasswordHash: hash, CreatedAt: s.now().UTC()})
}

// Login checks the credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// spend the same time as a real comparison
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z1/S6yFnL1cG9yEoSSaS1i7K"), []byte(password))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.IssueToken(u.ID)
}

func (s *Service) IssueToken(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.expiry)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken returns the user id carried by a valid token.
func (s *Service) ValidateToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

type ctxKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" when there is none.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequireUser returns the authenticated user id or ErrUnauthenticated.
func RequireUser(ctx context.Context) (string, error) {
	if id := UserID(ctx); id != "" {
		return id, nil
	}
	return "", ErrUnauthenticated
}
