// Package identity authenticates statically configured users and issues JWTs.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Identity errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrDuplicateUser      = errors.New("duplicate username")
	ErrInvalidRole        = errors.New("invalid role")
	ErrMissingSecret      = errors.New("jwt secret is required")
)

const issuer = "incident-tracker"

// UserConfig describes a configured account. Password is plaintext and is
// hashed on startup; PasswordHash is used as-is when set.
type UserConfig struct {
	Username     string
	FullName     string
	Role         domain.Role
	Password     string
	PasswordHash string
}

// Config holds identity settings.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
	Users         []UserConfig
	BcryptCost    int
}

// Claims are the JWT claims issued on login.
type Claims struct {
	jwt.RegisteredClaims
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *domain.User `json:"user"`
}

// Service provides authentication.
type Service struct {
	secret   []byte
	duration time.Duration
	users    map[string]*domain.User
	byID     map[string]*domain.User
	now      func() time.Time
}

// NewService hashes configured passwords and builds the user index.
func NewService(cfg Config) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Service{
		secret:   []byte(cfg.SecretKey),
		duration: cfg.TokenDuration,
		users:    make(map[string]*domain.User, len(cfg.Users)),
		byID:     make(map[string]*domain.User, len(cfg.Users)),
		now:      time.Now,
	}

	for _, u := range cfg.Users {
		name := strings.ToLower(strings.TrimSpace(u.Username))
		if name == "" {
			continue
		}
		if _, ok := s.users[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
		}
		if !u.Role.IsValid() {
			return nil, fmt.Errorf("%w: %s for user %s", ErrInvalidRole, u.Role, u.Username)
		}

		hash := u.PasswordHash
		if hash == "" {
			b, err := bcrypt.GenerateFromPassword([]byte(u.Password), cfg.BcryptCost)
			if err != nil {
				return nil, fmt.Errorf("hash password for %s: %w", u.Username, err)
			}
			hash = string(b)
		}

		user := &domain.User{
			ID:           name,
			Username:     name,
			FullName:     u.FullName,
			Role:         u.Role,
			PasswordHash: hash,
		}
		s.users[name] = user
		s.byID[user.ID] = user
	}

	slog.Info("identity configured", "users", len(s.users))
	return s, nil
}

// Login checks credentials and issues a signed token.
func (s *Service) Login(_ context.Context, username, password string) (*Token, error) {
	user, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.duration)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Username: user.Username,
		Role:     user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	slog.Info("user logged in", "username", user.Username, "role", user.Role)

	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expires.UTC(),
		User:        user,
	}, nil
}

// ValidateToken parses a bearer token and returns its subject and role.
func (s *Service) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}

	user, ok := s.byID[claims.Subject]
	if !ok {
		return "", "", ErrInvalidToken
	}
	return user.ID, user.Role, nil
}

// GetUserByID returns a configured user.
func (s *Service) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}
