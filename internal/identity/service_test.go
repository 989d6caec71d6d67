package identity

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	return Config{
		SecretKey:     "test-secret",
		TokenDuration: time.Hour,
		BcryptCost:    bcrypt.MinCost,
		Users: []UserConfig{
			{Username: "Admin", FullName: "Ada Admin", Role: domain.RoleAdmin, Password: "admin123"},
			{Username: "oncall", FullName: "On Call", Role: domain.RoleResponder, Password: "pager"},
		},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(testConfig())
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing secret", func(c *Config) { c.SecretKey = "" }, ErrMissingSecret},
		{"duplicate user", func(c *Config) {
			c.Users = append(c.Users, UserConfig{Username: "admin", Role: domain.RoleViewer, Password: "x"})
		}, ErrDuplicateUser},
		{"bad role", func(c *Config) { c.Users[1].Role = "operator" }, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewService(cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogin_IssuesValidToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, "ADMIN", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "admin", token.User.Username)
	assert.NotContains(t, token.AccessToken, "admin123")

	userID, role, err := svc.ValidateToken(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", userID)
	assert.Equal(t, domain.RoleAdmin, role)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(token.AccessToken, &claims)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, "oncall", "pager")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.now = time.Now }()
		_, _, err := svc.ValidateToken(ctx, token.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.SecretKey = "another-secret"
		other, err := NewService(cfg)
		require.NoError(t, err)
		_, _, err = other.ValidateToken(ctx, token.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := svc.ValidateToken(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewService_PrehashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewService(Config{
		SecretKey: "k",
		Users:     []UserConfig{{Username: "viewer", Role: domain.RoleViewer, PasswordHash: string(hash)}},
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "viewer", "s3cret")
	require.NoError(t, err)
}
