package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	resetTokens   map[string]*models.PasswordResetToken
	revokedUsers  []string
	consumed      []string
	passwords     map[string]string
	audits        []models.AuditLog
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		resetTokens:   make(map[string]*models.PasswordResetToken),
		passwords:     make(map[string]string),
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	// issuing invalidates every outstanding token for the user
	for _, t := range m.resetTokens {
		if t.UserID == token.UserID {
			t.Used = true
		}
	}
	m.resetTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if t, ok := m.resetTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) ConsumePasswordResetToken(ctx context.Context, id string) error {
	for _, t := range m.resetTokens {
		if t.ID == id {
			t.Used = true
		}
	}
	m.consumed = append(m.consumed, id)
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		ResetTokenExpiry:   time.Hour,
		Issuer:             "internhub-test",
	}
}

func seedUser(repo *mockAuthRepo, id, email, password string, active bool) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Ada",
		LastName:     "Obi",
		Role:         models.RoleIntern,
		Active:       active,
	}
	repo.users[id] = user
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleIntern, claims.Role)
	assert.Equal(t, "Ada Obi", claims.FullName)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", false)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	// the revoked token cannot be replayed
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceForgotPasswordUnknownEmailSucceeds(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	token, err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestAuthServiceForgotPasswordInvalidatesOutstandingTokens(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	first, err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.True(t, repo.resetTokens[first.Token].Used)
	assert.False(t, repo.resetTokens[second.Token].Used)
}

func TestAuthServiceResetPassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	token, err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotNil(t, token)

	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Token:           token.Token,
		NewPassword:     "brand-new-pass",
		PasswordConfirm: "brand-new-pass",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.consumed, token.ID)
	assert.Contains(t, repo.revokedUsers, "u1")

	// the new password works, the old one does not
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "brand-new-pass"})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Error(t, err)

	// the token is single use
	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Token:           token.Token,
		NewPassword:     "another-pass",
		PasswordConfirm: "another-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceResetPasswordExpiredToken(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	repo.resetTokens["expired"] = &models.PasswordResetToken{
		ID:        "t1",
		UserID:    "u1",
		Token:     "expired",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Token:           "expired",
		NewPassword:     "brand-new-pass",
		PasswordConfirm: "brand-new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.consumed)
}

func TestAuthServiceResetPasswordConfirmMismatch(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Token:           "whatever",
		NewPassword:     "brand-new-pass",
		PasswordConfirm: "different-pass",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "password_confirm", appErr.Field)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(repo, "u1", "ada@example.com", "secret123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "brand-new-pass"})
	require.Error(t, err)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "secret123", NewPassword: "brand-new-pass"})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedUsers, "u1")
}
