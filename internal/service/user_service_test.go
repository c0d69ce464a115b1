package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	emails  map[string]bool
	created *models.User
	deleted []string
	audits  []models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return m.emails[email], nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	if m.emails == nil {
		m.emails = make(map[string]bool)
	}
	m.users[user.ID] = user
	m.emails[user.Email] = true
	m.created = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		u.Active = false
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func TestUserServiceRegister(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:           "Ada@Example.com",
		Password:        "secret123",
		PasswordConfirm: "secret123",
		FirstName:       "Ada",
		LastName:        "Obi",
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, models.RoleIntern, user.Role)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionRegister, repo.audits[0].Action)
}

func TestUserServiceRegisterPasswordMismatch(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:           "ada@example.com",
		Password:        "secret123",
		PasswordConfirm: "secret124",
		FirstName:       "Ada",
		LastName:        "Obi",
	}, models.LoginRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "password_confirm", appErr.Field)
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{emails: map[string]bool{"ada@example.com": true}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:           "ada@example.com",
		Password:        "secret123",
		PasswordConfirm: "secret123",
		FirstName:       "Ada",
		LastName:        "Obi",
	}, models.LoginRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "email", appErr.Field)
}

func TestUserServiceGetScopesInterns(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ada@example.com", Active: true},
		"u2": {ID: "u2", Email: "bola@example.com", Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), internClaims("u1"), "u2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.Get(context.Background(), internClaims("u1"), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestUserServiceUpdateProfile(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Email: "ada@example.com", FirstName: "Ada", Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	last := "Eze"
	dob := "2000-04-15"
	user, err := svc.UpdateProfile(context.Background(), internClaims("u1"), UpdateProfileRequest{LastName: &last, DateOfBirth: &dob})
	require.NoError(t, err)
	assert.Equal(t, "Eze", user.LastName)
	require.NotNil(t, user.DateOfBirth)
	assert.Equal(t, 2000, user.DateOfBirth.Year())

	bad := "15/04/2000"
	_, err = svc.UpdateProfile(context.Background(), internClaims("u1"), UpdateProfileRequest{DateOfBirth: &bad})
	require.Error(t, err)
	assert.Equal(t, "date_of_birth", appErrors.FromError(err).Field)
}

func TestUserServiceDeactivateAdminOnly(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Email: "ada@example.com", Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.Deactivate(context.Background(), internClaims("u2"), "u1")
	require.Error(t, err)

	err = svc.Deactivate(context.Background(), adminClaims("admin"), "u1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "u1")
	assert.False(t, repo.users["u1"].Active)
}
