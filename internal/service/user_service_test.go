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

	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type mockUserRepo struct {
	items       map[string]*models.User
	emails      map[string]*models.User
	deactivated []string
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.items[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.emails[email]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, user := range m.items {
		out = append(out, *user)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.items == nil {
		m.items = make(map[string]*models.User)
	}
	if m.emails == nil {
		m.emails = make(map[string]*models.User)
	}
	if user.ID == "" {
		user.ID = "generated"
	}
	cp := *user
	m.items[user.ID] = &cp
	m.emails[user.Email] = &cp
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	m.deactivated = append(m.deactivated, id)
	m.items[id].Active = false
	return nil
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{}
	audits := &mockAuditWriter{}
	service := NewUserService(repo, audits, validator.New(), zap.NewNop())

	user, err := service.Create(context.Background(), CreateUserPayload{
		Email:    "Clerk@Example.com",
		FullName: "Clerk One",
		Password: "secret1",
		Role:     models.RoleClerk,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "clerk@example.com", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
	assert.Equal(t, 1, audits.count())
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{emails: map[string]*models.User{
		"clerk@example.com": {ID: "u-1", Email: "clerk@example.com"},
	}}
	service := NewUserService(repo, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), CreateUserPayload{
		Email:    "clerk@example.com",
		FullName: "Clerk One",
		Password: "secret1",
		Role:     models.RoleClerk,
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	service := NewUserService(&mockUserRepo{}, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), CreateUserPayload{
		Email:    "clerk@example.com",
		FullName: "Clerk One",
		Password: "secret1",
		Role:     models.UserRole("SUPERVISOR"),
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivate(t *testing.T) {
	repo := &mockUserRepo{items: map[string]*models.User{
		"u-1": {ID: "u-1", Email: "clerk@example.com", Role: models.RoleClerk, Active: true},
	}}
	service := NewUserService(repo, nil, validator.New(), zap.NewNop())

	err := service.Deactivate(context.Background(), "u-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, repo.deactivated)
}

func TestUserServiceDeactivateMissing(t *testing.T) {
	service := NewUserService(&mockUserRepo{}, nil, validator.New(), zap.NewNop())

	err := service.Deactivate(context.Background(), "u-missing", "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
