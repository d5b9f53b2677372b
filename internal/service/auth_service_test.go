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

	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	userByID         *models.User
	refreshTokens    map[string]*models.RefreshToken
	lastLoginUpdated bool
	sessionsRevoked  bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByID != nil && m.userByID.ID == id {
		return m.userByID, nil
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.sessionsRevoked = true
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func newAuthService(repo *mockAuthRepo, audits auditWriter) *AuthService {
	return NewAuthService(repo, audits, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "urbanism-api",
	})
}

func hashedPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "password"),
		Active: true, Role: models.RoleClerk,
	}}
	audits := &mockAuditWriter{}
	svc := newAuthService(repo, audits)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleClerk, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.Equal(t, 1, audits.count())

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleClerk, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "password"),
		Active: true, Role: models.RoleClerk,
	}}
	svc := newAuthService(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "password"),
		Active: false, Role: models.RoleClerk,
	}}
	svc := newAuthService(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "password"),
		Active: true, Role: models.RoleClerk,
	}}
	svc := newAuthService(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@example.com", Password: "password"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)
}

func TestAuthServiceRefreshRevokedToken(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAuthRepo{
		userByEmail: &models.User{ID: "u-1", Email: "clerk@example.com", Active: true, Role: models.RoleClerk},
		refreshTokens: map[string]*models.RefreshToken{
			"stale": {ID: "rt-1", UserID: "u-1", Token: "stale", ExpiresAt: now.Add(time.Hour), Revoked: true},
		},
	}
	svc := newAuthService(repo, nil)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &mockAuthRepo{
		refreshTokens: map[string]*models.RefreshToken{
			"session": {ID: "rt-1", UserID: "u-1", Token: "session", ExpiresAt: time.Now().UTC().Add(time.Hour)},
		},
	}
	svc := newAuthService(repo, nil)

	err := svc.Logout(context.Background(), "session", "u-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, repo.refreshTokens["session"].Revoked)
}

func TestAuthServiceLogoutForeignToken(t *testing.T) {
	repo := &mockAuthRepo{
		refreshTokens: map[string]*models.RefreshToken{
			"session": {ID: "rt-1", UserID: "someone-else", Token: "session", ExpiresAt: time.Now().UTC().Add(time.Hour)},
		},
	}
	svc := newAuthService(repo, nil)

	err := svc.Logout(context.Background(), "session", "u-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["session"].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "old-password"),
		Active: true, Role: models.RoleClerk,
	}}
	svc := newAuthService(repo, nil)

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{
		OldPassword: "old-password",
		NewPassword: "new-password",
	})
	require.NoError(t, err)
	assert.True(t, repo.sessionsRevoked)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.userByEmail.PasswordHash), []byte("new-password")))
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u-1", Email: "clerk@example.com", PasswordHash: hashedPassword(t, "password"),
		Active: true, Role: models.RoleClerk,
	}}
	svc := newAuthService(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@example.com", Password: "password"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	require.Error(t, err)
}
