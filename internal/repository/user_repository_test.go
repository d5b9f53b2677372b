package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/urbanism-api/internal/models"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active",
		"last_login", "created_at", "updated_at"})
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1)")).
		WithArgs("Marie.Dupont@city.example").
		WillReturnRows(userRows().
			AddRow("u-1", "marie.dupont@city.example", "$2a$hash", "Marie Dupont", "CLERK", true, nil, now, now))

	user, err := repo.FindByEmail(context.Background(), "Marie.Dupont@city.example")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClerk, user.Role)
	assert.True(t, user.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1)")).
		WithArgs("ghost@city.example").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@city.example")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestUserRepositoryListActiveClerks(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = 'CLERK' AND active = true ORDER BY id ASC")).
		WillReturnRows(userRows().
			AddRow("c-1", "one@city.example", "h", "Clerk One", "CLERK", true, nil, now, now).
			AddRow("c-2", "two@city.example", "h", "Clerk Two", "CLERK", true, nil, now, now))

	clerks, err := repo.ListActiveClerks(context.Background())
	require.NoError(t, err)
	require.Len(t, clerks, 2)
	assert.Equal(t, "c-1", clerks[0].ID)
	assert.Equal(t, "c-2", clerks[1].ID)
}

func TestUserRepositoryListWithSearch(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleClerk
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1 AND (lower(email) LIKE $2 OR lower(full_name) LIKE $2)")).
		WithArgs(role, "%dupont%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $3 OFFSET $4")).
		WithArgs(role, "%dupont%", 20, 0).
		WillReturnRows(userRows().
			AddRow("u-1", "marie.dupont@city.example", "h", "Marie Dupont", "CLERK", true, nil, time.Now(), time.Now()))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Search: "Dupont"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeactivateMissing(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = false")).
		WithArgs(sqlmock.AnyArg(), "u-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "u-missing")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestUserRepositoryRefreshTokenRoundTrip(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token = $1")).
		WithArgs("raw-token").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at",
			"revoked", "revoked_at", "ip_address", "user_agent"}).
			AddRow("rt-1", "u-1", "raw-token", now.Add(time.Hour), now, false, nil, "127.0.0.1", "test-agent"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = true, revoked_at = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "rt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := repo.FindRefreshToken(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", stored.UserID)
	assert.False(t, stored.Revoked)

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), stored.ID, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
