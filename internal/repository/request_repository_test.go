package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/urbanism-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestColumns() []string {
	return []string{"id", "citizen_id", "request_type", "status", "title", "address", "description",
		"legal_deadline", "assigned_clerk_id", "decision_note", "created_at", "updated_at"}
}

func TestRequestRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(requestColumns()).
		AddRow("r-1", "cit-1", "CONSTRUCTION_PERMIT", "PENDING_VALIDATION", "Extend garage", "12 Elm Street", "", nil, nil, "", now, now)
	mock.ExpectQuery("SELECT id, citizen_id, request_type").
		WithArgs("r-1").
		WillReturnRows(rows)

	req, err := repo.FindByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, models.TypeConstructionPermit, req.Type)
	assert.Nil(t, req.AssignedClerkID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT id, citizen_id, request_type").
		WithArgs("r-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "r-missing")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRequestRepositoryListUnassignedPendingOrder(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'PENDING_VALIDATION' AND assigned_clerk_id IS NULL")).
		WillReturnRows(sqlmock.NewRows(requestColumns()).
			AddRow("r-1", "cit-1", "OTHER", "PENDING_VALIDATION", "A", "addr", "", nil, nil, "", time.Now(), time.Now()).
			AddRow("r-2", "cit-2", "OTHER", "PENDING_VALIDATION", "B", "addr", "", nil, nil, "", time.Now(), time.Now()))

	requests, err := repo.ListUnassignedPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAssignIfUnassigned(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET assigned_clerk_id = $1, updated_at = $2")).
		WithArgs("c-1", sqlmock.AnyArg(), "r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.AssignIfUnassigned(context.Background(), "r-1", "c-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAssignIfUnassignedLosesRace(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	// The guard matches no row once another clerk got there first.
	mock.ExpectExec(regexp.QuoteMeta("assigned_clerk_id IS NULL AND status = 'PENDING_VALIDATION'")).
		WithArgs("c-2", sqlmock.AnyArg(), "r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.AssignIfUnassigned(context.Background(), "r-1", "c-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestRepositoryClerkWorkloads(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY assigned_clerk_id")).
		WillReturnRows(sqlmock.NewRows([]string{"clerk_id", "workload"}).
			AddRow("c-1", 3).
			AddRow("c-2", 1))

	workloads, err := repo.ClerkWorkloads(context.Background())
	require.NoError(t, err)
	require.Len(t, workloads, 2)
	assert.Equal(t, "c-1", workloads[0].ClerkID)
	assert.Equal(t, 3, workloads[0].Workload)
}

func TestRequestRepositoryListFiltersAndPaginates(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE 1=1 AND citizen_id = $1 AND status IN ($2, $3)")).
		WithArgs("cit-1", models.StatusPendingValidation, models.StatusInReview).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $4 OFFSET $5")).
		WithArgs("cit-1", models.StatusPendingValidation, models.StatusInReview, 10, 0).
		WillReturnRows(sqlmock.NewRows(requestColumns()).
			AddRow("r-1", "cit-1", "OTHER", "PENDING_VALIDATION", "A", "addr", "", nil, nil, "", time.Now(), time.Now()))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{
		CitizenID: "cit-1",
		Statuses:  models.OpenStatuses,
		Page:      1,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, requests, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $1")).
		WithArgs(models.StatusInReview, "", sqlmock.AnyArg(), "r-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "r-missing", models.StatusInReview, "")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM requests GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING_VALIDATION", 4).
			AddRow("APPROVED", 9))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.StatusPendingValidation])
	assert.Equal(t, 9, counts[models.StatusApproved])
}
