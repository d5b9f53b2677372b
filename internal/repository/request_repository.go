package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicdesk/urbanism-api/internal/models"
)

// RequestRepository persists permit requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindByID loads a single request.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.Request, error) {
	const query = `SELECT id, citizen_id, request_type, status, title, address, description,
		legal_deadline, assigned_clerk_id, decision_note, created_at, updated_at
		FROM requests WHERE id = $1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return &req, nil
}

// ListOpen returns every request in an open status, oldest first.
func (r *RequestRepository) ListOpen(ctx context.Context) ([]models.Request, error) {
	const query = `SELECT id, citizen_id, request_type, status, title, address, description,
		legal_deadline, assigned_clerk_id, decision_note, created_at, updated_at
		FROM requests WHERE status IN ('PENDING_VALIDATION', 'IN_REVIEW')
		ORDER BY created_at ASC, id ASC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	return requests, nil
}

// ListUnassignedPending returns assignment candidates in stable oldest-first order.
func (r *RequestRepository) ListUnassignedPending(ctx context.Context) ([]models.Request, error) {
	const query = `SELECT id, citizen_id, request_type, status, title, address, description,
		legal_deadline, assigned_clerk_id, decision_note, created_at, updated_at
		FROM requests WHERE status = 'PENDING_VALIDATION' AND assigned_clerk_id IS NULL
		ORDER BY created_at ASC, id ASC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list unassigned requests: %w", err)
	}
	return requests, nil
}

// List returns requests matching the filter plus the total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.CitizenID != "" {
		args = append(args, filter.CitizenID)
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)))
	}
	if filter.AssignedClerkID != "" {
		args = append(args, filter.AssignedClerkID)
		conditions = append(conditions, fmt.Sprintf("assigned_clerk_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM requests WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)
	listQuery := fmt.Sprintf(`SELECT id, citizen_id, request_type, status, title, address, description,
		legal_deadline, assigned_clerk_id, decision_note, created_at, updated_at
		FROM requests WHERE %s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return requests, total, nil
}

// Create inserts a new request.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO requests (id, citizen_id, request_type, status, title, address, description,
		legal_deadline, assigned_clerk_id, decision_note, created_at, updated_at)
		VALUES (:id, :citizen_id, :request_type, :status, :title, :address, :description,
		:legal_deadline, :assigned_clerk_id, :decision_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// UpdateDraft rewrites editable fields of a draft owned by its citizen.
func (r *RequestRepository) UpdateDraft(ctx context.Context, req *models.Request) error {
	req.UpdatedAt = time.Now().UTC()
	const query = `UPDATE requests SET request_type = :request_type, title = :title, address = :address,
		description = :description, legal_deadline = :legal_deadline, updated_at = :updated_at
		WHERE id = :id AND citizen_id = :citizen_id AND status = 'DRAFT'`
	result, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("update draft request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated draft rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves a request to a new lifecycle status.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, decisionNote string) error {
	const query = `UPDATE requests SET status = $1, decision_note = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, status, decisionNote, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AssignIfUnassigned performs the conditional claim write. The WHERE clause is
// the compare-and-set guard: the row is only touched while it is still an
// unassigned PENDING_VALIDATION request, so two concurrent claimers can never
// both win.
func (r *RequestRepository) AssignIfUnassigned(ctx context.Context, requestID, clerkID string) (bool, error) {
	const query = `UPDATE requests SET assigned_clerk_id = $1, updated_at = $2
		WHERE id = $3 AND assigned_clerk_id IS NULL AND status = 'PENDING_VALIDATION'`
	result, err := r.db.ExecContext(ctx, query, clerkID, time.Now().UTC(), requestID)
	if err != nil {
		return false, fmt.Errorf("assign request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check assigned rows: %w", err)
	}
	return affected > 0, nil
}

// ClerkWorkloads returns per-clerk open request counts. Clerks with nothing
// assigned do not appear; callers merge against the roster.
func (r *RequestRepository) ClerkWorkloads(ctx context.Context) ([]models.ClerkWorkload, error) {
	const query = `SELECT assigned_clerk_id AS clerk_id, COUNT(*) AS workload
		FROM requests
		WHERE assigned_clerk_id IS NOT NULL AND status NOT IN ('APPROVED', 'REJECTED')
		GROUP BY assigned_clerk_id
		ORDER BY assigned_clerk_id ASC`
	var workloads []models.ClerkWorkload
	if err := r.db.SelectContext(ctx, &workloads, query); err != nil {
		return nil, fmt.Errorf("count clerk workloads: %w", err)
	}
	return workloads, nil
}

// CountByStatus groups requests by lifecycle status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM requests GROUP BY status`
	rows := []struct {
		Status models.RequestStatus `db:"status"`
		Count  int                  `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	counts := make(map[models.RequestStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountOpenByType groups open requests by category.
func (r *RequestRepository) CountOpenByType(ctx context.Context) ([]models.CategoryBacklog, error) {
	const query = `SELECT request_type, COUNT(*) AS count FROM requests
		WHERE status IN ('PENDING_VALIDATION', 'IN_REVIEW')
		GROUP BY request_type ORDER BY request_type ASC`
	var backlogs []models.CategoryBacklog
	if err := r.db.SelectContext(ctx, &backlogs, query); err != nil {
		return nil, fmt.Errorf("count open requests by type: %w", err)
	}
	return backlogs, nil
}

// CountUnassigned returns how many open requests currently lack a clerk.
func (r *RequestRepository) CountUnassigned(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM requests WHERE status = 'PENDING_VALIDATION' AND assigned_clerk_id IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count unassigned requests: %w", err)
	}
	return count, nil
}
