package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
)

// AssignmentRepository reads approver assignments. Assignment writes happen
// inside RequestRepository transitions so chain state and request state can
// never diverge.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `
	id, request_id, organization_id, approver_id, order_position,
	status, decision_at, comments, created_at, updated_at`

// GetByRequestID returns all assignments for a request ordered by position.
func (r *AssignmentRepository) GetByRequestID(ctx context.Context, requestID, organizationID string) ([]*ApproverAssignment, error) {
	query := `SELECT` + assignmentColumns + `
		FROM approver_assignments
		WHERE request_id = $1 AND organization_id = $2
		ORDER BY order_position ASC
	`

	rows, err := r.db.Query(ctx, query, requestID, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approver assignments")
	}
	defer rows.Close()

	return scanAssignmentRows(rows)
}

// GetPendingForUser returns the requests currently awaiting a decision from
// userID: their pending assignment must sit at the request's turn pointer.
func (r *AssignmentRepository) GetPendingForUser(ctx context.Context, organizationID, userID string) ([]*ApproverAssignment, error) {
	query := `
		SELECT a.id, a.request_id, a.organization_id, a.approver_id, a.order_position,
		       a.status, a.decision_at, a.comments, a.created_at, a.updated_at
		FROM approver_assignments a
		JOIN purchase_requests pr ON pr.id = a.request_id
		WHERE a.organization_id = $1
		  AND a.approver_id = $2
		  AND a.status = 'pending'
		  AND pr.status = 'in_approval'
		  AND pr.current_approver_position = a.order_position
		ORDER BY a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, organizationID, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return scanAssignmentRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanAssignmentRows(rows pgx.Rows) ([]*ApproverAssignment, error) {
	var assignments []*ApproverAssignment
	for rows.Next() {
		a := &ApproverAssignment{}
		err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.OrganizationID,
			&a.ApproverID,
			&a.OrderPosition,
			&a.Status,
			&a.DecisionAt,
			&a.Comments,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approver assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}
