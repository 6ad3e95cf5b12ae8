package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
)

// RequestRepository manages purchase request rows and owns every guarded
// status transition. Each transition is applied in a single transaction with
// a compare-and-set on (status, current_approver_position), so two actors
// racing on the same turn cannot both advance the pointer: the loser's
// conditional update matches zero rows and surfaces as a CONFLICT.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, organization_id, request_number, title, justification,
	amount_cents, currency, category, urgency,
	supplier_name, needed_date, requester_id,
	status, current_approver_position, total_approvers,
	rule_id, contract_id, submitted_at, completed_at,
	created_at, updated_at`

// CreateDraft inserts a new draft request, claiming the next request number
// for the tenant's current calendar year in the same transaction. Numbers are
// formatted PR-<year>-<4-digit sequence> and are strictly monotonic within a
// tenant and year.
func (r *RequestRepository) CreateDraft(ctx context.Context, req *PurchaseRequest, event *HistoryEvent) error {
	req.ID = uuid.NewString()
	req.Status = RequestStatusDraft

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		year := time.Now().UTC().Year()

		seqQuery := `
			INSERT INTO request_number_sequences (organization_id, year, last_value)
			VALUES ($1, $2, 1)
			ON CONFLICT (organization_id, year)
			DO UPDATE SET last_value = request_number_sequences.last_value + 1
			RETURNING last_value
		`
		var seq int
		if err := tx.QueryRow(ctx, seqQuery, req.OrganizationID, year).Scan(&seq); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to claim request number")
		}
		req.RequestNumber = fmt.Sprintf("PR-%d-%04d", year, seq)

		insertQuery := `
			INSERT INTO purchase_requests
			    (id, organization_id, request_number, title, justification,
			     amount_cents, currency, category, urgency,
			     supplier_name, needed_date, requester_id,
			     status, total_approvers)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8, $9,
			        $10, $11, $12,
			        $13, 0)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, insertQuery,
			req.ID,
			req.OrganizationID,
			req.RequestNumber,
			req.Title,
			req.Justification,
			req.AmountCents,
			req.Currency,
			req.Category,
			req.Urgency,
			req.SupplierName,
			req.NeededDate,
			req.RequesterID,
			req.Status,
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase request")
		}

		event.RequestID = req.ID
		event.OrganizationID = req.OrganizationID
		return insertEventTx(ctx, tx, event)
	})
}

// GetByID retrieves a request by primary key within a tenant.
func (r *RequestRepository) GetByID(ctx context.Context, id, organizationID string) (*PurchaseRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM purchase_requests
		WHERE id = $1 AND organization_id = $2
	`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, organizationID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("purchase_request", id)
	}
	return req, err
}

// ListByRequester returns a requester's own requests, newest first.
func (r *RequestRepository) ListByRequester(ctx context.Context, organizationID, requesterID string, limit, offset int) ([]*PurchaseRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM purchase_requests
		WHERE organization_id = $1 AND requester_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, organizationID, requesterID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list purchase requests")
	}
	defer rows.Close()

	return scanRequestRows(rows)
}

// UpdateDraft persists field edits. The WHERE clause keeps the draft-only
// mutability rule enforced at the storage layer as well.
func (r *RequestRepository) UpdateDraft(ctx context.Context, req *PurchaseRequest, event *HistoryEvent) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE purchase_requests
			SET title         = $3,
			    justification = $4,
			    amount_cents  = $5,
			    currency      = $6,
			    category      = $7,
			    urgency       = $8,
			    supplier_name = $9,
			    needed_date   = $10,
			    updated_at    = NOW()
			WHERE id = $1 AND organization_id = $2 AND status = 'draft'
			RETURNING updated_at
		`
		err := tx.QueryRow(ctx, query,
			req.ID,
			req.OrganizationID,
			req.Title,
			req.Justification,
			req.AmountCents,
			req.Currency,
			req.Category,
			req.Urgency,
			req.SupplierName,
			req.NeededDate,
		).Scan(&req.UpdatedAt)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request is no longer editable")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update purchase request")
		}
		return insertEventTx(ctx, tx, event)
	})
}

// DeleteDraft removes a draft request together with its owned rows.
func (r *RequestRepository) DeleteDraft(ctx context.Context, id, organizationID string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"request_attachments", "request_history", "approver_assignments"} {
			q := fmt.Sprintf("DELETE FROM %s WHERE request_id = $1 AND organization_id = $2", table)
			if _, err := tx.Exec(ctx, q, id, organizationID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete request children")
			}
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM purchase_requests WHERE id = $1 AND organization_id = $2 AND status = 'draft'`,
			id, organizationID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete purchase request")
		}
		if tag.RowsAffected() == 0 {
			return errors.Conflict("request is not a draft or does not exist")
		}
		return nil
	})
}

// Submit flips a draft into approval, persists the resolved chain and appends
// the submit history events, all in one transaction. The status guard on the
// UPDATE makes concurrent double-submission a CONFLICT for the loser.
func (r *RequestRepository) Submit(ctx context.Context, sub *Submission) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE purchase_requests
			SET status                    = 'in_approval',
			    current_approver_position = 1,
			    total_approvers           = $3,
			    rule_id                   = $4,
			    submitted_at              = $5,
			    updated_at                = NOW()
			WHERE id = $1 AND organization_id = $2 AND status = 'draft'
			RETURNING id
		`
		var returnedID string
		err := tx.QueryRow(ctx, query,
			sub.RequestID,
			sub.OrganizationID,
			len(sub.Assignments),
			sub.RuleID,
			sub.SubmittedAt,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request is not in draft status")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to submit purchase request")
		}

		assignmentQuery := `
			INSERT INTO approver_assignments
			    (id, request_id, organization_id, approver_id, order_position, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')
		`
		for _, a := range sub.Assignments {
			a.ID = uuid.NewString()
			a.RequestID = sub.RequestID
			a.OrganizationID = sub.OrganizationID
			a.Status = AssignmentStatusPending
			if _, err := tx.Exec(ctx, assignmentQuery,
				a.ID, a.RequestID, a.OrganizationID, a.ApproverID, a.OrderPosition,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approver assignment")
			}
		}

		for _, e := range sub.Events {
			if err := insertEventTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyDecision applies an approve or reject transition atomically: the
// assignment row is settled, positions after a rejection are skipped, the
// request row is updated under the compare-and-set guard and the history
// event is appended. A guard miss leaves everything untouched.
func (r *RequestRepository) ApplyDecision(ctx context.Context, d *Decision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// Settle the acting approver's assignment; must still be pending.
		assignmentQuery := `
			UPDATE approver_assignments
			SET status      = $4,
			    decision_at = NOW(),
			    comments    = $5,
			    updated_at  = NOW()
			WHERE request_id = $1 AND organization_id = $2
			  AND order_position = $3 AND status = 'pending'
			RETURNING id
		`
		var assignmentID string
		err := tx.QueryRow(ctx, assignmentQuery,
			d.RequestID,
			d.OrganizationID,
			d.AssignmentPosition,
			d.AssignmentStatus,
			d.Comments,
		).Scan(&assignmentID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("assignment has already been decided")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approver assignment")
		}

		// Cascade: everything after a rejecting position is skipped.
		if d.SkipAfter != nil {
			skipQuery := `
				UPDATE approver_assignments
				SET status     = 'skipped',
				    updated_at = NOW()
				WHERE request_id = $1 AND organization_id = $2
				  AND order_position > $3 AND status = 'pending'
			`
			if _, err := tx.Exec(ctx, skipQuery, d.RequestID, d.OrganizationID, *d.SkipAfter); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to skip remaining assignments")
			}
		}

		// Compare-and-set on the request row. The position check only applies
		// to approvals; rejection is allowed from any pending position.
		requestQuery := `
			UPDATE purchase_requests
			SET status                    = $3,
			    current_approver_position = COALESCE($4, current_approver_position),
			    completed_at              = $5,
			    updated_at                = NOW()
			WHERE id = $1 AND organization_id = $2
			  AND status = 'in_approval'
			  AND ($6::int IS NULL OR current_approver_position = $6)
			RETURNING id
		`
		var requestID string
		err = tx.QueryRow(ctx, requestQuery,
			d.RequestID,
			d.OrganizationID,
			d.NewStatus,
			d.NewPosition,
			d.CompletedAt,
			d.ExpectPosition,
		).Scan(&requestID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request state changed; it is not your turn")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to transition purchase request")
		}

		for _, e := range d.Events {
			if err := insertEventTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConversionOutcome is produced by the conversion callback once the contract
// has been created downstream.
type ConversionOutcome struct {
	ContractID string
	Event      *HistoryEvent
}

// ConvertExclusive runs fn while holding a row lock on the request, then
// marks it converted. The lock is held for the duration of the transition so
// a second converter blocks, re-reads the now-converted row inside fn, and
// fails its guard instead of creating a duplicate contract.
func (r *RequestRepository) ConvertExclusive(
	ctx context.Context,
	id, organizationID string,
	fn func(req *PurchaseRequest) (*ConversionOutcome, error),
) (*PurchaseRequest, error) {
	var converted *PurchaseRequest

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT` + requestColumns + `
			FROM purchase_requests
			WHERE id = $1 AND organization_id = $2
			FOR UPDATE
		`
		req, err := scanRequest(tx.QueryRow(ctx, query, id, organizationID))
		if err == pgx.ErrNoRows {
			return errors.NotFound("purchase_request", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock purchase request")
		}

		outcome, err := fn(req)
		if err != nil {
			return err
		}

		updateQuery := `
			UPDATE purchase_requests
			SET status       = 'converted',
			    contract_id  = $3,
			    completed_at = COALESCE(completed_at, NOW()),
			    updated_at   = NOW()
			WHERE id = $1 AND organization_id = $2
		`
		if _, err := tx.Exec(ctx, updateQuery, id, organizationID, outcome.ContractID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark request converted")
		}

		if err := insertEventTx(ctx, tx, outcome.Event); err != nil {
			return err
		}

		req.Status = RequestStatusConverted
		req.ContractID = &outcome.ContractID
		converted = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return converted, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanRequest(row rowScanner) (*PurchaseRequest, error) {
	req := &PurchaseRequest{}
	err := row.Scan(
		&req.ID,
		&req.OrganizationID,
		&req.RequestNumber,
		&req.Title,
		&req.Justification,
		&req.AmountCents,
		&req.Currency,
		&req.Category,
		&req.Urgency,
		&req.SupplierName,
		&req.NeededDate,
		&req.RequesterID,
		&req.Status,
		&req.CurrentApproverPosition,
		&req.TotalApprovers,
		&req.RuleID,
		&req.ContractID,
		&req.SubmittedAt,
		&req.CompletedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanRequestRows(rows pgx.Rows) ([]*PurchaseRequest, error) {
	var requests []*PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}
