package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
)

// HistoryRepository appends and reads immutable request history entries.
// The underlying table is insertion-ordered for replay; ListForRequest
// serves the presentation order, newest first. Entries are never updated
// or deleted, and history is never consulted to derive current state.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts one history entry outside of a transition transaction.
// Used for events that are not state transitions (created, updated, file
// events); transition events go through the request repository's
// transactions via insertEventTx.
func (r *HistoryRepository) Append(ctx context.Context, event *HistoryEvent) error {
	detailsJSON, err := marshalDetails(event)
	if err != nil {
		return err
	}

	event.ID = uuid.NewString()

	query := `
		INSERT INTO request_history
		    (id, request_id, organization_id, action, performed_by,
		     old_status, new_status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING performed_at
	`

	return r.db.QueryRow(ctx, query,
		event.ID,
		event.RequestID,
		event.OrganizationID,
		event.Action,
		event.PerformedBy,
		event.OldStatus,
		event.NewStatus,
		detailsJSON,
	).Scan(&event.PerformedAt)
}

// ListForRequest returns the full audit trail for a request, newest first.
func (r *HistoryRepository) ListForRequest(ctx context.Context, requestID, organizationID string) ([]*HistoryEvent, error) {
	query := `
		SELECT id, request_id, organization_id, action, performed_by,
		       performed_at, old_status, new_status, details
		FROM request_history
		WHERE request_id = $1 AND organization_id = $2
		ORDER BY performed_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, requestID, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request history")
	}
	defer rows.Close()

	var events []*HistoryEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// insertEventTx appends a history entry inside an open transaction. Shared
// with RequestRepository so transition events commit atomically with the
// state change they record.
func insertEventTx(ctx context.Context, tx pgx.Tx, event *HistoryEvent) error {
	detailsJSON, err := marshalDetails(event)
	if err != nil {
		return err
	}

	event.ID = uuid.NewString()

	query := `
		INSERT INTO request_history
		    (id, request_id, organization_id, action, performed_by,
		     old_status, new_status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING performed_at
	`

	err = tx.QueryRow(ctx, query,
		event.ID,
		event.RequestID,
		event.OrganizationID,
		event.Action,
		event.PerformedBy,
		event.OldStatus,
		event.NewStatus,
		detailsJSON,
	).Scan(&event.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append history event")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func marshalDetails(event *HistoryEvent) ([]byte, error) {
	if event.Details == nil {
		return nil, nil
	}
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal event details")
	}
	return detailsJSON, nil
}

func scanEvent(row rowScanner) (*HistoryEvent, error) {
	event := &HistoryEvent{}
	var detailsJSON []byte

	err := row.Scan(
		&event.ID,
		&event.RequestID,
		&event.OrganizationID,
		&event.Action,
		&event.PerformedBy,
		&event.PerformedAt,
		&event.OldStatus,
		&event.NewStatus,
		&detailsJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan history event")
	}

	if detailsJSON != nil {
		if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal event details")
		}
	}
	return event, nil
}
