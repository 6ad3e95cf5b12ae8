package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
)

// ApprovalRulesRepository handles CRUD for approval_rules.
type ApprovalRulesRepository struct {
	db *database.DB
}

// NewApprovalRulesRepository creates a new ApprovalRulesRepository.
func NewApprovalRulesRepository(db *database.DB) *ApprovalRulesRepository {
	return &ApprovalRulesRepository{db: db}
}

// Create inserts a new approval rule.
func (r *ApprovalRulesRepository) Create(ctx context.Context, rule *ApprovalRule) error {
	categoriesJSON, chainJSON, err := marshalRuleFields(rule)
	if err != nil {
		return err
	}

	rule.ID = uuid.NewString()

	query := `
		INSERT INTO approval_rules
		    (id, organization_id, name, is_active,
		     min_amount, max_amount, categories, approver_chain, priority)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		rule.ID,
		rule.OrganizationID,
		rule.Name,
		rule.IsActive,
		rule.MinAmount,
		rule.MaxAmount,
		categoriesJSON,
		chainJSON,
		rule.Priority,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

// GetByID retrieves a rule by primary key.
func (r *ApprovalRulesRepository) GetByID(ctx context.Context, id, organizationID string) (*ApprovalRule, error) {
	query := `
		SELECT id, organization_id, name, is_active,
		       min_amount, max_amount, categories, approver_chain,
		       priority, created_at, updated_at
		FROM approval_rules
		WHERE id = $1 AND organization_id = $2
	`

	rule, err := scanRule(r.db.QueryRow(ctx, query, id, organizationID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_rule", id)
	}
	return rule, err
}

// List returns all rules for an organization, optionally active only.
// Ordered by priority descending then id so evaluation order is deterministic.
func (r *ApprovalRulesRepository) List(ctx context.Context, organizationID string, activeOnly bool) ([]*ApprovalRule, error) {
	query := `
		SELECT id, organization_id, name, is_active,
		       min_amount, max_amount, categories, approver_chain,
		       priority, created_at, updated_at
		FROM approval_rules
		WHERE organization_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := r.db.Query(ctx, query, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval rules")
	}
	defer rows.Close()

	var rules []*ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval rule")
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Update persists changes to an existing rule.
func (r *ApprovalRulesRepository) Update(ctx context.Context, rule *ApprovalRule) error {
	categoriesJSON, chainJSON, err := marshalRuleFields(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_rules
		SET name           = $3,
		    is_active      = $4,
		    min_amount     = $5,
		    max_amount     = $6,
		    categories     = $7,
		    approver_chain = $8,
		    priority       = $9,
		    updated_at     = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.ID,
		rule.OrganizationID,
		rule.Name,
		rule.IsActive,
		rule.MinAmount,
		rule.MaxAmount,
		categoriesJSON,
		chainJSON,
		rule.Priority,
	).Scan(&rule.UpdatedAt)

	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_rule", rule.ID)
	}
	return err
}

// SetActive toggles a rule without touching its matching criteria.
func (r *ApprovalRulesRepository) SetActive(ctx context.Context, id, organizationID string, active bool) error {
	query := `
		UPDATE approval_rules
		SET is_active  = $3,
		    updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, organizationID, active)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to toggle approval rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_rule", id)
	}
	return nil
}

// Delete removes an approval rule. Requests already routed by the rule keep
// their materialized chains; only future submissions are affected.
func (r *ApprovalRulesRepository) Delete(ctx context.Context, id, organizationID string) error {
	query := `
		DELETE FROM approval_rules
		WHERE id = $1 AND organization_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, organizationID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_rule", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func marshalRuleFields(rule *ApprovalRule) (categoriesJSON, chainJSON []byte, err error) {
	categoriesJSON, err = json.Marshal(rule.Categories)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal rule categories")
	}
	chainJSON, err = json.Marshal(rule.ApproverChain)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approver chain")
	}
	return categoriesJSON, chainJSON, nil
}

func scanRule(row rowScanner) (*ApprovalRule, error) {
	rule := &ApprovalRule{}
	var categoriesJSON, chainJSON []byte

	err := row.Scan(
		&rule.ID,
		&rule.OrganizationID,
		&rule.Name,
		&rule.IsActive,
		&rule.MinAmount,
		&rule.MaxAmount,
		&categoriesJSON,
		&chainJSON,
		&rule.Priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(categoriesJSON, &rule.Categories); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal rule categories")
	}
	if err := json.Unmarshal(chainJSON, &rule.ApproverChain); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approver chain")
	}
	return rule, nil
}
