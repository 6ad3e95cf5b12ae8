package service

import (
	"context"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/logger"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// RuleStore is the persistence surface the rule service needs.
type RuleStore interface {
	Create(ctx context.Context, rule *repository.ApprovalRule) error
	GetByID(ctx context.Context, id, organizationID string) (*repository.ApprovalRule, error)
	List(ctx context.Context, organizationID string, activeOnly bool) ([]*repository.ApprovalRule, error)
	Update(ctx context.Context, rule *repository.ApprovalRule) error
	SetActive(ctx context.Context, id, organizationID string, active bool) error
	Delete(ctx context.Context, id, organizationID string) error
}

// RuleService owns administrator CRUD for approval rules and the dry-run
// matcher used for rule tuning. The workflow engine itself never mutates
// rules.
type RuleService struct {
	rules RuleStore
	log   *logger.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(rules RuleStore, log *logger.Logger) *RuleService {
	return &RuleService{rules: rules, log: log}
}

// RuleInput carries the administrator-editable rule fields.
type RuleInput struct {
	Name          string   `json:"name"`
	MinAmount     int64    `json:"min_amount_cents"`
	MaxAmount     *int64   `json:"max_amount_cents"`
	Categories    []string `json:"categories"`
	ApproverChain []string `json:"approver_chain"`
	Priority      int      `json:"priority"`
	IsActive      bool     `json:"is_active"`
}

// CreateRule validates and persists a new rule.
func (s *RuleService) CreateRule(ctx context.Context, organizationID string, in *RuleInput) (*repository.ApprovalRule, error) {
	chain, err := validateRuleInput(in)
	if err != nil {
		return nil, err
	}

	rule := &repository.ApprovalRule{
		OrganizationID: organizationID,
		Name:           in.Name,
		MinAmount:      in.MinAmount,
		MaxAmount:      in.MaxAmount,
		Categories:     in.Categories,
		ApproverChain:  chain,
		Priority:       in.Priority,
		IsActive:       in.IsActive,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("organization_id", organizationID).
		Int("chain_length", len(chain)).
		Int("priority", rule.Priority).
		Msg("Approval rule created")

	return rule, nil
}

// UpdateRule validates and persists changes to an existing rule.
func (s *RuleService) UpdateRule(ctx context.Context, id, organizationID string, in *RuleInput) (*repository.ApprovalRule, error) {
	chain, err := validateRuleInput(in)
	if err != nil {
		return nil, err
	}

	rule, err := s.rules.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}

	rule.Name = in.Name
	rule.MinAmount = in.MinAmount
	rule.MaxAmount = in.MaxAmount
	rule.Categories = in.Categories
	rule.ApproverChain = chain
	rule.Priority = in.Priority
	rule.IsActive = in.IsActive

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("organization_id", organizationID).
		Msg("Approval rule updated")

	return rule, nil
}

// GetRule retrieves one rule.
func (s *RuleService) GetRule(ctx context.Context, id, organizationID string) (*repository.ApprovalRule, error) {
	return s.rules.GetByID(ctx, id, organizationID)
}

// ListRules returns all rules for an organization.
func (s *RuleService) ListRules(ctx context.Context, organizationID string, activeOnly bool) ([]*repository.ApprovalRule, error) {
	return s.rules.List(ctx, organizationID, activeOnly)
}

// SetRuleActive toggles a rule. Activation re-checks the chain so the
// non-empty-chain-when-active invariant holds.
func (s *RuleService) SetRuleActive(ctx context.Context, id, organizationID string, active bool) error {
	if active {
		rule, err := s.rules.GetByID(ctx, id, organizationID)
		if err != nil {
			return err
		}
		if len(compactChain(rule.ApproverChain)) == 0 {
			return errors.InvalidInput("approver_chain", "cannot activate a rule with an empty approver chain")
		}
	}
	if err := s.rules.SetActive(ctx, id, organizationID, active); err != nil {
		return err
	}

	s.log.Info().
		Str("rule_id", id).
		Bool("active", active).
		Msg("Approval rule toggled")
	return nil
}

// DeleteRule removes a rule.
func (s *RuleService) DeleteRule(ctx context.Context, id, organizationID string) error {
	if err := s.rules.Delete(ctx, id, organizationID); err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id).Msg("Approval rule deleted")
	return nil
}

// TestMatch resolves the rule that would route a hypothetical request, with
// no side effects. Returns nil when nothing matches.
func (s *RuleService) TestMatch(ctx context.Context, organizationID string, amountCents int64, category string) (*repository.ApprovalRule, error) {
	if amountCents <= 0 {
		return nil, errors.InvalidInput("amount_cents", "amount must be positive")
	}
	rules, err := s.rules.List(ctx, organizationID, true)
	if err != nil {
		return nil, err
	}
	return MatchRule(rules, amountCents, category), nil
}

// validateRuleInput checks rule invariants and returns the compacted chain.
func validateRuleInput(in *RuleInput) ([]string, error) {
	if in.Name == "" {
		return nil, errors.InvalidInput("name", "rule name is required")
	}
	if in.MinAmount < 0 {
		return nil, errors.InvalidInput("min_amount_cents", "minimum amount cannot be negative")
	}
	if in.MaxAmount != nil && *in.MaxAmount < in.MinAmount {
		return nil, errors.InvalidInput("max_amount_cents", "maximum amount cannot be below minimum amount")
	}

	chain := compactChain(in.ApproverChain)
	if in.IsActive && len(chain) == 0 {
		return nil, errors.InvalidInput("approver_chain", "an active rule needs at least one approver")
	}

	seen := make(map[string]struct{}, len(chain))
	for _, approverID := range chain {
		if _, dup := seen[approverID]; dup {
			return nil, errors.InvalidInput("approver_chain", "approver appears more than once in the chain")
		}
		seen[approverID] = struct{}{}
	}
	return chain, nil
}
