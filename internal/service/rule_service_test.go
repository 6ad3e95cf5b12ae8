package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

type fakeRuleStore struct {
	rules map[string]*repository.ApprovalRule
	seq   int
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: make(map[string]*repository.ApprovalRule)}
}

func (f *fakeRuleStore) Create(ctx context.Context, rule *repository.ApprovalRule) error {
	f.seq++
	rule.ID = fmt.Sprintf("rule-%d", f.seq)
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) GetByID(ctx context.Context, id, organizationID string) (*repository.ApprovalRule, error) {
	rule, ok := f.rules[id]
	if !ok || rule.OrganizationID != organizationID {
		return nil, errors.NotFound("approval rule", id)
	}
	return rule, nil
}

func (f *fakeRuleStore) List(ctx context.Context, organizationID string, activeOnly bool) ([]*repository.ApprovalRule, error) {
	var out []*repository.ApprovalRule
	for _, r := range f.rules {
		if r.OrganizationID != organizationID {
			continue
		}
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuleStore) Update(ctx context.Context, rule *repository.ApprovalRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) SetActive(ctx context.Context, id, organizationID string, active bool) error {
	rule, ok := f.rules[id]
	if !ok {
		return errors.NotFound("approval rule", id)
	}
	rule.IsActive = active
	return nil
}

func (f *fakeRuleStore) Delete(ctx context.Context, id, organizationID string) error {
	delete(f.rules, id)
	return nil
}

func validRuleInput() *RuleInput {
	return &RuleInput{
		Name:          "default routing",
		MinAmount:     0,
		MaxAmount:     i64(5000_00),
		Categories:    []string{"software"},
		ApproverChain: []string{"user-1", "user-2"},
		Priority:      1,
		IsActive:      true,
	}
}

func TestCreateRuleCompactsChain(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())

	in := validRuleInput()
	in.ApproverChain = []string{"user-1", "", "user-3"}

	rule, err := svc.CreateRule(context.Background(), "org-1", in)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-3"}, rule.ApproverChain)
	assert.NotEmpty(t, rule.ID)
}

func TestCreateRuleValidation(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RuleInput)
	}{
		{"missing name", func(in *RuleInput) { in.Name = "" }},
		{"negative minimum", func(in *RuleInput) { in.MinAmount = -1 }},
		{"max below min", func(in *RuleInput) { in.MinAmount = 1000_00; in.MaxAmount = i64(500_00) }},
		{"active without approvers", func(in *RuleInput) { in.ApproverChain = []string{"", ""} }},
		{"duplicate approver", func(in *RuleInput) { in.ApproverChain = []string{"user-1", "user-1"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRuleInput()
			tt.mutate(in)
			_, err := svc.CreateRule(ctx, "org-1", in)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
		})
	}
}

func TestCreateRuleInactiveAllowsEmptyChain(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())

	in := validRuleInput()
	in.IsActive = false
	in.ApproverChain = nil

	rule, err := svc.CreateRule(context.Background(), "org-1", in)
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
}

func TestSetRuleActiveRechecksChain(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())
	ctx := context.Background()

	in := validRuleInput()
	in.IsActive = false
	in.ApproverChain = nil
	rule, err := svc.CreateRule(ctx, "org-1", in)
	require.NoError(t, err)

	err = svc.SetRuleActive(ctx, rule.ID, "org-1", true)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	assert.False(t, store.rules[rule.ID].IsActive)

	// Deactivation needs no chain.
	require.NoError(t, svc.SetRuleActive(ctx, rule.ID, "org-1", false))
}

func TestUpdateRuleScopedToOrganization(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, "org-1", validRuleInput())
	require.NoError(t, err)

	_, err = svc.UpdateRule(ctx, rule.ID, "org-2", validRuleInput())
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestTestMatchDryRun(t *testing.T) {
	store := newFakeRuleStore()
	svc := NewRuleService(store, nopLogger())
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, "org-1", validRuleInput())
	require.NoError(t, err)

	matched, err := svc.TestMatch(ctx, "org-1", 2500_00, "software")
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, created.ID, matched.ID)

	matched, err = svc.TestMatch(ctx, "org-1", 2500_00, "travel")
	require.NoError(t, err)
	assert.Nil(t, matched)

	_, err = svc.TestMatch(ctx, "org-1", 0, "software")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}
