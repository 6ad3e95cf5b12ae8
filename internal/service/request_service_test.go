package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/client"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/logger"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

// fakeWorkflowStore backs every store interface with in-memory maps and
// mirrors the transactional guards the SQL layer enforces.
type fakeWorkflowStore struct {
	requests    map[string]*repository.PurchaseRequest
	assignments map[string][]*repository.ApproverAssignment
	events      []*repository.HistoryEvent
	attachments map[string]*repository.Attachment
	rules       []*repository.ApprovalRule
	seq         int
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		requests:    make(map[string]*repository.PurchaseRequest),
		assignments: make(map[string][]*repository.ApproverAssignment),
		attachments: make(map[string]*repository.Attachment),
	}
}

func (f *fakeWorkflowStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// ── RequestStore ─────────────────────────────────────────────────────────────

func (f *fakeWorkflowStore) CreateDraft(ctx context.Context, req *repository.PurchaseRequest, event *repository.HistoryEvent) error {
	req.ID = f.nextID("req")
	req.RequestNumber = fmt.Sprintf("PR-%d-%04d", time.Now().UTC().Year(), f.seq)
	req.Status = repository.RequestStatusDraft
	f.requests[req.ID] = req

	event.RequestID = req.ID
	event.OrganizationID = req.OrganizationID
	f.events = append(f.events, event)
	return nil
}

func (f *fakeWorkflowStore) GetByID(ctx context.Context, id, organizationID string) (*repository.PurchaseRequest, error) {
	req, ok := f.requests[id]
	if !ok || req.OrganizationID != organizationID {
		return nil, errors.NotFound("purchase request", id)
	}
	cp := *req
	return &cp, nil
}

func (f *fakeWorkflowStore) ListByRequester(ctx context.Context, organizationID, requesterID string, limit, offset int) ([]*repository.PurchaseRequest, error) {
	var out []*repository.PurchaseRequest
	for _, r := range f.requests {
		if r.OrganizationID == organizationID && r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeWorkflowStore) UpdateDraft(ctx context.Context, req *repository.PurchaseRequest, event *repository.HistoryEvent) error {
	stored, ok := f.requests[req.ID]
	if !ok || stored.Status != repository.RequestStatusDraft {
		return errors.Conflict("request is not a draft")
	}
	cp := *req
	f.requests[req.ID] = &cp
	f.events = append(f.events, event)
	return nil
}

func (f *fakeWorkflowStore) DeleteDraft(ctx context.Context, id, organizationID string) error {
	stored, ok := f.requests[id]
	if !ok || stored.Status != repository.RequestStatusDraft {
		return errors.Conflict("request is not a draft")
	}
	delete(f.requests, id)
	return nil
}

func (f *fakeWorkflowStore) Submit(ctx context.Context, sub *repository.Submission) error {
	req, ok := f.requests[sub.RequestID]
	if !ok {
		return errors.NotFound("purchase request", sub.RequestID)
	}
	if req.Status != repository.RequestStatusDraft {
		return errors.Conflict("request is not a draft")
	}

	req.Status = repository.RequestStatusInApproval
	req.RuleID = &sub.RuleID
	req.TotalApprovers = len(sub.Assignments)
	pos := 1
	req.CurrentApproverPosition = &pos
	submitted := sub.SubmittedAt
	req.SubmittedAt = &submitted

	for _, a := range sub.Assignments {
		a.ID = f.nextID("asg")
		a.RequestID = sub.RequestID
		a.OrganizationID = sub.OrganizationID
		f.assignments[sub.RequestID] = append(f.assignments[sub.RequestID], a)
	}
	f.events = append(f.events, sub.Events...)
	return nil
}

func (f *fakeWorkflowStore) ApplyDecision(ctx context.Context, d *repository.Decision) error {
	var target *repository.ApproverAssignment
	for _, a := range f.assignments[d.RequestID] {
		if a.OrderPosition == d.AssignmentPosition {
			target = a
			break
		}
	}
	if target == nil || target.Status != repository.AssignmentStatusPending {
		return errors.Conflict("assignment has already been decided")
	}
	now := time.Now().UTC()
	target.Status = d.AssignmentStatus
	target.Comments = d.Comments
	target.DecisionAt = &now

	if d.SkipAfter != nil {
		for _, a := range f.assignments[d.RequestID] {
			if a.OrderPosition > *d.SkipAfter && a.Status == repository.AssignmentStatusPending {
				a.Status = repository.AssignmentStatusSkipped
			}
		}
	}

	req := f.requests[d.RequestID]
	if req == nil || req.Status != repository.RequestStatusInApproval {
		return errors.Conflict("request state changed; it is not your turn")
	}
	if d.ExpectPosition != nil &&
		(req.CurrentApproverPosition == nil || *req.CurrentApproverPosition != *d.ExpectPosition) {
		return errors.Conflict("request state changed; it is not your turn")
	}

	req.Status = d.NewStatus
	if d.NewPosition != nil {
		req.CurrentApproverPosition = d.NewPosition
	}
	if d.CompletedAt != nil {
		req.CompletedAt = d.CompletedAt
	}
	f.events = append(f.events, d.Events...)
	return nil
}

func (f *fakeWorkflowStore) ConvertExclusive(ctx context.Context, id, organizationID string,
	fn func(req *repository.PurchaseRequest) (*repository.ConversionOutcome, error)) (*repository.PurchaseRequest, error) {
	req, ok := f.requests[id]
	if !ok || req.OrganizationID != organizationID {
		return nil, errors.NotFound("purchase request", id)
	}

	outcome, err := fn(req)
	if err != nil {
		return nil, err
	}

	req.Status = repository.RequestStatusConverted
	req.ContractID = &outcome.ContractID
	f.events = append(f.events, outcome.Event)
	cp := *req
	return &cp, nil
}

// ── AssignmentStore ──────────────────────────────────────────────────────────

func (f *fakeWorkflowStore) GetByRequestID(ctx context.Context, requestID, organizationID string) ([]*repository.ApproverAssignment, error) {
	out := append([]*repository.ApproverAssignment(nil), f.assignments[requestID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderPosition < out[j].OrderPosition })
	return out, nil
}

func (f *fakeWorkflowStore) GetPendingForUser(ctx context.Context, organizationID, userID string) ([]*repository.ApproverAssignment, error) {
	var out []*repository.ApproverAssignment
	for requestID, assignments := range f.assignments {
		req := f.requests[requestID]
		if req == nil || req.Status != repository.RequestStatusInApproval || req.CurrentApproverPosition == nil {
			continue
		}
		for _, a := range assignments {
			if a.ApproverID == userID &&
				a.Status == repository.AssignmentStatusPending &&
				a.OrderPosition == *req.CurrentApproverPosition {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// ── HistoryStore ─────────────────────────────────────────────────────────────

func (f *fakeWorkflowStore) Append(ctx context.Context, event *repository.HistoryEvent) error {
	f.events = append(f.events, event)
	return nil
}

// ListForRequest serves newest first, like the SQL repository's
// ORDER BY performed_at DESC, id DESC.
func (f *fakeWorkflowStore) ListForRequest(ctx context.Context, requestID, organizationID string) ([]*repository.HistoryEvent, error) {
	var out []*repository.HistoryEvent
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].RequestID == requestID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

// ── AttachmentStore ──────────────────────────────────────────────────────────

func (f *fakeWorkflowStore) Create(ctx context.Context, att *repository.Attachment) error {
	att.ID = f.nextID("att")
	f.attachments[att.ID] = att
	return nil
}

func (f *fakeWorkflowStore) ListAttachmentsForRequest(ctx context.Context, requestID, organizationID string) ([]*repository.Attachment, error) {
	var out []*repository.Attachment
	for _, a := range f.attachments {
		if a.RequestID == requestID && a.DeletedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeWorkflowStore) GetAttachmentByID(ctx context.Context, id, organizationID string) (*repository.Attachment, error) {
	att, ok := f.attachments[id]
	if !ok {
		return nil, errors.NotFound("attachment", id)
	}
	return att, nil
}

func (f *fakeWorkflowStore) SoftDelete(ctx context.Context, id, organizationID string) error {
	att, ok := f.attachments[id]
	if !ok {
		return errors.NotFound("attachment", id)
	}
	now := time.Now().UTC()
	att.DeletedAt = &now
	return nil
}

// ── ActiveRuleLister ─────────────────────────────────────────────────────────

func (f *fakeWorkflowStore) List(ctx context.Context, organizationID string, activeOnly bool) ([]*repository.ApprovalRule, error) {
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

// ── Fake collaborators ───────────────────────────────────────────────────────

type fakeContracts struct {
	created []*client.CreateContractCommand
	fail    error
}

func (f *fakeContracts) CreateContract(ctx context.Context, cmd *client.CreateContractCommand) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.created = append(f.created, cmd)
	return fmt.Sprintf("contract-%d", len(f.created)), nil
}

type fakeIdentity struct {
	roles map[string][]string
}

func (f *fakeIdentity) GetUserRoles(ctx context.Context, organizationID, userID string) ([]string, error) {
	return f.roles[userID], nil
}

type approverPing struct {
	ApproverID string
	Position   int
}

type requesterPing struct {
	Outcome string
	Reason  *string
}

type fakeNotifier struct {
	approvers  []approverPing
	requesters []requesterPing
}

func (f *fakeNotifier) NotifyApprover(ctx context.Context, req *repository.PurchaseRequest, approverID string, position int) {
	f.approvers = append(f.approvers, approverPing{ApproverID: approverID, Position: position})
}

func (f *fakeNotifier) NotifyRequester(ctx context.Context, req *repository.PurchaseRequest, outcome string, reason *string) {
	f.requesters = append(f.requesters, requesterPing{Outcome: outcome, Reason: reason})
}

// ── Test harness ─────────────────────────────────────────────────────────────

type harness struct {
	svc       *RequestService
	store     *fakeWorkflowStore
	contracts *fakeContracts
	identity  *fakeIdentity
	notifier  *fakeNotifier
}

// attachmentAdapter maps the fake's renamed attachment methods onto
// AttachmentStore; the plain names clash with the request and history sides.
type attachmentAdapter struct{ *fakeWorkflowStore }

func (a attachmentAdapter) GetByID(ctx context.Context, id, organizationID string) (*repository.Attachment, error) {
	return a.GetAttachmentByID(ctx, id, organizationID)
}

func (a attachmentAdapter) ListForRequest(ctx context.Context, requestID, organizationID string) ([]*repository.Attachment, error) {
	return a.ListAttachmentsForRequest(ctx, requestID, organizationID)
}

func newHarness() *harness {
	store := newFakeWorkflowStore()
	store.rules = []*repository.ApprovalRule{
		{
			ID:             "rule-low",
			OrganizationID: "org-1",
			Name:           "two-step default",
			MinAmount:      0,
			MaxAmount:      i64(5000_00),
			ApproverChain:  []string{"u1", "u2"},
			Priority:       1,
			IsActive:       true,
		},
	}
	contracts := &fakeContracts{}
	identity := &fakeIdentity{roles: map[string][]string{
		"admin-1":  {"admin"},
		"member-1": {"member"},
	}}
	notifier := &fakeNotifier{}

	svc := NewRequestService(
		store, store, store, attachmentAdapter{store}, store,
		contracts, identity, notifier, nopLogger(),
	)
	return &harness{svc: svc, store: store, contracts: contracts, identity: identity, notifier: notifier}
}

func validInput() *RequestInput {
	supplier := "Acme SaaS"
	return &RequestInput{
		Title:         "Design tool licenses",
		Justification: "Team expansion",
		AmountCents:   2500_00,
		Currency:      "EUR",
		Category:      "software",
		SupplierName:  &supplier,
	}
}

func (h *harness) draft(t *testing.T) *repository.PurchaseRequest {
	t.Helper()
	req, err := h.svc.CreateDraft(context.Background(), "org-1", "requester-1", validInput())
	require.NoError(t, err)
	return req
}

func (h *harness) submitted(t *testing.T) *repository.PurchaseRequest {
	t.Helper()
	req := h.draft(t)
	req, err := h.svc.Submit(context.Background(), req.ID, "org-1", "requester-1")
	require.NoError(t, err)
	return req
}

func (h *harness) approved(t *testing.T) *repository.PurchaseRequest {
	t.Helper()
	req := h.submitted(t)
	ctx := context.Background()
	_, err := h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	require.NoError(t, err)
	req, err = h.svc.Approve(ctx, req.ID, "org-1", "u2", nil)
	require.NoError(t, err)
	return req
}

func actionsOf(events []*repository.HistoryEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

// ── Draft lifecycle ──────────────────────────────────────────────────────────

func TestCreateDraft(t *testing.T) {
	h := newHarness()
	req := h.draft(t)

	assert.Equal(t, repository.RequestStatusDraft, req.Status)
	assert.Equal(t, "normal", req.Urgency)
	assert.Regexp(t, `^PR-\d{4}-\d{4}$`, req.RequestNumber)
	assert.Nil(t, req.CurrentApproverPosition)

	events, err := h.svc.GetHistory(context.Background(), req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{repository.ActionCreated}, actionsOf(events))
}

func TestCreateDraftValidation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RequestInput)
	}{
		{"missing title", func(in *RequestInput) { in.Title = "" }},
		{"missing justification", func(in *RequestInput) { in.Justification = "" }},
		{"missing category", func(in *RequestInput) { in.Category = "" }},
		{"zero amount", func(in *RequestInput) { in.AmountCents = 0 }},
		{"negative amount", func(in *RequestInput) { in.AmountCents = -100 }},
		{"bad currency", func(in *RequestInput) { in.Currency = "EURO" }},
		{"bad urgency", func(in *RequestInput) { in.Urgency = "immediately" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)
			_, err := h.svc.CreateDraft(ctx, "org-1", "requester-1", in)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
		})
	}
}

func TestUpdateDraftGuards(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.draft(t)

	_, err := h.svc.UpdateDraft(ctx, req.ID, "org-1", "someone-else", validInput())
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))

	submitted := h.submitted(t)
	_, err = h.svc.UpdateDraft(ctx, submitted.ID, "org-1", "requester-1", validInput())
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

func TestDeleteDraftOnlyWhileDraft(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req := h.draft(t)
	require.NoError(t, h.svc.DeleteDraft(ctx, req.ID, "org-1", "requester-1"))
	_, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	submitted := h.submitted(t)
	err = h.svc.DeleteDraft(ctx, submitted.ID, "org-1", "requester-1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

// ── Submit ───────────────────────────────────────────────────────────────────

func TestSubmitBuildsChainAndNotifiesFirstApprover(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)

	assert.Equal(t, repository.RequestStatusInApproval, req.Status)
	require.NotNil(t, req.CurrentApproverPosition)
	assert.Equal(t, 1, *req.CurrentApproverPosition)
	assert.Equal(t, 2, req.TotalApprovers)
	require.NotNil(t, req.RuleID)
	assert.Equal(t, "rule-low", *req.RuleID)
	require.NotNil(t, req.SubmittedAt)

	detail, err := h.svc.GetDetail(context.Background(), req.ID, "org-1")
	require.NoError(t, err)
	require.Len(t, detail.Assignments, 2)
	assert.Equal(t, "u1", detail.Assignments[0].ApproverID)
	assert.Equal(t, "u2", detail.Assignments[1].ApproverID)

	require.Len(t, h.notifier.approvers, 1)
	assert.Equal(t, approverPing{ApproverID: "u1", Position: 1}, h.notifier.approvers[0])

	// History is served newest first.
	events, err := h.svc.GetHistory(context.Background(), req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{repository.ActionApproversAssigned, repository.ActionSubmitted, repository.ActionCreated},
		actionsOf(events))
}

func TestSubmitWithoutMatchingRuleIsRefused(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	in := validInput()
	in.AmountCents = 9000_00 // above every configured rule
	req, err := h.svc.CreateDraft(ctx, "org-1", "requester-1", in)
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, req.ID, "org-1", "requester-1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnprocessable))

	// The request must stay in draft and remain editable.
	stored, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, repository.RequestStatusDraft, stored.Request.Status)
	_, err = h.svc.UpdateDraft(ctx, req.ID, "org-1", "requester-1", validInput())
	assert.NoError(t, err)
}

func TestSubmitOnlyByRequester(t *testing.T) {
	h := newHarness()
	req := h.draft(t)

	_, err := h.svc.Submit(context.Background(), req.ID, "org-1", "someone-else")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestSubmitTwiceIsInvalidTransition(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)

	_, err := h.svc.Submit(context.Background(), req.ID, "org-1", "requester-1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

// ── Approve ──────────────────────────────────────────────────────────────────

func TestApproveAdvancesTurnByOne(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	comment := "looks good"
	req, err := h.svc.Approve(ctx, req.ID, "org-1", "u1", &comment)
	require.NoError(t, err)

	assert.Equal(t, repository.RequestStatusInApproval, req.Status)
	require.NotNil(t, req.CurrentApproverPosition)
	assert.Equal(t, 2, *req.CurrentApproverPosition)

	// u2 is told their turn arrived.
	require.Len(t, h.notifier.approvers, 2)
	assert.Equal(t, approverPing{ApproverID: "u2", Position: 2}, h.notifier.approvers[1])

	detail, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AssignmentStatusApproved, detail.Assignments[0].Status)
	require.NotNil(t, detail.Assignments[0].Comments)
	assert.Equal(t, "looks good", *detail.Assignments[0].Comments)
	assert.Equal(t, repository.AssignmentStatusPending, detail.Assignments[1].Status)
}

func TestFinalApproveCompletesRequest(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	require.NoError(t, err)
	req, err = h.svc.Approve(ctx, req.ID, "org-1", "u2", nil)
	require.NoError(t, err)

	assert.Equal(t, repository.RequestStatusApproved, req.Status)
	require.NotNil(t, req.CompletedAt)

	require.Len(t, h.notifier.requesters, 1)
	assert.Equal(t, "approved", h.notifier.requesters[0].Outcome)

	events, err := h.svc.GetHistory(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		repository.ActionFullyApproved,
		repository.ActionApprovedBy,
		repository.ActionApprovedBy,
		repository.ActionApproversAssigned,
		repository.ActionSubmitted,
		repository.ActionCreated,
	}, actionsOf(events))
}

func TestApproveOutOfTurnIsRefused(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	// u2 holds position 2; the turn pointer is at 1.
	_, err := h.svc.Approve(ctx, req.ID, "org-1", "u2", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))

	// A stranger can never approve.
	_, err = h.svc.Approve(ctx, req.ID, "org-1", "intruder", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestApproveAgainAfterTurnPassedIsRefused(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	require.NoError(t, err)

	// The turn has moved on to u2; u1 no longer holds it.
	_, err = h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestApproveTerminalStatusIsInvalidTransition(t *testing.T) {
	h := newHarness()
	req := h.approved(t)

	_, err := h.svc.Approve(context.Background(), req.ID, "org-1", "u1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

// A lost race and a wrong-state guard must stay machine-distinguishable:
// the racer can re-read and retry, the guard failure cannot.
func TestRaceLossDistinctFromWrongStateGuard(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	// Wrong state: approving after terminal rejection.
	_, err := h.svc.Reject(ctx, req.ID, "org-1", "u1", "over budget")
	require.NoError(t, err)
	_, guardErr := h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(guardErr))

	// Lost race: a decision lands on an assignment another actor already
	// settled, as when two approvals for the same turn interleave.
	pos := 1
	raceErr := h.store.ApplyDecision(ctx, &repository.Decision{
		RequestID:          req.ID,
		OrganizationID:     "org-1",
		ExpectPosition:     &pos,
		AssignmentPosition: pos,
		AssignmentStatus:   repository.AssignmentStatusApproved,
		NewStatus:          repository.RequestStatusInApproval,
	})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(raceErr))

	assert.NotEqual(t, errors.CodeOf(guardErr), errors.CodeOf(raceErr))
}

// ── Reject ───────────────────────────────────────────────────────────────────

func TestRejectTerminatesAndSkipsRemaining(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	req, err := h.svc.Reject(ctx, req.ID, "org-1", "u1", "budget freeze")
	require.NoError(t, err)

	assert.Equal(t, repository.RequestStatusRejected, req.Status)
	require.NotNil(t, req.CompletedAt)

	detail, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AssignmentStatusRejected, detail.Assignments[0].Status)
	assert.Equal(t, repository.AssignmentStatusSkipped, detail.Assignments[1].Status)

	require.Len(t, h.notifier.requesters, 1)
	assert.Equal(t, "rejected", h.notifier.requesters[0].Outcome)
	require.NotNil(t, h.notifier.requesters[0].Reason)
	assert.Equal(t, "budget freeze", *h.notifier.requesters[0].Reason)
}

func TestRejectAllowedForAnyPendingApprover(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	// u2 is not the current turn but holds a pending assignment.
	req, err := h.svc.Reject(ctx, req.ID, "org-1", "u2", "duplicate purchase")
	require.NoError(t, err)
	assert.Equal(t, repository.RequestStatusRejected, req.Status)

	detail, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AssignmentStatusPending, detail.Assignments[0].Status)
	assert.Equal(t, repository.AssignmentStatusRejected, detail.Assignments[1].Status)
}

func TestRejectRequiresReason(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)

	_, err := h.svc.Reject(context.Background(), req.ID, "org-1", "u1", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestRejectByNonApproverIsRefused(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	_, err := h.svc.Reject(ctx, req.ID, "org-1", "intruder", "no")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))

	// An approver who already decided holds nothing pending.
	_, err = h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	require.NoError(t, err)
	_, err = h.svc.Reject(ctx, req.ID, "org-1", "u1", "changed my mind")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

// ── Convert ──────────────────────────────────────────────────────────────────

func TestConvertCreatesContract(t *testing.T) {
	h := newHarness()
	req := h.approved(t)
	ctx := context.Background()

	converted, err := h.svc.Convert(ctx, req.ID, "org-1", "admin-1", nil)
	require.NoError(t, err)

	assert.Equal(t, repository.RequestStatusConverted, converted.Status)
	require.NotNil(t, converted.ContractID)
	assert.Equal(t, "contract-1", *converted.ContractID)

	require.Len(t, h.contracts.created, 1)
	cmd := h.contracts.created[0]
	assert.Equal(t, int64(2500_00), cmd.MonthlyCostCents)
	assert.Equal(t, req.ID, cmd.SourceRequestID)
	assert.Equal(t, req.RequestNumber, cmd.SourceRequestNumber)

	events, err := h.svc.GetHistory(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Contains(t, actionsOf(events), repository.ActionConvertedToContract)
}

func TestConvertPerSeatOverrides(t *testing.T) {
	h := newHarness()
	req := h.approved(t)

	model := PricingModelPerSeat
	unit := int64(50_00)
	seats := 10
	_, err := h.svc.Convert(context.Background(), req.ID, "org-1", "admin-1", &ConversionOverrides{
		PricingModel:  &model,
		UnitCostCents: &unit,
		LicenseCount:  &seats,
	})
	require.NoError(t, err)

	require.Len(t, h.contracts.created, 1)
	assert.Equal(t, int64(500_00), h.contracts.created[0].MonthlyCostCents)
}

func TestConvertRequiresElevatedRole(t *testing.T) {
	h := newHarness()
	req := h.approved(t)

	_, err := h.svc.Convert(context.Background(), req.ID, "org-1", "member-1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
	assert.Empty(t, h.contracts.created)
}

func TestConvertTwiceConflicts(t *testing.T) {
	h := newHarness()
	req := h.approved(t)
	ctx := context.Background()

	_, err := h.svc.Convert(ctx, req.ID, "org-1", "admin-1", nil)
	require.NoError(t, err)

	_, err = h.svc.Convert(ctx, req.ID, "org-1", "admin-1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
	assert.Len(t, h.contracts.created, 1)
}

func TestConvertUnapprovedIsInvalidTransition(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)

	_, err := h.svc.Convert(context.Background(), req.ID, "org-1", "admin-1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

func TestConvertContractFailureLeavesRequestApproved(t *testing.T) {
	h := newHarness()
	req := h.approved(t)
	ctx := context.Background()
	h.contracts.fail = fmt.Errorf("contracts service unavailable")

	_, err := h.svc.Convert(ctx, req.ID, "org-1", "admin-1", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal))

	stored, err := h.svc.GetDetail(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, repository.RequestStatusApproved, stored.Request.Status)
	assert.Nil(t, stored.Request.ContractID)

	// The request stays convertible once the downstream recovers.
	h.contracts.fail = nil
	converted, err := h.svc.Convert(ctx, req.ID, "org-1", "admin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, repository.RequestStatusConverted, converted.Status)
}

// ── Queries and attachments ──────────────────────────────────────────────────

func TestListToApprove(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	pending, err := h.svc.ListToApprove(ctx, "org-1", "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].Request.ID)
	assert.Equal(t, 1, pending[0].Assignment.OrderPosition)

	// u2's turn has not arrived yet.
	pending, err = h.svc.ListToApprove(ctx, "org-1", "u2")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = h.svc.Approve(ctx, req.ID, "org-1", "u1", nil)
	require.NoError(t, err)

	pending, err = h.svc.ListToApprove(ctx, "org-1", "u2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAttachmentLifecycle(t *testing.T) {
	h := newHarness()
	req := h.draft(t)
	ctx := context.Background()

	att, err := h.svc.AttachFile(ctx, req.ID, "org-1", "requester-1", &AttachmentInput{
		FileName:    "quote.pdf",
		ContentType: "application/pdf",
		SizeBytes:   123_456,
		StorageKey:  "org-1/quotes/quote.pdf",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, att.ID)

	files, err := h.svc.ListFiles(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, h.svc.SoftDeleteFile(ctx, att.ID, "org-1", "requester-1"))
	files, err = h.svc.ListFiles(ctx, req.ID, "org-1")
	require.NoError(t, err)
	assert.Empty(t, files)

	events, err := h.svc.GetHistory(ctx, req.ID, "org-1")
	require.NoError(t, err)
	actions := actionsOf(events)
	assert.Contains(t, actions, repository.ActionFileUploaded)
	assert.Contains(t, actions, repository.ActionFileDeleted)
}

func TestAttachFileValidation(t *testing.T) {
	h := newHarness()
	req := h.draft(t)
	ctx := context.Background()

	_, err := h.svc.AttachFile(ctx, req.ID, "org-1", "requester-1", &AttachmentInput{StorageKey: "k"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = h.svc.AttachFile(ctx, req.ID, "org-1", "requester-1", &AttachmentInput{FileName: "f.pdf"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestTenantIsolation(t *testing.T) {
	h := newHarness()
	req := h.submitted(t)
	ctx := context.Background()

	_, err := h.svc.GetDetail(ctx, req.ID, "org-2")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	_, err = h.svc.Approve(ctx, req.ID, "org-2", "u1", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}
