package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/client"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/logger"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// RequestStore is the persistence surface for purchase requests. All guarded
// transitions are single atomic operations on the store side.
type RequestStore interface {
	CreateDraft(ctx context.Context, req *repository.PurchaseRequest, event *repository.HistoryEvent) error
	GetByID(ctx context.Context, id, organizationID string) (*repository.PurchaseRequest, error)
	ListByRequester(ctx context.Context, organizationID, requesterID string, limit, offset int) ([]*repository.PurchaseRequest, error)
	UpdateDraft(ctx context.Context, req *repository.PurchaseRequest, event *repository.HistoryEvent) error
	DeleteDraft(ctx context.Context, id, organizationID string) error
	Submit(ctx context.Context, sub *repository.Submission) error
	ApplyDecision(ctx context.Context, d *repository.Decision) error
	ConvertExclusive(ctx context.Context, id, organizationID string,
		fn func(req *repository.PurchaseRequest) (*repository.ConversionOutcome, error)) (*repository.PurchaseRequest, error)
}

// AssignmentStore reads resolved approver chains.
type AssignmentStore interface {
	GetByRequestID(ctx context.Context, requestID, organizationID string) ([]*repository.ApproverAssignment, error)
	GetPendingForUser(ctx context.Context, organizationID, userID string) ([]*repository.ApproverAssignment, error)
}

// HistoryStore appends and reads the audit trail.
type HistoryStore interface {
	Append(ctx context.Context, event *repository.HistoryEvent) error
	ListForRequest(ctx context.Context, requestID, organizationID string) ([]*repository.HistoryEvent, error)
}

// AttachmentStore records document associations.
type AttachmentStore interface {
	Create(ctx context.Context, att *repository.Attachment) error
	ListForRequest(ctx context.Context, requestID, organizationID string) ([]*repository.Attachment, error)
	GetByID(ctx context.Context, id, organizationID string) (*repository.Attachment, error)
	SoftDelete(ctx context.Context, id, organizationID string) error
}

// ActiveRuleLister is the slice of the rule store the workflow needs: the
// engine reads active rules and nothing else.
type ActiveRuleLister interface {
	List(ctx context.Context, organizationID string, activeOnly bool) ([]*repository.ApprovalRule, error)
}

// Roles allowed to convert an approved request into a contract.
var convertAllowedRoles = map[string]bool{
	"owner": true,
	"admin": true,
}

// RequestService owns the purchase request lifecycle: draft CRUD, the
// submit/approve/reject/convert state machine, attachment association and
// the read queries. Status and the turn pointer are only ever written
// through its guarded transitions.
type RequestService struct {
	requests    RequestStore
	assignments AssignmentStore
	history     HistoryStore
	attachments AttachmentStore
	rules       ActiveRuleLister
	contracts   client.ContractsClientInterface
	identity    client.IdentityClientInterface
	notifier    client.NotifierInterface
	log         *logger.Logger
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	requests RequestStore,
	assignments AssignmentStore,
	history HistoryStore,
	attachments AttachmentStore,
	rules ActiveRuleLister,
	contracts client.ContractsClientInterface,
	identity client.IdentityClientInterface,
	notifier client.NotifierInterface,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		requests:    requests,
		assignments: assignments,
		history:     history,
		attachments: attachments,
		rules:       rules,
		contracts:   contracts,
		identity:    identity,
		notifier:    notifier,
		log:         log,
	}
}

// ── Draft lifecycle ──────────────────────────────────────────────────────────

// RequestInput carries the requester-editable fields.
type RequestInput struct {
	Title         string  `json:"title"`
	Justification string  `json:"justification"`
	AmountCents   int64   `json:"amount_cents"`
	Currency      string  `json:"currency"`
	Category      string  `json:"category"`
	Urgency       string  `json:"urgency"`
	SupplierName  *string `json:"supplier_name"`
	NeededDate    *string `json:"needed_date"`
}

// CreateDraft creates a new draft request owned by the actor.
func (s *RequestService) CreateDraft(ctx context.Context, organizationID, actorID string, in *RequestInput) (*repository.PurchaseRequest, error) {
	if err := validateRequestInput(in); err != nil {
		return nil, err
	}

	req := &repository.PurchaseRequest{
		OrganizationID: organizationID,
		Title:          in.Title,
		Justification:  in.Justification,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		Category:       in.Category,
		Urgency:        in.Urgency,
		SupplierName:   in.SupplierName,
		NeededDate:     in.NeededDate,
		RequesterID:    actorID,
	}

	event := &repository.HistoryEvent{
		Action:      repository.ActionCreated,
		PerformedBy: actorID,
		NewStatus:   strPtr(repository.RequestStatusDraft),
		Details: map[string]interface{}{
			"title":        in.Title,
			"amount_cents": in.AmountCents,
			"category":     in.Category,
		},
	}

	if err := s.requests.CreateDraft(ctx, req, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Str("organization_id", organizationID).
		Int64("amount_cents", req.AmountCents).
		Msg("Purchase request created")

	return req, nil
}

// UpdateDraft edits a draft. Only the requester may edit, only while draft.
func (s *RequestService) UpdateDraft(ctx context.Context, id, organizationID, actorID string, in *RequestInput) (*repository.PurchaseRequest, error) {
	if err := validateRequestInput(in); err != nil {
		return nil, err
	}

	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, errors.New(errors.ErrCodeUnauthorized, "only the requester can edit a request")
	}
	if req.Status != repository.RequestStatusDraft {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot edit request with status '%s'", req.Status))
	}

	req.Title = in.Title
	req.Justification = in.Justification
	req.AmountCents = in.AmountCents
	req.Currency = in.Currency
	req.Category = in.Category
	req.Urgency = in.Urgency
	req.SupplierName = in.SupplierName
	req.NeededDate = in.NeededDate

	event := &repository.HistoryEvent{
		RequestID:      req.ID,
		OrganizationID: organizationID,
		Action:         repository.ActionUpdated,
		PerformedBy:    actorID,
		Details: map[string]interface{}{
			"title":        in.Title,
			"amount_cents": in.AmountCents,
			"category":     in.Category,
		},
	}

	if err := s.requests.UpdateDraft(ctx, req, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Msg("Purchase request updated")

	return req, nil
}

// DeleteDraft removes a draft request and its owned rows.
func (s *RequestService) DeleteDraft(ctx context.Context, id, organizationID, actorID string) error {
	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return err
	}
	if req.RequesterID != actorID {
		return errors.New(errors.ErrCodeUnauthorized, "only the requester can delete a request")
	}
	if req.Status != repository.RequestStatusDraft {
		return errors.InvalidTransition(fmt.Sprintf("cannot delete request with status '%s'", req.Status))
	}

	if err := s.requests.DeleteDraft(ctx, id, organizationID); err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", id).
		Str("request_number", req.RequestNumber).
		Msg("Purchase request deleted")

	return nil
}

// ── Submit ───────────────────────────────────────────────────────────────────

// Submit routes a draft into approval: the matching rule is resolved, the
// approver chain is materialized and the request enters in_approval with the
// turn pointer at 1. No matching rule is a hard stop — the request stays in
// draft and the requester is told to contact an administrator.
func (s *RequestService) Submit(ctx context.Context, id, organizationID, actorID string) (*repository.PurchaseRequest, error) {
	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, errors.New(errors.ErrCodeUnauthorized, "only the requester can submit a request")
	}
	if req.Status != repository.RequestStatusDraft {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot submit request with status '%s'", req.Status))
	}

	rules, err := s.rules.List(ctx, organizationID, true)
	if err != nil {
		return nil, err
	}
	rule := MatchRule(rules, req.AmountCents, req.Category)
	if rule == nil {
		return nil, errors.Unprocessable(
			"no active approval rule covers this amount and category; contact an administrator")
	}

	chain := BuildChain(rule.ApproverChain)
	if len(chain) == 0 {
		return nil, errors.Unprocessable("matched approval rule has no approvers configured")
	}

	now := time.Now().UTC()
	approverIDs := make([]string, len(chain))
	for i, a := range chain {
		approverIDs[i] = a.ApproverID
	}

	sub := &repository.Submission{
		RequestID:      req.ID,
		OrganizationID: organizationID,
		RuleID:         rule.ID,
		Assignments:    chain,
		SubmittedAt:    now,
		Events: []*repository.HistoryEvent{
			{
				RequestID:      req.ID,
				OrganizationID: organizationID,
				Action:         repository.ActionSubmitted,
				PerformedBy:    actorID,
				OldStatus:      strPtr(repository.RequestStatusDraft),
				NewStatus:      strPtr(repository.RequestStatusInApproval),
				Details: map[string]interface{}{
					"rule_id":   rule.ID,
					"rule_name": rule.Name,
				},
			},
			{
				RequestID:      req.ID,
				OrganizationID: organizationID,
				Action:         repository.ActionApproversAssigned,
				PerformedBy:    actorID,
				Details: map[string]interface{}{
					"approvers":       approverIDs,
					"total_approvers": len(chain),
				},
			},
		},
	}

	if err := s.requests.Submit(ctx, sub); err != nil {
		return nil, err
	}

	req.Status = repository.RequestStatusInApproval
	req.RuleID = &rule.ID
	req.TotalApprovers = len(chain)
	pos := 1
	req.CurrentApproverPosition = &pos
	req.SubmittedAt = &now

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Str("rule_id", rule.ID).
		Int("total_approvers", req.TotalApprovers).
		Msg("Purchase request submitted for approval")

	s.notifier.NotifyApprover(ctx, req, chain[0].ApproverID, 1)
	return req, nil
}

// ── Approve ──────────────────────────────────────────────────────────────────

// Approve records the current-turn approver's decision. The turn pointer
// advances by exactly one, or the request becomes approved when the acting
// position was the last. A racing second approver loses the store-side
// compare-and-set and gets a CONFLICT.
func (s *RequestService) Approve(ctx context.Context, id, organizationID, actorID string, comments *string) (*repository.PurchaseRequest, error) {
	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if req.Status != repository.RequestStatusInApproval {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot approve request with status '%s'", req.Status))
	}
	if req.CurrentApproverPosition == nil {
		return nil, errors.InvalidTransition("request has no active approval turn")
	}
	position := *req.CurrentApproverPosition

	assignments, err := s.assignments.GetByRequestID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	current := assignmentAt(assignments, position)
	if current == nil || current.Status != repository.AssignmentStatusPending {
		return nil, errors.Conflict("current approval turn has already been decided")
	}
	if current.ApproverID != actorID {
		return nil, errors.New(errors.ErrCodeUnauthorized,
			fmt.Sprintf("it is not your turn: position %d is assigned to another approver", position))
	}

	isLast := position >= req.TotalApprovers
	now := time.Now().UTC()

	d := &repository.Decision{
		RequestID:          req.ID,
		OrganizationID:     organizationID,
		ExpectPosition:     &position,
		AssignmentPosition: position,
		AssignmentStatus:   repository.AssignmentStatusApproved,
		Comments:           comments,
	}

	approvedEvent := &repository.HistoryEvent{
		RequestID:      req.ID,
		OrganizationID: organizationID,
		Action:         repository.ActionApprovedBy,
		PerformedBy:    actorID,
		Details: map[string]interface{}{
			"position": position,
			"total":    req.TotalApprovers,
		},
	}
	if comments != nil {
		approvedEvent.Details["comments"] = *comments
	}

	if isLast {
		d.NewStatus = repository.RequestStatusApproved
		d.CompletedAt = &now
		approvedEvent.OldStatus = strPtr(repository.RequestStatusInApproval)
		approvedEvent.NewStatus = strPtr(repository.RequestStatusApproved)
		d.Events = []*repository.HistoryEvent{
			approvedEvent,
			{
				RequestID:      req.ID,
				OrganizationID: organizationID,
				Action:         repository.ActionFullyApproved,
				PerformedBy:    actorID,
				NewStatus:      strPtr(repository.RequestStatusApproved),
				Details: map[string]interface{}{
					"total_approvers": req.TotalApprovers,
				},
			},
		}
	} else {
		next := position + 1
		d.NewStatus = repository.RequestStatusInApproval
		d.NewPosition = &next
		d.Events = []*repository.HistoryEvent{approvedEvent}
	}

	if err := s.requests.ApplyDecision(ctx, d); err != nil {
		return nil, err
	}

	if isLast {
		req.Status = repository.RequestStatusApproved
		req.CompletedAt = &now
	} else {
		next := position + 1
		req.CurrentApproverPosition = &next
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Str("approved_by", actorID).
		Int("position", position).
		Bool("fully_approved", isLast).
		Msg("Purchase request approval recorded")

	if isLast {
		s.notifier.NotifyRequester(ctx, req, "approved", nil)
	} else {
		next := assignmentAt(assignments, position+1)
		if next != nil {
			s.notifier.NotifyApprover(ctx, req, next.ApproverID, next.OrderPosition)
		}
	}
	return req, nil
}

// ── Reject ───────────────────────────────────────────────────────────────────

// Reject terminates the workflow. Any approver holding a pending assignment
// may reject, not just the current turn; every position after the rejecting
// one becomes skipped and the turn pointer is frozen where it was.
func (s *RequestService) Reject(ctx context.Context, id, organizationID, actorID, reason string) (*repository.PurchaseRequest, error) {
	if reason == "" {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}

	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if req.Status != repository.RequestStatusInApproval {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot reject request with status '%s'", req.Status))
	}

	assignments, err := s.assignments.GetByRequestID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	var mine *repository.ApproverAssignment
	for _, a := range assignments {
		if a.ApproverID == actorID && a.Status == repository.AssignmentStatusPending {
			mine = a
			break
		}
	}
	if mine == nil {
		return nil, errors.New(errors.ErrCodeUnauthorized, "you hold no pending approval for this request")
	}

	now := time.Now().UTC()
	d := &repository.Decision{
		RequestID:          req.ID,
		OrganizationID:     organizationID,
		AssignmentPosition: mine.OrderPosition,
		AssignmentStatus:   repository.AssignmentStatusRejected,
		Comments:           &reason,
		NewStatus:          repository.RequestStatusRejected,
		SkipAfter:          &mine.OrderPosition,
		CompletedAt:        &now,
		Events: []*repository.HistoryEvent{
			{
				RequestID:      req.ID,
				OrganizationID: organizationID,
				Action:         repository.ActionRejectedBy,
				PerformedBy:    actorID,
				OldStatus:      strPtr(repository.RequestStatusInApproval),
				NewStatus:      strPtr(repository.RequestStatusRejected),
				Details: map[string]interface{}{
					"position": mine.OrderPosition,
					"reason":   reason,
				},
			},
		},
	}

	if err := s.requests.ApplyDecision(ctx, d); err != nil {
		return nil, err
	}

	req.Status = repository.RequestStatusRejected
	req.CompletedAt = &now

	s.log.Info().
		Str("request_id", req.ID).
		Str("request_number", req.RequestNumber).
		Str("rejected_by", actorID).
		Int("position", mine.OrderPosition).
		Msg("Purchase request rejected")

	s.notifier.NotifyRequester(ctx, req, "rejected", &reason)
	return req, nil
}

// ── Convert ──────────────────────────────────────────────────────────────────

// Convert materializes a fully approved request as a contract. The request
// row stays locked for the duration of the transition, so a concurrent
// second conversion blocks and then fails its guard instead of creating a
// duplicate contract.
func (s *RequestService) Convert(ctx context.Context, id, organizationID, actorID string, overrides *ConversionOverrides) (*repository.PurchaseRequest, error) {
	roles, err := s.identity.GetUserRoles(ctx, organizationID, actorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve actor roles")
	}
	allowed := false
	for _, role := range roles {
		if convertAllowedRoles[role] {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.New(errors.ErrCodeUnauthorized, "converting a request requires an elevated role")
	}

	converted, err := s.requests.ConvertExclusive(ctx, id, organizationID,
		func(req *repository.PurchaseRequest) (*repository.ConversionOutcome, error) {
			// Already-converted is a replay, not a wrong-state transition:
			// the second converter lost the race and must not retry.
			if req.Status == repository.RequestStatusConverted || req.ContractID != nil {
				return nil, errors.Conflict("request has already been converted")
			}
			if req.Status != repository.RequestStatusApproved {
				return nil, errors.InvalidTransition(fmt.Sprintf("cannot convert request with status '%s'", req.Status))
			}

			cmd, err := buildContractCommand(req, overrides)
			if err != nil {
				return nil, err
			}

			contractID, err := s.contracts.CreateContract(ctx, cmd)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "contract creation failed")
			}

			return &repository.ConversionOutcome{
				ContractID: contractID,
				Event: &repository.HistoryEvent{
					RequestID:      req.ID,
					OrganizationID: organizationID,
					Action:         repository.ActionConvertedToContract,
					PerformedBy:    actorID,
					OldStatus:      strPtr(repository.RequestStatusApproved),
					NewStatus:      strPtr(repository.RequestStatusConverted),
					Details: map[string]interface{}{
						"contract_id":        contractID,
						"pricing_model":      cmd.PricingModel,
						"monthly_cost_cents": cmd.MonthlyCostCents,
					},
				},
			}, nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", converted.ID).
		Str("request_number", converted.RequestNumber).
		Str("contract_id", *converted.ContractID).
		Str("converted_by", actorID).
		Msg("Purchase request converted to contract")

	return converted, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// RequestDetail bundles a request with its chain and attachments.
type RequestDetail struct {
	Request     *repository.PurchaseRequest      `json:"request"`
	Assignments []*repository.ApproverAssignment `json:"assignments"`
	Attachments []*repository.Attachment         `json:"attachments"`
}

// GetDetail returns a request with its resolved chain and attachments.
func (s *RequestService) GetDetail(ctx context.Context, id, organizationID string) (*RequestDetail, error) {
	req, err := s.requests.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignments.GetByRequestID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.attachments.ListForRequest(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: req, Assignments: assignments, Attachments: attachments}, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *RequestService) ListMine(ctx context.Context, organizationID, actorID string, page, pageSize int) ([]*repository.PurchaseRequest, error) {
	offset := (page - 1) * pageSize
	return s.requests.ListByRequester(ctx, organizationID, actorID, pageSize, offset)
}

// PendingApproval pairs a pending assignment with its request.
type PendingApproval struct {
	Assignment *repository.ApproverAssignment `json:"assignment"`
	Request    *repository.PurchaseRequest    `json:"request"`
}

// ListToApprove returns the requests currently awaiting the actor's decision.
func (s *RequestService) ListToApprove(ctx context.Context, organizationID, actorID string) ([]*PendingApproval, error) {
	assignments, err := s.assignments.GetPendingForUser(ctx, organizationID, actorID)
	if err != nil {
		return nil, err
	}

	pending := make([]*PendingApproval, 0, len(assignments))
	for _, a := range assignments {
		req, err := s.requests.GetByID(ctx, a.RequestID, organizationID)
		if err != nil {
			return nil, err
		}
		pending = append(pending, &PendingApproval{Assignment: a, Request: req})
	}
	return pending, nil
}

// GetHistory returns the audit trail for a request, newest first.
func (s *RequestService) GetHistory(ctx context.Context, requestID, organizationID string) ([]*repository.HistoryEvent, error) {
	if _, err := s.requests.GetByID(ctx, requestID, organizationID); err != nil {
		return nil, err
	}
	return s.history.ListForRequest(ctx, requestID, organizationID)
}

// ── Attachments ──────────────────────────────────────────────────────────────

// AttachmentInput carries file metadata from the document-storage collaborator.
type AttachmentInput struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageKey  string `json:"storage_key"`
}

// AttachFile records a stored document's association with a request.
func (s *RequestService) AttachFile(ctx context.Context, requestID, organizationID, actorID string, in *AttachmentInput) (*repository.Attachment, error) {
	if in.FileName == "" {
		return nil, errors.InvalidInput("file_name", "file name is required")
	}
	if in.StorageKey == "" {
		return nil, errors.InvalidInput("storage_key", "storage key is required")
	}

	req, err := s.requests.GetByID(ctx, requestID, organizationID)
	if err != nil {
		return nil, err
	}

	att := &repository.Attachment{
		RequestID:      req.ID,
		OrganizationID: organizationID,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		SizeBytes:      in.SizeBytes,
		StorageKey:     in.StorageKey,
		UploadedBy:     actorID,
	}
	if err := s.attachments.Create(ctx, att); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &repository.HistoryEvent{
		RequestID:      req.ID,
		OrganizationID: organizationID,
		Action:         repository.ActionFileUploaded,
		PerformedBy:    actorID,
		Details: map[string]interface{}{
			"attachment_id": att.ID,
			"file_name":     att.FileName,
			"size_bytes":    att.SizeBytes,
		},
	})
	return att, nil
}

// ListFiles returns a request's non-deleted attachments.
func (s *RequestService) ListFiles(ctx context.Context, requestID, organizationID string) ([]*repository.Attachment, error) {
	return s.attachments.ListForRequest(ctx, requestID, organizationID)
}

// SoftDeleteFile marks an attachment deleted and records the event.
func (s *RequestService) SoftDeleteFile(ctx context.Context, fileID, organizationID, actorID string) error {
	att, err := s.attachments.GetByID(ctx, fileID, organizationID)
	if err != nil {
		return err
	}
	if err := s.attachments.SoftDelete(ctx, fileID, organizationID); err != nil {
		return err
	}

	s.appendHistory(ctx, &repository.HistoryEvent{
		RequestID:      att.RequestID,
		OrganizationID: organizationID,
		Action:         repository.ActionFileDeleted,
		PerformedBy:    actorID,
		Details: map[string]interface{}{
			"attachment_id": att.ID,
			"file_name":     att.FileName,
		},
	})
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// appendHistory writes a non-transition history entry and logs a warning on
// failure. Transition events go through the store's transactions instead.
func (s *RequestService) appendHistory(ctx context.Context, event *repository.HistoryEvent) {
	if err := s.history.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", event.RequestID).
			Str("action", event.Action).
			Msg("Failed to write history entry")
	}
}

func validateRequestInput(in *RequestInput) error {
	if in.Title == "" {
		return errors.InvalidInput("title", "title is required")
	}
	if in.Justification == "" {
		return errors.InvalidInput("justification", "justification is required")
	}
	if in.Category == "" {
		return errors.InvalidInput("category", "category is required")
	}
	if in.AmountCents <= 0 {
		return errors.InvalidInput("amount_cents", "amount must be positive")
	}
	if len(in.Currency) != 3 {
		return errors.InvalidInput("currency", "currency must be a 3-letter ISO code")
	}
	switch in.Urgency {
	case "", "normal", "urgent", "critical":
	default:
		return errors.InvalidInput("urgency", "urgency must be normal, urgent or critical")
	}
	if in.Urgency == "" {
		in.Urgency = "normal"
	}
	return nil
}

func assignmentAt(assignments []*repository.ApproverAssignment, position int) *repository.ApproverAssignment {
	for _, a := range assignments {
		if a.OrderPosition == position {
			return a
		}
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
