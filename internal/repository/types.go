package repository

import "time"

// ── Domain types for the purchase request approval workflow ──────────────────

// Purchase request statuses.
const (
	RequestStatusDraft      = "draft"
	RequestStatusInApproval = "in_approval"
	RequestStatusApproved   = "approved"
	RequestStatusRejected   = "rejected"
	RequestStatusConverted  = "converted"
)

// Approver assignment statuses.
const (
	AssignmentStatusPending  = "pending"
	AssignmentStatusApproved = "approved"
	AssignmentStatusRejected = "rejected"
	AssignmentStatusSkipped  = "skipped"
)

// History actions.
const (
	ActionCreated             = "created"
	ActionUpdated             = "updated"
	ActionSubmitted           = "submitted"
	ActionApproversAssigned   = "approvers_assigned"
	ActionApprovedBy          = "approved_by"
	ActionRejectedBy          = "rejected_by"
	ActionFullyApproved       = "fully_approved"
	ActionConvertedToContract = "converted_to_contract"
	ActionFileUploaded        = "file_uploaded"
	ActionFileDeleted         = "file_deleted"
)

// ApprovalRule is a configurable routing rule scoped to one organization.
// The workflow engine only ever reads rules; administrators own their lifecycle.
type ApprovalRule struct {
	ID             string
	OrganizationID string
	Name           string
	MinAmount      int64  // cents, inclusive lower bound
	MaxAmount      *int64 // cents, inclusive upper bound; nil = unbounded
	Categories     []string
	ApproverChain  []string // ordered approver user IDs
	Priority       int      // higher wins on overlap
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PurchaseRequest is a request for spend routed through an approver chain.
type PurchaseRequest struct {
	ID                      string
	OrganizationID          string
	RequestNumber           string // PR-<year>-<4-digit sequence>
	Title                   string
	Justification           string
	AmountCents             int64
	Currency                string
	Category                string
	Urgency                 string // normal | urgent | critical
	SupplierName            *string
	NeededDate              *string // YYYY-MM-DD
	RequesterID             string
	Status                  string
	CurrentApproverPosition *int // 1-based; nil while draft
	TotalApprovers          int
	RuleID                  *string
	ContractID              *string // set only after conversion
	SubmittedAt             *time.Time
	CompletedAt             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// ApproverAssignment is one position in a request's resolved approver chain.
type ApproverAssignment struct {
	ID             string
	RequestID      string
	OrganizationID string
	ApproverID     string
	OrderPosition  int // 1-based, unique per request
	Status         string
	DecisionAt     *time.Time
	Comments       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryEvent is one immutable record in a request's audit trail.
type HistoryEvent struct {
	ID             string
	RequestID      string
	OrganizationID string
	Action         string
	PerformedBy    string
	PerformedAt    time.Time
	OldStatus      *string
	NewStatus      *string
	Details        map[string]interface{}
}

// Attachment records the association between a request and an externally
// stored document. The bytes live in the document-storage service.
type Attachment struct {
	ID             string
	RequestID      string
	OrganizationID string
	FileName       string
	ContentType    string
	SizeBytes      int64
	StorageKey     string
	UploadedBy     string
	UploadedAt     time.Time
	DeletedAt      *time.Time
}

// Submission is the atomic write set applied when a draft enters approval:
// the request row flips to in_approval, the chain is persisted and the
// submit history events are appended, all in one transaction.
type Submission struct {
	RequestID      string
	OrganizationID string
	RuleID         string
	Assignments    []*ApproverAssignment
	Events         []*HistoryEvent
	SubmittedAt    time.Time
}

// Decision is the atomic write set for an approve or reject transition.
// ExpectPosition carries the compare-and-set guard: the request row is
// only updated when status is still in_approval and, when ExpectPosition
// is non-nil, the turn pointer still matches.
type Decision struct {
	RequestID      string
	OrganizationID string
	ExpectPosition *int

	AssignmentPosition int
	AssignmentStatus   string
	Comments           *string

	NewStatus   string
	NewPosition *int // nil leaves the pointer unchanged
	SkipAfter   *int // positions greater than this become skipped
	CompletedAt *time.Time

	Events []*HistoryEvent
}
