package client

import (
	"context"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// ContractsClientInterface creates contract records in the contracts service.
type ContractsClientInterface interface {
	// CreateContract submits a contract creation command and returns the new
	// contract's id.
	CreateContract(ctx context.Context, cmd *CreateContractCommand) (string, error)
}

// IdentityClientInterface resolves user roles from the identity service.
type IdentityClientInterface interface {
	// GetUserRoles returns the role names a user holds within an organization.
	GetUserRoles(ctx context.Context, organizationID, userID string) ([]string, error)
}

// NotifierInterface is the outbound notification port. Implementations must
// be best-effort: delivery failure never affects the business transition.
type NotifierInterface interface {
	// NotifyApprover tells an approver their turn has arrived.
	NotifyApprover(ctx context.Context, req *repository.PurchaseRequest, approverID string, position int)
	// NotifyRequester tells the requester about a terminal outcome.
	NotifyRequester(ctx context.Context, req *repository.PurchaseRequest, outcome string, reason *string)
}

// CreateContractCommand is the payload sent to the contracts service when a
// fully approved request is converted.
type CreateContractCommand struct {
	OrganizationID      string  `json:"organization_id"`
	Name                string  `json:"name"`
	SupplierName        string  `json:"supplier_name"`
	Category            string  `json:"category"`
	PricingModel        string  `json:"pricing_model"` // flat | per_seat
	MonthlyCostCents    int64   `json:"monthly_cost_cents"`
	Currency            string  `json:"currency"`
	UnitCostCents       *int64  `json:"unit_cost_cents,omitempty"`
	LicenseCount        *int    `json:"license_count,omitempty"`
	StartDate           *string `json:"start_date,omitempty"`
	EndDate             *string `json:"end_date,omitempty"`
	BillingCycle        string  `json:"billing_cycle"`
	SourceRequestID     string  `json:"source_request_id"`
	SourceRequestNumber string  `json:"source_request_number"`
}
