package service

import (
	"github.com/Bouchary/saas-tracker-app-sub001/internal/client"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// Pricing models accepted by the conversion gateway.
const (
	PricingModelFlat    = "flat"
	PricingModelPerSeat = "per_seat"
)

// ConversionOverrides supplies the contract fields a purchase request does
// not carry. Request fields always win where both exist.
type ConversionOverrides struct {
	PricingModel     *string `json:"pricing_model"`
	UnitCostCents    *int64  `json:"unit_cost_cents"`
	LicenseCount     *int    `json:"license_count"`
	MonthlyCostCents *int64  `json:"monthly_cost_cents"`
	SupplierName     *string `json:"supplier_name"`
	StartDate        *string `json:"start_date"`
	EndDate          *string `json:"end_date"`
	BillingCycle     *string `json:"billing_cycle"`
}

// buildContractCommand maps an approved request plus overrides into a
// contract creation command.
//
// For the per_seat pricing model the monthly cost is always recomputed as
// unit cost × license count; any flat amount supplied by the caller or
// carried on the request is ignored. This is the one place cost is
// recalculated rather than copied.
func buildContractCommand(req *repository.PurchaseRequest, ov *ConversionOverrides) (*client.CreateContractCommand, error) {
	if ov == nil {
		ov = &ConversionOverrides{}
	}

	pricingModel := PricingModelFlat
	if ov.PricingModel != nil {
		pricingModel = *ov.PricingModel
	}

	supplierName := ""
	if req.SupplierName != nil && *req.SupplierName != "" {
		supplierName = *req.SupplierName
	} else if ov.SupplierName != nil {
		supplierName = *ov.SupplierName
	}
	if supplierName == "" {
		return nil, errors.InvalidInput("supplier_name", "supplier name is required for conversion")
	}

	cmd := &client.CreateContractCommand{
		OrganizationID:      req.OrganizationID,
		Name:                req.Title,
		SupplierName:        supplierName,
		Category:            req.Category,
		PricingModel:        pricingModel,
		Currency:            req.Currency,
		BillingCycle:        "monthly",
		SourceRequestID:     req.ID,
		SourceRequestNumber: req.RequestNumber,
	}

	if ov.BillingCycle != nil {
		cmd.BillingCycle = *ov.BillingCycle
	}
	if ov.StartDate != nil {
		cmd.StartDate = ov.StartDate
	} else if req.NeededDate != nil {
		cmd.StartDate = req.NeededDate
	}
	cmd.EndDate = ov.EndDate

	switch pricingModel {
	case PricingModelPerSeat:
		if ov.UnitCostCents == nil || ov.LicenseCount == nil {
			return nil, errors.InvalidInput("pricing_model",
				"per_seat conversion requires unit_cost_cents and license_count")
		}
		if *ov.UnitCostCents < 0 || *ov.LicenseCount <= 0 {
			return nil, errors.InvalidInput("pricing_model",
				"unit cost must be non-negative and license count positive")
		}
		cmd.UnitCostCents = ov.UnitCostCents
		cmd.LicenseCount = ov.LicenseCount
		cmd.MonthlyCostCents = *ov.UnitCostCents * int64(*ov.LicenseCount)

	case PricingModelFlat:
		if ov.MonthlyCostCents != nil {
			cmd.MonthlyCostCents = *ov.MonthlyCostCents
		} else {
			cmd.MonthlyCostCents = req.AmountCents
		}

	default:
		return nil, errors.InvalidInput("pricing_model", "unknown pricing model: "+pricingModel)
	}

	return cmd, nil
}
