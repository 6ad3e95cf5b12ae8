package service

import (
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// BuildChain projects a rule's approver slots into a compact 1-based ordered
// chain, dropping unset slots. A rule configured with approvers in slots 1
// and 3 and an empty slot 2 yields a two-element chain at positions 1 and 2.
//
// Duplicate approver IDs are rejected at rule-authoring time (see
// validateChain), so a chain loaded from storage is taken as-is.
func BuildChain(slots []string) []*repository.ApproverAssignment {
	var chain []*repository.ApproverAssignment
	position := 0
	for _, approverID := range slots {
		if approverID == "" {
			continue
		}
		position++
		chain = append(chain, &repository.ApproverAssignment{
			ApproverID:    approverID,
			OrderPosition: position,
			Status:        repository.AssignmentStatusPending,
		})
	}
	return chain
}

// compactChain drops empty slots without building assignments. Used when
// validating and storing rules.
func compactChain(slots []string) []string {
	var compact []string
	for _, s := range slots {
		if s != "" {
			compact = append(compact, s)
		}
	}
	return compact
}
