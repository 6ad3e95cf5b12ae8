package service

import (
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// MatchRule selects the single applicable rule for an amount/category pair.
//
// A rule matches when it is active, amount >= MinAmount, amount <= MaxAmount
// (nil MaxAmount means unbounded) and the category is listed (an empty
// category set matches any category). Both amount bounds are inclusive.
//
// Among matches the highest priority wins; ties break on the lowest rule ID
// so resolution stays deterministic even when an administrator configures
// overlapping rules with equal priority. Returns nil when nothing matches.
func MatchRule(rules []*repository.ApprovalRule, amountCents int64, category string) *repository.ApprovalRule {
	var best *repository.ApprovalRule
	for _, rule := range rules {
		if !ruleMatches(rule, amountCents, category) {
			continue
		}
		if best == nil || betterMatch(rule, best) {
			best = rule
		}
	}
	return best
}

func ruleMatches(rule *repository.ApprovalRule, amountCents int64, category string) bool {
	if !rule.IsActive {
		return false
	}
	if amountCents < rule.MinAmount {
		return false
	}
	if rule.MaxAmount != nil && amountCents > *rule.MaxAmount {
		return false
	}
	if len(rule.Categories) == 0 {
		return true
	}
	for _, c := range rule.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// betterMatch reports whether candidate should replace current: higher
// priority wins, equal priority falls back to the lower rule ID.
func betterMatch(candidate, current *repository.ApprovalRule) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	return candidate.ID < current.ID
}
