package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConfidenceTier is a coarse label derived from the composite score only
type ConfidenceTier string

const (
	TierExact  ConfidenceTier = "exact"
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// Tier break points on the composite score
const (
	ExactTierScore  = 0.9
	HighTierScore   = 0.7
	MediumTierScore = 0.5
)

// AllTiers lists the tiers from strongest to weakest
var AllTiers = []ConfidenceTier{TierExact, TierHigh, TierMedium, TierLow}

// TierForScore maps a composite score to its confidence tier
func TierForScore(score float64) ConfidenceTier {
	switch {
	case score >= ExactTierScore:
		return TierExact
	case score >= HighTierScore:
		return TierHigh
	case score >= MediumTierScore:
		return TierMedium
	default:
		return TierLow
	}
}

// MatchResult is an accepted one-to-one pairing of a bank and a ledger record
type MatchResult struct {
	BankID              string          `json:"bank_id" yaml:"bank_id"`
	LedgerID            string          `json:"ledger_id" yaml:"ledger_id"`
	CompositeScore      float64         `json:"composite_score" yaml:"composite_score"`
	Tier                ConfidenceTier  `json:"tier" yaml:"tier"`
	AmountScore         float64         `json:"amount_score" yaml:"amount_score"`
	DateScore           float64         `json:"date_score" yaml:"date_score"`
	DescriptionScore    float64         `json:"description_score" yaml:"description_score"`
	AmountDifference    decimal.Decimal `json:"amount_difference" yaml:"amount_difference"`
	DaysApart           int             `json:"days_apart" yaml:"days_apart"`
	SignMismatch        bool            `json:"sign_mismatch,omitempty" yaml:"sign_mismatch,omitempty"`
	PeriodicWidened     bool            `json:"periodic_widened,omitempty" yaml:"periodic_widened,omitempty"`
	DescriptionDateUsed bool            `json:"description_date_used,omitempty" yaml:"description_date_used,omitempty"`
	Notes               []string        `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// String returns a string representation of the match
func (m MatchResult) String() string {
	return fmt.Sprintf("Match{Bank: %s, Ledger: %s, Score: %.3f, Tier: %s}",
		m.BankID, m.LedgerID, m.CompositeScore, m.Tier)
}

// Exclusion records why a record was kept out of matching
type Exclusion struct {
	RecordID string      `json:"record_id" yaml:"record_id"`
	Source   Source      `json:"source" yaml:"source"`
	Reasons  []IssueCode `json:"reasons" yaml:"reasons"`
}

// ExclusionFor builds the exclusion entry for a record with issues
func ExclusionFor(r *TransactionRecord) Exclusion {
	return Exclusion{
		RecordID: r.ID,
		Source:   r.Source,
		Reasons:  append([]IssueCode(nil), r.Issues...),
	}
}
