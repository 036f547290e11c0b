package matcher

import (
	"sort"

	"bank-ledger-reconciler/internal/models"
)

// Assignment is the committed one-to-one match set of a run together with
// the claim flags of both sides
type Assignment struct {
	Matches       []models.MatchResult
	BankClaimed   []bool
	LedgerClaimed []bool

	// Contested counts accepted candidates dropped because one of their
	// records was already committed to a stronger pair
	Contested int
}

// Assign turns accepted candidates into a conflict-free match set. Candidates
// are taken strongest first: higher composite, then smaller amount
// difference, then lower bank input position, then lower ledger input
// position. Positions are indexes into the input slices, not record ids. A
// candidate is committed only when neither of its records has been claimed.
// The input slice is not reordered.
func Assign(candidates []MatchCandidate, nBank, nLedger int) *Assignment {
	a := &Assignment{
		BankClaimed:   make([]bool, nBank),
		LedgerClaimed: make([]bool, nLedger),
	}

	ordered := make([]MatchCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := ordered[i], ordered[j]
		if ci.CompositeScore != cj.CompositeScore {
			return ci.CompositeScore > cj.CompositeScore
		}
		if c := ci.AmountDifference.Cmp(cj.AmountDifference); c != 0 {
			return c < 0
		}
		if ci.BankPos != cj.BankPos {
			return ci.BankPos < cj.BankPos
		}
		return ci.LedgerPos < cj.LedgerPos
	})

	for _, c := range ordered {
		if c.BankPos < 0 || c.BankPos >= nBank || c.LedgerPos < 0 || c.LedgerPos >= nLedger {
			continue
		}
		if a.BankClaimed[c.BankPos] || a.LedgerClaimed[c.LedgerPos] {
			a.Contested++
			continue
		}
		a.BankClaimed[c.BankPos] = true
		a.LedgerClaimed[c.LedgerPos] = true
		a.Matches = append(a.Matches, ToMatchResult(c))
	}

	return a
}

// ToMatchResult converts a committed candidate into its durable form
func ToMatchResult(c MatchCandidate) models.MatchResult {
	return models.MatchResult{
		BankID:              c.BankID,
		LedgerID:            c.LedgerID,
		CompositeScore:      c.CompositeScore,
		Tier:                models.TierForScore(c.CompositeScore),
		AmountScore:         c.AmountScore,
		DateScore:           c.DateScore,
		DescriptionScore:    c.DescriptionScore,
		AmountDifference:    c.AmountDifference,
		DaysApart:           c.DaysApart,
		SignMismatch:        c.SignMismatch,
		PeriodicWidened:     c.PeriodicWidened,
		DescriptionDateUsed: c.DescriptionDateUsed,
		Notes:               MatchNotes(c),
	}
}

// UnmatchedBank returns the bank records left unclaimed, in input order
func (a *Assignment) UnmatchedBank(bank []*models.TransactionRecord) []*models.TransactionRecord {
	return unclaimed(bank, a.BankClaimed)
}

// UnmatchedLedger returns the ledger records left unclaimed, in input order
func (a *Assignment) UnmatchedLedger(ledger []*models.TransactionRecord) []*models.TransactionRecord {
	return unclaimed(ledger, a.LedgerClaimed)
}

func unclaimed(records []*models.TransactionRecord, claimed []bool) []*models.TransactionRecord {
	out := make([]*models.TransactionRecord, 0, len(records))
	for i, rec := range records {
		if i < len(claimed) && claimed[i] {
			continue
		}
		out = append(out, rec)
	}
	return out
}
