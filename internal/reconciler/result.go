package reconciler

import (
	"time"

	"bank-ledger-reconciler/internal/matcher"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/normalizer"

	"github.com/shopspring/decimal"
)

// Result contains the outcome of a run. Every input record appears either
// in exactly one match or in the unmatched list of its side.
type Result struct {
	RunID           string                      `json:"run_id" yaml:"run_id"`
	Matches         []models.MatchResult        `json:"matches" yaml:"matches"`
	UnmatchedBank   []*models.TransactionRecord `json:"unmatched_bank" yaml:"unmatched_bank"`
	UnmatchedLedger []*models.TransactionRecord `json:"unmatched_ledger" yaml:"unmatched_ledger"`
	Exclusions      []models.Exclusion          `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
	DuplicateGroups []matcher.DuplicateGroup    `json:"duplicate_groups,omitempty" yaml:"duplicate_groups,omitempty"`
	Stats           Stats                       `json:"stats" yaml:"stats"`
}

// Stats contains the statistics of a run
type Stats struct {
	TotalBank   int `json:"total_bank" yaml:"total_bank"`
	TotalLedger int `json:"total_ledger" yaml:"total_ledger"`

	ExcludedBank       int                      `json:"excluded_bank" yaml:"excluded_bank"`
	ExcludedLedger     int                      `json:"excluded_ledger" yaml:"excluded_ledger"`
	ExclusionsByReason map[models.IssueCode]int `json:"exclusions_by_reason" yaml:"exclusions_by_reason"`

	CandidatesEvaluated        int `json:"candidates_evaluated" yaml:"candidates_evaluated"`
	CandidatesRejectedByFactor int `json:"candidates_rejected_by_factor" yaml:"candidates_rejected_by_factor"`
	RejectedByAmount           int `json:"rejected_by_amount" yaml:"rejected_by_amount"`
	RejectedByDate             int `json:"rejected_by_date" yaml:"rejected_by_date"`
	RejectedByDescription      int `json:"rejected_by_description" yaml:"rejected_by_description"`
	CandidatesBelowThreshold   int `json:"candidates_below_threshold" yaml:"candidates_below_threshold"`
	CandidatesAccepted         int `json:"candidates_accepted" yaml:"candidates_accepted"`
	ContestedCandidates        int `json:"contested_candidates" yaml:"contested_candidates"`

	MatchesFound    int                           `json:"matches_found" yaml:"matches_found"`
	UnmatchedBank   int                           `json:"unmatched_bank" yaml:"unmatched_bank"`
	UnmatchedLedger int                           `json:"unmatched_ledger" yaml:"unmatched_ledger"`
	Tiers           map[models.ConfidenceTier]int `json:"tiers" yaml:"tiers"`
	SignMismatches  int                           `json:"sign_mismatches" yaml:"sign_mismatches"`
	DuplicateGroups int                           `json:"duplicate_groups" yaml:"duplicate_groups"`

	AmountMatched         decimal.Decimal `json:"amount_matched" yaml:"amount_matched"`
	AmountUnmatchedBank   decimal.Decimal `json:"amount_unmatched_bank" yaml:"amount_unmatched_bank"`
	AmountUnmatchedLedger decimal.Decimal `json:"amount_unmatched_ledger" yaml:"amount_unmatched_ledger"`

	BankNormalization   normalizer.Stats   `json:"bank_normalization" yaml:"bank_normalization"`
	LedgerNormalization normalizer.Stats   `json:"ledger_normalization" yaml:"ledger_normalization"`
	Index               matcher.IndexStats `json:"index" yaml:"index"`

	PhaseDurations   map[Phase]time.Duration `json:"phase_durations" yaml:"phase_durations"`
	ElapsedTime      time.Duration           `json:"elapsed_time" yaml:"elapsed_time"`
	RecordsPerSecond float64                 `json:"records_per_second" yaml:"records_per_second"`
	MatchRate        float64                 `json:"match_rate" yaml:"match_rate"`

	Cancelled bool  `json:"cancelled" yaml:"cancelled"`
	LastPhase Phase `json:"last_phase" yaml:"last_phase"`
}

// newResult returns the result of a run that has not done any work yet:
// no matches and every record unmatched
func newResult(runID string, bank, ledger []*models.TransactionRecord) *Result {
	return &Result{
		RunID:           runID,
		Matches:         []models.MatchResult{},
		UnmatchedBank:   append([]*models.TransactionRecord{}, bank...),
		UnmatchedLedger: append([]*models.TransactionRecord{}, ledger...),
		Stats: Stats{
			TotalBank:             len(bank),
			TotalLedger:           len(ledger),
			UnmatchedBank:         len(bank),
			UnmatchedLedger:       len(ledger),
			ExclusionsByReason:    make(map[models.IssueCode]int),
			Tiers:                 make(map[models.ConfidenceTier]int),
			PhaseDurations:        make(map[Phase]time.Duration),
			AmountMatched:         decimal.Zero,
			AmountUnmatchedBank:   decimal.Zero,
			AmountUnmatchedLedger: decimal.Zero,
		},
	}
}

// exclude records every normalized record that cannot take part in matching
func (r *Result) exclude(records []*models.TransactionRecord) {
	for _, rec := range records {
		if rec.Matchable() {
			continue
		}
		r.Exclusions = append(r.Exclusions, models.ExclusionFor(rec))
		for _, issue := range rec.Issues {
			r.Stats.ExclusionsByReason[issue]++
		}
		if rec.Source == models.SourceBank {
			r.Stats.ExcludedBank++
		} else {
			r.Stats.ExcludedLedger++
		}
	}
}

func (s *Stats) addScoreCounts(c matcher.ScoreCounts) {
	s.CandidatesEvaluated += c.Evaluated
	s.CandidatesAccepted += c.Accepted
	s.CandidatesBelowThreshold += c.BelowThreshold
	s.RejectedByAmount += c.RejectedByAmount
	s.RejectedByDate += c.RejectedByDate
	s.RejectedByDescription += c.RejectedByDescription
	s.CandidatesRejectedByFactor += c.RejectedByFactor()
}

// commit installs a completed assignment
func (r *Result) commit(a *matcher.Assignment, bank, ledger []*models.TransactionRecord) {
	if a.Matches != nil {
		r.Matches = a.Matches
	}
	r.UnmatchedBank = a.UnmatchedBank(bank)
	r.UnmatchedLedger = a.UnmatchedLedger(ledger)

	s := &r.Stats
	s.MatchesFound = len(r.Matches)
	s.UnmatchedBank = len(r.UnmatchedBank)
	s.UnmatchedLedger = len(r.UnmatchedLedger)
	s.ContestedCandidates = a.Contested

	for _, m := range r.Matches {
		s.Tiers[m.Tier]++
		if m.SignMismatch {
			s.SignMismatches++
		}
	}

	for pos, rec := range bank {
		if a.BankClaimed[pos] {
			s.AmountMatched = s.AmountMatched.Add(rec.AbsAmount())
		}
	}
	for _, rec := range r.UnmatchedBank {
		s.AmountUnmatchedBank = s.AmountUnmatchedBank.Add(rec.AbsAmount())
	}
	for _, rec := range r.UnmatchedLedger {
		s.AmountUnmatchedLedger = s.AmountUnmatchedLedger.Add(rec.AbsAmount())
	}
}

// finish fills in the run-level performance figures
func (r *Result) finish(elapsed time.Duration) {
	s := &r.Stats
	s.ElapsedTime = elapsed
	s.LastPhase = PhaseDone

	total := s.TotalBank + s.TotalLedger
	if elapsed > 0 {
		s.RecordsPerSecond = float64(total) / elapsed.Seconds()
	}
	if total > 0 {
		s.MatchRate = float64(s.MatchesFound*2) / float64(total)
	}
}

// MatchedBankIDs returns the ids of matched bank records in match order
func (r *Result) MatchedBankIDs() []string {
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.BankID
	}
	return ids
}

// MatchedLedgerIDs returns the ids of matched ledger records in match order
func (r *Result) MatchedLedgerIDs() []string {
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.LedgerID
	}
	return ids
}
