package matcher

import (
	"fmt"
	"math"

	"bank-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// signTolerance is how far apart two opposite amounts may cancel out and
	// still count as the same transaction with a flipped sign
	signTolerance = decimal.New(1, -2)

	// amountEpsilon guards the relative difference against zero amounts
	amountEpsilon = decimal.New(1, -9)
)

// compositePrecision is the rounding applied to the composite before it is
// compared with the threshold, so that 0.7 built from weights is still 0.7
const compositePrecision = 1e9

// descriptionDateSlack is how far a date written in a description may be
// from the other side's posting date and still be used
const descriptionDateSlack = 1

// Factor identifies one of the three sub-scores
type Factor string

const (
	FactorAmount      Factor = "amount"
	FactorDate        Factor = "date"
	FactorDescription Factor = "description"
)

// Verdict is the outcome of scoring one candidate pair
type Verdict int

const (
	// Accepted means the pair cleared every floor and the threshold
	Accepted Verdict = iota
	// RejectedByFactor means a sub-score fell below its per-factor minimum
	RejectedByFactor
	// BelowThreshold means the composite fell short of the confidence threshold
	BelowThreshold
)

// String returns the string representation of Verdict
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedByFactor:
		return "rejected_by_factor"
	case BelowThreshold:
		return "below_threshold"
	default:
		return "unknown"
	}
}

// MatchCandidate is a scored bank/ledger pair. Positions index the slices
// the run was started with and are used as claim slots by the assigner.
type MatchCandidate struct {
	BankPos   int
	LedgerPos int
	BankID    string
	LedgerID  string

	AmountScore      float64
	DateScore        float64
	DescriptionScore float64
	CompositeScore   float64

	AmountDifference decimal.Decimal
	DaysApart        int

	SignMismatch        bool
	PeriodicWidened     bool
	DescriptionDateUsed bool
	DescriptionMeasure  DescriptionMeasure
}

// Outcome is what the scorer returns for a pair. Rejection is a normal
// outcome, never an error.
type Outcome struct {
	Candidate  MatchCandidate
	Verdict    Verdict
	RejectedBy Factor
}

// ScoreCounts tallies scoring outcomes
type ScoreCounts struct {
	Evaluated             int `json:"evaluated"`
	Accepted              int `json:"accepted"`
	BelowThreshold        int `json:"below_threshold"`
	RejectedByAmount      int `json:"rejected_by_amount"`
	RejectedByDate        int `json:"rejected_by_date"`
	RejectedByDescription int `json:"rejected_by_description"`
}

// RejectedByFactor returns the number of candidates rejected by any floor
func (c ScoreCounts) RejectedByFactor() int {
	return c.RejectedByAmount + c.RejectedByDate + c.RejectedByDescription
}

// Add folds other into c
func (c *ScoreCounts) Add(other ScoreCounts) {
	c.Evaluated += other.Evaluated
	c.Accepted += other.Accepted
	c.BelowThreshold += other.BelowThreshold
	c.RejectedByAmount += other.RejectedByAmount
	c.RejectedByDate += other.RejectedByDate
	c.RejectedByDescription += other.RejectedByDescription
}

func (c *ScoreCounts) record(o Outcome) {
	c.Evaluated++
	switch o.Verdict {
	case Accepted:
		c.Accepted++
	case BelowThreshold:
		c.BelowThreshold++
	case RejectedByFactor:
		switch o.RejectedBy {
		case FactorAmount:
			c.RejectedByAmount++
		case FactorDate:
			c.RejectedByDate++
		case FactorDescription:
			c.RejectedByDescription++
		}
	}
}

// Scorer computes sub-scores and the composite for candidate pairs. It only
// reads its config and is safe for concurrent use.
type Scorer struct {
	config *ReconciliationConfig
}

// NewScorer creates a scorer
func NewScorer(config *ReconciliationConfig) *Scorer {
	return &Scorer{config: config}
}

// Score compares a bank record with a ledger record. Both must already be
// normalized.
func (s *Scorer) Score(bank, ledger *models.TransactionRecord) Outcome {
	cfg := s.config
	c := MatchCandidate{
		BankID:   bank.ID,
		LedgerID: ledger.ID,
	}

	c.AmountScore, c.SignMismatch = AmountScore(bank.Amount, ledger.Amount, cfg)
	if c.SignMismatch {
		c.AmountDifference = bank.Amount.Add(ledger.Amount).Abs()
	} else {
		c.AmountDifference = bank.Amount.Sub(ledger.Amount).Abs()
	}

	tolerance := cfg.DateToleranceDays
	if widened := s.periodicTolerance(bank, ledger); widened > tolerance {
		tolerance = widened
		c.PeriodicWidened = true
	}
	c.DaysApart = models.DaysApart(bank.Date, ledger.Date)
	c.DateScore = DateScore(c.DaysApart, tolerance)
	if cfg.DescriptionDateRescue {
		s.rescueDate(&c, bank, ledger, tolerance)
	}

	c.DescriptionScore, c.DescriptionMeasure = DescriptionScore(bank.NormalizedDescription, ledger.NormalizedDescription)

	switch {
	case c.AmountScore < cfg.Minimums.Amount:
		return Outcome{Candidate: c, Verdict: RejectedByFactor, RejectedBy: FactorAmount}
	case c.DateScore < cfg.Minimums.Date:
		return Outcome{Candidate: c, Verdict: RejectedByFactor, RejectedBy: FactorDate}
	case c.DescriptionScore < cfg.Minimums.Description:
		return Outcome{Candidate: c, Verdict: RejectedByFactor, RejectedBy: FactorDescription}
	}

	w := cfg.Weights
	composite := w.Amount*c.AmountScore + w.Date*c.DateScore + w.Description*c.DescriptionScore
	c.CompositeScore = math.Round(composite*compositePrecision) / compositePrecision

	if c.CompositeScore < cfg.ConfidenceThreshold {
		return Outcome{Candidate: c, Verdict: BelowThreshold}
	}
	return Outcome{Candidate: c, Verdict: Accepted}
}

// periodicTolerance returns the widest tolerance of any periodic pattern
// matching either description, or zero
func (s *Scorer) periodicTolerance(bank, ledger *models.TransactionRecord) int {
	widest := 0
	for _, p := range s.config.PeriodicPatterns {
		if p.ToleranceDays > widest && (p.Matches(bank.NormalizedDescription) || p.Matches(ledger.NormalizedDescription)) {
			widest = p.ToleranceDays
		}
	}
	return widest
}

// rescueDate lets a date written in either description stand in for its
// posting date when it lands within a day of the other side's posting date
func (s *Scorer) rescueDate(c *MatchCandidate, bank, ledger *models.TransactionRecord, tolerance int) {
	try := func(described, posted *models.TransactionRecord) {
		if !described.HasDescriptionDate() {
			return
		}
		days := models.DaysApart(described.DescriptionDate, posted.Date)
		if days > descriptionDateSlack {
			return
		}
		if score := DateScore(days, tolerance); score > c.DateScore {
			c.DateScore = score
			c.DescriptionDateUsed = true
		}
	}
	try(bank, ledger)
	try(ledger, bank)
}

// ScoreCandidates generates and scores every candidate for the bank record
// at bankPos and returns the accepted ones with their positions filled in
func (s *Scorer) ScoreCandidates(bankPos int, bank *models.TransactionRecord, gen *CandidateGenerator) ([]MatchCandidate, ScoreCounts) {
	var counts ScoreCounts
	positions := gen.CandidatePositions(bank)
	if len(positions) == 0 {
		return nil, counts
	}

	var accepted []MatchCandidate
	for _, ledgerPos := range positions {
		outcome := s.Score(bank, gen.index.Records[ledgerPos])
		counts.record(outcome)
		if outcome.Verdict != Accepted {
			continue
		}
		outcome.Candidate.BankPos = bankPos
		outcome.Candidate.LedgerPos = ledgerPos
		accepted = append(accepted, outcome.Candidate)
	}
	return accepted, counts
}

// AmountScore scores two sign-unified amounts. In AUTO mode a pair that
// cancels out within one minor unit scores 1.0 and is reported as a sign
// mismatch.
func AmountScore(a1, a2 decimal.Decimal, config *ReconciliationConfig) (float64, bool) {
	if a1.Equal(a2) {
		return 1.0, false
	}

	if config.SignConventionMode == SignAuto && a1.Sign()*a2.Sign() < 0 &&
		a1.Add(a2).Abs().LessThanOrEqual(signTolerance) {
		return 1.0, true
	}

	denominator := decimal.Max(a1.Abs(), a2.Abs(), amountEpsilon)
	relative := a1.Sub(a2).Abs().Div(denominator).InexactFloat64()
	return clip01(1 - relative/config.AmountToleranceFraction()), false
}

// DateScore decays linearly from 1.0 on the same day to 0 at toleranceDays
func DateScore(daysApart, toleranceDays int) float64 {
	if toleranceDays <= 0 {
		if daysApart == 0 {
			return 1.0
		}
		return 0
	}
	return clip01(1 - float64(daysApart)/float64(toleranceDays))
}

// MatchNotes generates human-readable notes for a committed candidate
func MatchNotes(c MatchCandidate) []string {
	var notes []string

	if c.AmountScore < 0.99 {
		notes = append(notes, fmt.Sprintf("Amount mismatch (difference %s)", c.AmountDifference.StringFixed(2)))
	}
	if c.DateScore < 0.9 {
		notes = append(notes, fmt.Sprintf("Date mismatch (%d days apart)", c.DaysApart))
	}
	if c.DescriptionScore < 0.8 {
		notes = append(notes, "Description mismatch")
	}
	if len(notes) == 0 {
		notes = append(notes, "Good match")
	}

	if c.SignMismatch {
		notes = append(notes, "Opposite signs, check the source sign convention")
	}
	if c.PeriodicWidened {
		notes = append(notes, "Periodic transaction, date tolerance widened")
	}
	if c.DescriptionDateUsed {
		notes = append(notes, "Date taken from description")
	}
	return notes
}
