// Package matcher provides the bank-to-ledger matching engine and its configuration.
//
// Matching runs in four stages over records that the normalizer has already
// cleaned:
//  1. Indexing: ledger records are bucketed by amount magnitude and date
//  2. Candidate generation: each bank record looks up neighbouring buckets
//  3. Scoring: amount, date and description similarity, with per-factor
//     floors and a weighted composite compared to a confidence threshold
//  4. Assignment: a global greedy pass that keeps every record in at most
//     one match
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.DateToleranceDays = 3
//
//	index := matcher.NewBucketIndex(ledger, config)
//	gen := matcher.NewCandidateGenerator(index, config)
//	scorer := matcher.NewScorer(config)
//
//	for _, b := range bank {
//		for _, l := range gen.Candidates(b) {
//			outcome := scorer.Score(b, l)
//			...
//		}
//	}
package matcher

import (
	"fmt"
	"math"
	"strings"

	"bank-ledger-reconciler/pkg/errors"
)

// SignConventionMode controls how amounts with opposite signs are compared.
type SignConventionMode string

const (
	// SignAuto treats a pair whose amounts cancel out as an exact amount match
	// and flags it, covering sources whose sign convention was not declared
	// correctly.
	SignAuto SignConventionMode = "AUTO"

	// SignFixed trusts the normalized signs; opposite signs never score as equal.
	SignFixed SignConventionMode = "FIXED"
)

// IsValid checks if the mode is known
func (m SignConventionMode) IsValid() bool {
	return m == SignAuto || m == SignFixed
}

// PeriodicPattern widens the date tolerance for recurring transactions whose
// posting dates drift, such as payroll.
type PeriodicPattern struct {
	Name          string   `json:"name" yaml:"name" mapstructure:"name"`
	Keywords      []string `json:"keywords" yaml:"keywords" mapstructure:"keywords"`
	ToleranceDays int      `json:"tolerance_days" yaml:"tolerance_days" mapstructure:"tolerance_days"`
}

// Matches reports whether a normalized description contains one of the keywords
func (p PeriodicPattern) Matches(normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// Weights are the relative importance of each factor in the composite score
type Weights struct {
	Amount      float64 `json:"amount" yaml:"amount" mapstructure:"amount"`
	Date        float64 `json:"date" yaml:"date" mapstructure:"date"`
	Description float64 `json:"description" yaml:"description" mapstructure:"description"`
}

// Minimums are hard per-factor floors. A candidate with any sub-score below
// its floor is rejected whatever its composite.
type Minimums struct {
	Amount      float64 `json:"amount" yaml:"amount" mapstructure:"amount"`
	Date        float64 `json:"date" yaml:"date" mapstructure:"date"`
	Description float64 `json:"description" yaml:"description" mapstructure:"description"`
}

// weightSumTolerance is how far the weights may drift from summing to 1
const weightSumTolerance = 1e-6

// ReconciliationConfig holds every tunable of a run. It is read-only once a
// run has started and may be shared by concurrent workers.
type ReconciliationConfig struct {
	// ConfidenceThreshold is the minimum composite score for a match
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	Weights  Weights  `json:"weights" yaml:"weights" mapstructure:"weights"`
	Minimums Minimums `json:"minimums" yaml:"minimums" mapstructure:"minimums"`

	// DateToleranceDays is the day gap at which the date score reaches zero
	DateToleranceDays int `json:"date_tolerance_days" yaml:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// AmountTolerancePct is the relative difference, in percent, at which
	// the amount score reaches zero
	AmountTolerancePct float64 `json:"amount_tolerance_pct" yaml:"amount_tolerance_pct" mapstructure:"amount_tolerance_pct"`

	// MaxCandidatesPerTransaction caps how many ledger records are scored per bank record
	MaxCandidatesPerTransaction int `json:"max_candidates_per_transaction" yaml:"max_candidates_per_transaction" mapstructure:"max_candidates_per_transaction"`

	SignConventionMode SignConventionMode `json:"sign_convention_mode" yaml:"sign_convention_mode" mapstructure:"sign_convention_mode"`

	PeriodicPatterns []PeriodicPattern `json:"periodic_patterns" yaml:"periodic_patterns" mapstructure:"periodic_patterns"`

	// DescriptionDateRescue lets a date written inside a description stand
	// in for the posting date when it is within a day of the other side
	DescriptionDateRescue bool `json:"description_date_rescue" yaml:"description_date_rescue" mapstructure:"description_date_rescue"`

	// AmountBucketWidth overrides the derived index bucket width when positive
	AmountBucketWidth float64 `json:"amount_bucket_width" yaml:"amount_bucket_width" mapstructure:"amount_bucket_width"`

	// AmountPrecision is the number of decimal places amounts are rounded to
	AmountPrecision int `json:"amount_precision" yaml:"amount_precision" mapstructure:"amount_precision"`

	PreferMonthFirst       bool `json:"prefer_month_first" yaml:"prefer_month_first" mapstructure:"prefer_month_first"`
	AllowZeroAmounts       bool `json:"allow_zero_amounts" yaml:"allow_zero_amounts" mapstructure:"allow_zero_amounts"`
	AllowEmptyDescriptions bool `json:"allow_empty_descriptions" yaml:"allow_empty_descriptions" mapstructure:"allow_empty_descriptions"`
}

// DefaultPeriodicPatterns returns the built-in payroll pattern
func DefaultPeriodicPatterns() []PeriodicPattern {
	return []PeriodicPattern{
		{Name: "payroll", Keywords: []string{"payroll", "salary", "wages"}, ToleranceDays: 35},
	}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *ReconciliationConfig {
	return &ReconciliationConfig{
		ConfidenceThreshold:         0.7,
		Weights:                     Weights{Amount: 0.4, Date: 0.3, Description: 0.3},
		Minimums:                    Minimums{Amount: 0.1, Date: 0.05, Description: 0.1},
		DateToleranceDays:           7,
		AmountTolerancePct:          5.0,
		MaxCandidatesPerTransaction: 50,
		SignConventionMode:          SignAuto,
		PeriodicPatterns:            DefaultPeriodicPatterns(),
		DescriptionDateRescue:       true,
		AmountPrecision:             2,
	}
}

// StrictConfig returns a configuration for tight reconciliation where only
// near-identical pairs should match
func StrictConfig() *ReconciliationConfig {
	c := DefaultConfig()
	c.ConfidenceThreshold = 0.9
	c.Weights = Weights{Amount: 0.5, Date: 0.3, Description: 0.2}
	c.Minimums = Minimums{Amount: 0.9, Date: 0.5, Description: 0.2}
	c.DateToleranceDays = 3
	c.AmountTolerancePct = 1.0
	c.MaxCandidatesPerTransaction = 20
	c.SignConventionMode = SignFixed
	return c
}

// RelaxedConfig returns a configuration for exploratory matching of messy data
func RelaxedConfig() *ReconciliationConfig {
	c := DefaultConfig()
	c.ConfidenceThreshold = 0.55
	c.Minimums = Minimums{Amount: 0.05, Date: 0.0, Description: 0.0}
	c.DateToleranceDays = 14
	c.AmountTolerancePct = 10.0
	c.MaxCandidatesPerTransaction = 100
	return c
}

// Validate checks the configuration. Any problem is a fatal configuration
// error returned before records are touched.
func (c *ReconciliationConfig) Validate() error {
	if c == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "reconciliation", nil, nil)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || math.IsNaN(c.ConfidenceThreshold) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "confidence_threshold", c.ConfidenceThreshold,
			fmt.Errorf("must be between 0 and 1"))
	}

	if err := c.Weights.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidWeights, "weights", c.Weights.String(), err)
	}

	if err := c.Minimums.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "minimums", c.Minimums, err)
	}

	if c.DateToleranceDays <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "date_tolerance_days", c.DateToleranceDays,
			fmt.Errorf("must be positive"))
	}

	if c.AmountTolerancePct <= 0 || c.AmountTolerancePct > 100 || math.IsNaN(c.AmountTolerancePct) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_tolerance_pct", c.AmountTolerancePct,
			fmt.Errorf("must be greater than 0 and at most 100"))
	}

	if c.MaxCandidatesPerTransaction <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_candidates_per_transaction", c.MaxCandidatesPerTransaction,
			fmt.Errorf("must be positive"))
	}

	if !c.SignConventionMode.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sign_convention_mode", c.SignConventionMode,
			fmt.Errorf("must be %s or %s", SignAuto, SignFixed))
	}

	for i, p := range c.PeriodicPatterns {
		if p.ToleranceDays <= 0 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("periodic_patterns[%d].tolerance_days", i), p.ToleranceDays,
				fmt.Errorf("must be positive"))
		}
		if !hasKeyword(p.Keywords) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("periodic_patterns[%d].keywords", i), p.Keywords,
				fmt.Errorf("at least one non-empty keyword is required"))
		}
	}

	if c.AmountBucketWidth < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_bucket_width", c.AmountBucketWidth,
			fmt.Errorf("cannot be negative"))
	}

	if c.AmountPrecision < 0 || c.AmountPrecision > 10 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_precision", c.AmountPrecision,
			fmt.Errorf("must be between 0 and 10"))
	}

	return nil
}

func hasKeyword(keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

type factorValue struct {
	name  string
	value float64
}

// factorValues lists per-factor settings in a fixed order
func factorValues(amount, date, description float64) []factorValue {
	return []factorValue{{"amount", amount}, {"date", date}, {"description", description}}
}

// Validate checks that every weight is in [0,1] and that they sum to 1
func (w Weights) Validate() error {
	for _, f := range factorValues(w.Amount, w.Date, w.Description) {
		if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", f.name, f.value)
		}
	}

	total := w.Amount + w.Date + w.Description
	if math.Abs(total-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	return nil
}

func (w Weights) String() string {
	return fmt.Sprintf("amount=%.3f date=%.3f description=%.3f", w.Amount, w.Date, w.Description)
}

// Validate checks that every floor is in [0,1]
func (m Minimums) Validate() error {
	for _, f := range factorValues(m.Amount, m.Date, m.Description) {
		if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
			return fmt.Errorf("%s minimum must be between 0.0 and 1.0: %f", f.name, f.value)
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *ReconciliationConfig) Clone() *ReconciliationConfig {
	if c == nil {
		return nil
	}

	clone := *c
	clone.PeriodicPatterns = make([]PeriodicPattern, len(c.PeriodicPatterns))
	for i, p := range c.PeriodicPatterns {
		p.Keywords = append([]string(nil), p.Keywords...)
		clone.PeriodicPatterns[i] = p
	}
	return &clone
}

// AmountToleranceFraction returns AmountTolerancePct as a fraction
func (c *ReconciliationConfig) AmountToleranceFraction() float64 {
	return c.AmountTolerancePct / 100.0
}

// PeriodicPatternFor returns the first pattern matching a normalized
// description, if any
func (c *ReconciliationConfig) PeriodicPatternFor(normalized string) (PeriodicPattern, bool) {
	for _, p := range c.PeriodicPatterns {
		if p.Matches(normalized) {
			return p, true
		}
	}
	return PeriodicPattern{}, false
}

// WidestPeriodicTolerance returns the largest tolerance of any pattern, or
// DateToleranceDays when no pattern widens it
func (c *ReconciliationConfig) WidestPeriodicTolerance() int {
	widest := c.DateToleranceDays
	for _, p := range c.PeriodicPatterns {
		if p.ToleranceDays > widest {
			widest = p.ToleranceDays
		}
	}
	return widest
}

// String returns a one-line summary of the configuration
func (c *ReconciliationConfig) String() string {
	return fmt.Sprintf("ReconciliationConfig{Threshold: %.2f, Weights: [%s], DateTolerance: %dd, AmountTolerance: %.2f%%, MaxCandidates: %d, SignMode: %s, Patterns: %d}",
		c.ConfidenceThreshold, c.Weights.String(), c.DateToleranceDays, c.AmountTolerancePct,
		c.MaxCandidatesPerTransaction, c.SignConventionMode, len(c.PeriodicPatterns))
}
