// Package normalizer turns raw transaction records into canonical form
// before matching: unified signs, rounded amounts, calendar dates and
// folded descriptions. It never fails; problems are attached to the
// record as issue codes so the caller can exclude and report it.
package normalizer

import (
	"strings"
	"unicode"

	"bank-ledger-reconciler/internal/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Config controls normalization
type Config struct {
	// AmountPrecision is the number of decimal places amounts are rounded to
	AmountPrecision int

	// PreferMonthFirst reads ambiguous numeric dates as month/day
	PreferMonthFirst bool

	// AllowZeroAmounts keeps zero amounts matchable
	AllowZeroAmounts bool

	// AllowEmptyDescriptions keeps records whose description folds to nothing
	AllowEmptyDescriptions bool

	// ExtractDescriptionDates looks for a date written inside the description
	ExtractDescriptionDates bool
}

// DefaultConfig returns the default normalization settings
func DefaultConfig() Config {
	return Config{
		AmountPrecision:         2,
		ExtractDescriptionDates: true,
	}
}

// Stats summarizes one normalization pass
type Stats struct {
	Processed       int                      `json:"processed"`
	SignsFlipped    int                      `json:"signs_flipped"`
	AmountsReparsed int                      `json:"amounts_reparsed"`
	DatesReparsed   int                      `json:"dates_reparsed"`
	Issues          map[models.IssueCode]int `json:"issues"`
}

// Normalizer is stateless apart from its config and safe for concurrent use
type Normalizer struct {
	config Config
}

// New creates a normalizer
func New(config Config) *Normalizer {
	return &Normalizer{config: config}
}

// Normalize returns a normalized copy of rec. The input is not modified.
func (n *Normalizer) Normalize(rec *models.TransactionRecord) *models.TransactionRecord {
	out, _ := n.normalize(rec)
	return out
}

type changes struct {
	signFlipped    bool
	amountReparsed bool
	dateReparsed   bool
}

func (n *Normalizer) normalize(rec *models.TransactionRecord) (*models.TransactionRecord, changes) {
	var ch changes
	out := rec.Clone()
	out.Issues = nil
	out.DateValid = false
	if !out.DescriptionDate.IsZero() {
		out.DescriptionDate = models.CivilDate(out.DescriptionDate)
	}

	// Amount
	amountOK := true
	if out.Amount.IsZero() && strings.TrimSpace(out.RawAmount) != "" {
		amount, err := ParseAmount(out.RawAmount)
		if err != nil {
			amountOK = false
			out.AddIssue(models.IssueInvalidAmount)
		} else {
			out.Amount = amount
			ch.amountReparsed = true
		}
	}
	if amountOK {
		out.Amount = out.Amount.Round(int32(n.config.AmountPrecision))
		// After unification the record follows the debits-negative convention,
		// so a second pass leaves it unchanged.
		if out.DebitsPositive {
			out.Amount = out.Amount.Neg()
			out.DebitsPositive = false
			ch.signFlipped = true
		}
		if out.Amount.IsZero() && !n.config.AllowZeroAmounts {
			out.AddIssue(models.IssueZeroAmount)
		}
	}

	// Date
	switch {
	case !out.Date.IsZero():
		out.Date = models.CivilDate(out.Date)
		out.DateValid = true
	case strings.TrimSpace(out.RawDate) != "":
		if date, err := ParseDate(out.RawDate, n.config.PreferMonthFirst); err == nil {
			out.Date = date
			out.DateValid = true
			ch.dateReparsed = true
		}
	}
	if !out.DateValid {
		out.AddIssue(models.IssueInvalidDate)
	}

	// Description
	out.NormalizedDescription = n.NormalizeDescription(out.Description)
	if out.NormalizedDescription == "" && !n.config.AllowEmptyDescriptions {
		out.AddIssue(models.IssueEmptyDescription)
	}
	if n.config.ExtractDescriptionDates && out.DescriptionDate.IsZero() {
		if d, ok := ExtractDescriptionDate(out.Description, n.config.PreferMonthFirst); ok {
			out.DescriptionDate = d
		}
	}

	return out, ch
}

// NormalizeAll normalizes every record in order and counts what happened
func (n *Normalizer) NormalizeAll(records []*models.TransactionRecord) ([]*models.TransactionRecord, Stats) {
	stats := Stats{Issues: make(map[models.IssueCode]int)}
	out := make([]*models.TransactionRecord, len(records))

	for i, rec := range records {
		normalized, ch := n.normalize(rec)
		out[i] = normalized

		stats.Processed++
		if ch.signFlipped {
			stats.SignsFlipped++
		}
		if ch.amountReparsed {
			stats.AmountsReparsed++
		}
		if ch.dateReparsed {
			stats.DatesReparsed++
		}
		for _, issue := range normalized.Issues {
			stats.Issues[issue]++
		}
	}

	return out, stats
}

// NormalizeDescription applies NFKC folding and lowercasing, drops every
// character that is not a letter, digit, whitespace, hyphen or period, and
// collapses runs of whitespace. Numbers and reference codes survive.
func (n *Normalizer) NormalizeDescription(description string) string {
	folded := cases.Lower(language.Und).String(norm.NFKC.String(description))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
