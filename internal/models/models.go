package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DateLayout is the calendar date layout used on the wire.
const DateLayout = "2006-01-02"

// Source identifies which side of the reconciliation a record came from
type Source string

const (
	// SourceBank is a record from the bank statement
	SourceBank Source = "BANK"
	// SourceLedger is a record from the ledger/ERP export
	SourceLedger Source = "LEDGER"
)

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is one of the known sides
func (s Source) IsValid() bool {
	return s == SourceBank || s == SourceLedger
}

// IssueCode is a per-record data quality problem found during normalization.
// Records carrying any issue are excluded from matching.
type IssueCode string

const (
	IssueInvalidAmount    IssueCode = "invalid_amount"
	IssueZeroAmount       IssueCode = "zero_amount"
	IssueInvalidDate      IssueCode = "invalid_date"
	IssueEmptyDescription IssueCode = "empty_description"
)

// AllIssueCodes lists every issue code in a stable order.
var AllIssueCodes = []IssueCode{IssueInvalidAmount, IssueZeroAmount, IssueInvalidDate, IssueEmptyDescription}

// TransactionRecord is one line from either side of a reconciliation.
//
// Amount is signed. After normalization debits are negative and credits are
// positive on both sides. RawAmount and RawDate keep the text received when
// the typed value could not be determined, so nothing is lost for reporting.
type TransactionRecord struct {
	ID             string
	Source         Source
	Amount         decimal.Decimal
	RawAmount      string
	Date           time.Time
	RawDate        string
	Description    string
	Reference      string
	DebitsPositive bool

	// Derived by the normalizer
	NormalizedDescription string
	DateValid             bool
	DescriptionDate       time.Time
	Issues                []IssueCode
}

// NewTransactionRecord creates a record with a typed amount and date
func NewTransactionRecord(id string, source Source, amount decimal.Decimal, date time.Time, description string) *TransactionRecord {
	return &TransactionRecord{
		ID:          id,
		Source:      source,
		Amount:      amount,
		Date:        date,
		Description: description,
	}
}

// Clone returns a copy that shares nothing mutable with r
func (r *TransactionRecord) Clone() *TransactionRecord {
	c := *r
	if r.Issues != nil {
		c.Issues = append([]IssueCode(nil), r.Issues...)
	}
	return &c
}

// AbsAmount returns the absolute value of the amount
func (r *TransactionRecord) AbsAmount() decimal.Decimal {
	return r.Amount.Abs()
}

// AddIssue records a data quality problem once
func (r *TransactionRecord) AddIssue(code IssueCode) {
	for _, existing := range r.Issues {
		if existing == code {
			return
		}
	}
	r.Issues = append(r.Issues, code)
}

// HasIssue reports whether the record carries the given issue
func (r *TransactionRecord) HasIssue(code IssueCode) bool {
	for _, existing := range r.Issues {
		if existing == code {
			return true
		}
	}
	return false
}

// Matchable reports whether the record may take part in candidate generation
func (r *TransactionRecord) Matchable() bool {
	return r.DateValid && len(r.Issues) == 0
}

// HasDescriptionDate reports whether a date was found inside the description
func (r *TransactionRecord) HasDescriptionDate() bool {
	return !r.DescriptionDate.IsZero()
}

// String returns a string representation of the record
func (r *TransactionRecord) String() string {
	date := r.RawDate
	if r.DateValid || (!r.Date.IsZero() && date == "") {
		date = r.Date.Format(DateLayout)
	}
	return fmt.Sprintf("%s{ID: %s, Amount: %s, Date: %s, Description: %q}",
		r.Source, r.ID, r.Amount.String(), date, r.Description)
}

type recordView struct {
	ID                    string      `json:"id" yaml:"id"`
	Source                Source      `json:"source,omitempty" yaml:"source,omitempty"`
	Amount                string      `json:"amount" yaml:"amount"`
	Date                  string      `json:"date" yaml:"date"`
	Description           string      `json:"description" yaml:"description"`
	Reference             string      `json:"reference,omitempty" yaml:"reference,omitempty"`
	DebitsPositive        bool        `json:"debits_positive,omitempty" yaml:"debits_positive,omitempty"`
	NormalizedDescription string      `json:"normalized_description,omitempty" yaml:"normalized_description,omitempty"`
	Issues                []IssueCode `json:"issues,omitempty" yaml:"issues,omitempty"`
}

func (r *TransactionRecord) view() recordView {
	v := recordView{
		ID:                    r.ID,
		Source:                r.Source,
		Amount:                r.RawAmount,
		Date:                  r.RawDate,
		Description:           r.Description,
		Reference:             r.Reference,
		DebitsPositive:        r.DebitsPositive,
		NormalizedDescription: r.NormalizedDescription,
		Issues:                r.Issues,
	}
	if !r.HasIssue(IssueInvalidAmount) && (v.Amount == "" || !r.Amount.IsZero()) {
		v.Amount = r.Amount.StringFixed(2)
		if r.Amount.Exponent() < -2 {
			v.Amount = r.Amount.String()
		}
	}
	if !r.Date.IsZero() {
		v.Date = r.Date.Format(DateLayout)
	}
	return v
}

// MarshalJSON writes amounts as fixed-point strings and dates as YYYY-MM-DD.
// Values that never parsed are written back as received.
func (r *TransactionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// MarshalYAML mirrors MarshalJSON for yaml.v3
func (r *TransactionRecord) MarshalYAML() (interface{}, error) {
	return r.view(), nil
}

// UnmarshalJSON accepts amount as a JSON number or string and date as a
// string. Text that does not parse strictly is kept in RawAmount or RawDate
// for the normalizer to retry; decoding never fails because of field content.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	aux := struct {
		ID             string          `json:"id"`
		Source         Source          `json:"source"`
		Amount         json.RawMessage `json:"amount"`
		Date           string          `json:"date"`
		Description    string          `json:"description"`
		Reference      string          `json:"reference"`
		DebitsPositive bool            `json:"debits_positive"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := strings.TrimSpace(string(aux.Amount))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(aux.Amount, &s); err != nil {
			return fmt.Errorf("invalid amount field: %w", err)
		}
		raw = s
	} else if raw == "null" {
		raw = ""
	}

	*r = TransactionRecord{
		ID:             aux.ID,
		Source:         aux.Source,
		Description:    aux.Description,
		Reference:      aux.Reference,
		DebitsPositive: aux.DebitsPositive,
	}
	r.setRaw(raw, aux.Date)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for yaml.v3. Amount and date scalars
// are taken as text whatever YAML type they resolve to.
func (r *TransactionRecord) UnmarshalYAML(value *yaml.Node) error {
	aux := struct {
		ID             string `yaml:"id"`
		Source         Source `yaml:"source"`
		Amount         string `yaml:"amount"`
		Date           string `yaml:"date"`
		Description    string `yaml:"description"`
		Reference      string `yaml:"reference"`
		DebitsPositive bool   `yaml:"debits_positive"`
	}{}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	*r = TransactionRecord{
		ID:             aux.ID,
		Source:         aux.Source,
		Description:    aux.Description,
		Reference:      aux.Reference,
		DebitsPositive: aux.DebitsPositive,
	}
	r.setRaw(aux.Amount, aux.Date)
	return nil
}

// setRaw keeps the received amount and date text and fills the typed values
// when the text is already in canonical form
func (r *TransactionRecord) setRaw(amount, date string) {
	r.RawAmount = strings.TrimSpace(amount)
	r.RawDate = strings.TrimSpace(date)

	if d, err := decimal.NewFromString(r.RawAmount); err == nil {
		r.Amount = d
	}
	if t, err := time.Parse(DateLayout, r.RawDate); err == nil {
		r.Date = t
	}
}

// CivilDate truncates t to midnight UTC of its own calendar day
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EpochDay returns the number of whole days between 1970-01-01 and t's calendar date
func EpochDay(t time.Time) int64 {
	return CivilDate(t).Unix() / 86400
}

// DaysApart returns the absolute number of calendar days between a and b
func DaysApart(a, b time.Time) int {
	d := EpochDay(a) - EpochDay(b)
	if d < 0 {
		d = -d
	}
	return int(d)
}
