// Package generator builds synthetic bank and ledger record sets with a
// known answer, for demos, benchmarks and end-to-end checks.
//
// Every matched pair shares an exact amount and a unique description, and
// its dates are at most one day apart. Bank-only records are small credits
// and ledger-only records are large debits, so neither can pair with
// anything. Duplicates repeat a matched ledger record under a new id and are
// always left unmatched.
//
// Example usage:
//
//	g := generator.New(generator.DefaultOptions())
//	ds := g.Generate()
//	err := generator.WriteFile("bank.json", ds.Bank)
package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"bank-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

var payees = []string{
	"Acme Supplies", "Northwind Traders", "Globex", "Initech", "Umbrella Logistics",
	"Stark Components", "Wayne Freight", "Hooli Cloud", "Vandelay Imports", "Soylent Foods",
}

// Options controls the shape of a generated data set
type Options struct {
	Matched    int `json:"matched" yaml:"matched" mapstructure:"matched"`
	BankOnly   int `json:"bank_only" yaml:"bank_only" mapstructure:"bank_only"`
	LedgerOnly int `json:"ledger_only" yaml:"ledger_only" mapstructure:"ledger_only"`

	// Malformed adds bank records with an unreadable date
	Malformed int `json:"malformed" yaml:"malformed" mapstructure:"malformed"`

	// Duplicates repeats this many matched ledger records under new ids
	Duplicates int `json:"duplicates" yaml:"duplicates" mapstructure:"duplicates"`

	StartDate time.Time `json:"start_date" yaml:"start_date" mapstructure:"start_date"`
	Days      int       `json:"days" yaml:"days" mapstructure:"days"`

	// BankDebitsPositive writes bank debits as positive amounts and flags
	// each bank record accordingly
	BankDebitsPositive bool `json:"bank_debits_positive" yaml:"bank_debits_positive" mapstructure:"bank_debits_positive"`

	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DefaultOptions returns a small mixed data set
func DefaultOptions() Options {
	return Options{
		Matched:    80,
		BankOnly:   10,
		LedgerOnly: 10,
		Malformed:  2,
		Duplicates: 2,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:       90,
		Seed:       1,
	}
}

// Validate checks the options
func (o Options) Validate() error {
	for name, n := range map[string]int{
		"matched": o.Matched, "bank_only": o.BankOnly, "ledger_only": o.LedgerOnly,
		"malformed": o.Malformed, "duplicates": o.Duplicates,
	} {
		if n < 0 {
			return fmt.Errorf("%s cannot be negative, got %d", name, n)
		}
	}
	if o.Duplicates > o.Matched {
		return fmt.Errorf("duplicates (%d) cannot exceed matched (%d)", o.Duplicates, o.Matched)
	}
	if o.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", o.Days)
	}
	return nil
}

// Dataset is a generated bank and ledger pair together with the answer
type Dataset struct {
	Bank   []*models.TransactionRecord
	Ledger []*models.TransactionRecord

	// Pairs maps each matched bank id to its ledger id
	Pairs map[string]string

	// Excluded lists the ids of the malformed bank records
	Excluded []string
}

// Generator builds data sets from one seed
type Generator struct {
	options Options
	rng     *rand.Rand
}

// New creates a generator. The same options always give the same data set.
func New(options Options) *Generator {
	return &Generator{
		options: options,
		rng:     rand.New(rand.NewSource(options.Seed)),
	}
}

// Generate builds the data set. Records are shuffled within each side so
// that input order carries no hint of the pairing. Duplicates come last on
// the ledger side, so an original always wins the tie against its copy.
func (g *Generator) Generate() *Dataset {
	o := g.options
	ds := &Dataset{Pairs: make(map[string]string, o.Matched)}

	for i := 0; i < o.Matched; i++ {
		bankID := fmt.Sprintf("BNK%06d", i+1)
		ledgerID := fmt.Sprintf("LED%06d", i+1)

		amount := decimal.New(g.rng.Int63n(999000)+1000, -2)
		if g.rng.Float64() < 0.7 {
			amount = amount.Neg()
		}
		posted := g.date()
		booked := posted.AddDate(0, 0, -g.rng.Intn(2))
		description := fmt.Sprintf("%s %s", payees[g.rng.Intn(len(payees))], g.code())

		ds.Bank = append(ds.Bank, g.bankRecord(bankID, amount, posted, strings.ToUpper(description)))
		ds.Ledger = append(ds.Ledger, g.record(ledgerID, models.SourceLedger, amount, booked, description))
		ds.Pairs[bankID] = ledgerID
	}

	for i := 0; i < o.BankOnly; i++ {
		amount := decimal.New(g.rng.Int63n(999)+1, -2)
		ds.Bank = append(ds.Bank, g.record(fmt.Sprintf("BNKX%05d", i+1), models.SourceBank, amount, g.date(),
			"INTEREST CREDIT "+g.code()))
	}

	for i := 0; i < o.LedgerOnly; i++ {
		amount := decimal.New(g.rng.Int63n(4000000)+1000000, -2).Neg()
		ds.Ledger = append(ds.Ledger, g.record(fmt.Sprintf("LEDX%05d", i+1), models.SourceLedger, amount, g.date(),
			"Outstanding cheque "+g.code()))
	}

	for i := 0; i < o.Malformed; i++ {
		id := fmt.Sprintf("BNKBAD%04d", i+1)
		rec := g.record(id, models.SourceBank, decimal.New(g.rng.Int63n(99000)+1000, -2), time.Time{}, "UNREADABLE "+g.code())
		rec.RawDate = "n/a"
		ds.Bank = append(ds.Bank, rec)
		ds.Excluded = append(ds.Excluded, id)
	}

	g.rng.Shuffle(len(ds.Bank), func(i, j int) { ds.Bank[i], ds.Bank[j] = ds.Bank[j], ds.Bank[i] })

	// Duplicates of the first matched records go after the shuffled ledger
	matched := make([]*models.TransactionRecord, o.Duplicates)
	copy(matched, ds.Ledger[:o.Duplicates])
	g.rng.Shuffle(len(ds.Ledger), func(i, j int) { ds.Ledger[i], ds.Ledger[j] = ds.Ledger[j], ds.Ledger[i] })

	for i, orig := range matched {
		dup := orig.Clone()
		dup.ID = fmt.Sprintf("LEDDUP%04d", i+1)
		ds.Ledger = append(ds.Ledger, dup)
	}
	return ds
}

func (g *Generator) bankRecord(id string, amount decimal.Decimal, date time.Time, description string) *models.TransactionRecord {
	if g.options.BankDebitsPositive {
		rec := g.record(id, models.SourceBank, amount.Neg(), date, description)
		rec.DebitsPositive = true
		return rec
	}
	return g.record(id, models.SourceBank, amount, date, description)
}

func (g *Generator) record(id string, source models.Source, amount decimal.Decimal, date time.Time, description string) *models.TransactionRecord {
	rec := models.NewTransactionRecord(id, source, amount, date, description)
	rec.RawAmount = amount.StringFixed(2)
	if !date.IsZero() {
		rec.RawDate = date.Format(models.DateLayout)
	}
	return rec
}

// date picks a posting date leaving a day of room before the window
func (g *Generator) date() time.Time {
	return g.options.StartDate.AddDate(0, 0, 1+g.rng.Intn(g.options.Days))
}

// code returns eight random capital letters. Letters only, so the
// normalizer never reads a date out of a description.
func (g *Generator) code() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte('A' + g.rng.Intn(26))
	}
	return string(b)
}
