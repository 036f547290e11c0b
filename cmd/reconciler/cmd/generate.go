package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bank-ledger-reconciler/internal/generator"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/pkg/errors"

	"github.com/spf13/cobra"
)

func newGenerateCommand() *cobra.Command {
	o := generator.DefaultOptions()
	var (
		outputDir string
		format    string
		startDate string
	)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic bank and ledger record pair",
		Long: `Generate writes bank and ledger record files whose correct pairing is
known, together with unmatched records on both sides, malformed bank
records and duplicated ledger postings. The same seed always produces the
same files.

Examples:
  reconciler generate --output-dir data
  reconciler generate --output-dir data --matched 10000 --format yaml --seed 7
  reconciler generate --output-dir data --bank-debits-positive`,
		Args: cobra.NoArgs,
		// Settings are not needed to generate data
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(models.DateLayout, startDate)
			if err != nil {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "start-date", startDate, err)
			}
			o.StartDate = start
			if err := o.Validate(); err != nil {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "generate", nil, err)
			}
			if format != "json" && format != "yaml" {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
					fmt.Errorf("must be json or yaml"))
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return errors.FileError(errors.CodeFileWrite, outputDir, err)
			}

			ds := generator.New(o).Generate()
			bankPath := filepath.Join(outputDir, "bank."+format)
			ledgerPath := filepath.Join(outputDir, "ledger."+format)
			if err := generator.WriteFile(bankPath, ds.Bank); err != nil {
				return err
			}
			if err := generator.WriteFile(ledgerPath, ds.Ledger); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d bank records in %s\n", len(ds.Bank), bankPath)
			fmt.Fprintf(out, "Generated %d ledger records in %s\n", len(ds.Ledger), ledgerPath)
			fmt.Fprintf(out, "Expected matches: %d, excluded: %d, duplicates: %d\n", len(ds.Pairs), len(ds.Excluded), o.Duplicates)
			fmt.Fprintf(out, "Seed used: %d\n", o.Seed)
			return nil
		},
	}

	f := generateCmd.Flags()
	f.StringVarP(&outputDir, "output-dir", "o", ".", "directory for bank and ledger files")
	f.StringVarP(&format, "format", "f", "json", "file format: json or yaml")
	f.StringVar(&startDate, "start-date", o.StartDate.Format(models.DateLayout), "first day of the posting window (YYYY-MM-DD)")
	f.IntVar(&o.Days, "days", o.Days, "length of the posting window in days")
	f.IntVar(&o.Matched, "matched", o.Matched, "number of matching bank and ledger pairs")
	f.IntVar(&o.BankOnly, "bank-only", o.BankOnly, "number of bank records with no ledger partner")
	f.IntVar(&o.LedgerOnly, "ledger-only", o.LedgerOnly, "number of ledger records with no bank partner")
	f.IntVar(&o.Malformed, "malformed", o.Malformed, "number of bank records with an unreadable date")
	f.IntVar(&o.Duplicates, "duplicates", o.Duplicates, "number of duplicated ledger postings")
	f.BoolVar(&o.BankDebitsPositive, "bank-debits-positive", false, "write bank debits as positive amounts")
	f.Int64Var(&o.Seed, "seed", o.Seed, "random seed")

	return generateCmd
}
