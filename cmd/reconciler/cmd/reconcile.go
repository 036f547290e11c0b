package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"bank-ledger-reconciler/cmd/reconciler/config"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/parsers"
	"bank-ledger-reconciler/internal/reconciler"
	"bank-ledger-reconciler/internal/reporter"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

// reconcileFlags maps each flag of the reconcile command to its settings key
var reconcileFlags = map[string]string{
	"bank":                   "bank_file",
	"ledger":                 "ledger_file",
	"bank-debits-positive":   "bank.debits_positive",
	"ledger-debits-positive": "ledger.debits_positive",
	"threshold":              "matching.confidence_threshold",
	"date-tolerance":         "matching.date_tolerance_days",
	"amount-tolerance":       "matching.amount_tolerance_pct",
	"sign-mode":              "matching.sign_convention_mode",
	"max-candidates":         "matching.max_candidates_per_transaction",
	"workers":                "run.workers",
	"detect-duplicates":      "run.detect_duplicates",
	"output-format":          "output.format",
	"output-file":            "output_file",
	"max-items":              "output.max_list_items",
	"progress":               "progress",
	"timeout":                "timeout",
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Match bank statement records against ledger records",
		Long: `Reconcile reads a bank record file and a ledger record file, matches
them one to one and reports matches, unmatched records on each side, records
excluded as malformed and suspected duplicate postings.

Flags override environment variables (RECONCILER_*), which override the
config file, which overrides the preset.

Examples:
  # Basic reconciliation
  reconciler reconcile --bank bank.json --ledger ledger.json

  # Bank exports debits as positive amounts
  reconciler reconcile --bank bank.json --ledger ledger.json --bank-debits-positive

  # Looser matching, JSON report written to a file
  reconciler reconcile --bank bank.yaml --ledger ledger.yaml --preset relaxed \
    --output-format json --output-file report.json

  # Stop after a minute and report what was found so far
  reconciler reconcile --bank bank.json --ledger ledger.json --timeout 1m --progress`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts.settings, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.verbose)
		},
	}

	defaults, _ := config.DefaultSettings(config.PresetDefault)
	f := reconcileCmd.Flags()

	// Input flags
	f.StringP("bank", "b", "", "path to the bank record file (json or yaml)")
	f.StringP("ledger", "l", "", "path to the ledger record file (json or yaml)")
	f.Bool("bank-debits-positive", false, "bank file records debits as positive amounts")
	f.Bool("ledger-debits-positive", false, "ledger file records debits as positive amounts")

	// Matching flags
	f.Float64("threshold", defaults.Matching.ConfidenceThreshold, "minimum composite score for a match (0.0-1.0)")
	f.IntP("date-tolerance", "d", defaults.Matching.DateToleranceDays, "day gap at which the date score reaches zero")
	f.Float64P("amount-tolerance", "a", defaults.Matching.AmountTolerancePct, "relative amount difference in percent at which the amount score reaches zero")
	f.String("sign-mode", string(defaults.Matching.SignConventionMode), "sign convention mode: AUTO or FIXED")
	f.Int("max-candidates", defaults.Matching.MaxCandidatesPerTransaction, "maximum ledger records scored per bank record")

	// Run flags
	f.Int("workers", defaults.Run.Workers, "number of scoring workers")
	f.Bool("detect-duplicates", defaults.Run.DetectDuplicates, "report suspected duplicate postings")
	f.Bool("progress", false, "show progress indicators")
	f.Duration("timeout", 0, "stop the run after this long and report partial results (0 disables)")

	// Output flags
	f.StringP("output-format", "f", string(defaults.Output.Format), "output format: console, json, yaml, csv")
	f.StringP("output-file", "o", "", "output file path (default: stdout)")
	f.Int("max-items", defaults.Output.MaxListItems, "maximum list items in console output (0 for all)")

	for name, key := range reconcileFlags {
		opts.v.BindPFlag(key, f.Lookup(name))
	}

	return reconcileCmd
}

func runReconcile(ctx context.Context, s *config.Settings, stdout, stderr io.Writer, verbose bool) error {
	if err := s.RequireInputs(); err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	// Fail on bad output settings before reading any input
	generator, err := reporter.NewReportGenerator(&s.Output)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", s.Output.Format, err)
	}

	bank, err := loadRecords(ctx, &s.Bank, s.BankFile, log)
	if err != nil {
		return err
	}
	ledger, err := loadRecords(ctx, &s.Ledger, s.LedgerFile, log)
	if err != nil {
		return err
	}

	runConfig := s.Run
	runConfig.Logger = logger.GetGlobalLogger()
	r, err := reconciler.New(&s.Matching, &runConfig)
	if err != nil {
		return err
	}
	if s.Progress {
		r.AddProgressCallback(progressPrinter(stderr))
	}

	result, runErr := r.Reconcile(ctx, bank, ledger)
	if result == nil {
		return runErr
	}

	// A cancelled run still reports every record as unmatched with the
	// statistics gathered before it stopped
	if err := writeReport(generator, result, s.OutputFile, stdout); err != nil {
		return err
	}

	if verbose {
		st := result.Stats
		fmt.Fprintf(stderr, "\nProcessed %d bank and %d ledger records.\n", st.TotalBank, st.TotalLedger)
		fmt.Fprintf(stderr, "Found %d matches, %d unmatched bank records, %d unmatched ledger records.\n",
			st.MatchesFound, st.UnmatchedBank, st.UnmatchedLedger)
		if excluded := st.ExcludedBank + st.ExcludedLedger; excluded > 0 {
			fmt.Fprintf(stderr, "Excluded %d malformed records.\n", excluded)
		}
		fmt.Fprintf(stderr, "Processing time: %v\n", st.ElapsedTime)
	}

	return runErr
}

func loadRecords(ctx context.Context, c *parsers.Config, path string, log logger.Logger) ([]*models.TransactionRecord, error) {
	parser, err := parsers.NewRecordParser(c)
	if err != nil {
		return nil, err
	}

	records, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"source":  stats.Source,
		"file":    path,
		"records": stats.RecordsParsed,
	}).Debug(stats.String())
	return records, nil
}

func writeReport(generator *reporter.ReportGenerator, result *reconciler.Result, path string, stdout io.Writer) error {
	if path == "" {
		if err := generator.GenerateReport(result, stdout); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to generate report")
		}
		return nil
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	if err := generator.GenerateReport(result, out); err != nil {
		out.Close()
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	if err := out.Close(); err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	return nil
}

func progressPrinter(w io.Writer) reconciler.ProgressCallback {
	return func(p *reconciler.Progress) {
		fmt.Fprintf(w, "\r[%d/%d] %s (%.1f%% complete)",
			p.CompletedPhases, p.TotalPhases, p.Phase, p.PercentComplete)
		if p.Phase == reconciler.PhaseDone {
			fmt.Fprintln(w)
		}
	}
}
