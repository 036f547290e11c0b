// Package reporter writes reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: sectioned plain text for terminal display
//   - JSON: the result document for programmatic consumption
//   - YAML: the same document as JSON, for review and diffing
//   - CSV: one row per match and per unmatched or excluded record
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bank-ledger-reconciler/internal/matcher"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/reconciler"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" yaml:"format" mapstructure:"format"`

	// Detail level options
	IncludeMatches    bool `json:"include_matches" yaml:"include_matches" mapstructure:"include_matches"`
	IncludeUnmatched  bool `json:"include_unmatched" yaml:"include_unmatched" mapstructure:"include_unmatched"`
	IncludeExclusions bool `json:"include_exclusions" yaml:"include_exclusions" mapstructure:"include_exclusions"`
	IncludeDuplicates bool `json:"include_duplicates" yaml:"include_duplicates" mapstructure:"include_duplicates"`
	IncludeStats      bool `json:"include_stats" yaml:"include_stats" mapstructure:"include_stats"`

	// MaxListItems caps each console list; zero lists everything
	MaxListItems int `json:"max_list_items" yaml:"max_list_items" mapstructure:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" yaml:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" yaml:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeMatches:    true,
		IncludeUnmatched:  true,
		IncludeExclusions: true,
		IncludeDuplicates: true,
		IncludeStats:      true,
		MaxListItems:      10,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// document is the result as written by the structured formats. Sections
// turned off in the configuration are left out.
type document struct {
	RunID           string                      `json:"run_id" yaml:"run_id"`
	Stats           *reconciler.Stats           `json:"stats,omitempty" yaml:"stats,omitempty"`
	Matches         []models.MatchResult        `json:"matches,omitempty" yaml:"matches,omitempty"`
	UnmatchedBank   []*models.TransactionRecord `json:"unmatched_bank,omitempty" yaml:"unmatched_bank,omitempty"`
	UnmatchedLedger []*models.TransactionRecord `json:"unmatched_ledger,omitempty" yaml:"unmatched_ledger,omitempty"`
	Exclusions      []models.Exclusion          `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
	DuplicateGroups []matcher.DuplicateGroup    `json:"duplicate_groups,omitempty" yaml:"duplicate_groups,omitempty"`
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) *document {
	doc := &document{RunID: result.RunID}

	if rg.config.IncludeStats {
		doc.Stats = &result.Stats
	}
	if rg.config.IncludeMatches {
		doc.Matches = result.Matches
	}
	if rg.config.IncludeUnmatched {
		doc.UnmatchedBank = result.UnmatchedBank
		doc.UnmatchedLedger = result.UnmatchedLedger
	}
	if rg.config.IncludeExclusions {
		doc.Exclusions = result.Exclusions
	}
	if rg.config.IncludeDuplicates {
		doc.DuplicateGroups = result.DuplicateGroups
	}

	return doc
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) generateYAMLReport(result *reconciler.Result, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(rg.filterResultForOutput(result)); err != nil {
		return fmt.Errorf("failed to encode yaml report: %w", err)
	}
	return encoder.Close()
}

// generateCSVReport writes one row per match and per unmatched or excluded
// record
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Type",
			"Bank_ID",
			"Ledger_ID",
			"Amount",
			"Date",
			"Description",
			"Composite_Score",
			"Tier",
			"Amount_Score",
			"Date_Score",
			"Description_Score",
			"Amount_Difference",
			"Days_Apart",
			"Notes",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeMatches {
		for _, m := range result.Matches {
			row := []string{
				"Match",
				m.BankID,
				m.LedgerID,
				"",
				"",
				"",
				formatScore(m.CompositeScore),
				string(m.Tier),
				formatScore(m.AmountScore),
				formatScore(m.DateScore),
				formatScore(m.DescriptionScore),
				m.AmountDifference.StringFixed(2),
				strconv.Itoa(m.DaysApart),
				strings.Join(m.Notes, "; "),
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write match row: %w", err)
			}
		}
	}

	excluded := make(map[string]bool, len(result.Exclusions))
	reasons := make(map[string]string, len(result.Exclusions))
	for _, e := range result.Exclusions {
		key := string(e.Source) + "/" + e.RecordID
		excluded[key] = true
		reasons[key] = joinIssues(e.Reasons)
	}

	writeRecords := func(records []*models.TransactionRecord) error {
		for _, rec := range records {
			key := string(rec.Source) + "/" + rec.ID
			if excluded[key] && !rg.config.IncludeExclusions {
				continue
			}
			if !excluded[key] && !rg.config.IncludeUnmatched {
				continue
			}

			rowType, notes := "Unmatched", "No counterpart found"
			if excluded[key] {
				rowType, notes = "Excluded", reasons[key]
			}
			bankID, ledgerID := rec.ID, ""
			if rec.Source == models.SourceLedger {
				bankID, ledgerID = "", rec.ID
			}

			row := []string{
				fmt.Sprintf("%s %s", rowType, sideName(rec.Source)),
				bankID,
				ledgerID,
				recordAmount(rec),
				recordDate(rec),
				rec.Description,
				"", "", "", "", "", "", "",
				notes,
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write %s row: %w", strings.ToLower(rowType), err)
			}
		}
		return nil
	}

	if err := writeRecords(result.UnmatchedBank); err != nil {
		return err
	}
	if err := writeRecords(result.UnmatchedLedger); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	stats := result.Stats

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	fmt.Fprintf(writer, "Processing Duration: %v\n", stats.ElapsedTime)
	if stats.Cancelled {
		fmt.Fprintf(writer, "Status: CANCELLED after %s, no matches committed\n", stats.LastPhase)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(stats, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== AMOUNTS ===\n")
	fmt.Fprintf(writer, "Matched:            %s\n", stats.AmountMatched.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched (bank):   %s\n", stats.AmountUnmatchedBank.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched (ledger): %s\n", stats.AmountUnmatchedLedger.StringFixed(2))
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCH QUALITY BREAKDOWN ===\n")
	rg.printMatchQualityTable(stats, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeMatches && len(result.Matches) > 0 {
		fmt.Fprintf(writer, "=== MATCHES ===\n")
		rg.printMatches(result.Matches, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedBank) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED BANK RECORDS ===\n")
		rg.printRecordList(result.UnmatchedBank, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedLedger) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED LEDGER RECORDS ===\n")
		rg.printRecordList(result.UnmatchedLedger, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeExclusions && len(result.Exclusions) > 0 {
		fmt.Fprintf(writer, "=== EXCLUDED RECORDS ===\n")
		rg.printExclusions(result.Exclusions, stats, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeDuplicates && len(result.DuplicateGroups) > 0 {
		fmt.Fprintf(writer, "=== SUSPECTED DUPLICATES ===\n")
		for _, g := range result.DuplicateGroups {
			fmt.Fprintf(writer, "  - %s %s: %s (%s)\n", sideName(g.Source), g.GroupID, strings.Join(g.RecordIDs, ", "), g.Reason)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeStats {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(stats, writer)
	}

	return nil
}

func (rg *ReportGenerator) printSummaryTable(stats reconciler.Stats, writer io.Writer) {
	matched := stats.MatchesFound

	fmt.Fprintf(writer, "Bank Records:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", stats.TotalBank)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", matched, rg.calculatePercentage(matched, stats.TotalBank))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n", stats.UnmatchedBank, rg.calculatePercentage(stats.UnmatchedBank, stats.TotalBank))
	fmt.Fprintf(writer, "  Excluded:  %d\n", stats.ExcludedBank)

	fmt.Fprintf(writer, "\nLedger Records:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", stats.TotalLedger)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", matched, rg.calculatePercentage(matched, stats.TotalLedger))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n", stats.UnmatchedLedger, rg.calculatePercentage(stats.UnmatchedLedger, stats.TotalLedger))
	fmt.Fprintf(writer, "  Excluded:  %d\n", stats.ExcludedLedger)

	fmt.Fprintf(writer, "\nMatch Rate: %.1f%%\n", stats.MatchRate*100)
}

func (rg *ReportGenerator) printMatchQualityTable(stats reconciler.Stats, writer io.Writer) {
	title := cases.Title(language.English)
	for _, tier := range models.AllTiers {
		n := stats.Tiers[tier]
		fmt.Fprintf(writer, "%-8s %d (%.1f%%)\n", title.String(string(tier))+":", n,
			rg.calculatePercentage(n, stats.MatchesFound))
	}
	if stats.SignMismatches > 0 {
		fmt.Fprintf(writer, "Sign mismatches: %d\n", stats.SignMismatches)
	}
}

func (rg *ReportGenerator) printMatches(matches []models.MatchResult, writer io.Writer) {
	for i, m := range matches {
		if rg.truncate(i, len(matches), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s <-> %s score %.3f (%s): %s\n",
			i+1, m.BankID, m.LedgerID, m.CompositeScore, m.Tier, strings.Join(m.Notes, "; "))
	}
}

func (rg *ReportGenerator) printRecordList(records []*models.TransactionRecord, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(records))
	for i, rec := range records {
		if rg.truncate(i, len(records), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. ID: %s, Amount: %s, Date: %s, Description: %s\n",
			i+1, rec.ID, recordAmount(rec), recordDate(rec), rec.Description)
	}
}

func (rg *ReportGenerator) printExclusions(exclusions []models.Exclusion, stats reconciler.Stats, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(exclusions))
	for _, code := range models.AllIssueCodes {
		if n := stats.ExclusionsByReason[code]; n > 0 {
			fmt.Fprintf(writer, "  %s: %d\n", code, n)
		}
	}
	for i, e := range exclusions {
		if rg.truncate(i, len(exclusions), writer) {
			break
		}
		fmt.Fprintf(writer, "  - %s %s: %s\n", sideName(e.Source), e.RecordID, joinIssues(e.Reasons))
	}
}

func (rg *ReportGenerator) printProcessingStats(stats reconciler.Stats, writer io.Writer) {
	fmt.Fprintf(writer, "Candidates Evaluated:  %d\n", stats.CandidatesEvaluated)
	fmt.Fprintf(writer, "Accepted:              %d\n", stats.CandidatesAccepted)
	fmt.Fprintf(writer, "Below Threshold:       %d\n", stats.CandidatesBelowThreshold)
	fmt.Fprintf(writer, "Rejected by Factor:    %d (amount %d, date %d, description %d)\n",
		stats.CandidatesRejectedByFactor, stats.RejectedByAmount, stats.RejectedByDate, stats.RejectedByDescription)
	fmt.Fprintf(writer, "Contested:             %d\n", stats.ContestedCandidates)
	fmt.Fprintf(writer, "Index Buckets:         %d (width %s)\n", stats.Index.Buckets, stats.Index.AmountBucketWidth)
	fmt.Fprintf(writer, "Records/Second:        %.2f\n", stats.RecordsPerSecond)
	fmt.Fprintf(writer, "Total Processing:      %v\n", stats.ElapsedTime)

	for _, phase := range []reconciler.Phase{
		reconciler.PhaseValidate,
		reconciler.PhaseNormalize,
		reconciler.PhaseIndex,
		reconciler.PhaseScore,
		reconciler.PhaseAssign,
	} {
		if d, ok := stats.PhaseDurations[phase]; ok {
			fmt.Fprintf(writer, "  %-10s %v\n", phase, d)
		}
	}
}

// truncate writes the overflow line and reports true once i reaches the
// configured list limit
func (rg *ReportGenerator) truncate(i, total int, writer io.Writer) bool {
	limit := rg.config.MaxListItems
	if limit <= 0 || i < limit {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-limit)
	return true
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 3, 64)
}

func sideName(source models.Source) string {
	if source == models.SourceLedger {
		return "ledger"
	}
	return "bank"
}

func recordAmount(rec *models.TransactionRecord) string {
	if rec.HasIssue(models.IssueInvalidAmount) {
		return rec.RawAmount
	}
	return rec.Amount.StringFixed(2)
}

func recordDate(rec *models.TransactionRecord) string {
	if rec.Date.IsZero() {
		return rec.RawDate
	}
	return rec.Date.Format(models.DateLayout)
}

func joinIssues(issues []models.IssueCode) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = string(issue)
	}
	return strings.Join(parts, ", ")
}
