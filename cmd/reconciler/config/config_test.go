package config

import (
	"strings"
	"testing"
	"time"

	"bank-ledger-reconciler/internal/matcher"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/parsers"
	"bank-ledger-reconciler/internal/reporter"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if doc != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
			t.Fatalf("failed to read config: %v", err)
		}
	}
	return v
}

func errorCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	re, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected ReconcilerError, got %T: %v", err, err)
	}
	return re.Code
}

func TestPreset(t *testing.T) {
	tests := []struct {
		name      string
		preset    string
		threshold float64
		signMode  matcher.SignConventionMode
	}{
		{"empty is default", "", 0.7, matcher.SignAuto},
		{"default", "default", 0.7, matcher.SignAuto},
		{"strict", "strict", 0.9, matcher.SignFixed},
		{"relaxed mixed case", "Relaxed", 0.55, matcher.SignAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Preset(tt.preset)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.ConfidenceThreshold != tt.threshold {
				t.Errorf("expected threshold %.2f, got %.2f", tt.threshold, config.ConfidenceThreshold)
			}
			if config.SignConventionMode != tt.signMode {
				t.Errorf("expected sign mode %s, got %s", tt.signMode, config.SignConventionMode)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("preset %q should be valid: %v", tt.preset, err)
			}
		})
	}

	if _, err := Preset("lenient"); err == nil {
		t.Error("expected error for unknown preset")
	} else if code := errorCode(t, err); code != errors.CodeInvalidConfig {
		t.Errorf("expected code %s, got %s", errors.CodeInvalidConfig, code)
	}
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Preset != PresetDefault {
		t.Errorf("expected preset %q, got %q", PresetDefault, s.Preset)
	}
	if s.Matching.ConfidenceThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %f", s.Matching.ConfidenceThreshold)
	}
	if s.Matching.Weights != (matcher.Weights{Amount: 0.4, Date: 0.3, Description: 0.3}) {
		t.Errorf("unexpected weights: %s", s.Matching.Weights.String())
	}
	if len(s.Matching.PeriodicPatterns) != 1 || s.Matching.PeriodicPatterns[0].ToleranceDays != 35 {
		t.Fatalf("expected the payroll pattern, got %+v", s.Matching.PeriodicPatterns)
	}
	if got := s.Matching.PeriodicPatterns[0].Keywords; len(got) != 3 || got[0] != "payroll" {
		t.Errorf("unexpected payroll keywords: %v", got)
	}
	if s.Run.ChunkSize != 256 || s.Run.Workers <= 0 {
		t.Errorf("unexpected run settings: %+v", s.Run)
	}
	if s.Run.ProgressInterval != 5*time.Second {
		t.Errorf("expected progress interval 5s, got %v", s.Run.ProgressInterval)
	}
	if s.Output.Format != reporter.FormatConsole || s.Output.CSVDelimiter != ',' {
		t.Errorf("unexpected output settings: %+v", s.Output)
	}
	if s.Bank.Source != models.SourceBank || s.Ledger.Source != models.SourceLedger {
		t.Errorf("sides not tagged: bank=%s ledger=%s", s.Bank.Source, s.Ledger.Source)
	}
	if s.Bank.Format != parsers.FormatAuto {
		t.Errorf("expected auto format, got %s", s.Bank.Format)
	}
	if s.Log.Level != logger.InfoLevel {
		t.Errorf("expected info log level, got %s", s.Log.Level)
	}
	if s.Timeout != 0 {
		t.Errorf("expected no timeout, got %v", s.Timeout)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	doc := `
preset: strict
bank_file: bank.json
ledger_file: ledger.yaml
timeout: 30s
matching:
  confidence_threshold: 0.8
  periodic_patterns:
    - name: rent
      keywords: [rent, lease]
      tolerance_days: 10
run:
  workers: 3
output:
  format: csv
  csv_delimiter: ";"
bank:
  debits_positive: true
log:
  level: debug
  format: json
`
	s, err := Load(newViper(t, doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Matching.ConfidenceThreshold != 0.8 {
		t.Errorf("expected file threshold 0.8, got %f", s.Matching.ConfidenceThreshold)
	}
	// Untouched keys come from the strict preset
	if s.Matching.DateToleranceDays != 3 || s.Matching.SignConventionMode != matcher.SignFixed {
		t.Errorf("expected strict defaults, got tolerance %d mode %s",
			s.Matching.DateToleranceDays, s.Matching.SignConventionMode)
	}
	if len(s.Matching.PeriodicPatterns) != 1 || s.Matching.PeriodicPatterns[0].Name != "rent" {
		t.Errorf("expected rent pattern to replace payroll, got %+v", s.Matching.PeriodicPatterns)
	}
	if s.Run.Workers != 3 || s.Run.ChunkSize != 256 {
		t.Errorf("unexpected run settings: %+v", s.Run)
	}
	if s.Output.Format != reporter.FormatCSV || s.Output.CSVDelimiter != ';' {
		t.Errorf("unexpected output settings: format %s delimiter %q", s.Output.Format, s.Output.CSVDelimiter)
	}
	if !s.Bank.DebitsPositive || s.Ledger.DebitsPositive {
		t.Errorf("expected only bank debits positive: bank=%v ledger=%v", s.Bank.DebitsPositive, s.Ledger.DebitsPositive)
	}
	if s.BankFile != "bank.json" || s.LedgerFile != "ledger.yaml" {
		t.Errorf("unexpected input files: %q %q", s.BankFile, s.LedgerFile)
	}
	if s.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", s.Timeout)
	}
	if s.Log.Level != logger.DebugLevel || s.Log.Format != logger.JSONFormat {
		t.Errorf("unexpected log settings: %+v", s.Log)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("RECONCILER_MATCHING_DATE_TOLERANCE_DAYS", "10")
	t.Setenv("RECONCILER_OUTPUT_FORMAT", "yaml")
	t.Setenv("RECONCILER_RUN_DETECT_DUPLICATES", "false")
	t.Setenv("RECONCILER_LEDGER_DEBITS_POSITIVE", "true")

	s, err := Load(newViper(t, "matching:\n  date_tolerance_days: 4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Matching.DateToleranceDays != 10 {
		t.Errorf("expected env tolerance 10, got %d", s.Matching.DateToleranceDays)
	}
	if s.Output.Format != reporter.FormatYAML {
		t.Errorf("expected yaml output, got %s", s.Output.Format)
	}
	if s.Run.DetectDuplicates {
		t.Error("expected duplicate detection disabled from env")
	}
	if !s.Ledger.DebitsPositive {
		t.Error("expected ledger debits positive from env")
	}
}

func TestLoad_FlagPrecedence(t *testing.T) {
	v := newViper(t, "")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("threshold", 0.5, "")
	if err := v.BindPFlag("matching.confidence_threshold", flags.Lookup("threshold")); err != nil {
		t.Fatalf("failed to bind flag: %v", err)
	}

	s, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Matching.ConfidenceThreshold != 0.7 {
		t.Errorf("unset flag should not override the preset, got %f", s.Matching.ConfidenceThreshold)
	}

	if err := flags.Set("threshold", "0.85"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	s, err = Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Matching.ConfidenceThreshold != 0.85 {
		t.Errorf("expected flag threshold 0.85, got %f", s.Matching.ConfidenceThreshold)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code errors.ErrorCode
	}{
		{"unknown preset", "preset: lenient\n", errors.CodeInvalidConfig},
		{"weights do not sum to one", "matching:\n  weights:\n    amount: 0.5\n    date: 0.5\n    description: 0.5\n", errors.CodeInvalidWeights},
		{"threshold out of range", "matching:\n  confidence_threshold: 1.5\n", errors.CodeInvalidConfig},
		{"unknown sign mode", "matching:\n  sign_convention_mode: SOMETIMES\n", errors.CodeInvalidConfig},
		{"zero workers", "run:\n  workers: 0\n", errors.CodeInvalidConfig},
		{"unknown output format", "output:\n  format: xml\n", errors.CodeInvalidConfig},
		{"unknown input format", "bank:\n  format: csv\n", errors.CodeInvalidConfig},
		{"unknown log level", "log:\n  level: loud\n", errors.CodeInvalidConfig},
		{"negative timeout", "timeout: -1s\n", errors.CodeInvalidConfig},
		{"bad duration", "timeout: soon\n", errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.doc))
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if code := errorCode(t, err); code != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, code, err)
			}
			re, _ := errors.AsReconcilerError(err)
			if re.Category != errors.CategoryConfiguration {
				t.Errorf("expected configuration category, got %s", re.Category)
			}
		})
	}
}

func TestSettings_RequireInputs(t *testing.T) {
	s, err := DefaultSettings("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.RequireInputs(); err == nil {
		t.Error("expected error without input files")
	} else if code := errorCode(t, err); code != errors.CodeMissingConfig {
		t.Errorf("expected code %s, got %s", errors.CodeMissingConfig, code)
	}

	s.BankFile = "bank.json"
	if err := s.RequireInputs(); err == nil || !strings.Contains(err.Error(), "ledger_file") {
		t.Errorf("expected missing ledger_file error, got %v", err)
	}

	s.LedgerFile = "ledger.json"
	if err := s.RequireInputs(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFlatten(t *testing.T) {
	s, err := DefaultSettings(PresetRelaxed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flat, err := flatten(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{
		"preset",
		"matching.confidence_threshold",
		"matching.weights.amount",
		"matching.periodic_patterns",
		"run.workers",
		"output.csv_delimiter",
		"bank.debits_positive",
		"log.level",
	} {
		if _, ok := flat[key]; !ok {
			t.Errorf("expected key %q in flattened settings", key)
		}
	}
	if _, ok := flat["run.logger"]; ok {
		t.Error("run.logger should not be a setting")
	}
	if flat["matching.date_tolerance_days"] != 14 {
		t.Errorf("expected relaxed tolerance 14, got %v", flat["matching.date_tolerance_days"])
	}
}
