package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"bank-ledger-reconciler/pkg/errors"

	"gopkg.in/yaml.v3"
)

const bankJSON = `[
  {"id": "B1", "amount": "-100.00", "date": "2024-03-01", "description": "ACME invoice 77"},
  {"id": "B2", "amount": "-50", "date": "2024-03-02", "description": "Coffee shop"}
]`

const ledgerJSON = `[
  {"id": "L1", "amount": -100, "date": "2024-03-01", "description": "ACME invoice 77"},
  {"id": "L2", "amount": -999, "date": "2024-03-05", "description": "Rent"}
]`

type report struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Matches []struct {
		BankID       string `json:"bank_id" yaml:"bank_id"`
		LedgerID     string `json:"ledger_id" yaml:"ledger_id"`
		Tier         string `json:"tier" yaml:"tier"`
		SignMismatch bool   `json:"sign_mismatch" yaml:"sign_mismatch"`
	} `json:"matches" yaml:"matches"`
	UnmatchedBank []struct {
		ID string `json:"id" yaml:"id"`
	} `json:"unmatched_bank" yaml:"unmatched_bank"`
	Stats struct {
		MatchesFound int  `json:"matches_found" yaml:"matches_found"`
		Cancelled    bool `json:"cancelled" yaml:"cancelled"`
	} `json:"stats" yaml:"stats"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--log-level", "error"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestReconcile_JSONReport(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, dir, "bank.json", bankJSON)
	ledger := writeFile(t, dir, "ledger.json", ledgerJSON)

	code, stdout, stderr := runCLI(t, "reconcile", "--bank", bank, "--ledger", ledger, "-f", "json")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}

	var got report
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, stdout)
	}

	if got.RunID == "" {
		t.Error("expected a run id")
	}
	if len(got.Matches) != 1 || got.Matches[0].BankID != "B1" || got.Matches[0].LedgerID != "L1" {
		t.Fatalf("expected B1-L1 match, got %+v", got.Matches)
	}
	if got.Matches[0].Tier != "exact" {
		t.Errorf("expected exact tier, got %s", got.Matches[0].Tier)
	}
	if len(got.UnmatchedBank) != 1 || got.UnmatchedBank[0].ID != "B2" {
		t.Errorf("expected B2 unmatched, got %+v", got.UnmatchedBank)
	}
	if got.Stats.MatchesFound != 1 || got.Stats.Cancelled {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}
}

func TestReconcile_YAMLInputDebitsPositive(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, dir, "bank.yaml", `
- id: B1
  amount: "100.00"
  date: 2024-03-01
  description: ACME invoice 77
`)
	ledger := writeFile(t, dir, "ledger.yml", `
- id: L1
  amount: -100
  date: 2024-03-01
  description: ACME invoice 77
`)

	tests := []struct {
		name         string
		args         []string
		signMismatch bool
	}{
		{"declared convention", []string{"--bank-debits-positive"}, false},
		{"undeclared convention", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"reconcile", "--bank", bank, "--ledger", ledger, "-f", "yaml"}, tt.args...)
			code, stdout, stderr := runCLI(t, args...)
			if code != 0 {
				t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
			}

			var got report
			if err := yaml.Unmarshal([]byte(stdout), &got); err != nil {
				t.Fatalf("report is not valid YAML: %v\n%s", err, stdout)
			}
			if len(got.Matches) != 1 {
				t.Fatalf("expected one match, got %d\n%s", len(got.Matches), stdout)
			}
			if got.Matches[0].SignMismatch != tt.signMismatch {
				t.Errorf("expected sign mismatch %v, got %v", tt.signMismatch, got.Matches[0].SignMismatch)
			}
		})
	}
}

func TestReconcile_OutputFile(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, dir, "bank.json", bankJSON)
	ledger := writeFile(t, dir, "ledger.json", ledgerJSON)
	out := filepath.Join(dir, "report.txt")

	code, stdout, stderr := runCLI(t, "reconcile", "--bank", bank, "--ledger", ledger, "-o", out)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("expected nothing on stdout, got %q", stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "RECONCILIATION REPORT") {
		t.Errorf("expected console report in file, got:\n%s", data)
	}
}

func TestReconcile_ConfigFileAndProgress(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, dir, "bank.json", bankJSON)
	ledger := writeFile(t, dir, "ledger.json", ledgerJSON)
	cfg := writeFile(t, dir, "reconciler.yaml", fmt.Sprintf(`
bank_file: %s
ledger_file: %s
progress: true
output:
  format: csv
`, bank, ledger))

	code, stdout, stderr := runCLI(t, "reconcile", "--config", cfg)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "Type,Bank_ID,Ledger_ID") {
		t.Errorf("expected csv report, got:\n%s", stdout)
	}
	if !strings.Contains(stderr, "[5/5] done (100.0% complete)") {
		t.Errorf("expected progress on stderr, got %q", stderr)
	}
}

func TestReconcile_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	bank := writeFile(t, dir, "bank.json", bankJSON)
	ledger := writeFile(t, dir, "ledger.json", ledgerJSON)
	malformed := writeFile(t, dir, "broken.json", `[{"id": "B1",`)
	duplicated := writeFile(t, dir, "dup.json", `[
  {"id": "B1", "amount": "1", "date": "2024-03-01", "description": "a"},
  {"id": "B1", "amount": "2", "date": "2024-03-02", "description": "b"}
]`)
	unsupported := writeFile(t, dir, "bank.csv", "id,amount\n")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing ledger", []string{"reconcile", "--bank", bank}, 4},
		{"bank file not found", []string{"reconcile", "--bank", filepath.Join(dir, "nope.json"), "--ledger", ledger}, 2},
		{"malformed json", []string{"reconcile", "--bank", malformed, "--ledger", ledger}, 3},
		{"unsupported extension", []string{"reconcile", "--bank", unsupported, "--ledger", ledger}, 3},
		{"duplicate ids", []string{"reconcile", "--bank", duplicated, "--ledger", ledger}, 3},
		{"threshold out of range", []string{"reconcile", "--bank", bank, "--ledger", ledger, "--threshold", "2"}, 4},
		{"unknown output format", []string{"reconcile", "--bank", bank, "--ledger", ledger, "-f", "xml"}, 4},
		{"unknown preset", []string{"reconcile", "--bank", bank, "--ledger", ledger, "--preset", "lenient"}, 4},
		{"output directory missing", []string{"reconcile", "--bank", bank, "--ledger", ledger, "-o", filepath.Join(dir, "missing", "r.txt")}, 2},
		{"timeout", []string{"reconcile", "--bank", bank, "--ledger", ledger, "--timeout", "1ns"}, 130},
		{"config file not found", []string{"config", "--config", filepath.Join(dir, "nope.yaml")}, 2},
		{"unknown flag", []string{"reconcile", "--system-file", bank}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != tt.code {
				t.Errorf("expected exit code %d, got %d: %s", tt.code, code, stderr)
			}
			if !strings.Contains(stderr, "Error:") {
				t.Errorf("expected an error message, got %q", stderr)
			}
		})
	}
}

func TestGenerateThenReconcile(t *testing.T) {
	dir := t.TempDir()

	code, stdout, stderr := runCLI(t, "generate", "--output-dir", dir, "--matched", "40", "--seed", "11")
	if code != 0 {
		t.Fatalf("generate: expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Expected matches: 40") {
		t.Errorf("unexpected generate output:\n%s", stdout)
	}

	code, stdout, stderr = runCLI(t, "reconcile",
		"--bank", filepath.Join(dir, "bank.json"),
		"--ledger", filepath.Join(dir, "ledger.json"),
		"-f", "json")
	if code != 0 {
		t.Fatalf("reconcile: expected exit code 0, got %d: %s", code, stderr)
	}

	var got report
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if got.Stats.MatchesFound != 40 {
		t.Errorf("expected 40 matches, got %d", got.Stats.MatchesFound)
	}
	for _, m := range got.Matches {
		if strings.TrimPrefix(m.BankID, "BNK") != strings.TrimPrefix(m.LedgerID, "LED") {
			t.Errorf("unexpected pair %s-%s", m.BankID, m.LedgerID)
		}
	}

	code, _, stderr = runCLI(t, "generate", "--output-dir", dir, "--format", "csv")
	if code != 4 {
		t.Errorf("expected exit code 4 for csv, got %d: %s", code, stderr)
	}
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "reconciler.yaml", "matching:\n  date_tolerance_days: 9\n")
	t.Setenv("RECONCILER_RUN_WORKERS", "2")

	code, stdout, stderr := runCLI(t, "config", "--preset", "strict", "--config", cfg)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}

	for _, want := range []string{
		"preset: strict",
		"confidence_threshold: 0.9",
		"date_tolerance_days: 9",
		"sign_convention_mode: FIXED",
		"workers: 2",
		"source: bank",
		"source: ledger",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in settings:\n%s", want, stdout)
		}
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Errorf("settings are not valid YAML: %v", err)
	}
}

func TestReconcileCommandHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "reconcile", "--help")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	for _, section := range []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--bank",
		"--ledger",
		"--output-format",
		"--preset",
	} {
		if !strings.Contains(stdout, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestFlagBinding(t *testing.T) {
	root := NewRootCommand()
	reconcile, _, err := root.Find([]string{"reconcile"})
	if err != nil {
		t.Fatalf("reconcile command not found: %v", err)
	}

	for name, key := range reconcileFlags {
		t.Run(name, func(t *testing.T) {
			if reconcile.Flags().Lookup(name) == nil {
				t.Errorf("flag '%s' for key '%s' not found", name, key)
			}
		})
	}
}

func TestCLIErrorHandler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bank-march.json", "[]")

	tests := []struct {
		name     string
		err      error
		verbose  bool
		code     int
		contains []string
	}{
		{"nil", nil, false, 0, nil},
		{
			name:     "file not found suggests similar files",
			err:      errors.FileError(errors.CodeFileNotFound, filepath.Join(dir, "bank.json"), os.ErrNotExist),
			code:     2,
			contains: []string{"Error: file not found", "Suggestion:", "bank-march.json", "File error help"},
		},
		{
			name:     "decode",
			err:      errors.DecodeError(errors.CodeInvalidFormat, "bank.json", fmt.Errorf("unexpected end of JSON input")),
			verbose:  true,
			code:     3,
			contains: []string{"cannot decode bank.json", "Decode error help", "Underlying error: unexpected end of JSON input"},
		},
		{
			name:     "configuration",
			err:      errors.ConfigurationError(errors.CodeInvalidWeights, "weights", "amount=0.500", nil),
			code:     4,
			contains: []string{"invalid scoring weights", "reconciler config"},
		},
		{
			name:     "cancelled",
			err:      errors.CancelledError(errors.CodeDeadline, "score", context.DeadlineExceeded),
			code:     130,
			contains: []string{"deadline exceeded during score", "phase: score", "stopped before it finished"},
		},
		{
			name:     "generic",
			err:      fmt.Errorf("unknown command"),
			code:     1,
			contains: []string{"Error: unknown command"},
		},
		{
			name:     "generic missing file",
			err:      &os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT},
			code:     2,
			contains: []string{"File not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, tt.verbose).HandleError(tt.err)
			if code != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected %q in output:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestSimilarFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ledger-jan.json", "ledger-feb.json", "ledger-mar.json", "ledger-apr.json", "bank.json"} {
		writeFile(t, dir, name, "[]")
	}

	similar := similarFiles(filepath.Join(dir, "ledger.json"))
	if len(similar) != 3 {
		t.Errorf("expected at most 3 similar files, got %v", similar)
	}
	for _, name := range similar {
		if !strings.HasPrefix(name, "led") {
			t.Errorf("unexpected similar file %s", name)
		}
	}

	if got := similarFiles(filepath.Join(dir, "missing", "x.json")); got != nil {
		t.Errorf("expected nil for unreadable directory, got %v", got)
	}
}
