package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/pkg/errors"
)

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func newParser(t *testing.T, config *Config) *RecordParser {
	t.Helper()
	parser, err := NewRecordParser(config)
	if err != nil {
		t.Fatalf("unexpected error creating parser: %v", err)
	}
	return parser
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{"bank default", DefaultConfig(models.SourceBank), false},
		{"ledger default", DefaultConfig(models.SourceLedger), false},
		{"missing source", &Config{Format: FormatJSON}, true},
		{"unknown format", &Config{Source: models.SourceBank, Format: "csv"}, true},
		{"negative limit", &Config{Source: models.SourceBank, Format: FormatAuto, MaxRecords: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected validation error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"bank.json", FormatJSON, false},
		{"LEDGER.JSON", FormatJSON, false},
		{"ledger.yaml", FormatYAML, false},
		{"ledger.yml", FormatYAML, false},
		{"ledger.csv", "", true},
		{"ledger", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewRecordParser_InvalidConfig(t *testing.T) {
	if _, err := NewRecordParser(nil); err == nil {
		t.Error("expected error for nil config")
	}

	_, err := NewRecordParser(&Config{Format: FormatJSON})
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestRecordParser_ParseFile_JSON(t *testing.T) {
	path := createTempFile(t, "bank.json", `[
  {"id": "B1", "amount": "-1,250.00", "date": "2025-01-31", "description": "Rent January"},
  {"id": "B2", "amount": 99.95, "date": "31/01/2025", "description": "Refund", "debits_positive": true},
  {"id": "B3", "amount": 10, "date": "2025-02-01", "description": "Fee", "source": "LEDGER"}
]`)

	records, stats, err := newParser(t, DefaultConfig(models.SourceBank)).ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	if records[0].RawAmount != "-1,250.00" || !records[0].Amount.IsZero() {
		t.Errorf("Expected raw amount to be kept for the normalizer, got %q / %s", records[0].RawAmount, records[0].Amount)
	}
	if records[1].Amount.String() != "99.95" || records[1].RawDate != "31/01/2025" {
		t.Errorf("unexpected second record: %s", records[1])
	}
	if records[0].Source != models.SourceBank {
		t.Errorf("Expected untagged record to be tagged BANK, got %s", records[0].Source)
	}
	if records[2].Source != models.SourceLedger {
		t.Errorf("Expected explicit tag to be kept, got %s", records[2].Source)
	}

	if stats.Format != FormatJSON || stats.RecordsParsed != 3 || stats.SourceTagged != 2 || stats.DebitsPositive != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !strings.Contains(stats.String(), "Read 3 BANK records") {
		t.Errorf("unexpected stats summary: %s", stats.String())
	}
}

func TestRecordParser_ParseFile_YAML(t *testing.T) {
	path := createTempFile(t, "ledger.yml", `
- id: L1
  amount: 1250.00
  date: 2025-01-31
  description: Rent January
- id: L2
  amount: -99.95
  date: 2025-02-01
  description: Refund
`)

	config := DefaultConfig(models.SourceLedger)
	config.DebitsPositive = true

	records, stats, err := newParser(t, config).ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Amount.String() != "1250" {
		t.Errorf("Expected amount 1250, got %s", records[0].Amount)
	}
	for _, rec := range records {
		if !rec.DebitsPositive {
			t.Errorf("Expected file-level sign convention on %s", rec.ID)
		}
		if rec.Source != models.SourceLedger {
			t.Errorf("Expected LEDGER tag on %s", rec.ID)
		}
	}
	if stats.Format != FormatYAML || stats.DebitsPositive != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRecordParser_ParseFile_Errors(t *testing.T) {
	parser := newParser(t, DefaultConfig(models.SourceBank))
	dir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		category errors.ErrorCategory
		code     errors.ErrorCode
	}{
		{
			name:     "missing file",
			path:     filepath.Join(dir, "missing.json"),
			category: errors.CategoryFile,
			code:     errors.CodeFileNotFound,
		},
		{
			name:     "unknown extension",
			path:     createTempFile(t, "bank.csv", "id,amount\n"),
			category: errors.CategoryDecode,
			code:     errors.CodeUnsupported,
		},
		{
			name:     "malformed json",
			path:     createTempFile(t, "bank.json", `[{"id": "B1",`),
			category: errors.CategoryDecode,
			code:     errors.CodeInvalidFormat,
		},
		{
			name:     "object instead of array",
			path:     createTempFile(t, "object.json", `{"id": "B1"}`),
			category: errors.CategoryDecode,
			code:     errors.CodeInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parser.ParseFile(context.Background(), tt.path)
			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("Expected ReconcilerError, got %v", err)
			}
			if re.Category != tt.category || re.Code != tt.code {
				t.Errorf("Expected %s/%s, got %s/%s", tt.category, tt.code, re.Category, re.Code)
			}
		})
	}
}

func TestRecordParser_Parse(t *testing.T) {
	parser := newParser(t, DefaultConfig(models.SourceBank))

	records, stats, err := parser.Parse(context.Background(), strings.NewReader("  \n"), "empty.json", FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error for empty document: %v", err)
	}
	if len(records) != 0 || stats.RecordsParsed != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}

	records, stats, err = parser.Parse(context.Background(), strings.NewReader(`[null, {"id": "B1"}]`), "nulls.json", FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "B1" {
		t.Errorf("Expected null entries to be dropped, got %v", records)
	}
	if stats.NullRecords != 1 || stats.RecordsParsed != 1 {
		t.Errorf("Expected 1 null entry and 1 record, got %+v", stats)
	}
}

func TestRecordParser_MaxRecordsIgnoresNulls(t *testing.T) {
	config := DefaultConfig(models.SourceLedger)
	config.MaxRecords = 1

	records, _, err := newParser(t, config).Parse(context.Background(),
		strings.NewReader(`[null, {"id": "L1"}, null]`), "ledger.json", FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestRecordParser_MaxRecords(t *testing.T) {
	config := DefaultConfig(models.SourceLedger)
	config.MaxRecords = 1

	_, _, err := newParser(t, config).Parse(context.Background(),
		strings.NewReader(`[{"id": "L1"}, {"id": "L2"}]`), "ledger.json", FormatJSON)
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeOutOfRange {
		t.Errorf("Expected out of range error, got %v", err)
	}
}

func TestRecordParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newParser(t, DefaultConfig(models.SourceBank)).Parse(ctx,
		strings.NewReader(`[]`), "bank.json", FormatJSON)
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryCancelled {
		t.Errorf("Expected cancelled error, got %v", err)
	}
}
