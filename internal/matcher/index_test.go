package matcher

import (
	"testing"

	"bank-ledger-reconciler/internal/models"
)

func TestNewBucketIndex_Empty(t *testing.T) {
	config := DefaultConfig()
	index := NewBucketIndex(nil, config)

	if index.Len() != 0 {
		t.Errorf("Expected empty index, got %d records", index.Len())
	}
	if stats := index.Stats(); stats.Buckets != 0 || stats.AverageBucketSize != 0 {
		t.Errorf("Expected no buckets, got %+v", stats)
	}

	gen := NewCandidateGenerator(index, config)
	if got := gen.CandidatePositions(bankRecord("B0", "-10.00", "2025-01-01", "coffee")); len(got) != 0 {
		t.Errorf("Expected no candidates from an empty index, got %v", got)
	}
}

func TestNewBucketIndex_SkipsUnmatchableRecords(t *testing.T) {
	invalidAmount := ledgerRecord("L1", "0", "2025-01-01", "fee")
	invalidAmount.AddIssue(models.IssueInvalidAmount)

	invalidDate := ledgerRecord("L2", "-10.00", "2025-01-01", "fee")
	invalidDate.DateValid = false

	payroll := ledgerRecord("L3", "-2000.00", "2025-01-01", "salary january")
	payroll.DescriptionDate = day("2025-02-20")

	records := []*models.TransactionRecord{
		ledgerRecord("L0", "-10.00", "2025-01-01", "coffee"),
		invalidAmount,
		invalidDate,
		payroll,
	}

	index := NewBucketIndex(records, DefaultConfig())
	stats := index.Stats()

	if stats.TotalRecords != 4 || stats.IndexedRecords != 2 || stats.SkippedRecords != 2 {
		t.Errorf("Unexpected record counts: %+v", stats)
	}
	if stats.PeriodicRecords != 1 {
		t.Errorf("Expected 1 periodic record, got %d", stats.PeriodicRecords)
	}
	if stats.DescriptionDateEntries != 1 {
		t.Errorf("Expected 1 description date entry, got %d", stats.DescriptionDateEntries)
	}

	found := false
	for _, pos := range index.Bucket(index.KeyFor(records[0])) {
		if pos == 1 || pos == 2 {
			t.Errorf("Unmatchable record at position %d was indexed", pos)
		}
		if pos == 0 {
			found = true
		}
	}
	if !found {
		t.Error("Expected L0 in its own bucket")
	}
}

func TestAmountBucketWidth(t *testing.T) {
	records := func(amounts ...string) []*models.TransactionRecord {
		out := make([]*models.TransactionRecord, len(amounts))
		for i, a := range amounts {
			out[i] = ledgerRecord("L", a, "2025-01-01", "x")
		}
		return out
	}

	configured := DefaultConfig()
	configured.AmountBucketWidth = 2.5

	tooNarrow := DefaultConfig()
	tooNarrow.AmountBucketWidth = 0.001

	tests := []struct {
		name    string
		records []*models.TransactionRecord
		config  *ReconciliationConfig
		want    string
	}{
		{"configured", records("-100"), configured, "2.5"},
		{"configured below one cent", records("-100"), tooNarrow, "0.01"},
		{"odd count median", records("-100", "300", "-200"), DefaultConfig(), "10"},
		{"even count median", records("-100", "-200"), DefaultConfig(), "7.5"},
		{"tiny amounts", records("-0.05"), DefaultConfig(), "0.01"},
		{"no records", nil, DefaultConfig(), "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AmountBucketWidth(tt.records, tt.config).String(); got != tt.want {
				t.Errorf("Expected width %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBucketIndex_DateKeyFloors(t *testing.T) {
	index := NewBucketIndex(nil, DefaultConfig())

	tests := []struct {
		epochDay int64
		want     int64
	}{
		{0, 0},
		{6, 0},
		{7, 1},
		{-1, -1},
		{-7, -1},
		{-8, -2},
	}

	for _, tt := range tests {
		if got := index.dateKey(tt.epochDay); got != tt.want {
			t.Errorf("dateKey(%d): expected %d, got %d", tt.epochDay, tt.want, got)
		}
	}
}
