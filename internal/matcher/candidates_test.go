package matcher

import (
	"reflect"
	"testing"

	"bank-ledger-reconciler/internal/models"
)

func candidatePositions(ledger []*models.TransactionRecord, config *ReconciliationConfig, query *models.TransactionRecord) []int {
	return NewCandidateGenerator(NewBucketIndex(ledger, config), config).CandidatePositions(query)
}

func TestCandidateGenerator_NeighbouringBuckets(t *testing.T) {
	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "-100.00", "2025-01-10", "acme"),
		ledgerRecord("L1", "-100.00", "2025-03-10", "acme"),
		ledgerRecord("L2", "-500.00", "2025-01-10", "acme"),
		ledgerRecord("L3", "-101.00", "2025-01-12", "acme"),
	}

	got := candidatePositions(ledger, DefaultConfig(), bankRecord("B0", "-100.00", "2025-01-10", "acme"))

	if want := []int{0, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected candidates %v, got %v", want, got)
	}
}

func TestCandidateGenerator_CapKeepsNearestAmounts(t *testing.T) {
	config := DefaultConfig()
	config.MaxCandidatesPerTransaction = 3

	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "-100.00", "2025-01-10", "acme"),
		ledgerRecord("L1", "-100.50", "2025-01-10", "acme"),
		ledgerRecord("L2", "-99.00", "2025-01-10", "acme"),
		ledgerRecord("L3", "-101.00", "2025-01-10", "acme"),
		ledgerRecord("L4", "-100.20", "2025-01-10", "acme"),
	}

	got := candidatePositions(ledger, config, bankRecord("B0", "-100.00", "2025-01-10", "acme"))

	if want := []int{0, 4, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected candidates %v, got %v", want, got)
	}
}

func TestCandidateGenerator_TiesPreferCloserDates(t *testing.T) {
	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "-100.00", "2025-01-12", "acme"),
		ledgerRecord("L1", "-100.00", "2025-01-10", "acme"),
	}

	got := candidatePositions(ledger, DefaultConfig(), bankRecord("B0", "-100.00", "2025-01-10", "acme"))

	if want := []int{1, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected candidates %v, got %v", want, got)
	}
}

func TestCandidateGenerator_PeriodicWindow(t *testing.T) {
	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "-2500.00", "2025-04-05", "salary april"),
		ledgerRecord("L1", "-2500.00", "2025-04-05", "transfer"),
	}

	got := candidatePositions(ledger, DefaultConfig(), bankRecord("B0", "-2500.00", "2025-04-25", "salary april"))
	if want := []int{0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Periodic query: expected %v, got %v", want, got)
	}

	got = candidatePositions(ledger, DefaultConfig(), bankRecord("B1", "-2500.00", "2025-04-25", "transfer"))
	if want := []int{0}; !reflect.DeepEqual(got, want) {
		t.Errorf("Plain query: expected only the periodic ledger record, got %v", got)
	}
}

func TestCandidateGenerator_DescriptionDate(t *testing.T) {
	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "-1500.00", "2025-03-10", "supplier batch"),
	}
	query := bankRecord("B0", "-1500.00", "2025-04-08", "supplier batch 10/03/2025")
	query.DescriptionDate = day("2025-03-10")

	if got := candidatePositions(ledger, DefaultConfig(), query); len(got) != 1 {
		t.Errorf("Expected the description date to find L0, got %v", got)
	}

	config := DefaultConfig()
	config.DescriptionDateRescue = false
	if got := candidatePositions(ledger, config, query); len(got) != 0 {
		t.Errorf("Expected no candidates without rescue, got %v", got)
	}
}

func TestCandidateGenerator_UnmatchableQuery(t *testing.T) {
	ledger := []*models.TransactionRecord{ledgerRecord("L0", "-10.00", "2025-01-01", "coffee")}
	query := bankRecord("B0", "-10.00", "2025-01-01", "coffee")
	query.DateValid = false

	if got := candidatePositions(ledger, DefaultConfig(), query); got != nil {
		t.Errorf("Expected nil for an unmatchable query, got %v", got)
	}
}

func TestCandidateGenerator_CapRanksBySignedDifference(t *testing.T) {
	ledger := []*models.TransactionRecord{
		ledgerRecord("L0", "100.00", "2025-01-10", "acme"),
		ledgerRecord("L1", "-100.50", "2025-01-10", "acme"),
	}
	query := bankRecord("B0", "-100.00", "2025-01-10", "acme")

	tests := []struct {
		name string
		mode SignConventionMode
		want []int
	}{
		{"fixed keeps the same-sign record", SignFixed, []int{1}},
		{"auto treats a cancelling pair as nearest", SignAuto, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.SignConventionMode = tt.mode
			config.MaxCandidatesPerTransaction = 1

			if got := candidatePositions(ledger, config, query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected candidates %v, got %v", tt.want, got)
			}
		})
	}
}
