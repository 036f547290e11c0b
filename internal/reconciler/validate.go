package reconciler

import (
	"fmt"
	"strings"

	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"
)

// validateInput checks that every record has an id that is unique within
// its side. All problems are collected and returned as one error.
func (rn *run) validateInput() error {
	collector := errors.NewCollector(rn.config.MaxInputErrors)
	validateSide(collector, models.SourceBank, rn.bank)
	validateSide(collector, models.SourceLedger, rn.ledger)

	if err := collector.Err(); err != nil {
		rn.logger.WithFields(logger.Fields{
			"run_id": rn.id,
			"errors": collector.Count(),
		}).Warn("Input validation failed")
		return err
	}
	return nil
}

func validateSide(collector *errors.Collector, source models.Source, records []*models.TransactionRecord) {
	seen := make(map[string]int, len(records))
	prefix := strings.ToLower(source.String())

	for i, rec := range records {
		field := fmt.Sprintf("%s[%d].id", prefix, i)
		if rec == nil {
			collector.Add(errors.ValidationError(errors.CodeMissingField, fmt.Sprintf("%s[%d]", prefix, i), nil, nil))
			continue
		}

		id := strings.TrimSpace(rec.ID)
		if id == "" {
			collector.Add(errors.ValidationError(errors.CodeMissingField, field, rec.ID, nil))
			continue
		}

		if rec.Source != "" && rec.Source != source {
			collector.Add(errors.ValidationError(errors.CodeOutOfRange, fmt.Sprintf("%s[%d].source", prefix, i), rec.Source,
				fmt.Errorf("record %s is tagged %s but was given as %s", rec.ID, rec.Source, source)))
		}

		if first, dup := seen[rec.ID]; dup {
			collector.Add(errors.ValidationError(errors.CodeDuplicateID, field, rec.ID,
				fmt.Errorf("id already used by %s[%d]", prefix, first)))
			continue
		}
		seen[rec.ID] = i
	}
}
