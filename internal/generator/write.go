package generator

import (
	"encoding/json"
	"os"

	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/parsers"
	"bank-ledger-reconciler/pkg/errors"

	"gopkg.in/yaml.v3"
)

// WriteFile writes records to path as JSON or YAML, chosen by extension, in
// the form the record parser reads back
func WriteFile(path string, records []*models.TransactionRecord) error {
	format, err := parsers.DetectFormat(path)
	if err != nil {
		return errors.DecodeError(errors.CodeUnsupported, path, err)
	}

	var data []byte
	switch format {
	case parsers.FormatYAML:
		data, err = yaml.Marshal(records)
	default:
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode records", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	return nil
}
