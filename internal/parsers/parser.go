// Package parsers reads bank and ledger record files for the command line
// driver.
//
// A record file is a JSON array or a YAML sequence of objects with id,
// amount, date, description and optionally reference, source and
// debits_positive. Amounts and dates are kept as received when they are not
// already canonical; the normalizer retries them during a run, so a record
// with odd field content is never a read error.
//
// Example usage:
//
//	parser, err := parsers.NewRecordParser(parsers.DefaultConfig(models.SourceBank))
//	bank, stats, err := parser.ParseFile(ctx, "bank.json")
package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"gopkg.in/yaml.v3"
)

// ParseStats holds statistics about reading one file
type ParseStats struct {
	Source         models.Source `json:"source"`
	Format         Format        `json:"format"`
	Bytes          int           `json:"bytes"`
	RecordsParsed  int           `json:"records_parsed"`
	NullRecords    int           `json:"null_records"`
	SourceTagged   int           `json:"source_tagged"`
	DebitsPositive int           `json:"debits_positive"`
}

// String returns a human-readable summary of the statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d %s records (%s, %d bytes), %d tagged, %d debits positive",
		ps.RecordsParsed, ps.Source, ps.Format, ps.Bytes, ps.SourceTagged, ps.DebitsPositive)
}

// RecordParser reads the records of one side
type RecordParser struct {
	config *Config
	logger logger.Logger
}

// NewRecordParser creates a parser with the given configuration
func NewRecordParser(config *Config) (*RecordParser, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "parser", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config.Source, err)
	}

	return &RecordParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("record_parser").WithField("source", config.Source),
	}, nil
}

// ParseFile reads every record in path. The format comes from the
// configuration or, when it is auto, from the file extension.
func (rp *RecordParser) ParseFile(ctx context.Context, path string) ([]*models.TransactionRecord, *ParseStats, error) {
	format := rp.config.Format
	if format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, nil, errors.DecodeError(errors.CodeUnsupported, path, err)
		}
		format = detected
	}

	rp.logger.WithFields(logger.Fields{
		"file_path": path,
		"format":    format,
	}).Debug("Opening record file")

	file, err := os.Open(path)
	if err != nil {
		rp.logger.WithError(err).WithField("file_path", path).Error("Failed to open record file")
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, nil, errors.FileError(errors.CodeFileRead, path, err)
		}
	}
	defer file.Close()

	return rp.Parse(ctx, file, path, format)
}

// Parse reads records from r. name identifies the input in errors and logs.
func (rp *RecordParser) Parse(ctx context.Context, r io.Reader, name string, format Format) ([]*models.TransactionRecord, *ParseStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, cancelled(name, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFileRead, name, err)
	}

	stats := &ParseStats{
		Source: rp.config.Source,
		Format: format,
		Bytes:  len(data),
	}

	records, err := decode(data, format)
	if err != nil {
		rp.logger.WithError(err).WithField("file_path", name).Error("Failed to decode record file")
		if format.IsValid() && format != FormatAuto {
			return nil, nil, errors.DecodeError(errors.CodeInvalidFormat, name, err)
		}
		return nil, nil, errors.DecodeError(errors.CodeUnsupported, name, err)
	}

	// null entries carry no record and are dropped here
	kept := records[:0]
	for _, rec := range records {
		if rec == nil {
			stats.NullRecords++
			continue
		}
		if rec.Source == "" {
			rec.Source = rp.config.Source
			stats.SourceTagged++
		}
		if rp.config.DebitsPositive {
			rec.DebitsPositive = true
		}
		if rec.DebitsPositive {
			stats.DebitsPositive++
		}
		kept = append(kept, rec)
	}
	records = kept
	if stats.NullRecords > 0 {
		rp.logger.WithFields(logger.Fields{
			"file_path": name,
			"dropped":   stats.NullRecords,
		}).Warn("Dropped null entries from record file")
	}

	if limit := rp.config.MaxRecords; limit > 0 && len(records) > limit {
		return nil, nil, errors.ValidationError(errors.CodeOutOfRange, name, len(records),
			fmt.Errorf("file holds %d records, the limit is %d", len(records), limit))
	}

	stats.RecordsParsed = len(records)

	if err := ctx.Err(); err != nil {
		return nil, nil, cancelled(name, err)
	}

	rp.logger.WithFields(logger.Fields{
		"file_path": name,
		"records":   stats.RecordsParsed,
		"bytes":     stats.Bytes,
	}).Info("Read record file")

	return records, stats, nil
}

func cancelled(name string, cause error) error {
	code := errors.CodeCancelled
	if cause == context.DeadlineExceeded {
		code = errors.CodeDeadline
	}
	return errors.CancelledError(code, "load "+name, cause)
}

// decode turns a whole document into records. An empty document holds no
// records.
func decode(data []byte, format Format) ([]*models.TransactionRecord, error) {
	var records []*models.TransactionRecord
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return records, nil
}
