package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"bank-ledger-reconciler/internal/models"
)

// Format is the encoding of a record file
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatAuto, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// DetectFormat picks a format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("cannot tell the format of %s from its extension", filepath.Base(path))
	}
}

// Config holds configuration for reading one side's record file
type Config struct {
	// Source tags every record read that does not carry its own tag
	Source models.Source `json:"source" yaml:"source" mapstructure:"source"`

	Format Format `json:"format" yaml:"format" mapstructure:"format"`

	// DebitsPositive declares that the whole file records debits as positive
	// amounts. Records that set the flag themselves keep it.
	DebitsPositive bool `json:"debits_positive" yaml:"debits_positive" mapstructure:"debits_positive"`

	// MaxRecords rejects files with more records than this when positive
	MaxRecords int `json:"max_records" yaml:"max_records" mapstructure:"max_records"`
}

// DefaultConfig returns the default configuration for a side
func DefaultConfig(source models.Source) *Config {
	return &Config{
		Source: source,
		Format: FormatAuto,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Source.IsValid() {
		return fmt.Errorf("source must be %s or %s, got %q", models.SourceBank, models.SourceLedger, c.Source)
	}
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid format: %s", c.Format)
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("max records cannot be negative, got %d", c.MaxRecords)
	}
	return nil
}
