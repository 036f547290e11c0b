// Package config assembles the settings of the command line driver from
// presets, a config file, RECONCILER_* environment variables and flags.
//
// Every setting has a viper key equal to its yaml path, for example
// matching.confidence_threshold or run.workers. Precedence, highest first:
// flags, environment, config file, preset defaults.
package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"bank-ledger-reconciler/internal/matcher"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/parsers"
	"bank-ledger-reconciler/internal/reconciler"
	"bank-ledger-reconciler/internal/reporter"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Preset names
const (
	PresetDefault = "default"
	PresetStrict  = "strict"
	PresetRelaxed = "relaxed"
)

// Settings is everything one invocation of the driver needs
type Settings struct {
	Preset string `yaml:"preset" mapstructure:"preset"`

	BankFile   string        `yaml:"bank_file" mapstructure:"bank_file"`
	LedgerFile string        `yaml:"ledger_file" mapstructure:"ledger_file"`
	OutputFile string        `yaml:"output_file" mapstructure:"output_file"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Progress   bool          `yaml:"progress" mapstructure:"progress"`

	Matching matcher.ReconciliationConfig `yaml:"matching" mapstructure:"matching"`
	Run      reconciler.Config            `yaml:"run" mapstructure:"run"`
	Output   reporter.ReportConfig        `yaml:"output" mapstructure:"output"`
	Bank     parsers.Config               `yaml:"bank" mapstructure:"bank"`
	Ledger   parsers.Config               `yaml:"ledger" mapstructure:"ledger"`
	Log      logger.Config                `yaml:"log" mapstructure:"log"`
}

// Presets returns the known preset names in sorted order
func Presets() []string {
	names := []string{PresetDefault, PresetStrict, PresetRelaxed}
	sort.Strings(names)
	return names
}

// Preset returns the matching configuration of a named preset
func Preset(name string) (*matcher.ReconciliationConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return matcher.DefaultConfig(), nil
	case PresetStrict:
		return matcher.StrictConfig(), nil
	case PresetRelaxed:
		return matcher.RelaxedConfig(), nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "preset", name,
			fmt.Errorf("must be one of %s", strings.Join(Presets(), ", ")))
	}
}

// DefaultSettings returns the settings of a preset before any file,
// environment or flag is applied
func DefaultSettings(preset string) (*Settings, error) {
	matching, err := Preset(preset)
	if err != nil {
		return nil, err
	}
	if preset == "" {
		preset = PresetDefault
	}

	return &Settings{
		Preset:   preset,
		Matching: *matching,
		Run:      *reconciler.DefaultConfig(),
		Output:   *reporter.DefaultReportConfig(),
		Bank:     *parsers.DefaultConfig(models.SourceBank),
		Ledger:   *parsers.DefaultConfig(models.SourceLedger),
		Log:      *logger.DefaultConfig(),
	}, nil
}

// SetDefaults registers every setting of the preset as a viper default.
// Registering leaf keys also makes them visible to AutomaticEnv.
func SetDefaults(v *viper.Viper, preset string) error {
	s, err := DefaultSettings(preset)
	if err != nil {
		return err
	}

	flat, err := flatten(s)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "default settings", err)
	}
	for key, value := range flat {
		v.SetDefault(key, value)
	}
	return nil
}

// flatten turns settings into dotted leaf keys by way of their yaml form
func flatten(s *Settings) (map[string]interface{}, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	out := make(map[string]interface{})
	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]interface{}); ok {
				walk(key, child)
				continue
			}
			out[key] = val
		}
	}
	walk("", tree)
	return out, nil
}

// Load resolves the preset, registers its defaults, decodes v into Settings
// and validates the result
func Load(v *viper.Viper) (*Settings, error) {
	if err := SetDefaults(v, v.GetString("preset")); err != nil {
		return nil, err
	}

	var s Settings
	err := v.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToRuneHook,
	)))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err)
	}

	// Each side's tag is fixed by the flag or key it was read under
	s.Bank.Source = models.SourceBank
	s.Ledger.Source = models.SourceLedger

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// stringToRuneHook lets a one character string such as ";" set a rune
// setting like output.csv_delimiter
func stringToRuneHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int32 {
		return data, nil
	}
	s := data.(string)
	switch {
	case s == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(s) == 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	default:
		return data, nil
	}
}

// Validate checks every section. The matching and run sections return
// their own configuration errors.
func (s *Settings) Validate() error {
	if err := s.Matching.Validate(); err != nil {
		return err
	}
	if err := s.Run.Validate(); err != nil {
		return err
	}
	if err := s.Output.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", s.Output.Format, err)
	}
	if err := s.Bank.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "bank", s.Bank.Format, err)
	}
	if err := s.Ledger.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", s.Ledger.Format, err)
	}
	if err := s.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", s.Log.Level, err)
	}
	if s.Timeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "timeout", s.Timeout,
			fmt.Errorf("cannot be negative"))
	}
	return nil
}

// RequireInputs checks that both record files were named
func (s *Settings) RequireInputs() error {
	if strings.TrimSpace(s.BankFile) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank_file", nil,
			fmt.Errorf("use --bank or set bank_file"))
	}
	if strings.TrimSpace(s.LedgerFile) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger_file", nil,
			fmt.Errorf("use --ledger or set ledger_file"))
	}
	return nil
}
