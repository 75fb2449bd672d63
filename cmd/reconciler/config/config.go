// Package config loads the CLI run configuration from a YAML file, the
// environment and command-line flags, and writes the commented template
// produced by `reconciler config init`.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/server"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// PreferencesConfig locates the column preference store
type PreferencesConfig struct {
	// Path of the SQLite database; empty disables the store.
	Path     string        `json:"path" mapstructure:"path" yaml:"path"`
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// RunConfig is everything the CLI reads from configuration
type RunConfig struct {
	reconciler.Config `mapstructure:",squash" yaml:",inline"`

	Input       parsers.ReadOptions   `json:"input" mapstructure:"input" yaml:"input"`
	Report      reporter.ReportConfig `json:"report" mapstructure:"report" yaml:"report"`
	Preferences PreferencesConfig     `json:"preferences" mapstructure:"preferences" yaml:"preferences"`
	Server      server.Config         `json:"server" mapstructure:"server" yaml:"server"`
	Log         logger.Config         `json:"log" mapstructure:"log" yaml:"log"`
}

// DefaultRunConfig returns the defaults of mode
func DefaultRunConfig(mode models.Mode) *RunConfig {
	return &RunConfig{
		Config: *reconciler.DefaultConfig(mode),
		Input:  *parsers.DefaultReadOptions(),
		Report: *reporter.DefaultReportConfig(),
		Preferences: PreferencesConfig{
			Path:     DefaultPreferencesPath(),
			CacheTTL: 10 * time.Minute,
		},
		Server: *server.DefaultConfig(),
		Log:    *logger.DefaultConfig(),
	}
}

// DefaultPreferencesPath places the store in the user configuration directory
func DefaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "preferences.db")
	}
	return filepath.Join(dir, "reconciler", "preferences.db")
}

// Load decodes the configuration held by v over the defaults of the
// configured mode. v must already have read its config file, if any.
func Load(v *viper.Viper) (*RunConfig, error) {
	mode := models.Mode(strings.ToLower(v.GetString("mode")))
	cfg := DefaultRunConfig(mode)

	if err := v.Unmarshal(cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config file", v.ConfigFileUsed(), err).
			WithSuggestion("compare the file with the output of 'reconciler config init'")
	}

	if err := cfg.Input.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "input", cfg.Input.Encoding, err)
	}
	return cfg, nil
}

// ReadFile points v at path and reads it
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config file", path, err)
	}
	return nil
}

// DecodeHook converts the scalar spellings accepted in files, env and flags
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToRuneHook(),
	)
}

// stringToRuneHook accepts a one-character string (or "\t", "tab") for rune fields
func stringToRuneHook() mapstructure.DecodeHookFuncType {
	runeType := reflect.TypeOf(rune(0))
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != runeType {
			return data, nil
		}
		s := data.(string)
		switch s {
		case "":
			return rune(0), nil
		case `\t`, "tab":
			return '\t', nil
		}
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("expected a single character, got %q", s)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	}
}

// ApplyMapping decodes key=value column settings (as given by --ours-map and
// --theirs-map) over side. Keys are SideConfig setting names; list settings
// take comma-separated values.
func ApplyMapping(side *parsers.SideConfig, mapping map[string]string) error {
	if len(mapping) == 0 {
		return nil
	}

	input := make(map[string]interface{}, len(mapping))
	for k, v := range mapping {
		input[strings.ReplaceAll(strings.TrimSpace(k), "-", "_")] = v
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           side,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "column mapping", mapping, err)
	}
	if len(md.Unused) > 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "column mapping", strings.Join(md.Unused, ","), nil).
			WithSuggestion("use setting names such as date_column, document_column, amount_column, debit_column, credit_column, role")
	}
	return nil
}
