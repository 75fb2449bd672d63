package reconciler

import (
	"fmt"
	"strings"

	"ledger-reconciliation-service/internal/grouper"
	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/pkg/errors"

	"go.uber.org/multierr"
)

// Config holds everything one reconciliation run needs besides the two tables
type Config struct {
	Mode     models.Mode            `json:"mode" mapstructure:"mode" yaml:"mode"`
	Ours     parsers.SideConfig     `json:"ours" mapstructure:"ours" yaml:"ours"`
	Theirs   parsers.SideConfig     `json:"theirs" mapstructure:"theirs" yaml:"theirs"`
	FXPolicy grouper.FXPolicy       `json:"fx_policy" mapstructure:"fx_policy" yaml:"fx_policy"`
	Matching matcher.MatchingConfig `json:"matching" mapstructure:"matching" yaml:"matching"`
}

// DefaultConfig returns a configuration for mode with empty column mappings
func DefaultConfig(mode models.Mode) *Config {
	if !mode.IsValid() {
		mode = models.ModeLedger
	}
	return &Config{
		Mode:     mode,
		FXPolicy: grouper.FXSum,
		Matching: *matcher.ConfigForMode(mode),
	}
}

// ApplyDefaults fills empty settings with their defaults
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = models.ModeLedger
	}
	c.Mode = models.Mode(strings.ToLower(string(c.Mode)))
	if c.FXPolicy == "" {
		c.FXPolicy = grouper.FXSum
	}
	if c.Matching == (matcher.MatchingConfig{}) {
		c.Matching = *matcher.ConfigForMode(c.Mode)
	} else {
		c.Matching.ApplyDefaults(c.Mode)
	}
	c.Ours.ApplyDefaults()
	c.Theirs.ApplyDefaults()
}

// Validate checks the configuration on its own and returns every problem
// folded into one configuration error.
func (c *Config) Validate() error {
	if errs := c.problems(); errs != nil {
		return errors.CombineMappingErrors(errs)
	}
	return nil
}

// ValidateAgainst checks the configuration and that every configured column
// exists in the tables. All problems of both sides are reported together.
func (c *Config) ValidateAgainst(ours, theirs *parsers.Table) error {
	errs := c.problems()
	errs = multierr.Append(errs, c.Ours.ValidateAgainst("ours", ours))
	errs = multierr.Append(errs, c.Theirs.ValidateAgainst("theirs", theirs))
	if errs == nil {
		return nil
	}
	return errors.CombineMappingErrors(errs)
}

func (c *Config) problems() error {
	var errs error

	if !c.Mode.IsValid() {
		errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, "mode", c.Mode, nil).
			WithSuggestion("use 'ledger' or 'insurance'"))
	}
	if _, err := grouper.ParseFXPolicy(string(c.FXPolicy)); err != nil {
		errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, "fx_policy", c.FXPolicy, err))
	}
	if err := c.Matching.Validate(); err != nil {
		errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.Matching.String(), err))
	}

	errs = multierr.Append(errs, c.Ours.Validate("ours"))
	errs = multierr.Append(errs, c.Theirs.Validate("theirs"))
	return errs
}

// String returns a compact description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, FX: %s, Ours: %s, Theirs: %s, %s}",
		c.Mode, c.FXPolicy, c.Ours.String(), c.Theirs.String(), c.Matching.String())
}
