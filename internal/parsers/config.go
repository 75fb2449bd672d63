package parsers

import (
	"fmt"
	"strings"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"

	"go.uber.org/multierr"
)

// AmountMode tells how debit and credit are read from a side's table
type AmountMode string

const (
	// AmountSingle reads one signed amount column interpreted through Role
	AmountSingle AmountMode = "single"
	// AmountSplit reads separate debit and credit columns
	AmountSplit AmountMode = "split"
)

// FilterMode tells how TypeValues are applied to TypeColumn
type FilterMode string

const (
	// FilterExclude diverts rows whose type is listed
	FilterExclude FilterMode = "exclude"
	// FilterInclude diverts rows whose type is not listed
	FilterInclude FilterMode = "include"
)

// SideConfig maps a side's table columns to record roles.
// Empty column names mean "not configured".
type SideConfig struct {
	DateColumn     string `json:"date_column" mapstructure:"date_column" yaml:"date_column"`
	DocumentColumn string `json:"document_column" mapstructure:"document_column" yaml:"document_column"`
	// RiderColumn turns the document key into the policy+rider variant.
	RiderColumn string `json:"rider_column,omitempty" mapstructure:"rider_column" yaml:"rider_column,omitempty"`

	AmountMode   AmountMode  `json:"amount_mode" mapstructure:"amount_mode" yaml:"amount_mode"`
	AmountColumn string      `json:"amount_column,omitempty" mapstructure:"amount_column" yaml:"amount_column,omitempty"`
	DebitColumn  string      `json:"debit_column,omitempty" mapstructure:"debit_column" yaml:"debit_column,omitempty"`
	CreditColumn string      `json:"credit_column,omitempty" mapstructure:"credit_column" yaml:"credit_column,omitempty"`
	Role         models.Role `json:"role,omitempty" mapstructure:"role" yaml:"role,omitempty"`

	CurrencyColumn       string `json:"currency_column,omitempty" mapstructure:"currency_column" yaml:"currency_column,omitempty"`
	ForeignAmountColumn  string `json:"foreign_amount_column,omitempty" mapstructure:"foreign_amount_column" yaml:"foreign_amount_column,omitempty"`
	SettlementDateColumn string `json:"settlement_date_column,omitempty" mapstructure:"settlement_date_column" yaml:"settlement_date_column,omitempty"`
	ReferenceColumn      string `json:"reference_column,omitempty" mapstructure:"reference_column" yaml:"reference_column,omitempty"`

	TypeColumn     string     `json:"type_column,omitempty" mapstructure:"type_column" yaml:"type_column,omitempty"`
	TypeValues     []string   `json:"type_values,omitempty" mapstructure:"type_values" yaml:"type_values,omitempty"`
	TypeFilterMode FilterMode `json:"type_filter_mode,omitempty" mapstructure:"type_filter_mode" yaml:"type_filter_mode,omitempty"`

	PassthroughColumns []string `json:"passthrough_columns,omitempty" mapstructure:"passthrough_columns" yaml:"passthrough_columns,omitempty"`
}

// ColumnRole pairs a configured column with the role it plays
type ColumnRole struct {
	Role   string
	Column string
}

// Columns lists every configured column with its role, in a stable order
func (c *SideConfig) Columns() []ColumnRole {
	candidates := []ColumnRole{
		{"date column", c.DateColumn},
		{"document column", c.DocumentColumn},
		{"rider column", c.RiderColumn},
		{"amount column", c.AmountColumn},
		{"debit column", c.DebitColumn},
		{"credit column", c.CreditColumn},
		{"currency column", c.CurrencyColumn},
		{"foreign amount column", c.ForeignAmountColumn},
		{"settlement date column", c.SettlementDateColumn},
		{"payment reference column", c.ReferenceColumn},
		{"transaction type column", c.TypeColumn},
	}
	for _, p := range c.PassthroughColumns {
		candidates = append(candidates, ColumnRole{"pass-through column", p})
	}

	var out []ColumnRole
	for _, cr := range candidates {
		if strings.TrimSpace(cr.Column) != "" {
			out = append(out, cr)
		}
	}
	return out
}

// UsesForeignCurrency reports whether either currency column is configured
func (c *SideConfig) UsesForeignCurrency() bool {
	return strings.TrimSpace(c.CurrencyColumn) != "" || strings.TrimSpace(c.ForeignAmountColumn) != ""
}

// HasTypeFilter reports whether rows can be diverted to the payment stream
func (c *SideConfig) HasTypeFilter() bool {
	return strings.TrimSpace(c.TypeColumn) != ""
}

// ApplyDefaults fills in the amount mode and filter mode when left empty
func (c *SideConfig) ApplyDefaults() {
	if c.AmountMode == "" {
		if c.DebitColumn != "" || c.CreditColumn != "" {
			c.AmountMode = AmountSplit
		} else {
			c.AmountMode = AmountSingle
		}
	}
	if c.TypeFilterMode == "" {
		c.TypeFilterMode = FilterExclude
	}
}

// Validate checks the configuration on its own. side prefixes setting names.
// All problems are returned together.
func (c *SideConfig) Validate(side string) error {
	var errs error
	missing := func(setting string) {
		errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeMissingConfig, side+"."+setting, "", nil))
	}

	if strings.TrimSpace(c.DateColumn) == "" {
		missing("date_column")
	}
	if strings.TrimSpace(c.DocumentColumn) == "" {
		missing("document_column")
	}

	switch c.AmountMode {
	case AmountSingle:
		if strings.TrimSpace(c.AmountColumn) == "" {
			missing("amount_column")
		}
		if !c.Role.IsValid() {
			errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, side+".role", c.Role, nil).
				WithSuggestion("use 'buyer' or 'seller'"))
		}
	case AmountSplit:
		if strings.TrimSpace(c.DebitColumn) == "" {
			missing("debit_column")
		}
		if strings.TrimSpace(c.CreditColumn) == "" {
			missing("credit_column")
		}
	default:
		errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, side+".amount_mode", c.AmountMode, nil).
			WithSuggestion("use 'single' or 'split'"))
	}

	if c.HasTypeFilter() {
		if len(c.TypeValues) == 0 {
			missing("type_values")
		}
		if c.TypeFilterMode != FilterExclude && c.TypeFilterMode != FilterInclude {
			errs = multierr.Append(errs, errors.ConfigurationError(errors.CodeInvalidConfig, side+".type_filter_mode", c.TypeFilterMode, nil).
				WithSuggestion("use 'exclude' or 'include'"))
		}
	}

	return errs
}

// ValidateAgainst checks that every configured column exists in the table.
// Missing columns are reported together.
func (c *SideConfig) ValidateAgainst(side string, table *Table) error {
	if table == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, side+" table", nil, nil)
	}

	var errs error
	for _, cr := range c.Columns() {
		if !table.HasColumn(cr.Column) {
			errs = multierr.Append(errs, errors.ColumnMappingError(side, cr.Role, cr.Column, table.Columns))
		}
	}
	return errs
}

// String returns a compact description of the mapping
func (c *SideConfig) String() string {
	parts := make([]string, 0, 8)
	for _, cr := range c.Columns() {
		parts = append(parts, fmt.Sprintf("%s=%q", cr.Role, cr.Column))
	}
	if c.AmountMode == AmountSingle {
		parts = append(parts, fmt.Sprintf("role=%s", c.Role))
	}
	return "SideConfig{" + strings.Join(parts, ", ") + "}"
}
