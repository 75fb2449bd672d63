// Package matcher pairs grouped records of one ledger with those of the
// counterparty ledger.
//
// Two independent passes run per reconciliation:
//  1. Documents: document key lookup, then (when enabled) an amount and
//     currency fallback for records without a usable key match.
//  2. Payments: payment reference lookup, then exact settlement date and
//     amount, then the same amount within a window of days.
//
// Each pass builds immutable indices over their-side records once and
// threads its own consumption set through a fold over our-side records, so a
// their-side record is paired at most once per pass. Matching never fails:
// a record without a candidate ends up unmatched.
//
// Every comparison uses the mirrored-sign convention. The same event booked
// by both counterparties has opposite nets, so a correct pair satisfies
// ours.Net() + theirs.Net() ≈ 0.
//
// Example usage:
//
//	engine := matcher.NewEngine(matcher.ConfigForMode(models.ModeLedger))
//	result := engine.Match(oursDocs, theirsDocs, oursPayments, theirsPayments)
package matcher

import (
	"fmt"
	"time"

	"ledger-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tolerances and switches of both matching passes.
type MatchingConfig struct {
	// DocumentTolerance is the largest |ours + theirs| still reported as an
	// exact document match.
	DocumentTolerance float64 `json:"document_tolerance" mapstructure:"document_tolerance" yaml:"document_tolerance"`

	// ReferenceTolerance applies to payments paired by reference.
	ReferenceTolerance float64 `json:"reference_tolerance" mapstructure:"reference_tolerance" yaml:"reference_tolerance"`

	// DateAmountTolerance applies to payments paired by date and amount.
	DateAmountTolerance float64 `json:"date_amount_tolerance" mapstructure:"date_amount_tolerance" yaml:"date_amount_tolerance"`

	// AmountPrecision is the number of decimals amounts are rounded to
	// before they become lookup keys.
	AmountPrecision int32 `json:"amount_precision" mapstructure:"amount_precision" yaml:"amount_precision"`

	// PaymentWindowDays bounds the settlement date gap of the tolerant payment scan.
	PaymentWindowDays int `json:"payment_window_days" mapstructure:"payment_window_days" yaml:"payment_window_days"`

	// AmountFallback enables the amount and currency document strategy.
	AmountFallback bool `json:"amount_fallback" mapstructure:"amount_fallback" yaml:"amount_fallback"`

	// MatchPayments enables the payment pass. When off, payment records are
	// reported unmatched.
	MatchPayments bool `json:"match_payments" mapstructure:"match_payments" yaml:"match_payments"`
}

// DefaultMatchingConfig returns the configuration used for current-account ledgers
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DocumentTolerance:   1.0,
		ReferenceTolerance:  0.1,
		DateAmountTolerance: 0.01,
		AmountPrecision:     2,
		PaymentWindowDays:   3,
		AmountFallback:      false,
		MatchPayments:       true,
	}
}

// InsuranceMatchingConfig returns the configuration used for policy registers,
// where document numbers are often missing or inconsistent.
func InsuranceMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AmountFallback = true
	return config
}

// ConfigForMode returns the preset for a reconciliation mode
func ConfigForMode(mode models.Mode) *MatchingConfig {
	if mode == models.ModeInsurance {
		return InsuranceMatchingConfig()
	}
	return DefaultMatchingConfig()
}

// ApplyDefaults fills unset tolerances from the preset of mode. Flags,
// precision and the payment window keep their zero values, which are valid.
func (mc *MatchingConfig) ApplyDefaults(mode models.Mode) {
	preset := ConfigForMode(mode)
	if mc.DocumentTolerance == 0 {
		mc.DocumentTolerance = preset.DocumentTolerance
	}
	if mc.ReferenceTolerance == 0 {
		mc.ReferenceTolerance = preset.ReferenceTolerance
	}
	if mc.DateAmountTolerance == 0 {
		mc.DateAmountTolerance = preset.DateAmountTolerance
	}
}

// Validate checks if the matching configuration is valid. Tolerances are
// strict upper bounds, so zero would never classify a pair as exact.
func (mc *MatchingConfig) Validate() error {
	if mc.DocumentTolerance <= 0 {
		return fmt.Errorf("document tolerance must be positive: %f", mc.DocumentTolerance)
	}

	if mc.ReferenceTolerance <= 0 {
		return fmt.Errorf("reference tolerance must be positive: %f", mc.ReferenceTolerance)
	}

	if mc.DateAmountTolerance <= 0 {
		return fmt.Errorf("date amount tolerance must be positive: %f", mc.DateAmountTolerance)
	}

	if mc.AmountPrecision < 0 || mc.AmountPrecision > 6 {
		return fmt.Errorf("amount precision must be between 0 and 6: %d", mc.AmountPrecision)
	}

	if mc.PaymentWindowDays < 0 || mc.PaymentWindowDays > 31 {
		return fmt.Errorf("payment window must be between 0 and 31 days: %d", mc.PaymentWindowDays)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

func (mc *MatchingConfig) documentTolerance() decimal.Decimal {
	return decimal.NewFromFloat(mc.DocumentTolerance)
}

func (mc *MatchingConfig) referenceTolerance() decimal.Decimal {
	return decimal.NewFromFloat(mc.ReferenceTolerance)
}

func (mc *MatchingConfig) dateAmountTolerance() decimal.Decimal {
	return decimal.NewFromFloat(mc.DateAmountTolerance)
}

// IsWithinPaymentWindow checks if two settlement dates are at most
// PaymentWindowDays calendar days apart. Missing dates never qualify.
func (mc *MatchingConfig) IsWithinPaymentWindow(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}

	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(mc.PaymentWindowDays)*24*time.Hour
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DocumentTolerance: %.2f, ReferenceTolerance: %.2f, DateAmountTolerance: %.2f, Window: %d days, AmountFallback: %t, Payments: %t}",
		mc.DocumentTolerance, mc.ReferenceTolerance, mc.DateAmountTolerance, mc.PaymentWindowDays, mc.AmountFallback, mc.MatchPayments)
}
