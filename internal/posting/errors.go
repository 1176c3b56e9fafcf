package posting

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error families. Every typed error below reports errors.Is against exactly one of them.
var (
	ErrValidation   = errors.New("validation_error")
	ErrDepreciation = errors.New("depreciation_error")
	ErrTax          = errors.New("tax_error")
	ErrReport       = errors.New("report_error")
)

// Coder is implemented by errors carrying a stable machine-readable code.
type Coder interface {
	Code() string
}

// CodeOf returns the code of the first Coder in err's chain, or "".
func CodeOf(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

type EmptyEntryError struct{}

func (*EmptyEntryError) Error() string { return "journal entry has no lines" }
func (*EmptyEntryError) Code() string { return "empty_entry" }
func (*EmptyEntryError) Is(target error) bool { return target == ErrValidation }

// UnbalancedEntryError reports debit and credit totals that differ by at least the tolerance.
type UnbalancedEntryError struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Difference  decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced entry: debit %s, credit %s, difference %s", e.DebitTotal, e.CreditTotal, e.Difference)
}
func (*UnbalancedEntryError) Code() string { return "unbalanced_entry" }
func (*UnbalancedEntryError) Is(target error) bool { return target == ErrValidation }

type UnknownAccountError struct {
	LineIndex int
	AccountID uuid.UUID
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("line %d: unknown account %s", e.LineIndex, e.AccountID)
}
func (*UnknownAccountError) Code() string { return "unknown_account" }
func (*UnknownAccountError) Is(target error) bool { return target == ErrValidation }

type InactiveAccountError struct {
	LineIndex int
	AccountID uuid.UUID
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("line %d: account %s is inactive", e.LineIndex, e.AccountID)
}
func (*InactiveAccountError) Code() string { return "inactive_account" }
func (*InactiveAccountError) Is(target error) bool { return target == ErrValidation }

type UnknownPartnerError struct {
	LineIndex int
	PartnerID uuid.UUID
}

func (e *UnknownPartnerError) Error() string {
	return fmt.Sprintf("line %d: unknown partner %s", e.LineIndex, e.PartnerID)
}
func (*UnknownPartnerError) Code() string { return "unknown_partner" }
func (*UnknownPartnerError) Is(target error) bool { return target == ErrValidation }

// InvalidLineError covers negative amounts, both sides set, both sides zero and
// amounts finer than the currency's minor unit.
type InvalidLineError struct {
	LineIndex int
	Reason    string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.LineIndex, e.Reason)
}
func (*InvalidLineError) Code() string { return "invalid_line" }
func (*InvalidLineError) Is(target error) bool { return target == ErrValidation }

// InvalidRuleError rejects an auto-journal rule at decode or build time.
type InvalidRuleError struct {
	Kind   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	if e.Kind == "" {
		return "invalid rule: " + e.Reason
	}
	return fmt.Sprintf("invalid %s rule: %s", e.Kind, e.Reason)
}
func (*InvalidRuleError) Code() string { return "invalid_rule" }
func (*InvalidRuleError) Is(target error) bool { return target == ErrValidation }

type AlreadyDepreciatedError struct {
	AssetID uuid.UUID
}

func (e *AlreadyDepreciatedError) Error() string {
	return fmt.Sprintf("asset %s is fully depreciated", e.AssetID)
}
func (*AlreadyDepreciatedError) Code() string { return "already_depreciated" }
func (*AlreadyDepreciatedError) Is(target error) bool { return target == ErrDepreciation }

type UnsupportedMethodError struct {
	AssetID uuid.UUID
	Method  string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("asset %s: unsupported depreciation method %q", e.AssetID, e.Method)
}
func (*UnsupportedMethodError) Code() string { return "unsupported_method" }
func (*UnsupportedMethodError) Is(target error) bool { return target == ErrDepreciation }

type InvalidAssetError struct {
	AssetID uuid.UUID
	Reason  string
}

func (e *InvalidAssetError) Error() string {
	return fmt.Sprintf("asset %s: %s", e.AssetID, e.Reason)
}
func (*InvalidAssetError) Code() string { return "invalid_asset" }
func (*InvalidAssetError) Is(target error) bool { return target == ErrDepreciation }

type InvalidRateError struct {
	Rate decimal.Decimal
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("tax rate %s outside [0,100]", e.Rate)
}
func (*InvalidRateError) Code() string { return "invalid_rate" }
func (*InvalidRateError) Is(target error) bool { return target == ErrTax }

type InvalidAmountError struct {
	Amount decimal.Decimal
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("amount %s: %s", e.Amount, e.Reason)
}
func (*InvalidAmountError) Code() string { return "invalid_amount" }
func (*InvalidAmountError) Is(target error) bool { return target == ErrTax }

type InvalidPeriodKeyError struct {
	ReportType string
	Key        string
}

func (e *InvalidPeriodKeyError) Error() string {
	return fmt.Sprintf("period key %q is not valid for report type %q", e.Key, e.ReportType)
}
func (*InvalidPeriodKeyError) Code() string { return "invalid_period_key" }
func (*InvalidPeriodKeyError) Is(target error) bool { return target == ErrReport }

type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot move tax report from %s to %s", e.From, e.To)
}
func (*InvalidStateTransitionError) Code() string { return "invalid_state_transition" }
func (*InvalidStateTransitionError) Is(target error) bool { return target == ErrReport }

type ManualOverrideError struct {
	Reason string
}

func (e *ManualOverrideError) Error() string { return "manual override: " + e.Reason }
func (*ManualOverrideError) Code() string { return "manual_override" }
func (*ManualOverrideError) Is(target error) bool { return target == ErrReport }
