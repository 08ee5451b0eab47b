package voucher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/noah-isme/storefront-api/internal/pricing"
)

var (
	// ErrVoucherExpiredOrInactive is returned when the voucher is disabled or outside its validity window.
	ErrVoucherExpiredOrInactive = errors.New("voucher expired or inactive")
	// ErrVoucherNotAssignedOrUsed is returned when the user holds no unused assignment for the voucher.
	ErrVoucherNotAssignedOrUsed = errors.New("voucher not assigned to user or already used")
	// ErrMinimumOrderValueNotMet is wrapped by MinimumOrderValueError.
	ErrMinimumOrderValueNotMet = errors.New("minimum order value not met")
	// ErrVoucherUsageLimitReached indicates the voucher has exhausted the global usage quota.
	ErrVoucherUsageLimitReached = errors.New("voucher usage limit reached")
	// ErrPerUserUsageLimitReached indicates the user has exhausted the per-user allowance.
	ErrPerUserUsageLimitReached = errors.New("voucher per-user usage limit reached")
	// ErrConcurrentVoucherConflict is returned when the atomic write-back lost a race.
	ErrConcurrentVoucherConflict = errors.New("voucher redeemed concurrently")
	// ErrUnknownKind is returned when parsing an unsupported voucher type.
	ErrUnknownKind = errors.New("unknown voucher type")
)

// MinimumOrderValueError carries the threshold that the subtotal failed to reach.
type MinimumOrderValueError struct {
	Threshold decimal.Decimal
}

func (e *MinimumOrderValueError) Error() string {
	return "order subtotal must be at least " + FormatAmount(e.Threshold)
}

func (e *MinimumOrderValueError) Unwrap() error { return ErrMinimumOrderValueNotMet }

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a money value with thousands separators, e.g. 100000 -> "100,000".
// Only the integer part is grouped; cents are appended from the exact decimal.
func FormatAmount(d decimal.Decimal) string {
	d = d.Round(pricing.Scale)
	whole := d.Truncate(0)
	out := amountPrinter.Sprint(number.Decimal(whole.IntPart()))
	if d.IsNegative() && whole.IsZero() {
		out = "-" + out
	}
	if frac := d.Sub(whole).Abs(); !frac.IsZero() {
		out += strings.TrimRight(frac.StringFixed(pricing.Scale), "0")[1:]
	}
	return out
}

// Kind is the discount type of a voucher.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeShipping Kind = "free_shipping"
)

// ParseKind validates a stored or user supplied voucher type.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindPercentage, KindFixedAmount, KindFreeShipping:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// Voucher holds the eligibility and discount configuration of a voucher.
type Voucher struct {
	ID                uuid.UUID
	Code              string
	Kind              Kind
	Value             decimal.Decimal
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	ValidFrom         time.Time
	ValidTo           time.Time
	IsActive          bool
	UsageLimit        *int32
	UsageLimitPerUser *int32
	UsedCount         int32
}

// Assignment entitles one user to consume a voucher once.
type Assignment struct {
	ID         uuid.UUID
	VoucherID  uuid.UUID
	UserID     uuid.UUID
	IsUsed     bool
	AssignedAt time.Time
	UsedAt     *time.Time
}

// Rule is the discount arithmetic for one voucher kind. The set of implementations is closed.
type Rule interface {
	Kind() Kind
	discount(subtotal, shippingFee decimal.Decimal) decimal.Decimal
}

// Percentage discounts a share of the subtotal, optionally capped.
type Percentage struct {
	Percent decimal.Decimal
	Cap     decimal.NullDecimal
}

func (Percentage) Kind() Kind { return KindPercentage }

func (p Percentage) discount(subtotal, _ decimal.Decimal) decimal.Decimal {
	d := subtotal.Mul(p.Percent).Div(decimal.NewFromInt(100))
	if p.Cap.Valid && d.GreaterThan(p.Cap.Decimal) {
		d = p.Cap.Decimal
	}
	return d
}

// FixedAmount discounts a constant value; capping against the order happens in pricing.ComputeTotal.
type FixedAmount struct {
	Amount decimal.Decimal
}

func (FixedAmount) Kind() Kind { return KindFixedAmount }

func (f FixedAmount) discount(_, _ decimal.Decimal) decimal.Decimal { return f.Amount }

// FreeShipping discounts the resolved shipping fee.
type FreeShipping struct{}

func (FreeShipping) Kind() Kind { return KindFreeShipping }

func (FreeShipping) discount(_, shippingFee decimal.Decimal) decimal.Decimal { return shippingFee }

// Rule returns the discount rule for the voucher kind.
func (v Voucher) Rule() (Rule, error) {
	switch v.Kind {
	case KindPercentage:
		return Percentage{Percent: v.Value, Cap: v.MaxDiscountAmount}, nil
	case KindFixedAmount:
		return FixedAmount{Amount: v.Value}, nil
	case KindFreeShipping:
		return FreeShipping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, v.Kind)
	}
}

// ActiveAt reports whether the voucher is enabled and now lies within [ValidFrom, ValidTo].
func (v Voucher) ActiveAt(now time.Time) bool {
	return v.IsActive && !now.Before(v.ValidFrom) && !now.After(v.ValidTo)
}

// Input bundles everything Evaluate needs. All values are resolved by the caller beforehand.
type Input struct {
	Voucher    Voucher
	Assignment *Assignment
	// UsedByUser counts the user's already consumed assignments of this voucher.
	UsedByUser  int
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Now         time.Time
}

// Evaluate runs the eligibility checks in order and returns the discount amount.
func Evaluate(in Input) (decimal.Decimal, error) {
	v := in.Voucher
	if !v.ActiveAt(in.Now) {
		return decimal.Zero, ErrVoucherExpiredOrInactive
	}
	if in.Assignment == nil || in.Assignment.IsUsed || in.Assignment.VoucherID != v.ID {
		return decimal.Zero, ErrVoucherNotAssignedOrUsed
	}
	if v.MinOrderValue.Valid && in.Subtotal.LessThan(v.MinOrderValue.Decimal) {
		return decimal.Zero, &MinimumOrderValueError{Threshold: v.MinOrderValue.Decimal}
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return decimal.Zero, ErrVoucherUsageLimitReached
	}
	if v.UsageLimitPerUser != nil && int32(in.UsedByUser) >= *v.UsageLimitPerUser {
		return decimal.Zero, ErrPerUserUsageLimitReached
	}
	rule, err := v.Rule()
	if err != nil {
		return decimal.Zero, err
	}
	shipping := in.ShippingFee
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	d := rule.discount(in.Subtotal, shipping)
	if d.IsNegative() {
		return decimal.Zero, nil
	}
	return d.Round(pricing.Scale), nil
}

// CheckAssignable validates that another assignment may be issued given the user's prior assignments.
func CheckAssignable(v Voucher, priorAssignments int, now time.Time) error {
	if !v.IsActive || now.After(v.ValidTo) {
		return ErrVoucherExpiredOrInactive
	}
	if v.UsageLimitPerUser != nil && int32(priorAssignments) >= *v.UsageLimitPerUser {
		return ErrPerUserUsageLimitReached
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return ErrVoucherUsageLimitReached
	}
	return nil
}
