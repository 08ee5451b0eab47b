// Package shipping resolves the shipping fee of an order before vouchers are evaluated.
package shipping

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/pricing"
)

// ErrInvalidFee is returned when a configured fee or threshold is negative.
var ErrInvalidFee = errors.New("shipping fee must not be negative")

// Request carries what a quoter may price on.
type Request struct {
	Subtotal decimal.Decimal
	Province string
}

// Quoter returns the shipping fee for an order.
type Quoter interface {
	Quote(ctx context.Context, req Request) (decimal.Decimal, error)
}

// FlatRate charges one fee per order, waived once the subtotal reaches FreeThreshold.
type FlatRate struct {
	Fee           decimal.Decimal
	FreeThreshold decimal.NullDecimal
}

// NewFlatRate validates the configured amounts.
func NewFlatRate(fee decimal.Decimal, freeThreshold decimal.NullDecimal) (FlatRate, error) {
	if fee.IsNegative() || (freeThreshold.Valid && freeThreshold.Decimal.IsNegative()) {
		return FlatRate{}, ErrInvalidFee
	}
	return FlatRate{Fee: fee.Round(pricing.Scale), FreeThreshold: freeThreshold}, nil
}

func (f FlatRate) Quote(_ context.Context, req Request) (decimal.Decimal, error) {
	if f.FreeThreshold.Valid && !req.Subtotal.LessThan(f.FreeThreshold.Decimal) {
		return decimal.Zero, nil
	}
	return f.Fee, nil
}

// Free never charges shipping.
type Free struct{}

func (Free) Quote(context.Context, Request) (decimal.Decimal, error) { return decimal.Zero, nil }
