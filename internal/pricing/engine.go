package pricing

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits money values are rounded to.
const Scale = 2

var (
	// ErrInvalidLineItem is returned when a line has a non-positive quantity or a negative unit price.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrEmptyCart is returned when an order is attempted without any line items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidAmount is returned when a total component is negative.
	ErrInvalidAmount = errors.New("invalid amount")
)

// LineItem is one product/variant/quantity entry with its resolved unit price.
type LineItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal returns unit price multiplied by quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Validate reports ErrInvalidLineItem for non-positive quantities or negative prices.
func (li LineItem) Validate() error {
	if li.Quantity <= 0 || li.UnitPrice.IsNegative() {
		return ErrInvalidLineItem
	}
	return nil
}

// Totals aggregates the computed pricing components of an order.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// RequireItems rejects an order without line items.
func RequireItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	return nil
}

// ComputeSubtotal sums line totals. An empty slice yields zero; callers reject empty orders
// with RequireItems before finalising totals.
func ComputeSubtotal(items []LineItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return decimal.Zero, err
		}
		subtotal = subtotal.Add(it.LineTotal())
	}
	return subtotal.Round(Scale), nil
}

// ComputeTax returns the tax in basis points charged on the goods value after goods discounts.
func ComputeTax(subtotal, goodsDiscount decimal.Decimal, bps int) decimal.Decimal {
	if bps <= 0 {
		return decimal.Zero
	}
	taxable := subtotal.Sub(goodsDiscount)
	if taxable.IsNegative() {
		return decimal.Zero
	}
	return taxable.Mul(decimal.NewFromInt(int64(bps))).Div(decimal.NewFromInt(10000)).Round(Scale)
}

// CapDiscount limits the discount to subtotal plus shipping.
func CapDiscount(subtotal, shippingFee, discount decimal.Decimal) decimal.Decimal {
	ceiling := subtotal.Add(shippingFee)
	if discount.GreaterThan(ceiling) {
		return ceiling
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// ComputeTotal returns subtotal + shipping + tax - discount. The discount is capped at
// subtotal + shipping so the result is never negative.
func ComputeTotal(subtotal, shippingFee, taxAmount, discountAmount decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.IsNegative() || shippingFee.IsNegative() || taxAmount.IsNegative() || discountAmount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	discount := CapDiscount(subtotal, shippingFee, discountAmount)
	return subtotal.Add(shippingFee).Add(taxAmount).Sub(discount).Round(Scale), nil
}

// Summarize builds Totals, recording the capped discount that was actually applied.
func Summarize(subtotal, shippingFee, taxAmount, discountAmount decimal.Decimal) (Totals, error) {
	total, err := ComputeTotal(subtotal, shippingFee, taxAmount, discountAmount)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Subtotal:       subtotal.Round(Scale),
		DiscountAmount: CapDiscount(subtotal, shippingFee, discountAmount).Round(Scale),
		ShippingFee:    shippingFee.Round(Scale),
		TaxAmount:      taxAmount.Round(Scale),
		Total:          total,
	}, nil
}
