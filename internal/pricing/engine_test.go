package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestComputeSubtotalSumsLines(t *testing.T) {
	items := []LineItem{
		{ProductID: uuid.New(), Quantity: 2, UnitPrice: dec("125000")},
		{ProductID: uuid.New(), Quantity: 1, UnitPrice: dec("49999.50")},
		{ProductID: uuid.New(), Quantity: 3, UnitPrice: dec("0")},
	}
	subtotal, err := ComputeSubtotal(items)
	require.NoError(t, err)
	require.True(t, subtotal.Equal(dec("299999.50")), "got %s", subtotal)
}

func TestComputeSubtotalEmpty(t *testing.T) {
	subtotal, err := ComputeSubtotal(nil)
	require.NoError(t, err)
	require.True(t, subtotal.IsZero())
	require.ErrorIs(t, RequireItems(nil), ErrEmptyCart)
	require.NoError(t, RequireItems([]LineItem{{Quantity: 1}}))
}

func TestComputeSubtotalRejectsInvalidLines(t *testing.T) {
	cases := map[string]LineItem{
		"zero quantity":     {Quantity: 0, UnitPrice: dec("10")},
		"negative quantity": {Quantity: -1, UnitPrice: dec("10")},
		"negative price":    {Quantity: 1, UnitPrice: dec("-0.01")},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeSubtotal([]LineItem{{Quantity: 1, UnitPrice: dec("5")}, item})
			require.ErrorIs(t, err, ErrInvalidLineItem)
		})
	}
}

func TestComputeTotalNeverNegative(t *testing.T) {
	total, err := ComputeTotal(dec("50000"), dec("0"), dec("0"), dec("80000"))
	require.NoError(t, err)
	require.True(t, total.IsZero(), "got %s", total)

	total, err = ComputeTotal(dec("50000"), dec("30000"), dec("5000"), dec("20000"))
	require.NoError(t, err)
	require.True(t, total.Equal(dec("65000")), "got %s", total)

	total, err = ComputeTotal(dec("10"), dec("5"), dec("1.5"), dec("100"))
	require.NoError(t, err)
	require.True(t, total.Equal(dec("1.5")), "tax survives a capped discount, got %s", total)
}

func TestComputeTotalRejectsNegativeComponents(t *testing.T) {
	_, err := ComputeTotal(dec("-1"), dec("0"), dec("0"), dec("0"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ComputeTotal(dec("1"), dec("0"), dec("0"), dec("-1"))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSummarizeRecordsCappedDiscount(t *testing.T) {
	totals, err := Summarize(dec("50000"), dec("10000"), dec("0"), dec("70000"))
	require.NoError(t, err)
	require.True(t, totals.DiscountAmount.Equal(dec("60000")))
	require.True(t, totals.Total.IsZero())
}

func TestComputeTax(t *testing.T) {
	require.True(t, ComputeTax(dec("100000"), dec("0"), 1100).Equal(dec("11000")))
	require.True(t, ComputeTax(dec("100000"), dec("20000"), 1000).Equal(dec("8000")))
	require.True(t, ComputeTax(dec("100000"), dec("200000"), 1000).IsZero())
	require.True(t, ComputeTax(dec("100000"), dec("0"), 0).IsZero())
}
