package posting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

func TestCalculate(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))

	c, err := e.Calculate(d("1000000"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("100000")))
	assert.True(t, c.TotalAmount.Equal(d("1100000")))

	c, err = e.Calculate(d("0"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.IsZero())
	assert.True(t, c.TotalAmount.IsZero())
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	// 15 * 10% = 1.5 -> 2
	c, err := e.Calculate(d("15"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("2")), c.TaxAmount.String())

	usd := New(ledger.MustParseCurrency("USD"))
	// 0.25 * 10% = 0.025 -> 0.03
	c, err = usd.Calculate(d("0.25"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("0.03")), c.TaxAmount.String())
	assert.True(t, c.TotalAmount.Equal(d("0.28")))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))

	_, err := e.Calculate(d("-1"), d("10"))
	assert.Equal(t, "invalid_amount", CodeOf(err))
	assert.ErrorIs(t, err, ErrTax)

	_, err = e.Calculate(d("1.5"), d("10"))
	assert.Equal(t, "invalid_amount", CodeOf(err))

	_, err = e.Calculate(d("100"), d("101"))
	assert.Equal(t, "invalid_rate", CodeOf(err))

	_, err = e.Calculate(d("100"), d("-0.5"))
	assert.Equal(t, "invalid_rate", CodeOf(err))

	_, err = e.Calculate(d("100"), d("100"))
	assert.NoError(t, err)
}

func TestCalculateInclusive(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	c, err := e.CalculateInclusive(d("1100000"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("100000")))
	assert.True(t, c.SupplyAmount.Equal(d("1000000")))

	c, err = e.CalculateInclusive(d("1001"), d("10"))
	require.NoError(t, err)
	assert.True(t, c.SupplyAmount.Add(c.TaxAmount).Equal(d("1001")))
}

func TestComputeFor(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	vat := ledger.Tax{Rate: d("10"), Method: ledger.CalcExclusive, Active: true}

	c, err := e.ComputeFor(vat, d("5000"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("500")))

	vat.Exempt = true
	c, err = e.ComputeFor(vat, d("5000"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.IsZero())

	vat.Exempt = false
	vat.Method = ledger.CalcInclusive
	c, err = e.ComputeFor(vat, d("5500"))
	require.NoError(t, err)
	assert.True(t, c.TaxAmount.Equal(d("500")))
}
