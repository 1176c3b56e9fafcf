package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
)

func TestMinorUnits(t *testing.T) {
	usd := ledger.MustParseCurrency("USD")
	units, err := usd.MinorUnits(decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), units)
	assert.True(t, usd.FromMinorUnits(units).Equal(decimal.RequireFromString("12.34")))

	units, err = usd.MinorUnits(decimal.RequireFromString("-0.05"))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), units)

	_, err = usd.MinorUnits(decimal.RequireFromString("0.005"))
	assert.ErrorIs(t, err, errs.ErrUnprocessable)

	krw := ledger.MustParseCurrency("KRW")
	_, err = krw.MinorUnits(decimal.RequireFromString("9223372036854775807"))
	assert.NoError(t, err)
	_, err = krw.MinorUnits(decimal.RequireFromString("9223372036854775808"))
	assert.ErrorIs(t, err, errs.ErrUnprocessable)
	_, err = usd.MinorUnits(decimal.RequireFromString("92233720368547758.08"))
	assert.ErrorIs(t, err, errs.ErrUnprocessable)
}
