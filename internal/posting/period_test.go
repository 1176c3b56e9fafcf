package posting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

func day(y int, m time.Month, dd int) time.Time { return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC) }

func TestResolvePeriod(t *testing.T) {
	cases := []struct {
		rt         ledger.ReportType
		key        string
		start, end time.Time
	}{
		{ledger.ReportMonthly, "2024-02", day(2024, 2, 1), day(2024, 2, 29)},
		{ledger.ReportMonthly, "2023-12", day(2023, 12, 1), day(2023, 12, 31)},
		{ledger.ReportQuarterly, "2024-q2", day(2024, 4, 1), day(2024, 6, 30)},
		{ledger.ReportQuarterly, "2024-q4", day(2024, 10, 1), day(2024, 12, 31)},
		{ledger.ReportHalfYearly, "2024-h1", day(2024, 1, 1), day(2024, 6, 30)},
		{ledger.ReportHalfYearly, "2024-h2", day(2024, 7, 1), day(2024, 12, 31)},
		{ledger.ReportYearly, "2024", day(2024, 1, 1), day(2024, 12, 31)},
	}
	for _, c := range cases {
		p, err := ResolvePeriod(PeriodDescriptor{ReportType: c.rt, Key: c.key})
		require.NoError(t, err, c.key)
		assert.Equal(t, c.start, p.Start, c.key)
		assert.Equal(t, c.end, p.End, c.key)
	}
}

func TestResolvePeriodRejectsMismatchedKeys(t *testing.T) {
	bad := []PeriodDescriptor{
		{ReportType: ledger.ReportQuarterly, Key: "2024-q5"},
		{ReportType: ledger.ReportQuarterly, Key: "2024-02"},
		{ReportType: ledger.ReportMonthly, Key: "2024-13"},
		{ReportType: ledger.ReportMonthly, Key: "2024-2"},
		{ReportType: ledger.ReportHalfYearly, Key: "2024-h3"},
		{ReportType: ledger.ReportYearly, Key: "24"},
		{ReportType: "weekly", Key: "2024"},
	}
	for _, b := range bad {
		_, err := ResolvePeriod(b)
		assert.Equal(t, "invalid_period_key", CodeOf(err), "%s %s", b.ReportType, b.Key)
		assert.ErrorIs(t, err, ErrReport)
	}
}

func TestPeriodContainsIsInclusive(t *testing.T) {
	p, err := ResolvePeriod(PeriodDescriptor{ReportType: ledger.ReportMonthly, Key: "2024-03"})
	require.NoError(t, err)
	assert.True(t, p.Contains(day(2024, 3, 1)))
	assert.True(t, p.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(day(2024, 4, 1)))
	assert.False(t, p.Contains(day(2024, 2, 29)))
}

func TestCurrentPeriodKey(t *testing.T) {
	at := day(2024, 8, 15)
	assert.Equal(t, "2024-08", CurrentPeriodKey(ledger.ReportMonthly, at))
	assert.Equal(t, "2024-q3", CurrentPeriodKey(ledger.ReportQuarterly, at))
	assert.Equal(t, "2024-h2", CurrentPeriodKey(ledger.ReportHalfYearly, at))
	assert.Equal(t, "2024", CurrentPeriodKey(ledger.ReportYearly, at))
}
