package posting

import (
	"regexp"
	"strconv"
	"time"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// PeriodDescriptor pairs a report frequency with a sub-period key such as "2024-q2".
type PeriodDescriptor struct {
	ReportType ledger.ReportType
	Key        string
}

// Period is an inclusive range of calendar days.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar day of t lies within p.
func (p Period) Contains(t time.Time) bool {
	d := ledger.DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

var (
	reMonthly    = regexp.MustCompile(`^(\d{4})-(0[1-9]|1[0-2])$`)
	reQuarterly  = regexp.MustCompile(`^(\d{4})-q([1-4])$`)
	reHalfYearly = regexp.MustCompile(`^(\d{4})-h([12])$`)
	reYearly     = regexp.MustCompile(`^(\d{4})$`)
)

// ResolvePeriod validates the key against the report type and returns its date range.
func ResolvePeriod(d PeriodDescriptor) (Period, error) {
	bad := &InvalidPeriodKeyError{ReportType: string(d.ReportType), Key: d.Key}
	var (
		m          []string
		firstMonth int
		months     int
	)
	switch d.ReportType {
	case ledger.ReportMonthly:
		if m = reMonthly.FindStringSubmatch(d.Key); m == nil {
			return Period{}, bad
		}
		firstMonth, months = atoi(m[2]), 1
	case ledger.ReportQuarterly:
		if m = reQuarterly.FindStringSubmatch(d.Key); m == nil {
			return Period{}, bad
		}
		firstMonth, months = (atoi(m[2])-1)*3+1, 3
	case ledger.ReportHalfYearly:
		if m = reHalfYearly.FindStringSubmatch(d.Key); m == nil {
			return Period{}, bad
		}
		firstMonth, months = (atoi(m[2])-1)*6+1, 6
	case ledger.ReportYearly:
		if m = reYearly.FindStringSubmatch(d.Key); m == nil {
			return Period{}, bad
		}
		firstMonth, months = 1, 12
	default:
		return Period{}, bad
	}
	start := time.Date(atoi(m[1]), time.Month(firstMonth), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, months, -1)
	return Period{Start: start, End: end}, nil
}

// CurrentPeriodKey returns the key of the period of type rt that contains t.
func CurrentPeriodKey(rt ledger.ReportType, t time.Time) string {
	y, mo := t.Year(), int(t.Month())
	switch rt {
	case ledger.ReportQuarterly:
		return strconv.Itoa(y) + "-q" + strconv.Itoa((mo-1)/3+1)
	case ledger.ReportHalfYearly:
		return strconv.Itoa(y) + "-h" + strconv.Itoa((mo-1)/6+1)
	case ledger.ReportYearly:
		return strconv.Itoa(y)
	default:
		return t.Format("2006-01")
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
