package fixedassets

import (
	"fmt"
	"time"
)

const (
	minPeriodYear = 1900
	maxPeriodYear = 9999
)

// Period identifies a calendar month.
type Period struct {
	Year  int
	Month int
}

// NewPeriod validates and builds a Period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Validate checks the year and month ranges.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year < minPeriodYear || p.Year > maxPeriodYear {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Start returns the first day of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Index is a monotonic month counter used for ordering and gaps.
func (p Period) Index() int {
	return p.Year*12 + p.Month - 1
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	return periodFromIndex(p.Index() - 1)
}

// Next returns the following month.
func (p Period) Next() Period {
	return periodFromIndex(p.Index() + 1)
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	return p.Index() < other.Index()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func periodFromIndex(idx int) Period {
	return Period{Year: idx / 12, Month: idx%12 + 1}
}

// MonthsBetween counts whole calendar months from the month of start to p.
// It is negative when p precedes the start month.
func MonthsBetween(start time.Time, p Period) int {
	return p.Index() - PeriodOf(start).Index()
}

// PeriodKey scopes a period to a company; it is the unit of locking.
type PeriodKey struct {
	CompanyID int64
	Period    Period
}

// NewPeriodKey validates and builds a PeriodKey.
func NewPeriodKey(companyID int64, year, month int) (PeriodKey, error) {
	if companyID <= 0 {
		return PeriodKey{}, fmt.Errorf("%w: company id required", ErrInvalidPeriod)
	}
	p, err := NewPeriod(year, month)
	if err != nil {
		return PeriodKey{}, err
	}
	return PeriodKey{CompanyID: companyID, Period: p}, nil
}

func (k PeriodKey) String() string {
	return fmt.Sprintf("company:%d:period:%s", k.CompanyID, k.Period)
}
