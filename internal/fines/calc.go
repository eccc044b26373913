package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRate is the per-day fine in rupiah.
var DefaultRate = decimal.NewFromInt(1000)

type Calculation struct {
	DaysLate  int             `json:"days_late"`
	TotalFine decimal.Decimal `json:"total_fine"`
}

func (c Calculation) Late() bool { return c.DaysLate > 0 }

// Calculator binds the rate and the library's time zone so callers only pass timestamps.
type Calculator struct {
	Rate decimal.Decimal
	Loc  *time.Location
}

func NewCalculator(rate decimal.Decimal, loc *time.Location) Calculator {
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	if loc == nil {
		loc = time.Local
	}
	return Calculator{Rate: rate, Loc: loc}
}

func (c Calculator) Compute(dueAt time.Time, returnedAt *time.Time, now time.Time) Calculation {
	return Compute(dueAt, returnedAt, c.Rate, now, c.Loc)
}

// Compute returns days late and the fine for a loan due at dueAt.
// A nil returnedAt means the loan is still open and is priced as of now.
// Both instants are cut to midnight in loc, and the due day itself already
// counts as one day: same-day returns owe one day, earlier returns owe nothing.
func Compute(dueAt time.Time, returnedAt *time.Time, rate decimal.Decimal, now time.Time, loc *time.Location) Calculation {
	if loc == nil {
		loc = time.Local
	}
	ret := now
	if returnedAt != nil {
		ret = *returnedAt
	}

	diff := int(calendarDay(ret, loc).Sub(calendarDay(dueAt, loc)) / (24 * time.Hour))
	days := diff + 1
	if days < 0 {
		days = 0
	}
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	return Calculation{
		DaysLate:  days,
		TotalFine: rate.Mul(decimal.NewFromInt(int64(days))),
	}
}

// calendarDay maps t to its local date expressed as UTC midnight, so that
// subtracting two of them always yields whole days regardless of DST.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
