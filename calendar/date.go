package calendar

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/thyrannic-sky/anglemath"
)

// ErrInvalidDate is returned for month or day fields outside the calendar.
var ErrInvalidDate = errors.New("invalid date")

// Date is an immutable day on the Thyrannic calendar, stored as the number
// of days since the epoch (Day 1 of Month 1, Year 0). Days before the epoch
// are negative.
type Date struct {
	seq int64
}

// DateFromValue returns the Date with the given day sequence number.
func DateFromValue(seq int64) Date { return Date{seq: seq} }

// DateFromFields builds a Date from a year, a 1-based month and a 1-based
// day of month.
func DateFromFields(year int64, month, day int) (Date, error) {
	if month < 1 || month > MonthsPerYear {
		return Date{}, fmt.Errorf("%w: month %d out of range [1,%d]", ErrInvalidDate, month, MonthsPerYear)
	}
	if day < 1 || day > DaysPerMonth {
		return Date{}, fmt.Errorf("%w: day %d out of range [1,%d]", ErrInvalidDate, day, DaysPerMonth)
	}
	return Date{seq: fieldsToSeq(year, int64(month-1), int64(day-1))}, nil
}

func fieldsToSeq(year, month0, day0 int64) int64 {
	return year*DaysPerYear + month0*DaysPerMonth + day0
}

// Value returns the day sequence number.
func (d Date) Value() int64 { return d.seq }

// Fields decomposes the date into year, month (1-12) and day (1-30).
func (d Date) Fields() (year int64, month, day int) {
	year, dayOfYear := anglemath.DivModInt(d.seq, DaysPerYear)
	month0, day0 := anglemath.DivModInt(dayOfYear, DaysPerMonth)
	return year, int(month0) + 1, int(day0) + 1
}

func (d Date) Year() int64 {
	y, _, _ := d.Fields()
	return y
}

func (d Date) Month() int {
	_, m, _ := d.Fields()
	return m
}

func (d Date) Day() int {
	_, _, day := d.Fields()
	return day
}

// Weekday returns the day of the week in [0, DaysPerWeek).
func (d Date) Weekday() int {
	_, w := anglemath.DivModInt(d.seq, DaysPerWeek)
	return int(w)
}

// Add returns the date quantity units later. Month and year quantities move
// the calendar fields and keep the day of month; a fractional remainder is
// carried on as whole days, truncated toward zero so that negative
// quantities mirror positive ones. Clock units are converted to days and
// floored, so a negative sub-day quantity lands on the previous day.
func (d Date) Add(quantity float64, unit Unit) Date {
	if unit.field {
		months := quantity * unit.As(Month)
		whole := math.Trunc(months)
		year, month, day := d.Fields()
		y, m0 := anglemath.DivModInt(year*MonthsPerYear+int64(month-1)+int64(whole), MonthsPerYear)
		seq := fieldsToSeq(y, m0, int64(day-1))
		return Date{seq: seq + int64(math.Trunc((months-whole)*DaysPerMonth))}
	}
	return Date{seq: int64(math.Floor(float64(d.seq) + quantity*unit.As(Day)))}
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool { return d.seq < other.seq }

func (d Date) String() string {
	y, m, day := d.Fields()
	return fmt.Sprintf("Day %d of Month %d, Year %d", day, m, y)
}
