package calendar

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/thyrannic-sky/anglemath"
)

// MaxTimeValue bounds the time values FromValue and FromHours accept. Day
// and hour counts are int64, so larger magnitudes do not fit.
const MaxTimeValue = 1 << 62

// DateTime is an immutable (Date, hour of day) pair. The hour lies in
// [0, HoursPerDay) and may carry minutes in its fraction.
//
// Value is the simulation clock: hours since the epoch.
type DateTime struct {
	date Date
	hour float64
}

// NewDateTime combines a date and an hour of day. Hours outside
// [0, HoursPerDay) roll over into neighbouring days.
func NewDateTime(date Date, hour float64) DateTime {
	if hour >= 0 && hour < HoursPerDay {
		return DateTime{date: date, hour: hour}
	}
	return FromHours(float64(date.seq)*HoursPerDay + hour)
}

// FromValue floors seq and splits it into a day and an hour of day, so
// FromValue(x).Value() == math.Floor(x). seq must be finite with
// |seq| < MaxTimeValue; the result is undefined otherwise.
func FromValue(seq float64) DateTime {
	days, hour := anglemath.DivModInt(int64(math.Floor(seq)), HoursPerDay)
	return DateTime{date: Date{seq: days}, hour: float64(hour)}
}

// FromHours splits an hours-since-epoch value without flooring, keeping any
// fractional hour. The range restriction of FromValue applies.
func FromHours(h float64) DateTime {
	days, hour := anglemath.DivMod(h, HoursPerDay)
	return DateTime{date: Date{seq: int64(days)}, hour: hour}
}

// Value returns days*HoursPerDay + hour.
func (t DateTime) Value() float64 {
	return float64(t.date.seq)*HoursPerDay + t.hour
}

// Days returns the time value in fractional days.
func (t DateTime) Days() float64 {
	return t.Value() * Hour.As(Day)
}

func (t DateTime) Date() Date { return t.date }

// HourOfDay returns the hour of day including its fraction.
func (t DateTime) HourOfDay() float64 { return t.hour }

// Hour returns the whole hour of day.
func (t DateTime) Hour() int { return int(math.Floor(t.hour)) }

// Minute returns the whole minute within the hour.
func (t DateTime) Minute() int {
	// nudge so that 10 + 1/60 reads as 10:01 rather than 10:00
	return int(math.Floor((t.hour-math.Floor(t.hour))*Hour.As(Minute) + 1e-9))
}

// Add returns t moved by quantity units. Clock units go through the flat
// hour value. Month and year move the calendar fields by whole months; any
// fractional month is then carried as hours, at DaysPerMonth days a month.
func (t DateTime) Add(quantity float64, unit Unit) DateTime {
	if Hour.Defines(unit) {
		return FromHours(t.Value() + quantity*unit.As(Hour))
	}
	months := quantity * unit.As(Month)
	whole := math.Trunc(months)
	moved := DateTime{date: t.date.Add(whole, Month), hour: t.hour}
	return FromHours(moved.Value() + (months-whole)*Month.As(Hour))
}

// Before reports whether t is earlier than other.
func (t DateTime) Before(other DateTime) bool { return t.Value() < other.Value() }

// Clock renders the hour in twelve-hour form, e.g. "1 PM".
func (t DateTime) Clock() string {
	h := t.Hour()
	display := (h+11)%12 + 1
	half := "AM"
	if h >= 12 {
		half = "PM"
	}
	if m := t.Minute(); m != 0 {
		return fmt.Sprintf("%d:%02d %s", display, m, half)
	}
	return fmt.Sprintf("%d %s", display, half)
}

func (t DateTime) String() string {
	return t.Clock() + ", " + t.date.String()
}
