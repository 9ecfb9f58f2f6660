// Package calendar implements the Thyrannic calendar: a linear day axis
// with a fixed unit hierarchy and a single scalar time value (hours since
// epoch) that drives the sky simulation.
package calendar

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownUnit is returned by ParseUnit for names outside the hierarchy.
var ErrUnknownUnit = errors.New("unknown temporal unit")

// Unit is a temporal unit of the Thyrannic calendar. Every unit is a whole
// number of minutes:
//
//	HOUR = 60 MINUTE, DAY = 24 HOUR, WEEK = 6 DAY, MONTH = 30 DAY, YEAR = 12 MONTH
type Unit struct {
	name    string
	minutes int64
	// field units (month, year) are calendar fields that only a Date can add
	field bool
}

var (
	Minute = Unit{name: "minute", minutes: 1}
	Hour   = Unit{name: "hour", minutes: 60}
	Day    = Unit{name: "day", minutes: 24 * 60}
	Week   = Unit{name: "week", minutes: 6 * 24 * 60}
	Month  = Unit{name: "month", minutes: 30 * 24 * 60, field: true}
	Year   = Unit{name: "year", minutes: 12 * 30 * 24 * 60, field: true}
)

// Units lists the hierarchy from finest to coarsest.
var Units = []Unit{Minute, Hour, Day, Week, Month, Year}

const (
	HoursPerDay   = 24
	DaysPerWeek   = 6
	DaysPerMonth  = 30
	MonthsPerYear = 12
	DaysPerYear   = DaysPerMonth * MonthsPerYear
)

// As returns how many of other equal one of u.
func (u Unit) As(other Unit) float64 {
	return float64(u.minutes) / float64(other.minutes)
}

// Defines reports whether other lives on u's fixed clock scale, i.e. it can
// be added as a flat multiple of u. Month and year are calendar fields and
// are only defined by themselves.
func (u Unit) Defines(other Unit) bool {
	if u == other {
		return true
	}
	return !u.field && !other.field
}

// IsZero reports whether u is the zero Unit.
func (u Unit) IsZero() bool { return u.minutes == 0 }

func (u Unit) String() string { return u.name }

// ParseUnit maps a unit name, plural or abbreviation to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minute", "minutes", "min", "m":
		return Minute, nil
	case "hour", "hours", "h", "":
		return Hour, nil
	case "day", "days", "d":
		return Day, nil
	case "week", "weeks", "w":
		return Week, nil
	case "month", "months", "mo":
		return Month, nil
	case "year", "years", "y":
		return Year, nil
	default:
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}
