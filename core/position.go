package core

import (
	"math"

	"github.com/signalsfoundry/thyrannic-sky/anglemath"
	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

// OrbitState holds the in-plane quantities of a body at one instant.
type OrbitState struct {
	MeanAnomaly      float64
	EccentricAnomaly float64
	XV, YV           float64 // position in the orbital plane, units of the semi-major axis
	TrueAnomaly      float64
	TrueLongitude    float64
	Distance         float64
}

// SolveOrbit locates a body in its orbital plane at d fractional days.
//
// The eccentric anomaly is a single step of the equation-of-centre
// expansion, not an iterated Kepler solve.
func SolveOrbit(e model.OrbitalElements, d float64) OrbitState {
	m := e.MeanAnomaly(d)
	ecc := e.Eccentricity
	ea := anglemath.FixAngle(m + anglemath.Rad2Deg(ecc*anglemath.Sin(m)*(1+ecc*anglemath.Cos(m))))

	xv := anglemath.Cos(ea) - ecc
	yv := math.Sqrt(1.0-ecc*ecc) * anglemath.Sin(ea)
	v := anglemath.FixAngle(anglemath.Rad2Deg(math.Atan2(yv, xv)))

	return OrbitState{
		MeanAnomaly:      m,
		EccentricAnomaly: ea,
		XV:               xv,
		YV:               yv,
		TrueAnomaly:      v,
		TrueLongitude:    v + e.PeriapsisArgument,
		Distance:         math.Sqrt(xv*xv+yv*yv) * e.MeanDistance,
	}
}

// EquatorialPosition returns the right ascension, declination and distance
// of a body at d fractional days, as seen from an observer with the given
// axial tilt.
//
// Only the observer's tilt rotates the orbit; the body's own inclination is
// not applied. Declination is normalised into [0,360).
func EquatorialPosition(e model.OrbitalElements, d, tilt float64) (ra, dec, distance float64) {
	orbit := SolveOrbit(e, d)

	ecliptic := Vec3{
		X: orbit.Distance * anglemath.Cos(orbit.TrueLongitude),
		Y: orbit.Distance * anglemath.Sin(orbit.TrueLongitude),
	}
	eq := ecliptic.Tilt(tilt)

	ra = anglemath.FixAngle(anglemath.Rad2Deg(math.Atan2(eq.Y, eq.X)))
	dec = anglemath.FixAngle(anglemath.Rad2Deg(math.Atan2(eq.Z, eq.EquatorialNorm())))
	return ra, dec, orbit.Distance
}

// LocalSiderealAngle maps the hour of day onto the sky, with noon pointing
// at the primary's right ascension:
//
//	12 PM -> primary RA, 6 PM -> primary RA + 90, 12 AM -> primary RA + 180
func LocalSiderealAngle(hourOfDay, primaryRA float64) float64 {
	fractionalDay := (12 + hourOfDay) / calendar.HoursPerDay
	return anglemath.FixAngle2(fractionalDay*360 + primaryRA)
}

// HourAngle is the signed angle between the local meridian and a body.
func HourAngle(hourOfDay, primaryRA, ra float64) float64 {
	return anglemath.FixAngle2(LocalSiderealAngle(hourOfDay, primaryRA) - ra)
}

// ZenithAngle returns the angle between the observer's zenith and a body.
func ZenithAngle(latitude, dec, hourAngle float64) float64 {
	cosZ := anglemath.Sin(latitude)*anglemath.Sin(dec) +
		anglemath.Cos(latitude)*anglemath.Cos(dec)*anglemath.Cos(hourAngle)
	// rounding can push the cosine just outside [-1,1]
	if cosZ > 1 {
		cosZ = 1
	} else if cosZ < -1 {
		cosZ = -1
	}
	return anglemath.Rad2Deg(math.Acos(cosZ))
}

// updateEquatorial runs the orbit-to-equatorial stage for one body.
func updateEquatorial(b *model.Body, d float64, obs model.ObserverState) {
	ra, dec, dist := EquatorialPosition(b.Elements, d, obs.Tilt)
	b.Position.RightAscension = ra
	b.Position.Declination = dec
	b.Position.Distance = dist
}

// updateHorizontal runs the equatorial-to-horizontal stage for one body. The
// primary's right ascension must already be current for this tick.
func updateHorizontal(b *model.Body, hourOfDay, primaryRA float64, obs model.ObserverState) {
	ha := HourAngle(hourOfDay, primaryRA, b.Position.RightAscension)
	z := ZenithAngle(obs.Latitude, b.Position.Declination, ha)
	b.Position.HourAngle = ha
	b.Position.ZenithAngle = z
	b.Position.VerticalOffset = z - 90
	b.Position.HorizontalOffset = ha
}

// advance recomputes every body for timeValue, expressed in hours since the
// epoch. bodies may include primary; it is never computed twice.
func advance(obs model.ObserverState, primary *model.Body, bodies []*model.Body, timeValue float64) {
	d := timeValue * calendar.Hour.As(calendar.Day)
	hourOfDay := anglemath.Mod(timeValue, calendar.HoursPerDay)

	updateEquatorial(primary, d, obs)
	for _, b := range bodies {
		if b != primary {
			updateEquatorial(b, d, obs)
		}
	}

	primaryRA := primary.Position.RightAscension
	for _, b := range bodies {
		updateHorizontal(b, hourOfDay, primaryRA, obs)
	}
}
