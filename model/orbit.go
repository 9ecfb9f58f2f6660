package model

import "github.com/signalsfoundry/thyrannic-sky/anglemath"

// Longitude: sidereal angle. Argument: angle relative to another angle.
// Anomaly: angle from periapsis to the body's position.

// MeanLongitude advances the origin angle uniformly with d, the time in
// fractional days since the epoch.
func (e OrbitalElements) MeanLongitude(d float64) float64 {
	return anglemath.FixAngle(e.OriginAngle + (360/e.OrbitalPeriod)*d)
}

// PeriapsisLongitude is the longitude of periapsis.
func (e OrbitalElements) PeriapsisLongitude() float64 {
	return anglemath.FixAngle(e.AscendingNodeLongitude + e.PeriapsisArgument)
}

// MeanAnomaly is 0 at periapsis and increases uniformly with time.
func (e OrbitalElements) MeanAnomaly(d float64) float64 {
	return anglemath.FixAngle(e.MeanLongitude(d) - e.PeriapsisLongitude())
}

// PeriapsisEpoch is the epoch of periapsis in fractional days.
func (e OrbitalElements) PeriapsisEpoch() float64 {
	return (e.PeriapsisArgument - e.OriginAngle) * (e.OrbitalPeriod / 360)
}

// PeriapsisTime is the time of periapsis relative to d.
func (e OrbitalElements) PeriapsisTime(d float64) float64 {
	return e.PeriapsisEpoch() - (e.MeanAnomaly(d)/360)/e.OrbitalPeriod
}

// SynodicToSiderealPeriod converts a period observed against the primary's
// apparent motion into one measured against the fixed background.
func SynodicToSiderealPeriod(synodic, primaryPeriod float64) float64 {
	return 1 / (1/synodic + 1/primaryPeriod)
}
