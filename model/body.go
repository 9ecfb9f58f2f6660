package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/thyrannic-sky/anglemath"
)

// ErrInvalidElements is returned when orbital elements cannot describe a
// closed orbit.
var ErrInvalidElements = errors.New("invalid orbital elements")

// OrbitalElements describe the shape and phase of a body's orbit. Angles
// are in degrees, the period in fractional days and distances in km.
//
// Ecliptic plane: the plane in which the observer orbits the sun.
// Orbital plane: the plane in which the body orbits the observer.
type OrbitalElements struct {
	Inclination            float64 // angle from ecliptic plane to orbital plane
	AscendingNodeLongitude float64 // longitude where the orbital plane crosses the ecliptic
	PeriapsisArgument      float64 // angle from the ascending node to periapsis
	Eccentricity           float64 // 0 = circle, (0,1) = ellipse
	OriginAngle            float64 // mean longitude at epoch
	OrbitalPeriod          float64 // sidereal period, fractional days
	MeanDistance           float64 // semi-major axis, centre to centre
	Radius                 float64 // radius of the body itself
}

// Validate rejects elements that would feed NaNs into the sky pipeline.
func (e OrbitalElements) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"inclination", e.Inclination},
		{"ascending_node_longitude", e.AscendingNodeLongitude},
		{"periapsis_argument", e.PeriapsisArgument},
		{"eccentricity", e.Eccentricity},
		{"origin_angle", e.OriginAngle},
		{"orbital_period", e.OrbitalPeriod},
		{"mean_distance", e.MeanDistance},
		{"radius", e.Radius},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidElements, f.name)
		}
	}
	if e.Eccentricity < 0 || e.Eccentricity >= 1 {
		return fmt.Errorf("%w: eccentricity %v outside [0,1)", ErrInvalidElements, e.Eccentricity)
	}
	if e.OrbitalPeriod <= 0 {
		return fmt.Errorf("%w: orbital period %v must be positive", ErrInvalidElements, e.OrbitalPeriod)
	}
	if e.MeanDistance < 0 || e.Radius < 0 {
		return fmt.Errorf("%w: distances must not be negative", ErrInvalidElements)
	}
	return nil
}

// ObserverState is the fixed rotation state of the observer planet.
type ObserverState struct {
	Name     string
	Latitude float64 // degrees north of the observer's equator
	Tilt     float64 // axial tilt, degrees
}

// ComputedPosition is a body's sky position for the current tick.
//
// Declination is kept in [0,360) rather than [-90,90]; the zenith formula
// only consumes it through sin and cos.
type ComputedPosition struct {
	RightAscension float64
	Declination    float64
	Distance       float64
	HourAngle      float64
	ZenithAngle    float64

	// Presentation offsets: VerticalOffset is 0 on the horizon and -90 at
	// the zenith, HorizontalOffset is 0 on the meridian.
	VerticalOffset   float64
	HorizontalOffset float64
}

// Altitude is the angle above the horizon.
func (p ComputedPosition) Altitude() float64 { return 90 - p.ZenithAngle }

// Body is a celestial body of the sky: static elements plus the position
// recomputed on every tick.
type Body struct {
	ID   string
	Name string

	Elements OrbitalElements

	// FixedAngularDiameter, when positive, replaces the diameter derived
	// from Radius and the current distance.
	FixedAngularDiameter float64

	Position ComputedPosition
}

// AngularDiameter returns how many degrees of sky the body covers at its
// current distance.
func (b *Body) AngularDiameter() float64 {
	if b.FixedAngularDiameter > 0 {
		return b.FixedAngularDiameter
	}
	if b.Position.Distance == 0 {
		return 0
	}
	ratio := b.Elements.Radius / b.Position.Distance
	return anglemath.Rad2Deg(math.Acos(1 - 2*ratio*ratio))
}
