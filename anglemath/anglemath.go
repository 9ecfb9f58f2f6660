// Package anglemath provides degree-based trigonometry and the angle
// normalisation helpers used by the calendar and the sky pipeline.
//
// Every function is total: non-finite inputs come back out as NaN or Inf
// rather than as errors.
package anglemath

import "math"

const (
	degPerRad = 180.0 / math.Pi
	radPerDeg = math.Pi / 180.0
)

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 { return rad * degPerRad }

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 { return deg * radPerDeg }

// Sin returns the sine of an angle given in degrees.
func Sin(deg float64) float64 { return math.Sin(deg * radPerDeg) }

// Cos returns the cosine of an angle given in degrees.
func Cos(deg float64) float64 { return math.Cos(deg * radPerDeg) }

// Mod returns a mod b with the sign of b, so Mod(-1, 24) == 23.
func Mod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	// math.Mod can round a tiny negative remainder up to b.
	if r == b {
		return 0
	}
	return r
}

// FixAngle normalises x into [0, 360).
func FixAngle(x float64) float64 {
	return Mod(x, 360)
}

// FixAngle2 normalises x into (-180, 180].
func FixAngle2(x float64) float64 {
	a := FixAngle(x)
	if a > 180 {
		a -= 360
	}
	return a
}

// DivMod returns floor(a/b) and the matching remainder, which is always
// non-negative for positive b.
func DivMod(a, b float64) (float64, float64) {
	q := math.Floor(a / b)
	r := a - q*b
	if r >= b && b > 0 {
		// rounding pushed the remainder out of range
		q++
		r -= b
	}
	return q, r
}

// DivModInt is the integer form of DivMod used on day and hour sequence
// numbers.
func DivModInt(a, b int64) (int64, int64) {
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
		r += b
	}
	return q, r
}
