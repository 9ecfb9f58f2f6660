package core

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/thyrannic-sky/anglemath"
)

// Vec3 is a position in the observer-centred frame, in km.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// EquatorialNorm returns the length of the projection onto the X/Y plane.
func (v Vec3) EquatorialNorm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

func (v Vec3) vec() *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// tiltRotation rotates about the X axis so that the orbital plane ends up
// inclined by tilt degrees against the observer's equator.
func tiltRotation(tilt float64) *mat.Dense {
	s, c := anglemath.Sin(tilt), anglemath.Cos(tilt)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// Tilt applies the observer's axial tilt to a position in the orbital
// plane: X is kept, Y is split into Y cos(tilt) and Z sin(tilt).
func (v Vec3) Tilt(tilt float64) Vec3 {
	var out mat.VecDense
	out.MulVec(tiltRotation(tilt), v.vec())
	return Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
