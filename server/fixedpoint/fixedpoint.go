// Package fixedpoint implements the deterministic integer arithmetic used
// throughout the zone simulation. Positions and velocities are stored as
// fixed-point scalars (1/1000 of a unit) rather than floats so that two
// hosts replaying the same tick history reach bit-identical results; the
// tick loop, anti-cheat thresholds, and lag compensation ring all depend on
// that property. Floating point is used only inside a single tick (the
// movement step's yaw rotation, acceleration, gravity and overlap push, each
// converted back to a Scalar before it is stored), never for a position or
// velocity carried across a tick boundary.
package fixedpoint

import "math"

// Scale is the number of Scalar units per world unit (metre).
const Scale = 1000

// Scalar is a fixed-point number with Scale units per metre.
type Scalar int64

// FromFloat64 converts a float64 metre value to a Scalar, rounding to the
// nearest 1/1000.
func FromFloat64(f float64) Scalar {
	return Scalar(math.Round(f * Scale))
}

// Float64 converts the Scalar back to a float64 metre value.
func (s Scalar) Float64() float64 {
	return float64(s) / Scale
}

// Abs returns the absolute value of s.
func (s Scalar) Abs() Scalar {
	if s < 0 {
		return -s
	}
	return s
}

// Vec3 is a 3-component fixed-point vector, (x, y, z) with y as the vertical
// axis, matching the world's XZ ground plane / Y height convention.
type Vec3 struct {
	X, Y, Z Scalar
}

// Vec3FromFloat64 builds a Vec3 from three float64 metre values.
func Vec3FromFloat64(x, y, z float64) Vec3 {
	return Vec3{FromFloat64(x), FromFloat64(y), FromFloat64(z)}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale multiplies every component of v by a rational factor num/den,
// computed in integer arithmetic to avoid reintroducing floating point into
// the deterministic path.
func (v Vec3) Scale(num, den int64) Vec3 {
	return Vec3{
		Scalar(int64(v.X) * num / den),
		Scalar(int64(v.Y) * num / den),
		Scalar(int64(v.Z) * num / den),
	}
}

// XZ returns the horizontal (ground-plane) components of v.
func (v Vec3) XZ() (Scalar, Scalar) {
	return v.X, v.Z
}

// LenSq returns the squared length of v, in Scalar^2 units.
func (v Vec3) LenSq() int64 {
	x, y, z := int64(v.X), int64(v.Y), int64(v.Z)
	return x*x + y*y + z*z
}

// LenSqXZ returns the squared horizontal length of v.
func (v Vec3) LenSqXZ() int64 {
	x, z := int64(v.X), int64(v.Z)
	return x*x + z*z
}

// Len returns the length of v as a Scalar, computed with an integer square
// root so the result is identical on every host regardless of floating
// point unit behaviour.
func (v Vec3) Len() Scalar {
	return Scalar(IntSqrt(v.LenSq()))
}

// Dot returns the dot product of v and o, in Scalar^2 units.
func (v Vec3) Dot(o Vec3) int64 {
	return int64(v.X)*int64(o.X) + int64(v.Y)*int64(o.Y) + int64(v.Z)*int64(o.Z)
}

// IntSqrt computes the integer square root of a non-negative n using an
// integer Newton iteration. It is deterministic across architectures,
// unlike math.Sqrt which may round differently depending on the host FPU
// in edge cases; since every entity's speed is validated against this
// value, two zones must compute exactly the same integer for the same
// input.
func IntSqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// Clamp restricts s to the inclusive range [lo, hi].
func Clamp(s, lo, hi Scalar) Scalar {
	if s < lo {
		return lo
	}
	if s > hi {
		return hi
	}
	return s
}
