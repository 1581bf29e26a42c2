// Package transform turns sprite position, rotation and scale into cached
// world matrices, eight entities at a time.
package transform

import "math"

// Vec2 is a 2D vector.
type Vec2 struct {
	X, Y float32
}

// Affine is a 2D affine matrix stored column-major as three columns of two:
//
//	| A C TX |
//	| B D TY |
type Affine struct {
	A, B   float32
	C, D   float32
	TX, TY float32
}

// Identity is the identity matrix.
var Identity = Affine{A: 1, D: 1}

// Apply transforms p.
func (m Affine) Apply(p Vec2) Vec2 {
	return Vec2{
		X: m.A*p.X + m.C*p.Y + m.TX,
		Y: m.B*p.X + m.D*p.Y + m.TY,
	}
}

// Mul returns m * n.
func (m Affine) Mul(n Affine) Affine {
	return Affine{
		A:  m.A*n.A + m.C*n.B,
		B:  m.B*n.A + m.D*n.B,
		C:  m.A*n.C + m.C*n.D,
		D:  m.B*n.C + m.D*n.D,
		TX: m.A*n.TX + m.C*n.TY + m.TX,
		TY: m.B*n.TX + m.D*n.TY + m.TY,
	}
}

// Transform is the spatial component of a sprite. World is derived from the
// other fields by the transform system and is read by batching.
type Transform struct {
	Position Vec2
	Scale    Vec2
	Rotation float32 // radians, counter-clockwise
	World    Affine
}

// New returns a transform at p with unit scale and no rotation.
func New(p Vec2) Transform {
	return Transform{Position: p, Scale: Vec2{1, 1}, World: Identity}
}

// Motion drives a Transform every frame: Velocity in units per second, Spin
// in radians per second.
type Motion struct {
	Velocity Vec2
	Spin     float32
}

// Compose builds T(position) * R(rotation) * S(scale) for t.
func Compose(t *Transform) Affine {
	s, c := math.Sincos(float64(t.Rotation))
	sin, cos := float32(s), float32(c)
	return Affine{
		A:  cos * t.Scale.X,
		B:  sin * t.Scale.X,
		C:  -sin * t.Scale.Y,
		D:  cos * t.Scale.Y,
		TX: t.Position.X,
		TY: t.Position.Y,
	}
}
