package transform

import "math"

// LaneWidth is the number of transforms composed per lane step.
const LaneWidth = 8

type lane [LaneWidth]float32

// ComputeLanes writes the world matrix of every transform in ts. Full groups
// of LaneWidth are composed column by column through fixed-size arrays, the
// remainder goes through Compose. Both paths produce the same values.
func ComputeLanes(ts []Transform) {
	n := len(ts) - len(ts)%LaneWidth
	for base := 0; base < n; base += LaneWidth {
		composeLane((*[LaneWidth]Transform)(ts[base : base+LaneWidth]))
	}
	for i := n; i < len(ts); i++ {
		ts[i].World = Compose(&ts[i])
	}
}

func composeLane(g *[LaneWidth]Transform) {
	var rot, sx, sy, px, py lane
	for i := range g {
		rot[i] = g[i].Rotation
		sx[i], sy[i] = g[i].Scale.X, g[i].Scale.Y
		px[i], py[i] = g[i].Position.X, g[i].Position.Y
	}

	var sin, cos lane
	for i := range rot {
		s, c := math.Sincos(float64(rot[i]))
		sin[i], cos[i] = float32(s), float32(c)
	}

	var a, b, c, d lane
	for i := range a {
		a[i] = cos[i] * sx[i]
		b[i] = sin[i] * sx[i]
		c[i] = -sin[i] * sy[i]
		d[i] = cos[i] * sy[i]
	}

	for i := range g {
		g[i].World = Affine{A: a[i], B: b[i], C: c[i], D: d[i], TX: px[i], TY: py[i]}
	}
}
