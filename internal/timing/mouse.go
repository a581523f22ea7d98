package timing

import "math"

// PathStyle controls how much per-point noise a mouse path carries.
type PathStyle string

const (
	StyleSmooth  PathStyle = "smooth"
	StyleJittery PathStyle = "jittery"
	StylePrecise PathStyle = "precise"
)

// Point is a screen coordinate.
type Point struct {
	X float64
	Y float64
}

// MousePath interpolates a quadratic Bezier curve between two points
// with a randomly displaced control point, sampled roughly every 20px
// of straight-line distance. Endpoints are exact; interior points get
// style-dependent jitter.
func (e *Engine) MousePath(from, to Point, style PathStyle) []Point {
	dx := to.X - from.X
	dy := to.Y - from.Y
	length := math.Hypot(dx, dy)

	steps := int(length / 20)
	if steps < 2 {
		steps = 2
	}

	// Control point: midpoint displaced perpendicular to the segment
	// by up to a quarter of its length, either side.
	mid := Point{X: from.X + dx/2, Y: from.Y + dy/2}
	displacement := (e.rng.Float64() - 0.5) * length / 2
	var ctrl Point
	if length > 0 {
		ctrl = Point{
			X: mid.X - dy/length*displacement,
			Y: mid.Y + dx/length*displacement,
		}
	} else {
		ctrl = mid
	}

	jitter := jitterMagnitude(style)

	path := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := bezier(from, ctrl, to, t)
		if i != 0 && i != steps {
			p.X += (e.rng.Float64() - 0.5) * 2 * jitter
			p.Y += (e.rng.Float64() - 0.5) * 2 * jitter
		}
		path = append(path, p)
	}

	return path
}

func jitterMagnitude(style PathStyle) float64 {
	switch style {
	case StyleJittery:
		return 3.0
	case StylePrecise:
		return 0.5
	default:
		return 1.0
	}
}

func bezier(p0, p1, p2 Point, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}
