package sprite

import "github.com/chewxy/math32"

// Shape is a 2D outline that a Mesh can fill or stroke.
type Shape interface {
	// Outline returns the outline points, flattened so that no point of
	// the true curve is farther than tolerance from the polygon.
	Outline(tolerance float32) []Vec2

	// Closed reports whether the last point connects back to the first.
	Closed() bool
}

// Rectangle is an axis-aligned rectangle.
type Rectangle struct {
	Min, Max Vec2
}

// Outline returns the four corners clockwise on screen from Min.
func (r Rectangle) Outline(float32) []Vec2 {
	return []Vec2{r.Min, {r.Max.X, r.Min.Y}, r.Max, {r.Min.X, r.Max.Y}}
}

// Closed returns true.
func (Rectangle) Closed() bool { return true }

// Circle is a circle around Center.
type Circle struct {
	Center Vec2
	Radius float32
}

// Outline returns points evenly spaced around the circle.
func (c Circle) Outline(tolerance float32) []Vec2 {
	return Ellipse{Center: c.Center, Radii: Vec2{c.Radius, c.Radius}}.Outline(tolerance)
}

// Closed returns true.
func (Circle) Closed() bool { return true }

// Ellipse is an ellipse around Center with radii along its own axes,
// rotated by Rotation radians.
type Ellipse struct {
	Center   Vec2
	Radii    Vec2
	Rotation float32
}

// Outline returns points evenly spaced in angle around the ellipse.
func (e Ellipse) Outline(tolerance float32) []Vec2 {
	n := arcSegments(max(e.Radii.X, e.Radii.Y), tolerance)
	sin, cos := math32.Sincos(e.Rotation)
	pts := make([]Vec2, n)
	for i := range n {
		a := 2 * math32.Pi * float32(i) / float32(n)
		s, c := math32.Sincos(a)
		x, y := e.Radii.X*c, e.Radii.Y*s
		pts[i] = Vec2{
			X: e.Center.X + x*cos - y*sin,
			Y: e.Center.Y + x*sin + y*cos,
		}
	}
	return pts
}

// Closed returns true.
func (Ellipse) Closed() bool { return true }

// Polyline is a sequence of points, optionally closed into a polygon.
type Polyline struct {
	Points []Vec2
	Loop   bool
}

// Outline returns the points unchanged.
func (p Polyline) Outline(float32) []Vec2 { return p.Points }

// Closed returns p.Loop.
func (p Polyline) Closed() bool { return p.Loop }

// arcSegments returns how many segments approximate a full circle of
// radius r within tolerance, never fewer than 8.
func arcSegments(r, tolerance float32) int {
	const minSegments = 8
	if r <= tolerance || tolerance <= 0 {
		return minSegments
	}
	step := 2 * math32.Acos(1-tolerance/r)
	n := int(math32.Ceil(2 * math32.Pi / step))
	return max(n, minSegments)
}
