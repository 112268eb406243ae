package sprite

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/sprite/gpucore"
)

// Vec2 is a 2D vector in pixels or normalized units.
type Vec2 struct {
	X, Y float32
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Mul returns v scaled by s.
func (v Vec2) Mul(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Pivot selects the point an instance rotates about.
type Pivot uint8

const (
	// PivotCorner rotates about the quad's origin corner (0,0).
	PivotCorner Pivot = iota

	// PivotCenter rotates about the quad's center. Translation still
	// addresses the origin corner of the unrotated quad.
	PivotCenter
)

// Transform is a 2D affine transformation stored as a column-major 4x4
// matrix, the layout the Globals uniform block uses on the wire.
//
// Matrix layout (column-major):
//
//	| A C 0 E |
//	| B D 0 F |
//	| 0 0 1 0 |
//	| 0 0 0 1 |
type Transform struct {
	m mgl32.Mat4
}

// Identity returns the identity transform.
func Identity() Transform { return Transform{mgl32.Ident4()} }

// Translate returns a translation by v.
func Translate(v Vec2) Transform { return Transform{mgl32.Translate3D(v.X, v.Y, 0)} }

// Scale returns a non-uniform scale by v.
func Scale(v Vec2) Transform { return Transform{mgl32.Scale3D(v.X, v.Y, 1)} }

// UniformScale returns a scale by s on both axes.
func UniformScale(s float32) Transform { return Scale(Vec2{s, s}) }

// Rotate returns a counter-clockwise rotation by angle radians, in a
// y-up frame. With the y-down pixel projection the rotation appears
// clockwise on screen.
func Rotate(angle float32) Transform { return Transform{mgl32.HomogRotate3DZ(angle)} }

// Orthographic maps a width x height pixel space with a top-left origin
// to normalized device coordinates.
func Orthographic(width, height float32) Transform {
	return Transform{mgl32.Ortho2D(0, width, height, 0)}
}

// AxisInversion flips the Y axis. Backends whose framebuffer origin is
// bottom-left apply it once to the view projection.
func AxisInversion() Transform { return Transform{mgl32.Scale3D(1, -1, 1)} }

// FromMat4 wraps a matrix.
func FromMat4(m mgl32.Mat4) Transform { return Transform{m} }

// Mat4 returns the underlying matrix.
func (t Transform) Mat4() mgl32.Mat4 { return t.m }

// Array returns the column-major elements.
func (t Transform) Array() [16]float32 { return [16]float32(t.m) }

// Bytes returns the 64-byte little-endian column-major encoding.
func (t Transform) Bytes() []byte {
	return gpucore.Globals{MVP: t.Array()}.Bytes()
}

// Mul returns t × o: o is applied first, then t.
func (t Transform) Mul(o Transform) Transform { return Transform{t.m.Mul4(o.m)} }

// Apply transforms the point p.
func (t Transform) Apply(p Vec2) Vec2 {
	v := t.m.Mul4x1(mgl32.Vec4{p.X, p.Y, 0, 1})
	return Vec2{v[0], v[1]}
}

// ApproxEqual reports whether every element differs by at most eps.
func (t Transform) ApproxEqual(o Transform, eps float32) bool {
	return t.m.ApproxEqualThreshold(o.m, eps)
}

// Compose builds the instance transform: scale, then rotate about pivot,
// then translate.
func Compose(scale Vec2, rotation float32, translation Vec2, pivot Pivot) Transform {
	s := Scale(scale)
	if rotation == 0 {
		return Translate(translation).Mul(s)
	}
	r := Rotate(rotation)
	if pivot == PivotCenter {
		half := Vec2{scale.X * 0.5, scale.Y * 0.5}
		r = Translate(half).Mul(r).Mul(Translate(Vec2{-half.X, -half.Y}))
	}
	return Translate(translation).Mul(r).Mul(s)
}

// Project returns the transform from instance space to clip space.
func Project(instance, viewProjection Transform) Transform {
	return viewProjection.Mul(instance)
}

// Decompose recovers the corner-pivot components of a transform built by
// Compose. ok is false for degenerate (zero-area) transforms.
func (t Transform) Decompose() (scale Vec2, rotation float32, translation Vec2, ok bool) {
	a, b := t.m[0], t.m[1]
	c, d := t.m[4], t.m[5]
	sx := math32.Hypot(a, b)
	if sx < 1e-12 {
		return Vec2{}, 0, Vec2{}, false
	}
	det := a*d - b*c
	if math32.Abs(det) < 1e-12 {
		return Vec2{}, 0, Vec2{}, false
	}
	rotation = math32.Atan2(b, a)
	scale = Vec2{sx, det / sx}
	translation = Vec2{t.m[12], t.m[13]}
	return scale, rotation, translation, true
}
