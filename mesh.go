package sprite

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
)

// MeshVertex is one vertex of a mesh: a local position, a UV in [0,1]
// that the instance source rect maps into the layer, and a color that
// multiplies the sampled texel.
type MeshVertex struct {
	Pos   Vec2
	UV    Vec2
	Color Color
}

// Mesh is indexed triangle geometry drawn once per instance by
// Renderer.DrawMesh. Instances scale, rotate about the local origin and
// translate the mesh.
//
// Meshes are built by filling and stroking shapes, or by appending
// vertices and indices directly. Clear keeps the storage.
type Mesh struct {
	Vertices []MeshVertex
	Indices  []uint32

	// Tolerance is the maximum distance between a curve and the polygon
	// that approximates it. Zero means DefaultTolerance.
	Tolerance float32
}

// DefaultTolerance is the curve flattening tolerance in local units.
const DefaultTolerance = 0.25

// NewMesh returns an empty mesh.
func NewMesh() *Mesh { return &Mesh{} }

// Clear removes all geometry.
func (m *Mesh) Clear() {
	m.Vertices = m.Vertices[:0]
	m.Indices = m.Indices[:0]
}

// Len returns the number of triangles.
func (m *Mesh) Len() int { return len(m.Indices) / 3 }

func (m *Mesh) tolerance() float32 {
	if m.Tolerance > 0 {
		return m.Tolerance
	}
	return DefaultTolerance
}

// Fill adds the interior of s in color c.
//
// The outline is triangulated as a fan around its first point, which is
// exact for convex outlines. Concave polylines should be split by the
// caller.
func (m *Mesh) Fill(s Shape, c Color) {
	pts := s.Outline(m.tolerance())
	if len(pts) < 3 {
		return
	}
	box := bounds(pts)
	base := uint32(len(m.Vertices))
	for _, p := range pts {
		m.Vertices = append(m.Vertices, MeshVertex{Pos: p, UV: box.uv(p), Color: c})
	}
	for i := uint32(1); i+1 < uint32(len(pts)); i++ {
		m.Indices = append(m.Indices, base, base+i, base+i+1)
	}
}

// Stroke adds the outline of s as segments of the given width, centered
// on the outline. Closed shapes get a closing segment. Joins are not
// mitered; consecutive segments overlap at the corners.
func (m *Mesh) Stroke(s Shape, c Color, width float32) {
	pts := s.Outline(m.tolerance())
	if len(pts) < 2 || width <= 0 {
		return
	}
	n := len(pts) - 1
	if s.Closed() {
		n = len(pts)
	}

	half := width / 2
	box := bounds(pts).inflate(half)
	for i := range n {
		a, b := pts[i], pts[(i+1)%len(pts)]
		d := b.Sub(a)
		l := math32.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		nx, ny := -d.Y/l*half, d.X/l*half
		off := Vec2{nx, ny}
		quad := [4]Vec2{a.Add(off), b.Add(off), b.Sub(off), a.Sub(off)}

		base := uint32(len(m.Vertices))
		for _, p := range quad {
			m.Vertices = append(m.Vertices, MeshVertex{Pos: p, UV: box.uv(p), Color: c})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
}

// Append adds raw geometry. Indices are relative to the first vertex of v.
func (m *Mesh) Append(v []MeshVertex, indices []uint32) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, v...)
	for _, i := range indices {
		m.Indices = append(m.Indices, base+i)
	}
}

// appendVertexBytes appends the vertices in wire layout: position,
// UV and color as little-endian float32.
func (m *Mesh) appendVertexBytes(dst []byte) []byte {
	le := binary.LittleEndian
	for _, v := range m.Vertices {
		for _, f := range [8]float32{v.Pos.X, v.Pos.Y, v.UV.X, v.UV.Y, v.Color.R, v.Color.G, v.Color.B, v.Color.A} {
			dst = le.AppendUint32(dst, math.Float32bits(f))
		}
	}
	return dst
}

// box is an axis-aligned bounding box used to derive UVs.
type box struct {
	min, max Vec2
}

func bounds(pts []Vec2) box {
	b := box{min: pts[0], max: pts[0]}
	for _, p := range pts[1:] {
		b.min.X = min(b.min.X, p.X)
		b.min.Y = min(b.min.Y, p.Y)
		b.max.X = max(b.max.X, p.X)
		b.max.Y = max(b.max.Y, p.Y)
	}
	return b
}

func (b box) inflate(d float32) box {
	return box{min: Vec2{b.min.X - d, b.min.Y - d}, max: Vec2{b.max.X + d, b.max.Y + d}}
}

// uv maps p into [0,1] over the box. Degenerate axes map to 0.
func (b box) uv(p Vec2) Vec2 {
	var uv Vec2
	if w := b.max.X - b.min.X; w > 0 {
		uv.X = (p.X - b.min.X) / w
	}
	if h := b.max.Y - b.min.Y; h > 0 {
		uv.Y = (p.Y - b.min.Y) / h
	}
	return uv
}
