package sprite

// Quad is a textured rectangle in target pixels.
type Quad struct {
	// Source is the region of the image to show, normalized to the image.
	// The zero value shows the whole image.
	Source Rect

	// Position is the top-left corner of the unrotated quad.
	Position Vec2

	// Size is the quad size in pixels.
	Size Vec2

	// Rotation is in radians about the quad center.
	Rotation float32

	// Color tints the quad. The zero value leaves texels unchanged.
	Color Color
}

// record returns the instance for q when its image occupies region of
// layer.
func (q Quad) record(region Rect, layer uint32) InstanceRecord {
	src := q.Source
	if src == (Rect{}) {
		src = FullRect
	}
	return InstanceRecord{
		Source:      subRect(region, src),
		Scale:       q.Size,
		Translation: q.Position,
		Rotation:    q.Rotation,
		Layer:       layer,
		Color:       q.Color,
	}
}

// subRect maps inner, normalized to outer, into outer's space.
func subRect(outer, inner Rect) Rect {
	return Rect{
		X: outer.X + inner.X*outer.W,
		Y: outer.Y + inner.Y*outer.H,
		W: inner.W * outer.W,
		H: inner.H * outer.H,
	}
}
