package sprite

// RectU16 is a pixel rectangle in a sprite sheet.
type RectU16 struct {
	X, Y, W, H uint16
}

// Sprite is one cell of a sprite sheet drawn at a position.
type Sprite struct {
	// Source is the cell in sheet pixels.
	Source RectU16

	// Position is the top-left corner in target pixels.
	Position Vec2

	// Scale multiplies the cell size. The zero value draws at 1:1.
	Scale Vec2

	// Rotation is in radians about the sprite center.
	Rotation float32

	// Color tints the sprite.
	Color Color
}

// IntoQuad converts s to a quad. xUnit and yUnit are the size of one
// sheet pixel in normalized units, 1/width and 1/height of the sheet.
func (s Sprite) IntoQuad(xUnit, yUnit float32) Quad {
	scale := s.Scale
	if scale == (Vec2{}) {
		scale = Vec2{1, 1}
	}
	w, h := float32(s.Source.W), float32(s.Source.H)
	return Quad{
		Source: Rect{
			X: float32(s.Source.X) * xUnit,
			Y: float32(s.Source.Y) * yUnit,
			W: w * xUnit,
			H: h * yUnit,
		},
		Position: s.Position,
		Size:     Vec2{w * scale.X, h * scale.Y},
		Rotation: s.Rotation,
		Color:    s.Color,
	}
}
