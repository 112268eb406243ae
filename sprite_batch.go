package sprite

// SpriteBatch draws cells of one sprite sheet.
type SpriteBatch struct {
	*Batch
	xUnit, yUnit float32
}

// NewSpriteBatch creates a batch for the sheet image.
func NewSpriteBatch(r *Renderer, sheet *Image, opts ...Option) (*SpriteBatch, error) {
	b, err := NewBatch(r, sheet, opts...)
	if err != nil {
		return nil, err
	}
	return &SpriteBatch{
		Batch: b,
		xUnit: 1 / float32(sheet.Width()),
		yUnit: 1 / float32(sheet.Height()),
	}, nil
}

// AddSprite appends s.
func (b *SpriteBatch) AddSprite(s Sprite) error {
	return b.Add(s.IntoQuad(b.xUnit, b.yUnit))
}

// AddSprites appends every sprite, stopping at the first error.
func (b *SpriteBatch) AddSprites(sprites []Sprite) error {
	for _, s := range sprites {
		if err := b.AddSprite(s); err != nil {
			return err
		}
	}
	return nil
}
