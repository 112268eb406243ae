package sprite

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// shelf is a horizontal strip of a layer holding images left to right.
type shelf struct {
	y      int
	height int
	nextX  int
}

// shelfPacker places rectangles in a fixed area using shelf packing: a
// rectangle goes on the first shelf with room, or on a new shelf below
// the last one.
type shelfPacker struct {
	width, height int
	padding       int
	shelves       []shelf
	placed        int
	usedArea      int
}

func newShelfPacker(width, height, padding int) *shelfPacker {
	if padding < 0 {
		padding = 0
	}
	return &shelfPacker{width: width, height: height, padding: padding}
}

// place returns the top-left corner for a w x h rectangle.
func (p *shelfPacker) place(w, h int) (image.Point, bool) {
	pw, ph := w+p.padding, h+p.padding
	if w > p.width || h > p.height {
		return image.Point{}, false
	}
	for i := range p.shelves {
		s := &p.shelves[i]
		if s.nextX+w > p.width {
			continue
		}
		// An occupied shelf cannot grow taller.
		if h > s.height && s.nextX > 0 {
			continue
		}
		// An empty shelf may grow only if it is the last one.
		if h > s.height && i != len(p.shelves)-1 {
			continue
		}
		if h > s.height && s.y+h > p.height {
			continue
		}
		at := image.Point{X: s.nextX, Y: s.y}
		s.nextX += pw
		if ph > s.height {
			s.height = ph
		}
		p.placed++
		p.usedArea += w * h
		return at, true
	}

	y := 0
	if n := len(p.shelves); n > 0 {
		y = p.shelves[n-1].y + p.shelves[n-1].height
	}
	if y+h > p.height {
		return image.Point{}, false
	}
	p.shelves = append(p.shelves, shelf{y: y, height: ph, nextX: pw})
	p.placed++
	p.usedArea += w * h
	return image.Point{Y: y}, true
}

// utilization returns the fraction of the area covered by placed rectangles.
func (p *shelfPacker) utilization() float64 {
	return float64(p.usedArea) / float64(p.width*p.height)
}

// Index locates an image packed by an ArrayBuilder: the layer it landed on
// and its normalized placement within that layer.
type Index struct {
	Layer  uint32
	Offset Vec2
	Size   Vec2
}

// Source maps r, normalized to the packed image, to layer coordinates.
func (i Index) Source(r Rect) Rect {
	return subRect(i.Region(), r)
}

// Region returns the packed image's rectangle in layer coordinates.
func (i Index) Region() Rect {
	return Rect{X: i.Offset.X, Y: i.Offset.Y, W: i.Size.X, H: i.Size.Y}
}

// ArrayBuilder packs many small images into as few texture layers as
// possible. Each layer is filled with shelf packing; a new layer opens when
// an image fits nowhere on the current one.
type ArrayBuilder struct {
	width, height int
	padding       int
	layers        []*image.RGBA
	packers       []*shelfPacker
	names         map[string]Index
}

// NewArrayBuilder creates a builder for layers of the given size.
func NewArrayBuilder(layerWidth, layerHeight, padding int) *ArrayBuilder {
	return &ArrayBuilder{
		width:   layerWidth,
		height:  layerHeight,
		padding: padding,
		names:   make(map[string]Index),
	}
}

// Add packs img under name and returns where it landed. Adding a name
// twice returns the first placement.
func (b *ArrayBuilder) Add(name string, img *Image) (Index, error) {
	if idx, ok := b.names[name]; ok {
		return idx, nil
	}
	if img.Width() > b.width || img.Height() > b.height {
		return Index{}, fmt.Errorf("%w: %q is %dx%d, layer is %dx%d",
			ErrImageTooBig, name, img.Width(), img.Height(), b.width, b.height)
	}

	layer := len(b.packers) - 1
	var at image.Point
	ok := false
	if layer >= 0 {
		at, ok = b.packers[layer].place(img.Width(), img.Height())
	}
	if !ok {
		b.packers = append(b.packers, newShelfPacker(b.width, b.height, b.padding))
		b.layers = append(b.layers, image.NewRGBA(image.Rect(0, 0, b.width, b.height)))
		layer = len(b.packers) - 1
		at, _ = b.packers[layer].place(img.Width(), img.Height())
	}

	dst := image.Rectangle{Min: at, Max: at.Add(image.Pt(img.Width(), img.Height()))}
	draw.Copy(b.layers[layer], dst.Min, img.RGBA(), img.Bounds(), draw.Src, nil)

	w, h := float32(b.width), float32(b.height)
	idx := Index{
		Layer:  uint32(layer),
		Offset: Vec2{float32(at.X) / w, float32(at.Y) / h},
		Size:   Vec2{float32(img.Width()) / w, float32(img.Height()) / h},
	}
	b.names[name] = idx
	return idx, nil
}

// Index returns the placement of name.
func (b *ArrayBuilder) Index(name string) (Index, error) {
	idx, ok := b.names[name]
	if !ok {
		return Index{}, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return idx, nil
}

// Layers returns the number of layers opened so far.
func (b *ArrayBuilder) Layers() int { return len(b.layers) }

// Utilization returns the covered fraction of layer i.
func (b *ArrayBuilder) Utilization(i int) float64 { return b.packers[i].utilization() }

// Build returns the composed layers in order.
func (b *ArrayBuilder) Build() ([]*Image, error) {
	out := make([]*Image, len(b.layers))
	for i, l := range b.layers {
		img, err := ImageFrom(l)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out[i] = img
	}
	return out, nil
}
