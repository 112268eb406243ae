package sprite

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"

	"golang.org/x/image/draw"
)

// ImageKey identifies image content. Equal keys share one texture layer.
type ImageKey uint64

// Image is decoded RGBA8 pixel data with premultiplied alpha, rows tightly
// packed top to bottom, as in image.RGBA. Package assets decodes files.
type Image struct {
	width, height int
	pix           []byte
	key           ImageKey
}

// NewImage wraps pix, which must hold width*height*4 bytes.
func NewImage(width, height int, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidImage, width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidImage, len(pix), width, height)
	}
	img := &Image{width: width, height: height, pix: pix}
	img.key = img.contentKey()
	return img, nil
}

// ImageFrom converts any image.Image to RGBA8.
func ImageFrom(src image.Image) (*Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	var rgba *image.RGBA
	if r, ok := src.(*image.RGBA); ok && r.Stride == b.Dx()*4 {
		rgba = r
	} else {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	img := &Image{width: b.Dx(), height: b.Dy(), pix: rgba.Pix[:b.Dx()*b.Dy()*4]}
	img.key = img.contentKey()
	return img, nil
}

// WithKey returns a copy of i that uses k instead of the content hash.
// Loaders use it to key assets by name.
func (i *Image) WithKey(k ImageKey) *Image {
	c := *i
	c.key = k
	return &c
}

// Width returns the width in pixels.
func (i *Image) Width() int { return i.width }

// Height returns the height in pixels.
func (i *Image) Height() int { return i.height }

// Pix returns the pixel data.
func (i *Image) Pix() []byte { return i.pix }

// Bounds returns the image rectangle at the origin.
func (i *Image) Bounds() image.Rectangle { return image.Rect(0, 0, i.width, i.height) }

// RGBA returns an *image.RGBA view sharing the pixel data.
func (i *Image) RGBA() *image.RGBA {
	return &image.RGBA{Pix: i.pix, Stride: i.width * 4, Rect: i.Bounds()}
}

// Key returns the content key: the explicit key if one was set, otherwise
// an FNV-1a hash of the dimensions and pixels taken at construction.
func (i *Image) Key() ImageKey { return i.key }

func (i *Image) contentKey() ImageKey {
	h := fnv.New64a()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:], uint32(i.width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(i.height))
	h.Write(dims[:])
	h.Write(i.pix)
	return ImageKey(h.Sum64())
}
