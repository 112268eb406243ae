package sprite

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/sprite/gpucore"
)

// Rect is an axis-aligned rectangle. Source rects are normalized to [0,1]
// within a texture layer.
type Rect struct {
	X, Y, W, H float32
}

// FullRect covers a whole layer.
var FullRect = Rect{0, 0, 1, 1}

// Offset returns r moved by v.
func (r Rect) Offset(v Vec2) Rect { return Rect{r.X + v.X, r.Y + v.Y, r.W, r.H} }

// Color is an RGBA color with premultiplied alpha, components in [0,1].
type Color = gpucore.Color

// White leaves sampled texels unchanged.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// InstanceRecord describes one drawn copy of the shared geometry.
//
// Rotation and Color are written to the GPU only when the renderer's
// gpucore.InstanceFormat enables them.
type InstanceRecord struct {
	// Source is the normalized sub-rectangle of the layer to sample.
	Source Rect
	// Scale is the size of the instance in target units.
	Scale Vec2
	// Translation is the position of the unrotated origin corner.
	Translation Vec2
	// Rotation is in radians about the instance center.
	Rotation float32
	// Layer is the texture array layer to sample.
	Layer uint32
	// Color multiplies the sampled texel. The zero value is treated as White.
	Color Color
}

// Transform returns the instance transform the shaders apply.
func (r *InstanceRecord) Transform() Transform {
	return Compose(r.Scale, r.Rotation, r.Translation, PivotCenter)
}

// appendRecord appends r in wire layout for format.
func appendRecord(dst []byte, r *InstanceRecord, format gpucore.InstanceFormat) []byte {
	le := binary.LittleEndian
	f := func(b []byte, v float32) []byte { return le.AppendUint32(b, math.Float32bits(v)) }

	dst = f(dst, r.Source.X)
	dst = f(dst, r.Source.Y)
	dst = f(dst, r.Source.W)
	dst = f(dst, r.Source.H)
	dst = f(dst, r.Scale.X)
	dst = f(dst, r.Scale.Y)
	dst = f(dst, r.Translation.X)
	dst = f(dst, r.Translation.Y)
	if format.Rotation {
		dst = f(dst, r.Rotation)
	}
	dst = le.AppendUint32(dst, r.Layer)
	if format.Color {
		c := r.Color
		if c == (Color{}) {
			c = White
		}
		dst = f(dst, c.R)
		dst = f(dst, c.G)
		dst = f(dst, c.B)
		dst = f(dst, c.A)
	}
	return dst
}

// EncodeInstances appends records in wire layout for format.
func EncodeInstances(dst []byte, records []InstanceRecord, format gpucore.InstanceFormat) []byte {
	need := len(records) * int(format.Stride())
	if cap(dst)-len(dst) < need {
		grown := make([]byte, len(dst), len(dst)+need)
		copy(grown, dst)
		dst = grown
	}
	for i := range records {
		dst = appendRecord(dst, &records[i], format)
	}
	return dst
}
