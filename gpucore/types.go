package gpucore

// Resource IDs
//
// These opaque IDs represent backend resources. Each backend maintains a
// mapping between IDs and the actual API objects (GL names, HAL handles).
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureArrayID is an opaque handle to a layered 2D texture plus the
// sampling state it is bound with.
type TextureArrayID uint64

// PipelineID is an opaque handle to a linked program or render pipeline.
type PipelineID uint64

// TargetID is an opaque handle to a render target (swap-chain image or
// offscreen color attachment).
type TargetID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageVertex indicates the buffer feeds vertex or instance attributes.
	BufferUsageVertex BufferUsage = 1 << 0

	// BufferUsageIndex indicates the buffer can be used as an index buffer.
	BufferUsageIndex BufferUsage = 1 << 1

	// BufferUsageUniform indicates the buffer can back a uniform block.
	BufferUsageUniform BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be written from the host.
	BufferUsageCopyDst BufferUsage = 1 << 3
)

// TextureFormat specifies the format of texture and target data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	TextureFormatBGRA8Unorm
)

// BytesPerPixel returns the texel size of the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatBGRA8Unorm:
		return 4
	default:
		return 0
	}
}

// Filter selects texel filtering when sampling a texture array.
type Filter uint8

// Filter modes.
const (
	// FilterNearest picks the closest texel. Pixel art stays crisp.
	FilterNearest Filter = iota

	// FilterLinear blends the four nearest texels.
	FilterLinear
)

// String returns the filter name.
func (f Filter) String() string {
	if f == FilterLinear {
		return "linear"
	}
	return "nearest"
}

// Color is a linear RGBA color with premultiplied alpha.
type Color struct {
	R, G, B, A float32
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage describes how the buffer will be bound.
	Usage BufferUsage
}

// TextureArrayDesc describes a layered 2D texture.
type TextureArrayDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the dimensions of every layer in texels.
	Width, Height uint32

	// Depth is the number of layers.
	Depth uint32

	// Format is the texel format. Zero means TextureFormatRGBA8Unorm.
	Format TextureFormat

	// Filter is the sampling filter applied when the array is bound.
	Filter Filter
}

// TargetDesc describes an offscreen render target.
type TargetDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the target dimensions in pixels.
	Width, Height uint32

	// Format is the color format. Zero selects the backend's preferred format.
	Format TextureFormat
}

// LoadOp specifies what happens to the target at the start of a frame.
type LoadOp uint8

// Load operations.
const (
	// LoadOpClear clears the target to the frame's clear color.
	LoadOpClear LoadOp = iota

	// LoadOpLoad keeps the previous contents.
	LoadOpLoad
)

// FrameDesc describes how a frame begins on a target.
type FrameDesc struct {
	// Target is the color attachment for the frame.
	Target TargetID

	// Load selects clear or load of previous contents.
	Load LoadOp

	// ClearColor is used when Load is LoadOpClear.
	ClearColor Color
}

// DrawCall is one instanced, indexed draw.
//
// The per-vertex stream and the per-instance stream are bound at the given
// byte offsets, so a caller can pack many batches into one buffer.
type DrawCall struct {
	// Pipeline selects the program and vertex layouts.
	Pipeline PipelineID

	// Vertices is the per-vertex buffer.
	Vertices       BufferID
	VerticesOffset uint64

	// Indices is the uint32 index buffer.
	Indices       BufferID
	IndicesOffset uint64
	IndexCount    uint32

	// Instances is the per-instance buffer.
	Instances       BufferID
	InstancesOffset uint64
	InstanceCount   uint32
}

// Capabilities reports backend limits and conventions.
type Capabilities struct {
	// MaxTextureSize is the largest layer dimension in texels.
	MaxTextureSize uint32

	// MaxArrayLayers is the largest texture array depth.
	MaxArrayLayers uint32

	// MaxInstancesPerDraw is the largest instance count of a single draw.
	// Larger batches are split by the caller.
	MaxInstancesPerDraw uint32

	// FlipY reports that offscreen targets store their bottom row first.
	// Callers apply the axis inversion once to the view projection of
	// frames on offscreen targets, so reads come back top row first.
	// Presented targets need no inversion.
	FlipY bool

	// SeparateSamplers reports that samplers and texture views are
	// distinct bindable objects.
	SeparateSamplers bool
}
