package gpucore

import (
	"encoding/binary"
	"math"
)

// AttribFormat is the component layout of one vertex attribute.
type AttribFormat uint8

// Attribute formats.
const (
	AttribFloat32 AttribFormat = iota + 1
	AttribFloat32x2
	AttribFloat32x4
	AttribUint32
)

// Size returns the attribute size in bytes.
func (f AttribFormat) Size() uint32 {
	switch f {
	case AttribFloat32, AttribUint32:
		return 4
	case AttribFloat32x2:
		return 8
	case AttribFloat32x4:
		return 16
	default:
		return 0
	}
}

// Components returns the number of scalar components.
func (f AttribFormat) Components() int {
	switch f {
	case AttribFloat32, AttribUint32:
		return 1
	case AttribFloat32x2:
		return 2
	case AttribFloat32x4:
		return 4
	default:
		return 0
	}
}

// StepMode selects whether an attribute advances per vertex or per instance.
type StepMode uint8

// Step modes.
const (
	StepVertex StepMode = iota
	StepInstance
)

// VertexAttribute places one named shader input in a buffer layout.
//
// Name is the slot name used by backends that resolve inputs at link time.
// Location is the fixed index used by backends that bind by number.
type VertexAttribute struct {
	Name     string
	Location uint32
	Format   AttribFormat
	Offset   uint32
}

// VertexBufferLayout describes one vertex stream.
type VertexBufferLayout struct {
	Stride     uint32
	StepMode   StepMode
	Attributes []VertexAttribute
}

// Attribute slot names shared by every shader variant.
const (
	SlotPosition    = "a_Pos"
	SlotUV          = "a_UV"
	SlotVertexColor = "a_VertColor"
	SlotSource      = "a_Src"
	SlotScale       = "a_Scale"
	SlotTranslation = "a_Translation"
	SlotRotation    = "a_Rotation"
	SlotLayer       = "a_Layer"
	SlotColor       = "a_Color"

	// SlotGlobals is the uniform block (or matrix uniform) carrying the MVP.
	SlotGlobals = "u_MVP"

	// SlotTexture is the texture array sampler.
	SlotTexture = "t_Texture"
)

// Fixed shader locations. Quad and mesh pipelines share instance locations.
const (
	LocPosition    = 0
	LocSource      = 1
	LocScale       = 2
	LocTranslation = 3
	LocRotation    = 4
	LocLayer       = 5
	LocColor       = 6
	LocUV          = 7
	LocVertexColor = 8
)

// InstanceFormat selects the optional per-instance fields.
type InstanceFormat struct {
	Rotation bool
	Color    bool
}

// Stride returns the packed size of one instance record.
//
// Layout: source rect (16), scale (8), translation (8), [rotation (4)],
// layer (4), [color (16)].
func (f InstanceFormat) Stride() uint32 {
	s := uint32(16 + 8 + 8 + 4)
	if f.Rotation {
		s += 4
	}
	if f.Color {
		s += 16
	}
	return s
}

// Layout returns the per-instance buffer layout.
func (f InstanceFormat) Layout() VertexBufferLayout {
	attrs := []VertexAttribute{
		{Name: SlotSource, Location: LocSource, Format: AttribFloat32x4, Offset: 0},
		{Name: SlotScale, Location: LocScale, Format: AttribFloat32x2, Offset: 16},
		{Name: SlotTranslation, Location: LocTranslation, Format: AttribFloat32x2, Offset: 24},
	}
	off := uint32(32)
	if f.Rotation {
		attrs = append(attrs, VertexAttribute{Name: SlotRotation, Location: LocRotation, Format: AttribFloat32, Offset: off})
		off += 4
	}
	attrs = append(attrs, VertexAttribute{Name: SlotLayer, Location: LocLayer, Format: AttribUint32, Offset: off})
	off += 4
	if f.Color {
		attrs = append(attrs, VertexAttribute{Name: SlotColor, Location: LocColor, Format: AttribFloat32x4, Offset: off})
	}
	return VertexBufferLayout{Stride: f.Stride(), StepMode: StepInstance, Attributes: attrs}
}

// PipelineKind selects the per-vertex geometry of a pipeline.
type PipelineKind uint8

// Pipeline kinds.
const (
	// PipelineQuad draws the unit quad once per instance.
	PipelineQuad PipelineKind = iota

	// PipelineMesh draws arbitrary mesh geometry once per instance.
	PipelineMesh
)

// String returns the kind name used in labels.
func (k PipelineKind) String() string {
	if k == PipelineMesh {
		return "mesh"
	}
	return "quad"
}

// QuadVertexStride is the size of one unit-quad vertex: position only.
const QuadVertexStride = 8

// MeshVertexStride is the size of one mesh vertex: position, UV, color.
const MeshVertexStride = 8 + 8 + 16

// VertexLayout returns the per-vertex buffer layout for the kind.
func (k PipelineKind) VertexLayout() VertexBufferLayout {
	if k == PipelineMesh {
		return VertexBufferLayout{
			Stride:   MeshVertexStride,
			StepMode: StepVertex,
			Attributes: []VertexAttribute{
				{Name: SlotPosition, Location: LocPosition, Format: AttribFloat32x2, Offset: 0},
				{Name: SlotUV, Location: LocUV, Format: AttribFloat32x2, Offset: 8},
				{Name: SlotVertexColor, Location: LocVertexColor, Format: AttribFloat32x4, Offset: 16},
			},
		}
	}
	return VertexBufferLayout{
		Stride:   QuadVertexStride,
		StepMode: StepVertex,
		Attributes: []VertexAttribute{
			{Name: SlotPosition, Location: LocPosition, Format: AttribFloat32x2, Offset: 0},
		},
	}
}

// PipelineDesc describes an instanced sprite pipeline.
type PipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Kind selects quad or mesh geometry.
	Kind PipelineKind

	// Instance selects the optional per-instance fields.
	Instance InstanceFormat

	// TargetFormat is the color format the pipeline renders into.
	// Zero selects the backend's preferred format.
	TargetFormat TextureFormat
}

// QuadVertices are the unit quad corners in the order (0,0), (1,0), (1,1), (0,1).
var QuadVertices = [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// QuadIndices triangulate QuadVertices.
var QuadIndices = [6]uint32{0, 1, 2, 0, 2, 3}

// QuadVertexBytes returns QuadVertices in wire layout.
func QuadVertexBytes() []byte {
	buf := make([]byte, 0, len(QuadVertices)*QuadVertexStride)
	for _, v := range QuadVertices {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v[0]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v[1]))
	}
	return buf
}

// IndexBytes returns indices as little-endian uint32 data.
func IndexBytes(indices []uint32) []byte {
	buf := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		buf = binary.LittleEndian.AppendUint32(buf, i)
	}
	return buf
}

// GlobalsSize is the size of the Globals uniform block: one column-major
// 4x4 float32 matrix.
const GlobalsSize = 64

// Globals is the uniform block shared by all instances of a draw.
type Globals struct {
	// MVP is the view-projection matrix in column-major order.
	MVP [16]float32
}

// Bytes encodes the block in wire layout.
func (g Globals) Bytes() []byte {
	buf := make([]byte, 0, GlobalsSize)
	for _, v := range g.MVP {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}
