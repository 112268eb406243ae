package gpucore

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestInstanceFormatStride(t *testing.T) {
	tests := []struct {
		name   string
		format InstanceFormat
		want   uint32
	}{
		{"base", InstanceFormat{}, 36},
		{"rotation", InstanceFormat{Rotation: true}, 40},
		{"color", InstanceFormat{Color: true}, 52},
		{"full", InstanceFormat{Rotation: true, Color: true}, 56},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.Stride(); got != tt.want {
				t.Errorf("Stride() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstanceLayoutIsContiguous(t *testing.T) {
	for _, f := range []InstanceFormat{{}, {Rotation: true}, {Color: true}, {Rotation: true, Color: true}} {
		layout := f.Layout()
		if layout.StepMode != StepInstance {
			t.Errorf("%+v: StepMode = %d, want StepInstance", f, layout.StepMode)
		}
		var off uint32
		for _, a := range layout.Attributes {
			if a.Offset != off {
				t.Errorf("%+v: %s offset = %d, want %d", f, a.Name, a.Offset, off)
			}
			off += a.Format.Size()
		}
		if off != layout.Stride {
			t.Errorf("%+v: attributes end at %d, stride %d", f, off, layout.Stride)
		}
	}
}

func TestInstanceLayoutOptionalSlots(t *testing.T) {
	has := func(l VertexBufferLayout, name string) bool {
		for _, a := range l.Attributes {
			if a.Name == name {
				return true
			}
		}
		return false
	}

	base := InstanceFormat{}.Layout()
	if has(base, SlotRotation) || has(base, SlotColor) {
		t.Error("base layout should not carry rotation or color")
	}
	full := InstanceFormat{Rotation: true, Color: true}.Layout()
	if !has(full, SlotRotation) || !has(full, SlotColor) {
		t.Error("full layout should carry rotation and color")
	}
}

func TestVertexLayouts(t *testing.T) {
	if got := PipelineQuad.VertexLayout().Stride; got != QuadVertexStride {
		t.Errorf("quad stride = %d, want %d", got, QuadVertexStride)
	}
	mesh := PipelineMesh.VertexLayout()
	if mesh.Stride != MeshVertexStride {
		t.Errorf("mesh stride = %d, want %d", mesh.Stride, MeshVertexStride)
	}
	if len(mesh.Attributes) != 3 {
		t.Errorf("mesh attributes = %d, want 3", len(mesh.Attributes))
	}
}

func TestGlobalsBytes(t *testing.T) {
	var g Globals
	for i := range g.MVP {
		g.MVP[i] = float32(i)
	}
	b := g.Bytes()
	if len(b) != GlobalsSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), GlobalsSize)
	}
	for i := range g.MVP {
		got := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		if got != float32(i) {
			t.Errorf("element %d = %v, want %d", i, got, i)
		}
	}
}

func TestQuadVertexBytes(t *testing.T) {
	b := QuadVertexBytes()
	if len(b) != 4*QuadVertexStride {
		t.Fatalf("len = %d, want %d", len(b), 4*QuadVertexStride)
	}
	// Third corner is (1,1).
	x := math.Float32frombits(binary.LittleEndian.Uint32(b[16:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(b[20:]))
	if x != 1 || y != 1 {
		t.Errorf("vertex 2 = (%v,%v), want (1,1)", x, y)
	}
	if got := len(IndexBytes(QuadIndices[:])); got != 24 {
		t.Errorf("len(IndexBytes) = %d, want 24", got)
	}
}
