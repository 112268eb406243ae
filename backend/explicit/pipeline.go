//go:build !nogpu

package explicit

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sprite/gpucore"
)

type pipeline struct {
	desc   gpucore.PipelineDesc
	module hal.ShaderModule
	raw    hal.RenderPipeline
}

func (p *pipeline) destroy(device hal.Device) {
	if p.raw != nil {
		device.DestroyRenderPipeline(p.raw)
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
	}
}

// CreatePipeline generates the WGSL module for desc and creates a render
// pipeline against the shared layout. Vertex buffer 0 carries the
// per-vertex geometry, vertex buffer 1 the instance records.
func (b *Backend) CreatePipeline(desc gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	src, err := ShaderSource(desc)
	if err != nil {
		return gpucore.InvalidID, err
	}
	if b.cfg.ValidateShaders {
		if _, err := naga.Compile(src); err != nil {
			return gpucore.InvalidID, fmt.Errorf("explicit: validate %s shader: %w", desc.Kind, err)
		}
	}
	format := desc.TargetFormat
	if format == 0 {
		format = b.cfg.SurfaceFormat
	}
	label := "sprite_" + desc.Kind.String()
	if desc.Label != "" {
		label = desc.Label
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}

	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_shader",
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("explicit: compile %s shader: %w", label, err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	raw, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: b.pipeLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{
				vertexLayout(desc.Kind.VertexLayout()),
				vertexLayout(desc.Instance.Layout()),
			},
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    textureFormat(format),
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		b.device.DestroyShaderModule(module)
		return gpucore.InvalidID, fmt.Errorf("explicit: create %s pipeline: %w", label, err)
	}

	id := gpucore.PipelineID(b.id())
	b.pipelines[id] = &pipeline{desc: desc, module: module, raw: raw}
	b.log.Debug("explicit: pipeline created", "id", uint64(id), "kind", desc.Kind.String(),
		"rotation", desc.Instance.Rotation, "color", desc.Instance.Color)
	return id, nil
}

// DestroyPipeline releases a pipeline.
func (b *Backend) DestroyPipeline(id gpucore.PipelineID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[id]; ok {
		p.destroy(b.device)
		delete(b.pipelines, id)
	}
}

// vertexLayout converts a gpucore layout to its HAL form. Shader
// locations are taken as declared; slot names are not used.
func vertexLayout(l gpucore.VertexBufferLayout) gputypes.VertexBufferLayout {
	step := gputypes.VertexStepModeVertex
	if l.StepMode == gpucore.StepInstance {
		step = gputypes.VertexStepModeInstance
	}
	attrs := make([]gputypes.VertexAttribute, 0, len(l.Attributes))
	for _, a := range l.Attributes {
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         vertexFormat(a.Format),
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(l.Stride),
		StepMode:    step,
		Attributes:  attrs,
	}
}

func vertexFormat(f gpucore.AttribFormat) gputypes.VertexFormat {
	switch f {
	case gpucore.AttribFloat32:
		return gputypes.VertexFormatFloat32
	case gpucore.AttribFloat32x4:
		return gputypes.VertexFormatFloat32x4
	case gpucore.AttribUint32:
		return gputypes.VertexFormatUint32
	default:
		return gputypes.VertexFormatFloat32x2
	}
}

func textureFormat(f gpucore.TextureFormat) gputypes.TextureFormat {
	if f == gpucore.TextureFormatRGBA8Unorm {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return gputypes.TextureFormatBGRA8Unorm
}
