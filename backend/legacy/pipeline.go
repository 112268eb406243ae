package legacy

import (
	"fmt"

	"github.com/gogpu/sprite/gpucore"
)

// slot is a vertex input resolved by name when the program linked.
type slot struct {
	name     string
	location uint32
	size     int32
	typ      AttribType
	offset   int
}

// stream is one vertex buffer's worth of resolved inputs.
type stream struct {
	stride int32
	slots  []slot
}

type program struct {
	desc     gpucore.PipelineDesc
	handle   Program
	vao      VertexArray
	vertex   stream
	instance stream

	mvp     int32
	texture int32

	// globals last uploaded to this program's u_MVP.
	globals  gpucore.Globals
	uploaded bool
}

// resolve looks up every input of layout by slot name.
func (b *Backend) resolve(p Program, layout gpucore.VertexBufferLayout) (stream, error) {
	s := stream{stride: int32(layout.Stride)} //nolint:gosec // strides are small constants
	for _, a := range layout.Attributes {
		loc := b.ctx.AttribLocation(p, a.Name)
		if loc < 0 {
			return stream{}, fmt.Errorf("legacy: input %q not active in program", a.Name)
		}
		typ := Float
		if a.Format == gpucore.AttribUint32 {
			typ = UnsignedInt
		}
		s.slots = append(s.slots, slot{
			name:     a.Name,
			location: uint32(loc),
			size:     int32(a.Format.Components()), //nolint:gosec // at most 4
			typ:      typ,
			offset:   int(a.Offset),
		})
	}
	return s, nil
}

// CreatePipeline compiles and links the GLSL program for desc and resolves
// its inputs and uniforms by name. The vertex array records which inputs
// advance per instance; buffer offsets are bound per draw.
func (b *Backend) CreatePipeline(desc gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	vs, fs, err := ShaderSource(desc)
	if err != nil {
		return gpucore.InvalidID, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}

	h, err := b.ctx.CreateProgram(vs, fs)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("legacy: link %s program: %w", desc.Kind, err)
	}
	p := &program{desc: desc, handle: h}
	fail := func(err error) (gpucore.PipelineID, error) {
		b.ctx.DeleteProgram(h)
		if p.vao != 0 {
			b.ctx.DeleteVertexArray(p.vao)
		}
		return gpucore.InvalidID, err
	}

	if p.vertex, err = b.resolve(h, desc.Kind.VertexLayout()); err != nil {
		return fail(err)
	}
	if p.instance, err = b.resolve(h, desc.Instance.Layout()); err != nil {
		return fail(err)
	}
	if p.mvp = b.ctx.UniformLocation(h, gpucore.SlotGlobals); p.mvp < 0 {
		return fail(fmt.Errorf("legacy: uniform %q not active in program", gpucore.SlotGlobals))
	}
	if p.texture = b.ctx.UniformLocation(h, gpucore.SlotTexture); p.texture < 0 {
		return fail(fmt.Errorf("legacy: uniform %q not active in program", gpucore.SlotTexture))
	}

	b.ctx.UseProgram(h)
	b.ctx.Uniform1i(p.texture, textureUnit)
	p.vao = b.ctx.CreateVertexArray()
	b.ctx.BindVertexArray(p.vao)
	for _, s := range p.vertex.slots {
		b.ctx.EnableVertexAttribArray(s.location)
	}
	for _, s := range p.instance.slots {
		b.ctx.EnableVertexAttribArray(s.location)
		b.ctx.VertexAttribDivisor(s.location, 1)
	}
	b.current = nil
	if err := b.ctx.Error(); err != nil {
		return fail(fmt.Errorf("legacy: set up %s program: %w", desc.Kind, err))
	}

	id := gpucore.PipelineID(b.id())
	b.pipelines[id] = p
	b.log.Debug("legacy: program linked", "id", uint64(id), "kind", desc.Kind.String(),
		"inputs", len(p.vertex.slots)+len(p.instance.slots))
	return id, nil
}

// DestroyPipeline deletes the program and its vertex array.
func (b *Backend) DestroyPipeline(id gpucore.PipelineID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pipelines[id]
	if !ok {
		return
	}
	if b.current == p {
		b.current = nil
	}
	b.ctx.DeleteVertexArray(p.vao)
	b.ctx.DeleteProgram(p.handle)
	delete(b.pipelines, id)
}

// bindStream points every input of s at buf, offset bytes in.
func (b *Backend) bindStream(s stream, buf Buffer, offset uint64) {
	b.ctx.BindBuffer(ArrayBuffer, buf)
	for _, sl := range s.slots {
		b.ctx.VertexAttribPointer(sl.location, sl.size, sl.typ, s.stride, int(offset)+sl.offset) //nolint:gosec // offsets fit in int
	}
}
