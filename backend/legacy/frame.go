package legacy

import (
	"errors"
	"fmt"

	"github.com/gogpu/sprite/gpucore"
)

var errUnbound = errors.New("legacy: draw without globals or texture array bound")

type frame struct {
	target  *target
	globals gpucore.Globals
	bound   bool
	array   *textureArray
	draws   int
}

// BeginFrame binds the target's framebuffer, sets the viewport and blend
// state and clears if asked to.
func (b *Backend) BeginFrame(desc gpucore.FrameDesc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	if b.frame != nil {
		return gpucore.ErrFrameInProgress
	}
	t, ok := b.targets[desc.Target]
	if !ok {
		return fmt.Errorf("%w: target %d", gpucore.ErrUnknownResource, desc.Target)
	}
	b.ctx.BindFramebuffer(t.fb)
	b.ctx.Viewport(0, 0, t.width, t.height)
	b.ctx.EnableBlend()
	if desc.Load == gpucore.LoadOpClear {
		c := desc.ClearColor
		b.ctx.ClearColor(c.R, c.G, c.B, c.A)
		b.ctx.Clear()
	}
	if err := b.ctx.Error(); err != nil {
		return fmt.Errorf("legacy: begin frame: %w", err)
	}
	b.frame = &frame{target: t}
	return nil
}

// BindGlobals records g. Programs upload it to u_MVP at their next draw
// if it differs from what they last saw.
func (b *Backend) BindGlobals(g gpucore.Globals) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return gpucore.ErrNoFrame
	}
	b.frame.globals = g
	b.frame.bound = true
	return nil
}

// BindTextureArray binds the array to unit 0.
func (b *Backend) BindTextureArray(id gpucore.TextureArrayID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return gpucore.ErrNoFrame
	}
	a, ok := b.arrays[id]
	if !ok {
		return fmt.Errorf("%w: texture array %d", gpucore.ErrUnknownResource, id)
	}
	b.bindTexture(a.handle)
	b.frame.array = a
	return nil
}

// DrawInstanced points the program's named inputs at both streams and
// issues one instanced element draw.
func (b *Backend) DrawInstanced(call gpucore.DrawCall) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil {
		return gpucore.ErrNoFrame
	}
	if call.InstanceCount == 0 || call.IndexCount == 0 {
		return nil
	}
	if !f.bound || f.array == nil {
		return errUnbound
	}
	p, ok := b.pipelines[call.Pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownResource, call.Pipeline)
	}
	verts, ok := b.buffers[call.Vertices]
	if !ok {
		return fmt.Errorf("%w: vertex buffer %d", gpucore.ErrUnknownResource, call.Vertices)
	}
	indices, ok := b.buffers[call.Indices]
	if !ok {
		return fmt.Errorf("%w: index buffer %d", gpucore.ErrUnknownResource, call.Indices)
	}
	instances, ok := b.buffers[call.Instances]
	if !ok {
		return fmt.Errorf("%w: instance buffer %d", gpucore.ErrUnknownResource, call.Instances)
	}
	if call.InstanceCount > b.cfg.MaxInstancesPerDraw {
		return fmt.Errorf("legacy: %d instances exceeds %d per draw", call.InstanceCount, b.cfg.MaxInstancesPerDraw)
	}

	if b.current != p {
		b.ctx.UseProgram(p.handle)
		b.ctx.BindVertexArray(p.vao)
		b.current = p
	}
	if !p.uploaded || p.globals != f.globals {
		b.ctx.UniformMatrix4(p.mvp, &f.globals.MVP)
		p.globals = f.globals
		p.uploaded = true
	}
	// Another array may have been bound by an upload since BindTextureArray.
	b.bindTexture(f.array.handle)

	b.bindStream(p.vertex, verts.handle, call.VerticesOffset)
	b.bindStream(p.instance, instances.handle, call.InstancesOffset)
	b.ctx.BindBuffer(ElementArrayBuffer, indices.handle)
	b.ctx.DrawElementsInstanced(int32(call.IndexCount), int(call.IndicesOffset), int32(call.InstanceCount)) //nolint:gosec // capped above
	if err := b.ctx.Error(); err != nil {
		return fmt.Errorf("legacy: draw %d instances: %w", call.InstanceCount, err)
	}
	f.draws++
	return nil
}

// Present flushes the context and swaps the window for frames on the
// default framebuffer.
func (b *Backend) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil {
		return gpucore.ErrNoFrame
	}
	b.frame = nil
	b.ctx.Flush()
	if err := b.ctx.Error(); err != nil {
		b.log.Error("legacy: frame lost", "draws", f.draws, "err", err)
		return fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, err)
	}
	if f.target.fb == 0 && b.cfg.Swap != nil {
		if err := b.cfg.Swap(); err != nil {
			return fmt.Errorf("legacy: swap: %w", err)
		}
	}
	b.log.Debug("legacy: frame presented", "draws", f.draws)
	return nil
}
