//go:build !nogpu

package explicit

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sprite/gpucore"
)

var errUnbound = errors.New("explicit: draw without globals or texture array bound")

// frame is the command encoder and render pass of a frame in progress.
type frame struct {
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	pipeline gpucore.PipelineID
	array    gpucore.TextureArrayID
	globals  bool
	draws    int
}

func (f *frame) discard() {
	if f.pass != nil {
		f.pass.End()
		f.pass = nil
	}
	f.encoder.DiscardEncoding()
}

// BeginFrame opens a command encoder and a render pass on desc.Target.
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

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sprite_encoder"})
	if err != nil {
		return fmt.Errorf("explicit: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("sprite_frame"); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("explicit: begin encoding: %w", err)
	}

	load := gputypes.LoadOpClear
	if desc.Load == gpucore.LoadOpLoad {
		load = gputypes.LoadOpLoad
	}
	c := desc.ClearColor
	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "sprite_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)},
		}},
	})
	b.frame = &frame{encoder: encoder, pass: pass}
	b.uniformCursor = 0
	return nil
}

// BindGlobals writes g into the next uniform slot and binds that slot's
// group 0. Slots are recycled at Present, so a frame can bind at most
// Config.GlobalsPerFrame blocks.
func (b *Backend) BindGlobals(g gpucore.Globals) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return gpucore.ErrNoFrame
	}
	if b.uniformCursor >= len(b.uniformGroups) {
		return fmt.Errorf("explicit: %d globals bound this frame, limit is %d",
			b.uniformCursor+1, len(b.uniformGroups))
	}
	slot := b.uniformCursor
	b.uniformCursor++
	b.queue.WriteBuffer(b.uniforms, uint64(slot)*uniformAlign, g.Bytes())
	b.frame.pass.SetBindGroup(groupGlobals, b.uniformGroups[slot], nil)
	b.frame.globals = true
	return nil
}

// BindTextureArray binds the array's view and sampler as group 1.
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
	b.frame.pass.SetBindGroup(groupTexture, a.group, nil)
	b.frame.array = id
	return nil
}

// DrawInstanced binds the pipeline and both vertex streams and issues one
// indexed draw of call.InstanceCount instances.
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
	if !f.globals || f.array == gpucore.InvalidID {
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

	if f.pipeline != call.Pipeline {
		f.pass.SetPipeline(p.raw)
		f.pipeline = call.Pipeline
	}
	f.pass.SetVertexBuffer(slotVertices, verts.raw, call.VerticesOffset)
	f.pass.SetVertexBuffer(slotInstances, instances.raw, call.InstancesOffset)
	f.pass.SetIndexBuffer(indices.raw, gputypes.IndexFormatUint32, call.IndicesOffset)
	f.pass.DrawIndexed(call.IndexCount, call.InstanceCount, 0, 0, 0)
	f.draws++
	return nil
}

// Present ends the render pass, submits the frame and waits for it to
// complete. Uniform slots are recycled.
func (b *Backend) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil {
		return gpucore.ErrNoFrame
	}
	b.frame = nil
	b.uniformCursor = 0

	f.pass.End()
	f.pass = nil
	cmd, err := f.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("explicit: end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmd)
	if err := b.submit(cmd); err != nil {
		b.log.Error("explicit: frame lost", "draws", f.draws, "err", err)
		return err
	}
	b.log.Debug("explicit: frame presented", "draws", f.draws)
	return nil
}
