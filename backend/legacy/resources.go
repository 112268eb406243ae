package legacy

import (
	"fmt"
	"image"

	"github.com/gogpu/sprite/gpucore"
)

type buffer struct {
	handle Buffer
	size   uint64
}

type textureArray struct {
	desc   gpucore.TextureArrayDesc
	handle Texture
}

type target struct {
	fb     Framebuffer
	width  int32
	height int32
}

// CreateBuffer allocates a zeroed buffer. Every buffer is allocated and
// written through the ArrayBuffer binding point, which is not part of
// vertex array state.
func (b *Backend) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("legacy: buffer %q has zero size", desc.Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	h := b.ctx.CreateBuffer()
	b.ctx.BindBuffer(ArrayBuffer, h)
	b.ctx.BufferData(ArrayBuffer, int(desc.Size)) //nolint:gosec // size checked by the context
	if err := b.ctx.Error(); err != nil {
		b.ctx.DeleteBuffer(h)
		return gpucore.InvalidID, fmt.Errorf("legacy: allocate buffer %q: %w", desc.Label, err)
	}
	id := gpucore.BufferID(b.id())
	b.buffers[id] = &buffer{handle: h, size: desc.Size}
	return id, nil
}

// WriteBuffer uploads data at offset.
func (b *Backend) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("legacy: write of %d bytes at %d overflows buffer of %d", len(data), offset, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	b.ctx.BindBuffer(ArrayBuffer, buf.handle)
	b.ctx.BufferSubData(ArrayBuffer, int(offset), data) //nolint:gosec // bounded by size
	return b.ctx.Error()
}

// DestroyBuffer deletes a buffer.
func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[id]; ok {
		b.ctx.DeleteBuffer(buf.handle)
		delete(b.buffers, id)
	}
}

// CreateTextureArray allocates RGBA8 storage for every layer and stores
// the filter on the texture.
func (b *Backend) CreateTextureArray(desc gpucore.TextureArrayDesc) (gpucore.TextureArrayID, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return gpucore.InvalidID, fmt.Errorf("legacy: texture array %q has zero extent", desc.Label)
	}
	if desc.Format != 0 && desc.Format != gpucore.TextureFormatRGBA8Unorm {
		return gpucore.InvalidID, fmt.Errorf("legacy: texture array %q: only RGBA8 is supported", desc.Label)
	}
	caps := b.Capabilities()
	if desc.Width > caps.MaxTextureSize || desc.Height > caps.MaxTextureSize {
		return gpucore.InvalidID, fmt.Errorf("legacy: texture array %q: %dx%d exceeds %d",
			desc.Label, desc.Width, desc.Height, caps.MaxTextureSize)
	}
	if desc.Depth > caps.MaxArrayLayers {
		return gpucore.InvalidID, fmt.Errorf("legacy: texture array %q: %d layers exceeds %d",
			desc.Label, desc.Depth, caps.MaxArrayLayers)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	h := b.ctx.CreateTexture()
	b.bindTexture(h)
	b.ctx.TexStorage3D(int32(desc.Width), int32(desc.Height), int32(desc.Depth)) //nolint:gosec // checked against limits
	b.ctx.TexFilter(desc.Filter == gpucore.FilterLinear)
	if err := b.ctx.Error(); err != nil {
		b.ctx.DeleteTexture(h)
		b.texture = 0
		return gpucore.InvalidID, fmt.Errorf("legacy: allocate texture array %q: %w", desc.Label, err)
	}
	id := gpucore.TextureArrayID(b.id())
	b.arrays[id] = &textureArray{desc: desc, handle: h}
	b.log.Debug("legacy: texture array created", "id", uint64(id),
		"width", desc.Width, "height", desc.Height, "layers", desc.Depth)
	return id, nil
}

// WriteLayer uploads tightly packed RGBA8 pixels for rect into layer.
func (b *Backend) WriteLayer(id gpucore.TextureArrayID, layer uint32, rect image.Rectangle, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.arrays[id]
	if !ok {
		return fmt.Errorf("%w: texture array %d", gpucore.ErrUnknownResource, id)
	}
	if layer >= a.desc.Depth {
		return fmt.Errorf("legacy: layer %d out of range (depth %d)", layer, a.desc.Depth)
	}
	bounds := image.Rect(0, 0, int(a.desc.Width), int(a.desc.Height))
	if rect.Empty() || !rect.In(bounds) {
		return fmt.Errorf("legacy: rect %v outside layer bounds %v", rect, bounds)
	}
	if want := rect.Dx() * rect.Dy() * 4; len(pixels) != want {
		return fmt.Errorf("legacy: layer upload has %d bytes, want %d", len(pixels), want)
	}
	b.bindTexture(a.handle)
	b.ctx.TexSubImage3D(int32(rect.Min.X), int32(rect.Min.Y), int32(layer), //nolint:gosec // within bounds
		int32(rect.Dx()), int32(rect.Dy()), pixels) //nolint:gosec // within bounds
	return b.ctx.Error()
}

// DestroyTextureArray deletes a texture array.
func (b *Backend) DestroyTextureArray(id gpucore.TextureArrayID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.arrays[id]
	if !ok {
		return
	}
	if b.texture == a.handle {
		b.texture = 0
	}
	b.ctx.DeleteTexture(a.handle)
	delete(b.arrays, id)
}

// CreateTarget allocates a framebuffer with one RGBA8 color attachment.
func (b *Backend) CreateTarget(desc gpucore.TargetDesc) (gpucore.TargetID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("legacy: target %q has zero extent", desc.Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	fb, err := b.ctx.CreateFramebuffer(int32(desc.Width), int32(desc.Height)) //nolint:gosec // target sizes fit
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("legacy: create target %q: %w", desc.Label, err)
	}
	id := gpucore.TargetID(b.id())
	b.targets[id] = &target{fb: fb, width: int32(desc.Width), height: int32(desc.Height)} //nolint:gosec // as above
	return id, nil
}

// DefaultTarget registers the default framebuffer at the given size and
// returns its ID. Frames on it are presented through Config.Swap. The
// default framebuffer has a top-left origin from the caller's point of
// view, so wrap it with Renderer.WrapTarget rather than NewTarget.
func (b *Backend) DefaultTarget(width, height int) gpucore.TargetID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := gpucore.TargetID(b.id())
	b.targets[id] = &target{fb: 0, width: int32(width), height: int32(height)} //nolint:gosec // window sizes fit
	return id
}

// DestroyTarget deletes a target's framebuffer.
func (b *Backend) DestroyTarget(id gpucore.TargetID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[id]
	if !ok {
		return
	}
	if t.fb != 0 {
		b.ctx.DeleteFramebuffer(t.fb)
	}
	delete(b.targets, id)
}

// ReadTarget copies an offscreen target to host memory. Rows come back in
// memory order; frames drawn with the inverted projection therefore read
// top row first.
func (b *Backend) ReadTarget(id gpucore.TargetID) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame != nil {
		return nil, gpucore.ErrFrameInProgress
	}
	t, ok := b.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: target %d", gpucore.ErrUnknownResource, id)
	}
	if t.fb == 0 {
		return nil, fmt.Errorf("legacy: target %d is the default framebuffer", id)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	b.ctx.BindFramebuffer(t.fb)
	b.ctx.ReadPixels(0, 0, t.width, t.height, img.Pix)
	if err := b.ctx.Error(); err != nil {
		return nil, fmt.Errorf("legacy: read target %d: %w", id, err)
	}
	return img, nil
}
