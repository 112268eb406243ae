//go:build !nogpu

package explicit

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sprite/gpucore"
)

var errClosed = errors.New("explicit: backend closed")

// copyPitchAlignment is the required BytesPerRow alignment for
// texture-to-buffer copies.
const copyPitchAlignment = 256

type buffer struct {
	raw  hal.Buffer
	size uint64
}

type textureArray struct {
	desc  gpucore.TextureArrayDesc
	tex   hal.Texture
	view  hal.TextureView
	group hal.BindGroup
}

func (a *textureArray) destroy(device hal.Device) {
	if a.group != nil {
		device.DestroyBindGroup(a.group)
	}
	if a.view != nil {
		device.DestroyTextureView(a.view)
	}
	if a.tex != nil {
		device.DestroyTexture(a.tex)
	}
}

type target struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
	format gpucore.TextureFormat
	owned  bool
}

func (t *target) destroy(device hal.Device) {
	if !t.owned {
		return
	}
	if t.view != nil {
		device.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		device.DestroyTexture(t.tex)
	}
}

// CreateBuffer allocates a device buffer. Sizes are rounded up to 4 bytes.
func (b *Backend) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	size := (desc.Size + 3) &^ 3
	var usage gputypes.BufferUsage
	if desc.Usage&gpucore.BufferUsageVertex != 0 {
		usage |= gputypes.BufferUsageVertex
	}
	if desc.Usage&gpucore.BufferUsageIndex != 0 {
		usage |= gputypes.BufferUsageIndex
	}
	if desc.Usage&gpucore.BufferUsageUniform != 0 {
		usage |= gputypes.BufferUsageUniform
	}
	usage |= gputypes.BufferUsageCopyDst

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("explicit: create buffer %q: %w", desc.Label, err)
	}
	id := gpucore.BufferID(b.id())
	b.buffers[id] = &buffer{raw: raw, size: size}
	return id, nil
}

// WriteBuffer queues a write of data at offset. The write lands before any
// command buffer submitted afterwards.
func (b *Backend) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("explicit: write [%d,%d) past buffer size %d", offset, offset+uint64(len(data)), buf.size)
	}
	if len(data) > 0 {
		b.queue.WriteBuffer(buf.raw, offset, data)
	}
	return nil
}

// DestroyBuffer releases a buffer.
func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[id]; ok {
		b.device.DestroyBuffer(buf.raw)
		delete(b.buffers, id)
	}
}

// CreateTextureArray allocates a layered texture, a 2D-array view over all
// layers and the group 1 bind group pairing the view with the sampler for
// desc.Filter.
func (b *Backend) CreateTextureArray(desc gpucore.TextureArrayDesc) (gpucore.TextureArrayID, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return gpucore.InvalidID, fmt.Errorf("explicit: texture array %q: zero extent %dx%dx%d",
			desc.Label, desc.Width, desc.Height, desc.Depth)
	}
	if desc.Format == 0 {
		desc.Format = gpucore.TextureFormatRGBA8Unorm
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	smp, err := b.sampler(desc.Filter)
	if err != nil {
		return gpucore.InvalidID, err
	}

	a := &textureArray{desc: desc}
	a.tex, err = b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Depth},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("explicit: create texture array %q: %w", desc.Label, err)
	}
	a.view, err = b.device.CreateTextureView(a.tex, &hal.TextureViewDescriptor{
		Label:           desc.Label + "_view",
		Format:          textureFormat(desc.Format),
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: desc.Depth,
	})
	if err != nil {
		a.destroy(b.device)
		return gpucore.InvalidID, fmt.Errorf("explicit: create texture array view %q: %w", desc.Label, err)
	}
	a.group, err = b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  desc.Label + "_bind",
		Layout: b.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: bindingView, Resource: gputypes.TextureViewBinding{
				TextureView: gputypes.TextureViewHandle(a.view.NativeHandle()),
			}},
			{Binding: bindingSampler, Resource: gputypes.SamplerBinding{
				Sampler: gputypes.SamplerHandle(smp.NativeHandle()),
			}},
		},
	})
	if err != nil {
		a.destroy(b.device)
		return gpucore.InvalidID, fmt.Errorf("explicit: create texture array bind group %q: %w", desc.Label, err)
	}

	id := gpucore.TextureArrayID(b.id())
	b.arrays[id] = a
	b.log.Debug("explicit: texture array created", "id", uint64(id),
		"width", desc.Width, "height", desc.Height, "depth", desc.Depth, "filter", desc.Filter.String())
	return id, nil
}

// WriteLayer queues an upload of tightly packed RGBA8 pixels into rect of
// layer.
func (b *Backend) WriteLayer(id gpucore.TextureArrayID, layer uint32, rect image.Rectangle, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.arrays[id]
	if !ok {
		return fmt.Errorf("%w: texture array %d", gpucore.ErrUnknownResource, id)
	}
	if layer >= a.desc.Depth {
		return fmt.Errorf("explicit: layer %d out of range (depth %d)", layer, a.desc.Depth)
	}
	bounds := image.Rect(0, 0, int(a.desc.Width), int(a.desc.Height))
	if rect.Empty() || !rect.In(bounds) {
		return fmt.Errorf("explicit: rect %v outside layer %v", rect, bounds)
	}
	w, h := uint32(rect.Dx()), uint32(rect.Dy()) //nolint:gosec // bounded by layer size
	if len(pixels) != int(w*h*4) {
		return fmt.Errorf("explicit: pixel data %d bytes, want %d", len(pixels), w*h*4)
	}
	b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  a.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(rect.Min.X), Y: uint32(rect.Min.Y), Z: layer}, //nolint:gosec // checked by rect.In
			Aspect:   gputypes.TextureAspectAll,
		},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

// DestroyTextureArray releases the texture, its view and bind group. The
// shared sampler stays alive.
func (b *Backend) DestroyTextureArray(id gpucore.TextureArrayID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.arrays[id]; ok {
		a.destroy(b.device)
		delete(b.arrays, id)
	}
}

// CreateTarget allocates an offscreen color target that can be read back.
func (b *Backend) CreateTarget(desc gpucore.TargetDesc) (gpucore.TargetID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("explicit: target %q: zero size", desc.Label)
	}
	format := desc.Format
	if format == 0 {
		format = b.cfg.SurfaceFormat
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return gpucore.InvalidID, errClosed
	}
	t := &target{width: desc.Width, height: desc.Height, format: format, owned: true}
	var err error
	t.tex, err = b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(format),
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("explicit: create target %q: %w", desc.Label, err)
	}
	t.view, err = b.device.CreateTextureView(t.tex, &hal.TextureViewDescriptor{
		Label: desc.Label + "_view",
	})
	if err != nil {
		t.destroy(b.device)
		return gpucore.InvalidID, fmt.Errorf("explicit: create target view %q: %w", desc.Label, err)
	}
	id := gpucore.TargetID(b.id())
	b.targets[id] = t
	return id, nil
}

// WrapView registers a view owned by the host, typically the current
// swap-chain image, as a target. The backend never destroys it.
func (b *Backend) WrapView(view hal.TextureView, width, height uint32) gpucore.TargetID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := gpucore.TargetID(b.id())
	b.targets[id] = &target{view: view, width: width, height: height, format: b.cfg.SurfaceFormat}
	return id
}

// DestroyTarget releases a target. Wrapped views are only forgotten.
func (b *Backend) DestroyTarget(id gpucore.TargetID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.targets[id]; ok {
		t.destroy(b.device)
		delete(b.targets, id)
	}
}

// ReadTarget copies an offscreen target to host memory. It must not be
// called while a frame is in progress.
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
	if t.tex == nil {
		return nil, fmt.Errorf("explicit: target %d wraps a host view and cannot be read", id)
	}

	bytesPerRow := t.width * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(t.height)

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "sprite_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("explicit: create staging buffer: %w", err)
	}
	defer b.device.DestroyBuffer(staging)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sprite_readback"})
	if err != nil {
		return nil, fmt.Errorf("explicit: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("sprite_readback"); err != nil {
		return nil, fmt.Errorf("explicit: begin encoding: %w", err)
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: t.height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("explicit: end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmd)
	if err := b.submit(cmd); err != nil {
		return nil, err
	}

	readback := make([]byte, stagingSize)
	if err := b.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("explicit: readback: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	for y := 0; y < int(t.height); y++ {
		src := readback[y*int(alignedBytesPerRow) : y*int(alignedBytesPerRow)+int(bytesPerRow)]
		dst := img.Pix[y*img.Stride : y*img.Stride+int(bytesPerRow)]
		copy(dst, src)
		if t.format == gpucore.TextureFormatBGRA8Unorm {
			for i := 0; i < len(dst); i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return img, nil
}

// submit sends cmd and waits for it to complete. Failures are reported as
// device loss; the frame's work is gone and nothing is retried.
func (b *Backend) submit(cmd hal.CommandBuffer) error {
	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: create fence: %w", gpucore.ErrDeviceLost, err)
	}
	defer b.device.DestroyFence(fence)

	if err := b.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return fmt.Errorf("%w: submit: %w", gpucore.ErrDeviceLost, err)
	}
	ok, err := b.device.Wait(fence, 1, b.cfg.SubmitTimeout)
	if err != nil {
		return fmt.Errorf("%w: wait: %w", gpucore.ErrDeviceLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: fence not signaled after %v", gpucore.ErrDeviceLost, b.cfg.SubmitTimeout)
	}
	return nil
}
