// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package explicit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // Register Vulkan HAL backend.

	"github.com/gogpu/sprite/backend"
	"github.com/gogpu/sprite/gpucore"
)

func init() {
	backend.Register(backend.NameExplicit, func() (gpucore.Backend, error) {
		return Open(DefaultConfig())
	})
}

// uniformAlign is the dynamic offset alignment required for uniform
// buffer bindings.
const uniformAlign = 256

// Config tunes the explicit backend.
type Config struct {
	// GlobalsPerFrame is the number of distinct uniform blocks a frame can
	// bind. Each BindGlobals call takes one slot; slots are recycled at
	// Present.
	GlobalsPerFrame int

	// SurfaceFormat is the preferred color format for targets and
	// pipelines that do not name one.
	SurfaceFormat gpucore.TextureFormat

	// ValidateShaders compiles generated WGSL with naga before handing it
	// to the device, so translation errors surface with a source-level
	// message. DefaultConfig turns it on; a zero Config leaves it off.
	ValidateShaders bool

	// SubmitTimeout bounds the wait for a frame's fence.
	SubmitTimeout time.Duration
}

// DefaultConfig returns the configuration used by the registry factory.
func DefaultConfig() Config {
	return Config{
		GlobalsPerFrame: 64,
		SurfaceFormat:   gpucore.TextureFormatBGRA8Unorm,
		ValidateShaders: true,
		SubmitTimeout:   5 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.GlobalsPerFrame <= 0 {
		c.GlobalsPerFrame = d.GlobalsPerFrame
	}
	if c.SurfaceFormat == 0 {
		c.SurfaceFormat = d.SurfaceFormat
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	return c
}

// Backend implements gpucore.Backend on a gogpu/wgpu HAL device.
//
// Bindings are fixed when a pipeline is created: the Globals block lives
// in group 0, the texture array view and its sampler in group 1. Sampler
// and view are separate objects; every texture array owns its group 1
// bind group, so binding an array is a single SetBindGroup.
type Backend struct {
	mu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	cfg      Config
	limits   gputypes.Limits
	log      *slog.Logger
	owned    bool
	instance hal.Instance

	globalsLayout hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	samplers      map[gpucore.Filter]hal.Sampler

	uniforms      hal.Buffer
	uniformGroups []hal.BindGroup
	uniformCursor int

	nextID    uint64
	pipelines map[gpucore.PipelineID]*pipeline
	buffers   map[gpucore.BufferID]*buffer
	arrays    map[gpucore.TextureArrayID]*textureArray
	targets   map[gpucore.TargetID]*target

	frame  *frame
	closed bool
}

// New creates a backend on an opened device. The caller keeps ownership of
// device and queue; Close releases only what the backend created.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("explicit: %w: nil device or queue", backend.ErrBackendNotAvailable)
	}
	b := &Backend{
		device:    device,
		queue:     queue,
		cfg:       cfg.normalized(),
		limits:    gputypes.DefaultLimits(),
		log:       slog.New(slog.DiscardHandler),
		samplers:  make(map[gpucore.Filter]hal.Sampler),
		pipelines: make(map[gpucore.PipelineID]*pipeline),
		buffers:   make(map[gpucore.BufferID]*buffer),
		arrays:    make(map[gpucore.TextureArrayID]*textureArray),
		targets:   make(map[gpucore.TargetID]*target),
	}
	if err := b.createLayouts(); err != nil {
		b.destroyShared()
		return nil, err
	}
	return b, nil
}

// NewFromProvider creates a backend on a device shared by a host
// application. The provider must also expose HalDevice() and HalQueue()
// returning hal.Device and hal.Queue. Its surface format becomes the
// preferred target format.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("explicit: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("explicit: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("explicit: provider HalQueue is not hal.Queue")
	}
	switch provider.SurfaceFormat() {
	case gputypes.TextureFormatRGBA8Unorm:
		cfg.SurfaceFormat = gpucore.TextureFormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		cfg.SurfaceFormat = gpucore.TextureFormatBGRA8Unorm
	}
	return New(device, queue, cfg)
}

// Open creates a Vulkan instance, picks a GPU adapter and opens a device
// owned by the backend.
func Open(cfg Config) (*Backend, error) {
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("explicit: %w: vulkan backend not compiled in", backend.ErrBackendNotAvailable)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("explicit: create instance: %w", err)
	}
	b, err := openInstance(instance, cfg)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return b, nil
}

func openInstance(instance hal.Instance, cfg Config) (*Backend, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("explicit: %w: no GPU adapters found", backend.ErrBackendNotAvailable)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("explicit: open device: %w", err)
	}
	b, err := New(openDev.Device, openDev.Queue, cfg)
	if err != nil {
		openDev.Device.Destroy()
		return nil, err
	}
	b.owned = true
	b.instance = instance
	b.log.Info("explicit: device opened", "adapter", selected.Info.Name)
	return b, nil
}

// SetLogger sets the backend logger. A nil logger disables logging.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = l
}

// Name returns "explicit".
func (b *Backend) Name() string { return backend.NameExplicit }

// Capabilities reports device limits. The framebuffer origin is top-left,
// so no axis inversion is needed.
func (b *Backend) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{
		MaxTextureSize:      b.limits.MaxTextureDimension2D,
		MaxArrayLayers:      b.limits.MaxTextureArrayLayers,
		MaxInstancesPerDraw: 1 << 20,
		FlipY:               false,
		SeparateSamplers:    true,
	}
}

func (b *Backend) id() uint64 {
	b.nextID++
	return b.nextID
}

// createLayouts builds the bind group layouts, the pipeline layout, the
// uniform ring and its per-slot bind groups. All pipelines share them.
func (b *Backend) createLayouts() error {
	var err error
	b.globalsLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "sprite_globals_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bindingGlobals,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("explicit: create globals layout: %w", err)
	}

	b.textureLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "sprite_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bindingView,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2DArray,
				},
			},
			{
				Binding:    bindingSampler,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("explicit: create texture layout: %w", err)
	}

	b.pipeLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "sprite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{b.globalsLayout, b.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("explicit: create pipeline layout: %w", err)
	}

	n := b.cfg.GlobalsPerFrame
	b.uniforms, err = b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "sprite_globals",
		Size:  uint64(n) * uniformAlign,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("explicit: create globals buffer: %w", err)
	}
	b.uniformGroups = make([]hal.BindGroup, 0, n)
	for i := range n {
		bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("sprite_globals_%d", i),
			Layout: b.globalsLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: bindingGlobals, Resource: gputypes.BufferBinding{
					Buffer: b.uniforms.NativeHandle(), Offset: uint64(i) * uniformAlign, Size: gpucore.GlobalsSize,
				}},
			},
		})
		if err != nil {
			return fmt.Errorf("explicit: create globals bind group %d: %w", i, err)
		}
		b.uniformGroups = append(b.uniformGroups, bg)
	}
	return nil
}

// sampler returns the shared sampler for filter, creating it on first use.
func (b *Backend) sampler(filter gpucore.Filter) (hal.Sampler, error) {
	if s, ok := b.samplers[filter]; ok {
		return s, nil
	}
	mode := gputypes.FilterModeNearest
	if filter == gpucore.FilterLinear {
		mode = gputypes.FilterModeLinear
	}
	s, err := b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "sprite_sampler_" + filter.String(),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    mode,
		MinFilter:    mode,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("explicit: create %s sampler: %w", filter, err)
	}
	b.samplers[filter] = s
	return s, nil
}

// Close releases every resource the backend created. An open frame is
// discarded. A device opened by Open is destroyed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.frame != nil {
		b.frame.discard()
		b.frame = nil
	}
	for id, p := range b.pipelines {
		p.destroy(b.device)
		delete(b.pipelines, id)
	}
	for id, buf := range b.buffers {
		b.device.DestroyBuffer(buf.raw)
		delete(b.buffers, id)
	}
	for id, a := range b.arrays {
		a.destroy(b.device)
		delete(b.arrays, id)
	}
	for id, t := range b.targets {
		t.destroy(b.device)
		delete(b.targets, id)
	}
	b.destroyShared()
	if b.owned {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.log.Debug("explicit: closed")
}

func (b *Backend) destroyShared() {
	for _, bg := range b.uniformGroups {
		b.device.DestroyBindGroup(bg)
	}
	b.uniformGroups = nil
	if b.uniforms != nil {
		b.device.DestroyBuffer(b.uniforms)
		b.uniforms = nil
	}
	for f, s := range b.samplers {
		b.device.DestroySampler(s)
		delete(b.samplers, f)
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.textureLayout != nil {
		b.device.DestroyBindGroupLayout(b.textureLayout)
		b.textureLayout = nil
	}
	if b.globalsLayout != nil {
		b.device.DestroyBindGroupLayout(b.globalsLayout)
		b.globalsLayout = nil
	}
}

var (
	_ gpucore.Backend      = (*Backend)(nil)
	_ gpucore.TargetReader = (*Backend)(nil)
)
