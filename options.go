package sprite

import (
	"log/slog"

	"github.com/gogpu/sprite/gpucore"
)

// BatchConfig configures a batch and the texture array it owns.
// Zero numeric fields take the value from DefaultBatchConfig. Filter and
// GenerationChecks are used as given: a zero Filter is FilterNearest and a
// false GenerationChecks turns the checks off.
type BatchConfig struct {
	// MaxInstances caps the instance buffer. Zero means growable.
	MaxInstances int

	// InitialCapacity is the starting capacity of a growable buffer.
	InitialCapacity int

	// ArrayDepth is the initial number of texture layers.
	ArrayDepth int

	// MaxArrayDepth is the depth the array may grow to. It is clamped to
	// the backend's MaxArrayLayers.
	MaxArrayDepth int

	// LayerWidth and LayerHeight are the size of one layer in pixels.
	LayerWidth  int
	LayerHeight int

	// Filter is the sampler filter.
	Filter gpucore.Filter

	// GenerationChecks makes Add reject layer refs whose layer was
	// released since the ref was issued. The draw path never validates.
	GenerationChecks bool
}

// DefaultBatchConfig returns the defaults used by NewBatch and friends.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		InitialCapacity:  1024,
		ArrayDepth:       4,
		MaxArrayDepth:    256,
		LayerWidth:       512,
		LayerHeight:      512,
		Filter:           gpucore.FilterNearest,
		GenerationChecks: true,
	}
}

func (c BatchConfig) normalized() BatchConfig {
	d := DefaultBatchConfig()
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = d.InitialCapacity
	}
	if c.ArrayDepth <= 0 {
		c.ArrayDepth = d.ArrayDepth
	}
	if c.MaxArrayDepth == 0 {
		c.MaxArrayDepth = d.MaxArrayDepth
	}
	if c.MaxArrayDepth < c.ArrayDepth {
		c.MaxArrayDepth = c.ArrayDepth
	}
	if c.LayerWidth <= 0 {
		c.LayerWidth = d.LayerWidth
	}
	if c.LayerHeight <= 0 {
		c.LayerHeight = d.LayerHeight
	}
	return c
}

// RendererConfig configures a Renderer.
type RendererConfig struct {
	// Instance selects the optional per-instance fields of every pipeline.
	Instance gpucore.InstanceFormat

	// InitialBufferSize is the starting size of each streaming buffer in
	// bytes. Buffers double when a frame outgrows them.
	InitialBufferSize uint64

	// MaxInstancesPerDraw splits larger batches into several draws. Zero
	// uses the backend limit.
	MaxInstancesPerDraw uint32

	// TargetFormat is the color format of the pipelines. Zero selects the
	// backend's preferred format.
	TargetFormat gpucore.TextureFormat
}

// DefaultRendererConfig returns a configuration with rotation and color
// enabled.
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		Instance:          gpucore.InstanceFormat{Rotation: true, Color: true},
		InitialBufferSize: 64 << 10,
	}
}

// Option configures a Renderer or a batch.
//
// Example:
//
//	r, err := sprite.NewRenderer(b, sprite.WithInstanceFormat(gpucore.InstanceFormat{}))
//	batch, err := sprite.NewTextureArrayBatch(r, sprite.WithArrayDepth(8, 64))
type Option func(*options)

type options struct {
	batch    BatchConfig
	renderer RendererConfig
	logger   *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		batch:    DefaultBatchConfig(),
		renderer: DefaultRendererConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.batch = o.batch.normalized()
	if o.renderer.InitialBufferSize == 0 {
		o.renderer.InitialBufferSize = DefaultRendererConfig().InitialBufferSize
	}
	return o
}

// WithBatchConfig replaces the whole batch configuration. Start from
// DefaultBatchConfig to keep generation checks on.
func WithBatchConfig(c BatchConfig) Option {
	return func(o *options) { o.batch = c }
}

// WithRendererConfig replaces the whole renderer configuration.
func WithRendererConfig(c RendererConfig) Option {
	return func(o *options) { o.renderer = c }
}

// WithMaxInstances gives the batch a fixed-capacity instance buffer.
func WithMaxInstances(n int) Option {
	return func(o *options) { o.batch.MaxInstances = n }
}

// WithArrayDepth sets the initial and maximum texture array depth.
func WithArrayDepth(depth, maxDepth int) Option {
	return func(o *options) {
		o.batch.ArrayDepth = depth
		o.batch.MaxArrayDepth = maxDepth
	}
}

// WithGrowth disables array growth when false: the array keeps its
// initial depth and a full array fails with ErrCapacityExceeded.
func WithGrowth(enabled bool) Option {
	return func(o *options) {
		if !enabled {
			o.batch.MaxArrayDepth = -1
		}
	}
}

// WithLayerSize sets the size of one texture layer.
func WithLayerSize(width, height int) Option {
	return func(o *options) {
		o.batch.LayerWidth = width
		o.batch.LayerHeight = height
	}
}

// WithFilter sets the sampler filter.
func WithFilter(f gpucore.Filter) Option {
	return func(o *options) { o.batch.Filter = f }
}

// WithGenerationChecks toggles stale layer detection in Add.
func WithGenerationChecks(enabled bool) Option {
	return func(o *options) { o.batch.GenerationChecks = enabled }
}

// WithInstanceFormat selects the optional per-instance fields.
func WithInstanceFormat(f gpucore.InstanceFormat) Option {
	return func(o *options) { o.renderer.Instance = f }
}

// WithMaxInstancesPerDraw splits batches into draws of at most n instances.
func WithMaxInstancesPerDraw(n uint32) Option {
	return func(o *options) { o.renderer.MaxInstancesPerDraw = n }
}

// WithLogger sets the logger of one Renderer. Without it the package
// logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
