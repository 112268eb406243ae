package gpucore

import (
	"errors"
	"image"
)

// Errors shared by backend implementations.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrNoFrame is returned when a draw is issued outside BeginFrame/Present.
	ErrNoFrame = errors.New("gpucore: no frame in progress")

	// ErrFrameInProgress is returned when BeginFrame is called twice.
	ErrFrameInProgress = errors.New("gpucore: frame already in progress")

	// ErrDeviceLost reports a fatal device-level failure. Work recorded for
	// the current frame is lost; nothing is retried.
	ErrDeviceLost = errors.New("gpucore: device lost")
)

// Backend abstracts over graphics APIs with different resource binding
// models.
//
// This interface is the capability set the batch renderer draws through.
// Implementations differ in how bindings are resolved: a legacy backend
// looks slots up by name when the program links, an explicit backend fixes
// set and binding indices when the pipeline is created.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and must not be reused
//
// Draw submission is single-threaded. Calls between BeginFrame and Present
// must come from one goroutine.
type Backend interface {
	// Name returns the backend identifier (e.g., "legacy", "explicit").
	Name() string

	// Capabilities reports limits and conventions.
	Capabilities() Capabilities

	// === Pipelines ===

	// CreatePipeline compiles and links the program for desc.
	CreatePipeline(desc PipelineDesc) (PipelineID, error)

	// DestroyPipeline releases a pipeline.
	DestroyPipeline(id PipelineID)

	// === Buffers ===

	// CreateBuffer allocates a buffer of desc.Size bytes.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// WriteBuffer uploads data at offset. Only the given range is touched.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// === Texture arrays ===

	// CreateTextureArray allocates a layered texture and its sampler.
	CreateTextureArray(desc TextureArrayDesc) (TextureArrayID, error)

	// WriteLayer uploads tightly packed RGBA8 pixels for rect into layer.
	WriteLayer(id TextureArrayID, layer uint32, rect image.Rectangle, pixels []byte) error

	// DestroyTextureArray releases a texture array.
	DestroyTextureArray(id TextureArrayID)

	// === Targets ===

	// CreateTarget allocates an offscreen color target.
	CreateTarget(desc TargetDesc) (TargetID, error)

	// DestroyTarget releases a target created by CreateTarget.
	DestroyTarget(id TargetID)

	// === Frame ===

	// BeginFrame starts recording into desc.Target.
	BeginFrame(desc FrameDesc) error

	// BindGlobals makes g the uniform block for subsequent draws.
	BindGlobals(g Globals) error

	// BindTextureArray makes id the sampled array for subsequent draws.
	BindTextureArray(id TextureArrayID) error

	// DrawInstanced issues one instanced, indexed draw.
	DrawInstanced(call DrawCall) error

	// Present finishes the frame and hands it to the presentation engine.
	Present() error

	// Close releases all backend resources.
	Close()
}

// TargetReader is implemented by backends that can copy a target back to
// host memory.
type TargetReader interface {
	ReadTarget(id TargetID) (*image.RGBA, error)
}
