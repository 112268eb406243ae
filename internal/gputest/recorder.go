// Package gputest provides an in-memory gpucore.Backend that records every
// call, for tests of code that draws through the backend contract.
package gputest

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/sprite/gpucore"
)

// Call is one recorded backend call.
type Call struct {
	Op   string
	ID   uint64
	Size uint64
	Draw gpucore.DrawCall
}

// Recorder implements gpucore.Backend without a device. Buffers keep their
// contents so tests can inspect uploads.
type Recorder struct {
	mu sync.Mutex

	Caps   gpucore.Capabilities
	Calls  []Call
	Logger *slog.Logger

	// FailDraw, when set, is returned by DrawInstanced.
	FailDraw error

	// FailCreateArray, when set, is returned by CreateTextureArray.
	FailCreateArray error

	// FailWriteLayer, when set, is returned by WriteLayer.
	FailWriteLayer error

	nextID    uint64
	buffers   map[gpucore.BufferID][]byte
	arrays    map[gpucore.TextureArrayID]gpucore.TextureArrayDesc
	layers    map[gpucore.TextureArrayID]map[uint32]int
	pipelines map[gpucore.PipelineID]gpucore.PipelineDesc
	targets   map[gpucore.TargetID]gpucore.TargetDesc
	inFrame   bool
	globals   []gpucore.Globals
	closed    bool
}

// NewRecorder returns a recorder with generous capabilities.
func NewRecorder() *Recorder {
	return &Recorder{
		Caps: gpucore.Capabilities{
			MaxTextureSize:      4096,
			MaxArrayLayers:      256,
			MaxInstancesPerDraw: 100_000,
		},
		buffers:   make(map[gpucore.BufferID][]byte),
		arrays:    make(map[gpucore.TextureArrayID]gpucore.TextureArrayDesc),
		layers:    make(map[gpucore.TextureArrayID]map[uint32]int),
		pipelines: make(map[gpucore.PipelineID]gpucore.PipelineDesc),
		targets:   make(map[gpucore.TargetID]gpucore.TargetDesc),
	}
}

func (r *Recorder) id() uint64 {
	r.nextID++
	return r.nextID
}

func (r *Recorder) record(c Call) { r.Calls = append(r.Calls, c) }

// Name returns "recorder".
func (r *Recorder) Name() string { return "recorder" }

// SetLogger stores the logger handed over by the registry or renderer.
func (r *Recorder) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logger = l
}

// Capabilities returns r.Caps.
func (r *Recorder) Capabilities() gpucore.Capabilities { return r.Caps }

// CreatePipeline records the descriptor.
func (r *Recorder) CreatePipeline(desc gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := gpucore.PipelineID(r.id())
	r.pipelines[id] = desc
	r.record(Call{Op: "CreatePipeline", ID: uint64(id)})
	return id, nil
}

// DestroyPipeline forgets the pipeline.
func (r *Recorder) DestroyPipeline(id gpucore.PipelineID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, id)
	r.record(Call{Op: "DestroyPipeline", ID: uint64(id)})
}

// CreateBuffer allocates host memory for the buffer.
func (r *Recorder) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := gpucore.BufferID(r.id())
	r.buffers[id] = make([]byte, desc.Size)
	r.record(Call{Op: "CreateBuffer", ID: uint64(id), Size: desc.Size})
	return id, nil
}

// WriteBuffer copies data into the buffer.
func (r *Recorder) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write [%d,%d) past buffer size %d", offset, offset+uint64(len(data)), len(buf))
	}
	copy(buf[offset:], data)
	r.record(Call{Op: "WriteBuffer", ID: uint64(id), Size: uint64(len(data))})
	return nil
}

// DestroyBuffer forgets the buffer.
func (r *Recorder) DestroyBuffer(id gpucore.BufferID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, id)
	r.record(Call{Op: "DestroyBuffer", ID: uint64(id)})
}

// Buffer returns a copy of the buffer contents.
func (r *Recorder) Buffer(id gpucore.BufferID) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buffers[id]...)
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (r *Recorder) LiveBuffers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// CreateTextureArray records the descriptor.
func (r *Recorder) CreateTextureArray(desc gpucore.TextureArrayDesc) (gpucore.TextureArrayID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreateArray != nil {
		return gpucore.InvalidID, r.FailCreateArray
	}
	id := gpucore.TextureArrayID(r.id())
	r.arrays[id] = desc
	r.layers[id] = make(map[uint32]int)
	r.record(Call{Op: "CreateTextureArray", ID: uint64(id), Size: uint64(desc.Depth)})
	return id, nil
}

// WriteLayer counts uploads per layer.
func (r *Recorder) WriteLayer(id gpucore.TextureArrayID, layer uint32, rect image.Rectangle, pixels []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, ok := r.arrays[id]
	if !ok {
		return fmt.Errorf("%w: texture array %d", gpucore.ErrUnknownResource, id)
	}
	if layer >= desc.Depth {
		return fmt.Errorf("layer %d out of range (depth %d)", layer, desc.Depth)
	}
	if r.FailWriteLayer != nil {
		return r.FailWriteLayer
	}
	if len(pixels) != rect.Dx()*rect.Dy()*4 {
		return fmt.Errorf("pixel data %d bytes, want %d", len(pixels), rect.Dx()*rect.Dy()*4)
	}
	r.layers[id][layer]++
	r.record(Call{Op: "WriteLayer", ID: uint64(id), Size: uint64(layer)})
	return nil
}

// LayerUploads returns how many times layer of array id was written.
func (r *Recorder) LayerUploads(id gpucore.TextureArrayID, layer uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layers[id][layer]
}

// TextureArray returns the descriptor of a live array.
func (r *Recorder) TextureArray(id gpucore.TextureArrayID) (gpucore.TextureArrayDesc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.arrays[id]
	return d, ok
}

// LiveTextureArrays returns the number of arrays not yet destroyed.
func (r *Recorder) LiveTextureArrays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.arrays)
}

// SetFailures sets the texture array failure injectors under the lock.
func (r *Recorder) SetFailures(createArray, writeLayer error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailCreateArray, r.FailWriteLayer = createArray, writeLayer
}

// DestroyTextureArray forgets the array.
func (r *Recorder) DestroyTextureArray(id gpucore.TextureArrayID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.arrays, id)
	delete(r.layers, id)
	r.record(Call{Op: "DestroyTextureArray", ID: uint64(id)})
}

// CreateTarget records the descriptor.
func (r *Recorder) CreateTarget(desc gpucore.TargetDesc) (gpucore.TargetID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := gpucore.TargetID(r.id())
	r.targets[id] = desc
	r.record(Call{Op: "CreateTarget", ID: uint64(id)})
	return id, nil
}

// DestroyTarget forgets the target.
func (r *Recorder) DestroyTarget(id gpucore.TargetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, id)
	r.record(Call{Op: "DestroyTarget", ID: uint64(id)})
}

// BeginFrame starts a frame.
func (r *Recorder) BeginFrame(desc gpucore.FrameDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFrame {
		return gpucore.ErrFrameInProgress
	}
	r.inFrame = true
	r.record(Call{Op: "BeginFrame", ID: uint64(desc.Target)})
	return nil
}

// BindGlobals records the uniform block.
func (r *Recorder) BindGlobals(g gpucore.Globals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return gpucore.ErrNoFrame
	}
	r.globals = append(r.globals, g)
	r.record(Call{Op: "BindGlobals"})
	return nil
}

// Globals returns every uniform block bound so far.
func (r *Recorder) Globals() []gpucore.Globals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gpucore.Globals(nil), r.globals...)
}

// BindTextureArray records the binding.
func (r *Recorder) BindTextureArray(id gpucore.TextureArrayID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return gpucore.ErrNoFrame
	}
	if _, ok := r.arrays[id]; !ok {
		return fmt.Errorf("%w: texture array %d", gpucore.ErrUnknownResource, id)
	}
	r.record(Call{Op: "BindTextureArray", ID: uint64(id)})
	return nil
}

// DrawInstanced records the draw.
func (r *Recorder) DrawInstanced(call gpucore.DrawCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return gpucore.ErrNoFrame
	}
	if r.FailDraw != nil {
		return r.FailDraw
	}
	r.record(Call{Op: "DrawInstanced", Draw: call})
	return nil
}

// Present ends the frame.
func (r *Recorder) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return gpucore.ErrNoFrame
	}
	r.inFrame = false
	r.record(Call{Op: "Present"})
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Draws returns the recorded draw calls in order.
func (r *Recorder) Draws() []gpucore.DrawCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var draws []gpucore.DrawCall
	for _, c := range r.Calls {
		if c.Op == "DrawInstanced" {
			draws = append(draws, c.Draw)
		}
	}
	return draws
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset drops recorded calls, keeping resources.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
	r.globals = nil
}

var _ gpucore.Backend = (*Recorder)(nil)
