package sprite

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/sprite/backend"
	"github.com/gogpu/sprite/gpucore"
)

// streamAlign is the offset alignment of consecutive writes into a
// streaming buffer. 256 satisfies every backend's vertex and uniform
// offset rules.
const streamAlign = 256

// DrawResult reports what a draw submitted.
type DrawResult struct {
	// DrawCalls is the number of instanced draws issued. It is 1 unless
	// the batch exceeded the per-draw instance limit.
	DrawCalls int

	// Instances is the number of instances drawn.
	Instances int

	// UploadedBytes counts instance, vertex and index bytes uploaded.
	UploadedBytes uint64

	// Skipped is the number of adds a batch rejected since its last Clear.
	Skipped int
}

func (d *DrawResult) add(o DrawResult) {
	d.DrawCalls += o.DrawCalls
	d.Instances += o.Instances
	d.UploadedBytes += o.UploadedBytes
	d.Skipped += o.Skipped
}

// LogValue implements slog.LogValuer.
func (d DrawResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("draw_calls", d.DrawCalls),
		slog.Int("instances", d.Instances),
		slog.Uint64("uploaded_bytes", d.UploadedBytes),
		slog.Int("skipped", d.Skipped),
	)
}

// stream is a GPU buffer written at increasing offsets during a frame.
// A write that does not fit moves the stream to a buffer twice the size;
// the old buffer stays alive until the frame is presented because draws
// recorded earlier in the frame still read from it.
type stream struct {
	label   string
	usage   gpucore.BufferUsage
	initial uint64
	id      gpucore.BufferID
	size    uint64
	cursor  uint64
	retired []gpucore.BufferID
}

func alignUp(v, a uint64) uint64 { return (v + a - 1) &^ (a - 1) }

// write uploads data and returns the buffer and offset it landed at.
func (s *stream) write(b gpucore.Backend, data []byte) (gpucore.BufferID, uint64, error) {
	need := uint64(len(data))
	if s.id == gpucore.InvalidID || s.cursor+need > s.size {
		size := max(s.initial, streamAlign)
		if s.size > 0 {
			size = s.size * 2
		}
		for size < need {
			size *= 2
		}
		id, err := b.CreateBuffer(gpucore.BufferDesc{
			Label: s.label,
			Size:  size,
			Usage: s.usage | gpucore.BufferUsageCopyDst,
		})
		if err != nil {
			return gpucore.InvalidID, 0, fmt.Errorf("sprite: grow %s buffer to %d bytes: %w", s.label, size, err)
		}
		if s.id != gpucore.InvalidID {
			s.retired = append(s.retired, s.id)
		}
		Logger().Debug("stream buffer grown", "label", s.label, "old_size", s.size, "new_size", size)
		s.id, s.size, s.cursor = id, size, 0
	}

	off := s.cursor
	if err := b.WriteBuffer(s.id, off, data); err != nil {
		return gpucore.InvalidID, 0, fmt.Errorf("sprite: upload %s: %w", s.label, err)
	}
	s.cursor = alignUp(off+need, streamAlign)
	return s.id, off, nil
}

// reset rewinds the stream after the frame that used it was presented.
func (s *stream) reset(b gpucore.Backend) {
	for _, id := range s.retired {
		b.DestroyBuffer(id)
	}
	s.retired = s.retired[:0]
	s.cursor = 0
}

func (s *stream) destroy(b gpucore.Backend) {
	s.reset(b)
	if s.id != gpucore.InvalidID {
		b.DestroyBuffer(s.id)
		s.id = gpucore.InvalidID
	}
}

// geometry is the per-vertex side of an instanced draw.
type geometry struct {
	pipeline      gpucore.PipelineID
	vertices      gpucore.BufferID
	verticesOff   uint64
	indices       gpucore.BufferID
	indicesOff    uint64
	indexCount    uint32
	uploadedBytes uint64
}

// Renderer turns instance buffers into instanced draws on a backend.
//
// A Renderer owns its pipelines, the shared unit quad and the streaming
// buffers that carry instance data to the GPU. It does not own the backend.
//
// Draw submission is single-threaded: BeginFrame, Draw, DrawMesh and
// Present must be called from one goroutine.
type Renderer struct {
	backend gpucore.Backend
	caps    gpucore.Capabilities
	cfg     RendererConfig
	log     *slog.Logger

	quadPipeline gpucore.PipelineID
	meshPipeline gpucore.PipelineID
	quadVertices gpucore.BufferID
	quadIndices  gpucore.BufferID

	instances    stream
	meshVertices stream
	meshIndices  stream
	scratch      []byte

	white *TextureArray

	frame        *Frame
	globals      gpucore.Globals

	// arraysMu guards inFrame and retiredArrays, which texture arrays
	// touch from the goroutines adding images.
	arraysMu      sync.Mutex
	inFrame       bool
	retiredArrays []gpucore.TextureArrayID

	globalsBound bool
	boundArray   gpucore.TextureArrayID

	closed bool
}

// NewRenderer creates a renderer drawing through b.
func NewRenderer(b gpucore.Backend, opts ...Option) (*Renderer, error) {
	if b == nil {
		return nil, ErrNoBackend
	}
	o := buildOptions(opts)
	log := o.logger
	if log == nil {
		log = Logger()
	} else {
		propagateLogger(b, log)
	}

	r := &Renderer{
		backend: b,
		caps:    b.Capabilities(),
		cfg:     o.renderer,
		log:     log,
	}
	size := o.renderer.InitialBufferSize
	r.instances = stream{label: "instances", usage: gpucore.BufferUsageVertex, initial: size}
	r.meshVertices = stream{label: "mesh vertices", usage: gpucore.BufferUsageVertex, initial: size}
	r.meshIndices = stream{label: "mesh indices", usage: gpucore.BufferUsageIndex, initial: size}

	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}
	log.Debug("renderer created",
		"backend", b.Name(),
		"rotation", r.cfg.Instance.Rotation,
		"color", r.cfg.Instance.Color,
		"instance_stride", r.cfg.Instance.Stride(),
		"flip_y", r.caps.FlipY)
	return r, nil
}

// NewDefaultRenderer creates a renderer on the highest priority backend
// available in the registry.
func NewDefaultRenderer(opts ...Option) (*Renderer, error) {
	b, err := backend.Default()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	r, err := NewRenderer(b, opts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	var err error
	r.quadPipeline, err = r.backend.CreatePipeline(gpucore.PipelineDesc{
		Label:        "sprite quad",
		Kind:         gpucore.PipelineQuad,
		Instance:     r.cfg.Instance,
		TargetFormat: r.cfg.TargetFormat,
	})
	if err != nil {
		return fmt.Errorf("sprite: create quad pipeline: %w", err)
	}

	vertices := gpucore.QuadVertexBytes()
	r.quadVertices, err = r.staticBuffer("quad vertices", gpucore.BufferUsageVertex, vertices)
	if err != nil {
		return err
	}
	r.quadIndices, err = r.staticBuffer("quad indices", gpucore.BufferUsageIndex, gpucore.IndexBytes(gpucore.QuadIndices[:]))
	return err
}

func (r *Renderer) staticBuffer(label string, usage gpucore.BufferUsage, data []byte) (gpucore.BufferID, error) {
	id, err := r.backend.CreateBuffer(gpucore.BufferDesc{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("sprite: create %s: %w", label, err)
	}
	if err := r.backend.WriteBuffer(id, 0, data); err != nil {
		r.backend.DestroyBuffer(id)
		return gpucore.InvalidID, fmt.Errorf("sprite: upload %s: %w", label, err)
	}
	return id, nil
}

// Backend returns the backend the renderer draws through.
func (r *Renderer) Backend() gpucore.Backend { return r.backend }

// Capabilities returns the backend capabilities.
func (r *Renderer) Capabilities() gpucore.Capabilities { return r.caps }

// InstanceFormat returns the per-instance layout of the pipelines.
func (r *Renderer) InstanceFormat() gpucore.InstanceFormat { return r.cfg.Instance }

func (r *Renderer) isClosed() bool { return r.closed }

// maxPerDraw returns the largest instance count of one draw, 0 for no limit.
func (r *Renderer) maxPerDraw() uint32 {
	n := r.cfg.MaxInstancesPerDraw
	if c := r.caps.MaxInstancesPerDraw; c > 0 && (n == 0 || n > c) {
		n = c
	}
	return n
}

// Target is a color target a frame renders into.
type Target struct {
	r      *Renderer
	id     gpucore.TargetID
	width  int
	height int
	owned  bool

	// offscreen targets were created by the renderer; wrapped ones are
	// presented by the host.
	offscreen bool
}

// NewTarget creates an offscreen target.
func (r *Renderer) NewTarget(width, height int) (*Target, error) {
	if r.closed {
		return nil, ErrClosed
	}
	id, err := r.backend.CreateTarget(gpucore.TargetDesc{
		Label:  "sprite target",
		Width:  uint32(width),
		Height: uint32(height),
		Format: r.cfg.TargetFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("sprite: create target: %w", err)
	}
	return &Target{r: r, id: id, width: width, height: height, owned: true, offscreen: true}, nil
}

// WrapTarget adopts a target owned by someone else, such as a swap-chain
// image handed over by the window system. Close does not destroy it.
func (r *Renderer) WrapTarget(id gpucore.TargetID, width, height int) *Target {
	return &Target{r: r, id: id, width: width, height: height}
}

// ID returns the backend handle.
func (t *Target) ID() gpucore.TargetID { return t.id }

// Size returns the target size in pixels.
func (t *Target) Size() (width, height int) { return t.width, t.height }

// Read copies the target contents to host memory, top row first.
func (t *Target) Read() (*image.RGBA, error) {
	rd, ok := t.r.backend.(gpucore.TargetReader)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q", ErrReadbackUnsupported, t.r.backend.Name())
	}
	img, err := rd.ReadTarget(t.id)
	if err != nil {
		return nil, fmt.Errorf("sprite: read target: %w", err)
	}
	return img, nil
}

// Close destroys an owned target.
func (t *Target) Close() {
	if t.owned {
		t.r.backend.DestroyTarget(t.id)
		t.owned = false
	}
}

// Frame is one frame in progress on a target.
type Frame struct {
	r          *Renderer
	target     *Target
	projection Transform
	stats      DrawResult
	done       bool
}

// BeginFrame starts a frame on t and clears it to clear.
func (r *Renderer) BeginFrame(t *Target, clear Color) (*Frame, error) {
	return r.beginFrame(t, gpucore.FrameDesc{Load: gpucore.LoadOpClear, ClearColor: clear})
}

// ContinueFrame starts a frame on t keeping its previous contents.
func (r *Renderer) ContinueFrame(t *Target) (*Frame, error) {
	return r.beginFrame(t, gpucore.FrameDesc{Load: gpucore.LoadOpLoad})
}

func (r *Renderer) beginFrame(t *Target, desc gpucore.FrameDesc) (*Frame, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.frame != nil {
		return nil, gpucore.ErrFrameInProgress
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil target", ErrInvalidTarget)
	}
	desc.Target = t.id
	if err := r.backend.BeginFrame(desc); err != nil {
		return nil, fmt.Errorf("sprite: begin frame: %w", err)
	}
	r.arraysMu.Lock()
	r.inFrame = true
	r.arraysMu.Unlock()

	proj := Orthographic(float32(t.width), float32(t.height))
	if r.caps.FlipY && t.offscreen {
		proj = AxisInversion().Mul(proj)
	}
	f := &Frame{r: r, target: t, projection: proj}
	r.frame = f
	r.globalsBound = false
	r.boundArray = gpucore.InvalidID
	return f, nil
}

// Target returns the frame's target.
func (f *Frame) Target() *Target { return f.target }

// Projection returns the pixel-to-clip projection of the frame, including
// the backend's axis inversion.
func (f *Frame) Projection() Transform { return f.projection }

// Globals returns the uniform block for a view transform applied before
// the projection.
func (f *Frame) Globals(view Transform) gpucore.Globals {
	return gpucore.Globals{MVP: Project(view, f.projection).Array()}
}

// Stats returns the totals of every draw in the frame so far.
func (f *Frame) Stats() DrawResult { return f.stats }

// Present submits the frame. The frame cannot be used afterwards.
func (f *Frame) Present() error {
	if f.done {
		return gpucore.ErrNoFrame
	}
	r := f.r
	f.done = true
	r.frame = nil

	err := r.backend.Present()
	r.destroyRetiredArrays()
	r.instances.reset(r.backend)
	r.meshVertices.reset(r.backend)
	r.meshIndices.reset(r.backend)
	if err != nil {
		return fmt.Errorf("sprite: present: %w", err)
	}
	r.log.Debug("frame presented", "stats", f.stats)
	return nil
}

// retireArray destroys a texture array once no recorded draw can read it:
// at the next Present when a frame is in progress, immediately otherwise.
func (r *Renderer) retireArray(id gpucore.TextureArrayID) {
	r.arraysMu.Lock()
	if r.inFrame {
		r.retiredArrays = append(r.retiredArrays, id)
		r.arraysMu.Unlock()
		return
	}
	r.arraysMu.Unlock()
	r.backend.DestroyTextureArray(id)
}

func (r *Renderer) destroyRetiredArrays() {
	r.arraysMu.Lock()
	ids := r.retiredArrays
	r.retiredArrays = nil
	r.inFrame = false
	r.arraysMu.Unlock()

	for _, id := range ids {
		r.backend.DestroyTextureArray(id)
	}
}

func (r *Renderer) checkFrame(f *Frame) error {
	if r.closed {
		return ErrClosed
	}
	if f == nil || f.done || f != r.frame {
		return gpucore.ErrNoFrame
	}
	return nil
}

// Draw renders every record of buf as a textured quad sampling arr.
//
// The occupied prefix of buf is uploaded and drawn with one instanced
// draw. Batches above the backend's per-draw limit are split. Drawing an
// empty buffer does nothing. Layers are not validated: every record's layer
// must be below the array depth. A nil arr draws solid quads.
func (r *Renderer) Draw(f *Frame, buf *InstanceBuffer, arr *TextureArray, globals gpucore.Globals) (DrawResult, error) {
	if err := r.checkFrame(f); err != nil {
		return DrawResult{}, err
	}
	if buf == nil {
		return DrawResult{}, ErrNilBuffer
	}
	if buf.Len() == 0 {
		return DrawResult{}, nil
	}
	if arr == nil {
		var err error
		if arr, err = r.whiteArray(); err != nil {
			return DrawResult{}, err
		}
	}
	geo := geometry{
		pipeline:   r.quadPipeline,
		vertices:   r.quadVertices,
		indices:    r.quadIndices,
		indexCount: uint32(len(gpucore.QuadIndices)),
	}
	return r.drawInstances(f, geo, buf, arr.ID(), globals)
}

// DrawMesh renders m once per record of buf. Record source rects map the
// mesh UVs into the layer; with a nil arr the mesh is drawn untextured
// and every record must use layer 0.
func (r *Renderer) DrawMesh(f *Frame, m *Mesh, buf *InstanceBuffer, arr *TextureArray, globals gpucore.Globals) (DrawResult, error) {
	if err := r.checkFrame(f); err != nil {
		return DrawResult{}, err
	}
	if buf == nil || m == nil {
		return DrawResult{}, ErrNilBuffer
	}
	if buf.Len() == 0 || len(m.Indices) == 0 {
		return DrawResult{}, nil
	}
	if err := r.ensureMeshPipeline(); err != nil {
		return DrawResult{}, err
	}
	if arr == nil {
		var err error
		if arr, err = r.whiteArray(); err != nil {
			return DrawResult{}, err
		}
	}

	vdata := m.appendVertexBytes(r.scratch[:0])
	vbuf, voff, err := r.meshVertices.write(r.backend, vdata)
	if err != nil {
		return DrawResult{}, err
	}
	idata := gpucore.IndexBytes(m.Indices)
	ibuf, ioff, err := r.meshIndices.write(r.backend, idata)
	if err != nil {
		return DrawResult{}, err
	}
	r.scratch = vdata[:0]

	geo := geometry{
		pipeline:      r.meshPipeline,
		vertices:      vbuf,
		verticesOff:   voff,
		indices:       ibuf,
		indicesOff:    ioff,
		indexCount:    uint32(len(m.Indices)),
		uploadedBytes: uint64(len(vdata) + len(idata)),
	}
	return r.drawInstances(f, geo, buf, arr.ID(), globals)
}

func (r *Renderer) drawInstances(f *Frame, geo geometry, buf *InstanceBuffer, array gpucore.TextureArrayID, globals gpucore.Globals) (DrawResult, error) {
	format := r.cfg.Instance
	data := buf.Encode(r.scratch[:0], format)
	r.scratch = data[:0]
	ibuf, base, err := r.instances.write(r.backend, data)
	if err != nil {
		return DrawResult{}, err
	}

	if !r.globalsBound || r.globals != globals {
		if err := r.backend.BindGlobals(globals); err != nil {
			return DrawResult{}, fmt.Errorf("sprite: bind globals: %w", err)
		}
		r.globals, r.globalsBound = globals, true
	}
	if array != r.boundArray {
		if err := r.backend.BindTextureArray(array); err != nil {
			return DrawResult{}, fmt.Errorf("sprite: bind texture array: %w", err)
		}
		r.boundArray = array
	}

	res := DrawResult{Instances: buf.Len(), UploadedBytes: uint64(len(data)) + geo.uploadedBytes}
	total := uint32(buf.Len())
	chunk := r.maxPerDraw()
	if chunk == 0 {
		chunk = total
	}
	stride := uint64(format.Stride())
	for first := uint32(0); first < total; first += chunk {
		count := min(chunk, total-first)
		err := r.backend.DrawInstanced(gpucore.DrawCall{
			Pipeline:        geo.pipeline,
			Vertices:        geo.vertices,
			VerticesOffset:  geo.verticesOff,
			Indices:         geo.indices,
			IndicesOffset:   geo.indicesOff,
			IndexCount:      geo.indexCount,
			Instances:       ibuf,
			InstancesOffset: base + uint64(first)*stride,
			InstanceCount:   count,
		})
		if err != nil {
			f.stats.add(res)
			return res, fmt.Errorf("sprite: draw: %w", err)
		}
		res.DrawCalls++
	}
	f.stats.add(res)
	return res, nil
}

func (r *Renderer) ensureMeshPipeline() error {
	if r.meshPipeline != gpucore.InvalidID {
		return nil
	}
	id, err := r.backend.CreatePipeline(gpucore.PipelineDesc{
		Label:        "sprite mesh",
		Kind:         gpucore.PipelineMesh,
		Instance:     r.cfg.Instance,
		TargetFormat: r.cfg.TargetFormat,
	})
	if err != nil {
		return fmt.Errorf("sprite: create mesh pipeline: %w", err)
	}
	r.meshPipeline = id
	return nil
}

// whiteArray returns a one-layer array holding a single white texel.
func (r *Renderer) whiteArray() (*TextureArray, error) {
	if r.white != nil {
		return r.white, nil
	}
	arr, err := r.NewTextureArray("white", BatchConfig{
		ArrayDepth:    1,
		MaxArrayDepth: 1,
		LayerWidth:    1,
		LayerHeight:   1,
	})
	if err != nil {
		return nil, err
	}
	img, _ := NewImage(1, 1, []byte{0xff, 0xff, 0xff, 0xff})
	if _, err := arr.Add(img); err != nil {
		arr.Close()
		return nil, err
	}
	r.white = arr
	return arr, nil
}

// Close releases the renderer's pipelines and buffers. Batches and arrays
// created from it must be closed first.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	if r.white != nil {
		r.white.Close()
	}
	r.closed = true
	b := r.backend
	r.destroyRetiredArrays()
	r.instances.destroy(b)
	r.meshVertices.destroy(b)
	r.meshIndices.destroy(b)
	for _, id := range []gpucore.BufferID{r.quadVertices, r.quadIndices} {
		if id != gpucore.InvalidID {
			b.DestroyBuffer(id)
		}
	}
	for _, id := range []gpucore.PipelineID{r.quadPipeline, r.meshPipeline} {
		if id != gpucore.InvalidID {
			b.DestroyPipeline(id)
		}
	}
	r.log.Debug("renderer closed", "backend", b.Name())
}
