package sprite

import (
	"errors"
	"fmt"

	"github.com/gogpu/sprite/gpucore"
)

// batch is the state shared by every batch type: an instance buffer, the
// texture array it samples, and the renderer that draws it.
type batch struct {
	r       *Renderer
	arr     *TextureArray
	buf     *InstanceBuffer
	cfg     BatchConfig
	skipped int
}

func newBatch(r *Renderer, label string, opts []Option) (batch, error) {
	o := buildOptions(opts)
	arr, err := r.NewTextureArray(label, o.batch)
	if err != nil {
		return batch{}, err
	}
	buf := NewInstanceBuffer(o.batch.InitialCapacity)
	if o.batch.MaxInstances > 0 {
		buf = NewFixedInstanceBuffer(o.batch.MaxInstances)
	}
	return batch{r: r, arr: arr, buf: buf, cfg: o.batch}, nil
}

func (b *batch) append(rec InstanceRecord) error {
	if err := b.buf.Append(rec); err != nil {
		b.skipped++
		return err
	}
	return nil
}

// Clear removes all instances and resets the skip count. Storage and
// resident images are kept.
func (b *batch) Clear() {
	b.buf.Clear()
	b.skipped = 0
}

// Len returns the number of instances.
func (b *batch) Len() int { return b.buf.Len() }

// Instances returns the instance buffer.
func (b *batch) Instances() *InstanceBuffer { return b.buf }

// Array returns the texture array the batch samples.
func (b *batch) Array() *TextureArray { return b.arr }

// Draw renders the batch in f, offset by position.
func (b *batch) Draw(f *Frame, position Vec2) (DrawResult, error) {
	return b.DrawWith(f, f.Globals(Translate(position)))
}

// DrawWith renders the batch with an explicit uniform block.
func (b *batch) DrawWith(f *Frame, globals gpucore.Globals) (DrawResult, error) {
	res, err := b.r.Draw(f, b.buf, b.arr, globals)
	res.Skipped = b.skipped
	return res, err
}

// Close destroys the texture array.
func (b *batch) Close() { b.arr.Close() }

// Batch draws quads of a single image.
type Batch struct {
	batch
	region Rect
	layer  uint32
}

// NewBatch creates a batch for img. The texture array is sized to the
// image and holds a single layer.
func NewBatch(r *Renderer, img *Image, opts ...Option) (*Batch, error) {
	opts = append(opts[:len(opts):len(opts)], WithLayerSize(img.Width(), img.Height()), WithArrayDepth(1, 1))
	core, err := newBatch(r, "batch", opts)
	if err != nil {
		return nil, err
	}
	ref, err := core.arr.Add(img)
	if err != nil {
		core.Close()
		return nil, err
	}
	return &Batch{batch: core, region: core.arr.SourceFor(img), layer: ref.Layer}, nil
}

// Add appends q. It fails with ErrBufferFull when a fixed-capacity batch
// is full.
func (b *Batch) Add(q Quad) error { return b.append(q.record(b.region, b.layer)) }

// Region is an image resident in a TextureArrayBatch: its layer and the
// rectangle it covers there.
type Region struct {
	Ref    LayerRef
	Source Rect
}

// Record returns the instance showing q with the image of reg. Producers
// use it to fill runs without going through a batch; the layer generation
// is not checked.
func (reg Region) Record(q Quad) InstanceRecord { return q.record(reg.Source, reg.Ref.Layer) }

// TextureArrayBatch draws quads of many images, each resident in its own
// layer, or packed several to a layer by an ArrayBuilder. All quads go out
// in one instanced draw.
type TextureArrayBatch struct {
	batch
	built []LayerRef
}

// NewTextureArrayBatch creates an empty batch.
func NewTextureArrayBatch(r *Renderer, opts ...Option) (*TextureArrayBatch, error) {
	core, err := newBatch(r, "texture array batch", opts)
	if err != nil {
		return nil, err
	}
	b := &TextureArrayBatch{batch: core}
	core.arr.OnRebuilt(func(e ArrayRebuilt) {
		r.log.Debug("texture array batch rebinding", "event", e, "array", uint64(b.arr.ID()))
	})
	return b, nil
}

// AddImage makes img resident. Adding the same content again returns the
// same layer. When the array is full and cannot grow the error wraps
// ErrCapacityExceeded and the image is counted as skipped; callers may
// release images or draw without it.
func (b *TextureArrayBatch) AddImage(img *Image) (Region, error) {
	ref, err := b.arr.Add(img)
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			b.skipped++
			b.r.log.Warn("texture array full, image skipped",
				"depth", b.arr.Depth(), "key", uint64(img.Key()))
		}
		return Region{}, err
	}
	return Region{Ref: ref, Source: b.arr.SourceFor(img)}, nil
}

// ReleaseImage drops the batch's reference to reg's layer.
func (b *TextureArrayBatch) ReleaseImage(reg Region) { b.arr.Release(reg.Ref) }

// Add appends q showing reg. With generation checks on, a region whose
// layer was released fails with ErrStaleLayer.
func (b *TextureArrayBatch) Add(reg Region, q Quad) error {
	if b.cfg.GenerationChecks {
		if err := b.arr.Validate(reg.Ref); err != nil {
			b.skipped++
			return fmt.Errorf("layer %d generation %d: %w", reg.Ref.Layer, reg.Ref.Generation, err)
		}
	}
	return b.append(q.record(reg.Source, reg.Ref.Layer))
}

// Load uploads the layers built by ab. Indices returned by ab.Add are
// then valid for AddIndexed. The layers of an earlier Load are released
// first, so their indices and regions become stale.
func (b *TextureArrayBatch) Load(ab *ArrayBuilder) error {
	lw, lh := b.arr.LayerSize()
	if ab.width != lw || ab.height != lh {
		return fmt.Errorf("%w: builder layers %dx%d, array layers %dx%d",
			ErrImageTooBig, ab.width, ab.height, lw, lh)
	}
	layers, err := ab.Build()
	if err != nil {
		return err
	}
	b.releaseBuilt()
	refs := make([]LayerRef, 0, len(layers))
	for i, img := range layers {
		ref, err := b.arr.Add(img)
		if err != nil {
			for _, r := range refs {
				b.arr.Release(r)
			}
			return fmt.Errorf("load layer %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	b.built = refs
	return nil
}

// releaseBuilt drops the layers of the previous Load.
func (b *TextureArrayBatch) releaseBuilt() {
	for _, ref := range b.built {
		b.arr.Release(ref)
	}
	b.built = nil
}

// AddIndexed appends q showing the image packed at idx by the builder
// passed to Load.
func (b *TextureArrayBatch) AddIndexed(idx Index, q Quad) error {
	reg, err := b.Region(idx)
	if err != nil {
		b.skipped++
		return err
	}
	return b.Add(reg, q)
}

// Region returns the resident region of an image packed at idx by the
// builder passed to Load.
func (b *TextureArrayBatch) Region(idx Index) (Region, error) {
	if int(idx.Layer) >= len(b.built) {
		return Region{}, fmt.Errorf("%w: builder layer %d not loaded", ErrKeyNotFound, idx.Layer)
	}
	return Region{Ref: b.built[idx.Layer], Source: idx.Region()}, nil
}
