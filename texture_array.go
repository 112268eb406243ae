package sprite

import (
	"fmt"
	"sync"

	"github.com/gogpu/sprite/gpucore"
)

// TextureArray is a backend texture array whose layers are assigned by a
// LayerAllocator. New content is uploaded once; content already resident
// is shared.
//
// When the allocator grows, the backend array is recreated at the new depth
// and every resident layer is uploaded again. ID changes at that point and
// the renderer rebinds on its next draw. The replaced array stays alive
// until the frame in progress is presented.
type TextureArray struct {
	mu      sync.Mutex
	r       *Renderer
	backend gpucore.Backend
	id      gpucore.TextureArrayID
	alloc   *LayerAllocator
	width   int
	height  int
	filter  gpucore.Filter
	label   string
	uploads int
	closed  bool

	listeners []func(ArrayRebuilt)
}

// NewTextureArray creates an array described by cfg. MaxArrayDepth is
// clamped to the renderer's MaxArrayLayers capability.
func (r *Renderer) NewTextureArray(label string, cfg BatchConfig) (*TextureArray, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	cfg = cfg.normalized()
	limit := int(r.caps.MaxArrayLayers)
	if limit > 0 && cfg.MaxArrayDepth > limit {
		cfg.MaxArrayDepth = limit
	}
	if limit > 0 && cfg.ArrayDepth > limit {
		cfg.ArrayDepth = limit
	}
	if maxSize := int(r.caps.MaxTextureSize); maxSize > 0 && (cfg.LayerWidth > maxSize || cfg.LayerHeight > maxSize) {
		return nil, fmt.Errorf("%w: layer %dx%d exceeds max texture size %d",
			ErrImageTooBig, cfg.LayerWidth, cfg.LayerHeight, maxSize)
	}

	a := &TextureArray{
		r:       r,
		backend: r.backend,
		alloc:   NewLayerAllocator(cfg.ArrayDepth, cfg.MaxArrayDepth),
		width:   cfg.LayerWidth,
		height:  cfg.LayerHeight,
		filter:  cfg.Filter,
		label:   label,
	}
	id, err := a.create(cfg.ArrayDepth)
	if err != nil {
		return nil, err
	}
	a.id = id
	return a, nil
}

func (a *TextureArray) create(depth int) (gpucore.TextureArrayID, error) {
	id, err := a.backend.CreateTextureArray(gpucore.TextureArrayDesc{
		Label:  a.label,
		Width:  uint32(a.width),
		Height: uint32(a.height),
		Depth:  uint32(depth),
		Format: gpucore.TextureFormatRGBA8Unorm,
		Filter: a.filter,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("sprite: create texture array %q: %w", a.label, err)
	}
	return id, nil
}

// Add makes img resident and returns its layer. The image occupies the
// top-left corner of the layer; SourceFor gives the matching source rect.
func (a *TextureArray) Add(img *Image) (LayerRef, error) {
	if img.Width() > a.width || img.Height() > a.height {
		return LayerRef{}, fmt.Errorf("%w: %dx%d image, %dx%d layer",
			ErrImageTooBig, img.Width(), img.Height(), a.width, a.height)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return LayerRef{}, ErrClosed
	}

	res, err := a.alloc.allocate(img)
	if err != nil {
		a.mu.Unlock()
		return LayerRef{}, err
	}
	switch {
	case res.Rebuilt != nil:
		err = a.rebuild(*res.Rebuilt)
	case !res.Reused:
		err = a.upload(a.id, res.Ref.Layer, img)
	}
	if err != nil {
		a.alloc.rollback(res)
		a.mu.Unlock()
		return LayerRef{}, err
	}
	listeners := a.listeners
	a.mu.Unlock()

	if res.Rebuilt != nil {
		a.alloc.notify(*res.Rebuilt)
		for _, fn := range listeners {
			fn(*res.Rebuilt)
		}
	}
	return res.Ref, nil
}

// rebuild replaces the backend array with one of the new depth holding
// every resident layer. On failure the current array is left untouched.
// Must be called with mu held.
func (a *TextureArray) rebuild(e ArrayRebuilt) error {
	id, err := a.create(e.NewDepth)
	if err != nil {
		return err
	}
	for _, l := range a.alloc.Resident() {
		if err := a.upload(id, l.Layer, l.Image); err != nil {
			a.backend.DestroyTextureArray(id)
			return err
		}
	}
	old := a.id
	a.id = id
	a.r.retireArray(old)

	Logger().Debug("texture array recreated",
		"label", a.label, "old_id", uint64(old), "new_id", uint64(id), "event", e)
	return nil
}

func (a *TextureArray) upload(id gpucore.TextureArrayID, layer uint32, img *Image) error {
	if err := a.backend.WriteLayer(id, layer, img.Bounds(), img.Pix()); err != nil {
		return fmt.Errorf("sprite: upload layer %d: %w", layer, err)
	}
	a.uploads++
	return nil
}

// Release drops one reference to ref's layer.
func (a *TextureArray) Release(ref LayerRef) { a.alloc.Release(ref.Layer) }

// Validate reports ErrStaleLayer if ref's layer was released since ref
// was issued.
func (a *TextureArray) Validate(ref LayerRef) error { return a.alloc.Validate(ref) }

// OnRebuilt registers fn to run after the array grew and its backend
// handle was replaced.
func (a *TextureArray) OnRebuilt(fn func(ArrayRebuilt)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// SourceFor returns the source rect covering img in its layer.
func (a *TextureArray) SourceFor(img *Image) Rect {
	return Rect{
		W: float32(img.Width()) / float32(a.width),
		H: float32(img.Height()) / float32(a.height),
	}
}

// ID returns the current backend handle.
func (a *TextureArray) ID() gpucore.TextureArrayID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// Allocator returns the layer allocator.
func (a *TextureArray) Allocator() *LayerAllocator { return a.alloc }

// Depth returns the current number of layers.
func (a *TextureArray) Depth() int { return a.alloc.Depth() }

// LayerSize returns the size of one layer in pixels.
func (a *TextureArray) LayerSize() (width, height int) { return a.width, a.height }

// Uploads returns the number of layer uploads issued so far.
func (a *TextureArray) Uploads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploads
}

// Close destroys the backend array, after the frame in progress if one is.
// Further Adds fail with ErrClosed.
func (a *TextureArray) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.r.retireArray(a.id)
	a.alloc.Reset()
}
