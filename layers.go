package sprite

import (
	"log/slog"
	"sync"

	"github.com/google/btree"
)

// LayerRef names an allocated layer. Generation changes every time the
// layer is freed, so a ref kept past a release can be detected.
type LayerRef struct {
	Layer      uint32
	Generation uint32
}

// ArrayRebuilt reports that a texture array grew. Every binding of the old
// array is invalid; consumers must rebind before the next draw.
type ArrayRebuilt struct {
	OldDepth int
	NewDepth int
	// Generation counts rebuilds of this allocator, starting at 1.
	Generation uint64
}

// LogValue implements slog.LogValuer.
func (e ArrayRebuilt) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("old_depth", e.OldDepth),
		slog.Int("new_depth", e.NewDepth),
		slog.Uint64("generation", e.Generation),
	)
}

// AllocResult is the outcome of a successful Allocate.
type AllocResult struct {
	Ref LayerRef
	// Reused is true when the content was already resident.
	Reused bool
	// Rebuilt is non-nil when the array grew to make room.
	Rebuilt *ArrayRebuilt
}

type layerSlot struct {
	key   ImageKey
	refs  int
	gen   uint32
	image *Image
}

// ResidentLayer is an occupied layer and the image it holds.
type ResidentLayer struct {
	Layer uint32
	Image *Image
}

// LayerAllocator maps image content to layers of a texture array.
//
// Identity is the image content key: allocating equal content twice yields
// the same layer. New content takes the lowest free layer. Layers are never
// compacted, so indices held by instance records stay valid until released.
//
// When no layer is free the array grows (doubling, up to maxDepth) and an
// ArrayRebuilt event is produced; at maxDepth Allocate fails with
// ErrCapacityExceeded.
//
// LayerAllocator is safe for concurrent use.
type LayerAllocator struct {
	mu        sync.Mutex
	depth     int
	maxDepth  int
	slots     []layerSlot
	byKey     map[ImageKey]uint32
	free      *btree.BTreeG[uint32]
	rebuilds  uint64
	listeners []func(ArrayRebuilt)
}

// NewLayerAllocator creates an allocator for depth layers that may grow to
// maxDepth. depth is raised to 1 and maxDepth to depth when smaller.
func NewLayerAllocator(depth, maxDepth int) *LayerAllocator {
	if depth < 1 {
		depth = 1
	}
	if maxDepth < depth {
		maxDepth = depth
	}
	a := &LayerAllocator{
		depth:    depth,
		maxDepth: maxDepth,
		slots:    make([]layerSlot, depth),
		byKey:    make(map[ImageKey]uint32),
		free:     btree.NewG[uint32](8, func(x, y uint32) bool { return x < y }),
	}
	for i := range depth {
		a.free.ReplaceOrInsert(uint32(i))
	}
	return a
}

// OnRebuilt registers fn to be called after every growth. Callbacks run on
// the allocating goroutine without the allocator lock held.
func (a *LayerAllocator) OnRebuilt(fn func(ArrayRebuilt)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Allocate returns the layer holding img's content, assigning the lowest
// free layer if the content is not resident.
func (a *LayerAllocator) Allocate(img *Image) (AllocResult, error) {
	res, err := a.allocate(img)
	if err != nil {
		return res, err
	}
	if res.Rebuilt != nil {
		a.notify(*res.Rebuilt)
	}
	return res, nil
}

// allocate is Allocate without the growth notification, for callers that
// must finish work of their own before the growth is announced.
func (a *LayerAllocator) allocate(img *Image) (AllocResult, error) {
	key := img.Key()

	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.byKey[key]; ok {
		a.slots[idx].refs++
		ref := LayerRef{Layer: idx, Generation: a.slots[idx].gen}
		return AllocResult{Ref: ref, Reused: true}, nil
	}

	var rebuilt *ArrayRebuilt
	if a.free.Len() == 0 {
		if a.depth >= a.maxDepth {
			return AllocResult{}, &CapacityError{Depth: a.depth, MaxDepth: a.maxDepth}
		}
		rebuilt = a.grow()
	}

	idx, _ := a.free.DeleteMin()
	slot := &a.slots[idx]
	slot.key, slot.refs, slot.image = key, 1, img
	a.byKey[key] = idx
	return AllocResult{Ref: LayerRef{Layer: idx, Generation: slot.gen}, Rebuilt: rebuilt}, nil
}

func (a *LayerAllocator) notify(e ArrayRebuilt) {
	a.mu.Lock()
	listeners := a.listeners
	a.mu.Unlock()

	Logger().Info("texture array rebuilt", "event", e)
	for _, fn := range listeners {
		fn(e)
	}
}

// rollback undoes an allocate whose layer never received its pixels. The
// reference is dropped and, if the allocation grew the allocator, the
// depth returns to its previous value. The slot keeps its generation
// since its ref was never handed out.
func (a *LayerAllocator) rollback(res AllocResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := &a.slots[res.Ref.Layer]
	slot.refs--
	if slot.refs == 0 {
		delete(a.byKey, slot.key)
		slot.key, slot.image = 0, nil
		a.free.ReplaceOrInsert(res.Ref.Layer)
	}

	e := res.Rebuilt
	if e == nil || a.depth != e.NewDepth {
		return
	}
	for i := e.OldDepth; i < e.NewDepth; i++ {
		if a.slots[i].refs > 0 {
			return
		}
	}
	for i := e.OldDepth; i < e.NewDepth; i++ {
		a.free.Delete(uint32(i))
	}
	a.slots = a.slots[:e.OldDepth]
	a.depth = e.OldDepth
	a.rebuilds--
}

// grow doubles the depth up to maxDepth. Must be called with mu held.
func (a *LayerAllocator) grow() *ArrayRebuilt {
	old := a.depth
	next := old * 2
	if next > a.maxDepth {
		next = a.maxDepth
	}
	a.slots = append(a.slots, make([]layerSlot, next-old)...)
	for i := old; i < next; i++ {
		a.free.ReplaceOrInsert(uint32(i))
	}
	a.depth = next
	a.rebuilds++
	return &ArrayRebuilt{OldDepth: old, NewDepth: next, Generation: a.rebuilds}
}

// Release drops one reference to layer. The layer becomes free, and its
// generation advances, when no references remain. Releasing a free or
// out-of-range layer does nothing.
func (a *LayerAllocator) Release(layer uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(layer) >= a.depth {
		return
	}
	slot := &a.slots[layer]
	if slot.refs == 0 {
		return
	}
	slot.refs--
	if slot.refs > 0 {
		return
	}
	delete(a.byKey, slot.key)
	slot.image = nil
	slot.gen++
	a.free.ReplaceOrInsert(layer)
}

// Validate returns ErrStaleLayer if ref's layer was freed since ref was
// issued.
func (a *LayerAllocator) Validate(ref LayerRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(ref.Layer) >= a.depth {
		return ErrStaleLayer
	}
	slot := a.slots[ref.Layer]
	if slot.refs == 0 || slot.gen != ref.Generation {
		return ErrStaleLayer
	}
	return nil
}

// Lookup returns the layer holding key without taking a reference.
func (a *LayerAllocator) Lookup(key ImageKey) (LayerRef, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.byKey[key]
	if !ok {
		return LayerRef{}, false
	}
	return LayerRef{Layer: idx, Generation: a.slots[idx].gen}, true
}

// Resident returns the occupied layers in index order.
func (a *LayerAllocator) Resident() []ResidentLayer {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ResidentLayer, 0, len(a.byKey))
	for i, s := range a.slots {
		if s.refs > 0 {
			out = append(out, ResidentLayer{Layer: uint32(i), Image: s.image})
		}
	}
	return out
}

// Reset frees every layer. Outstanding refs become stale.
func (a *LayerAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.slots {
		s := &a.slots[i]
		if s.refs > 0 {
			s.gen++
		}
		s.refs, s.image, s.key = 0, nil, 0
		a.free.ReplaceOrInsert(uint32(i))
	}
	clear(a.byKey)
}

// Depth returns the current number of layers.
func (a *LayerAllocator) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.depth
}

// MaxDepth returns the depth limit.
func (a *LayerAllocator) MaxDepth() int { return a.maxDepth }

// Used returns the number of occupied layers.
func (a *LayerAllocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byKey)
}

// Free returns the number of free layers at the current depth.
func (a *LayerAllocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.Len()
}
