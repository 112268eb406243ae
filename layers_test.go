package sprite

import (
	"errors"
	"testing"
)

// solid returns a 2x2 image filled with one gray value; distinct values
// give distinct content keys.
func solid(t *testing.T, v byte) *Image {
	t.Helper()
	pix := make([]byte, 2*2*4)
	for i := range pix {
		pix[i] = v
	}
	img, err := NewImage(2, 2, pix)
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	return img
}

func mustAlloc(t *testing.T, a *LayerAllocator, img *Image) AllocResult {
	t.Helper()
	res, err := a.Allocate(img)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	return res
}

func TestLayerAllocatorSameContentSameLayer(t *testing.T) {
	a := NewLayerAllocator(4, 4)
	first := mustAlloc(t, a, solid(t, 10))
	second := mustAlloc(t, a, solid(t, 10))

	if first.Ref != second.Ref {
		t.Errorf("same content: refs %v and %v differ", first.Ref, second.Ref)
	}
	if first.Reused || !second.Reused {
		t.Errorf("Reused = %v,%v, want false,true", first.Reused, second.Reused)
	}
	if a.Used() != 1 {
		t.Errorf("Used() = %d, want 1", a.Used())
	}
}

func TestLayerAllocatorCapacityExceeded(t *testing.T) {
	const depth = 3
	a := NewLayerAllocator(depth, depth)
	for i := range depth {
		mustAlloc(t, a, solid(t, byte(i)))
	}

	_, err := a.Allocate(solid(t, 99))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Allocate() error = %v, want ErrCapacityExceeded", err)
	}
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.MaxDepth != depth {
		t.Errorf("error = %#v, want *CapacityError with MaxDepth %d", err, depth)
	}
}

func TestLayerAllocatorFirstFitReuse(t *testing.T) {
	a := NewLayerAllocator(4, 4)
	images := []*Image{solid(t, 'A'), solid(t, 'B'), solid(t, 'C'), solid(t, 'D')}
	for i, img := range images {
		if got := mustAlloc(t, a, img).Ref.Layer; got != uint32(i) {
			t.Fatalf("image %d got layer %d, want %d", i, got, i)
		}
	}

	a.Release(1)

	e := mustAlloc(t, a, solid(t, 'E'))
	if e.Ref.Layer != 1 {
		t.Errorf("E got layer %d, want 1", e.Ref.Layer)
	}

	if _, err := a.Allocate(solid(t, 'F')); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("F: error = %v, want ErrCapacityExceeded", err)
	}
}

func TestLayerAllocatorLowestFreeLayerWins(t *testing.T) {
	a := NewLayerAllocator(4, 4)
	for i := range 4 {
		mustAlloc(t, a, solid(t, byte(i)))
	}
	a.Release(3)
	a.Release(0)

	if got := mustAlloc(t, a, solid(t, 50)).Ref.Layer; got != 0 {
		t.Errorf("layer = %d, want 0", got)
	}
	if got := mustAlloc(t, a, solid(t, 51)).Ref.Layer; got != 3 {
		t.Errorf("layer = %d, want 3", got)
	}
}

func TestLayerAllocatorReleaseCountsReferences(t *testing.T) {
	a := NewLayerAllocator(2, 2)
	img := solid(t, 7)
	mustAlloc(t, a, img)
	mustAlloc(t, a, img)

	a.Release(0)
	if a.Used() != 1 {
		t.Fatalf("Used() = %d after one of two releases, want 1", a.Used())
	}
	a.Release(0)
	if a.Used() != 0 {
		t.Errorf("Used() = %d, want 0", a.Used())
	}
	// Extra releases are ignored.
	a.Release(0)
	a.Release(99)
	if a.Free() != 2 {
		t.Errorf("Free() = %d, want 2", a.Free())
	}
}

func TestLayerAllocatorGenerationDetectsStaleRef(t *testing.T) {
	a := NewLayerAllocator(1, 1)
	old := mustAlloc(t, a, solid(t, 1)).Ref
	if err := a.Validate(old); err != nil {
		t.Fatalf("Validate(live) = %v", err)
	}

	a.Release(old.Layer)
	if err := a.Validate(old); !errors.Is(err, ErrStaleLayer) {
		t.Errorf("Validate(after release) = %v, want ErrStaleLayer", err)
	}

	fresh := mustAlloc(t, a, solid(t, 2)).Ref
	if fresh.Layer != old.Layer {
		t.Fatalf("fresh layer = %d, want %d", fresh.Layer, old.Layer)
	}
	if err := a.Validate(old); !errors.Is(err, ErrStaleLayer) {
		t.Errorf("Validate(old after reuse) = %v, want ErrStaleLayer", err)
	}
	if err := a.Validate(fresh); err != nil {
		t.Errorf("Validate(fresh) = %v", err)
	}
}

func TestLayerAllocatorGrowth(t *testing.T) {
	a := NewLayerAllocator(2, 5)

	var events []ArrayRebuilt
	a.OnRebuilt(func(e ArrayRebuilt) { events = append(events, e) })

	mustAlloc(t, a, solid(t, 0))
	mustAlloc(t, a, solid(t, 1))
	res := mustAlloc(t, a, solid(t, 2))

	if res.Rebuilt == nil {
		t.Fatal("third allocation should rebuild the array")
	}
	if *res.Rebuilt != (ArrayRebuilt{OldDepth: 2, NewDepth: 4, Generation: 1}) {
		t.Errorf("Rebuilt = %+v", *res.Rebuilt)
	}
	if res.Ref.Layer != 2 {
		t.Errorf("layer = %d, want 2", res.Ref.Layer)
	}
	if len(events) != 1 {
		t.Fatalf("listener events = %d, want 1", len(events))
	}

	mustAlloc(t, a, solid(t, 3))
	res = mustAlloc(t, a, solid(t, 4))
	if res.Rebuilt == nil || res.Rebuilt.NewDepth != 5 {
		t.Errorf("second growth = %+v, want capped at 5", res.Rebuilt)
	}
	if _, err := a.Allocate(solid(t, 5)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Allocate() past max depth = %v, want ErrCapacityExceeded", err)
	}
}

func TestLayerAllocatorRollback(t *testing.T) {
	a := NewLayerAllocator(1, 4)
	var events []ArrayRebuilt
	a.OnRebuilt(func(e ArrayRebuilt) { events = append(events, e) })

	first := mustAlloc(t, a, solid(t, 1))

	grown, err := a.allocate(solid(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	if grown.Rebuilt == nil || a.Depth() != 2 {
		t.Fatalf("allocate() = %+v at depth %d, want growth to 2", grown, a.Depth())
	}
	a.rollback(grown)
	if a.Depth() != 1 || a.Free() != 0 || a.Used() != 1 {
		t.Errorf("after rollback: Depth=%d Free=%d Used=%d, want 1 0 1", a.Depth(), a.Free(), a.Used())
	}
	if _, ok := a.Lookup(solid(t, 2).Key()); ok {
		t.Error("rolled back content still resident")
	}
	if len(events) != 0 {
		t.Errorf("listener saw %d events for an undone growth", len(events))
	}

	// The retry grows again with the same generation count.
	retry := mustAlloc(t, a, solid(t, 2))
	if retry.Rebuilt == nil || retry.Rebuilt.Generation != 1 || retry.Ref.Layer != 1 {
		t.Errorf("retry = %+v, want layer 1 after rebuild 1", retry)
	}

	// Rolling back a reuse only drops the extra reference.
	reused, err := a.allocate(solid(t, 1))
	if err != nil || !reused.Reused {
		t.Fatalf("allocate(resident) = %+v, %v", reused, err)
	}
	a.rollback(reused)
	if err := a.Validate(first.Ref); err != nil {
		t.Errorf("Validate() after rollback of a reuse = %v", err)
	}
	a.Release(first.Ref.Layer)
	if err := a.Validate(first.Ref); !errors.Is(err, ErrStaleLayer) {
		t.Errorf("Validate() after last release = %v, want ErrStaleLayer", err)
	}
}

func TestLayerAllocatorResetAndResident(t *testing.T) {
	a := NewLayerAllocator(4, 4)
	refA := mustAlloc(t, a, solid(t, 1)).Ref
	mustAlloc(t, a, solid(t, 2))

	res := a.Resident()
	if len(res) != 2 || res[0].Layer != 0 || res[1].Layer != 1 {
		t.Fatalf("Resident() = %+v", res)
	}

	a.Reset()
	if a.Used() != 0 || a.Free() != 4 {
		t.Errorf("after Reset: Used=%d Free=%d", a.Used(), a.Free())
	}
	if err := a.Validate(refA); !errors.Is(err, ErrStaleLayer) {
		t.Errorf("Validate() after Reset = %v, want ErrStaleLayer", err)
	}
	if _, ok := a.Lookup(solid(t, 1).Key()); ok {
		t.Error("Lookup() found content after Reset")
	}
}

func TestImageKeys(t *testing.T) {
	if solid(t, 1).Key() == solid(t, 2).Key() {
		t.Error("different content produced equal keys")
	}
	named := solid(t, 1).WithKey(42)
	if named.Key() != 42 {
		t.Errorf("WithKey(42).Key() = %d", named.Key())
	}
	if _, err := NewImage(2, 2, make([]byte, 3)); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("NewImage(short) error = %v, want ErrInvalidImage", err)
	}
}
