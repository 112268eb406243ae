package sprite

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/sprite/gpucore"
	"github.com/gogpu/sprite/internal/gputest"
)

func newTestRenderer(t *testing.T, opts ...Option) (*Renderer, *gputest.Recorder) {
	t.Helper()
	rec := gputest.NewRecorder()
	r, err := NewRenderer(rec, opts...)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	t.Cleanup(r.Close)
	return r, rec
}

func beginFrame(t *testing.T, r *Renderer) *Frame {
	t.Helper()
	target, err := r.NewTarget(64, 64)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	f, err := r.BeginFrame(target, Color{})
	if err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	return f
}

func TestDrawThreeLayersOneDrawCall(t *testing.T) {
	r, rec := newTestRenderer(t)
	b, err := NewTextureArrayBatch(r, WithArrayDepth(3, 3), WithLayerSize(2, 2))
	if err != nil {
		t.Fatalf("NewTextureArrayBatch() error = %v", err)
	}
	defer b.Close()

	for i := range 3 {
		reg, err := b.AddImage(solid(t, byte(i+1)))
		if err != nil {
			t.Fatalf("AddImage(%d) error = %v", i, err)
		}
		if reg.Ref.Layer != uint32(i) {
			t.Fatalf("image %d on layer %d", i, reg.Ref.Layer)
		}
		if err := b.Add(reg, Quad{Position: Vec2{float32(i) * 10, 0}, Size: Vec2{8, 8}}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	f := beginFrame(t, r)
	rec.Reset()
	res, err := b.Draw(f, Vec2{})
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if res.DrawCalls != 1 || res.Instances != 3 {
		t.Errorf("Draw() = %+v, want 1 draw call of 3 instances", res)
	}

	draws := rec.Draws()
	if len(draws) != 1 {
		t.Fatalf("recorded %d draws, want 1", len(draws))
	}
	d := draws[0]
	if d.InstanceCount != 3 || d.IndexCount != 6 {
		t.Errorf("draw = %+v, want 3 instances of 6 indices", d)
	}

	stride := int(r.InstanceFormat().Stride())
	off := int(d.InstancesOffset)
	got := rec.Buffer(d.Instances)[off : off+3*stride]
	want := EncodeInstances(nil, b.Instances().Records(), r.InstanceFormat())
	if !bytes.Equal(got, want) {
		t.Error("uploaded instance data differs from the encoded buffer")
	}
	for i, record := range b.Instances().Records() {
		if record.Layer != uint32(i) {
			t.Errorf("record %d layer = %d", i, record.Layer)
		}
	}

	if err := f.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
}

func TestDrawEmptyIsNoop(t *testing.T) {
	r, rec := newTestRenderer(t)
	f := beginFrame(t, r)
	rec.Reset()

	res, err := r.Draw(f, NewInstanceBuffer(0), nil, f.Globals(Identity()))
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if res != (DrawResult{}) {
		t.Errorf("Draw() = %+v, want zero result", res)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("empty draw made backend calls: %+v", rec.Calls)
	}
}

func TestDrawSplitsAtInstanceLimit(t *testing.T) {
	r, rec := newTestRenderer(t, WithMaxInstancesPerDraw(2))
	f := beginFrame(t, r)

	buf := NewInstanceBuffer(0)
	for i := range 5 {
		_ = buf.Append(InstanceRecord{Scale: Vec2{1, 1}, Translation: Vec2{float32(i), 0}})
	}
	res, err := r.Draw(f, buf, nil, f.Globals(Identity()))
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if res.DrawCalls != 3 {
		t.Errorf("DrawCalls = %d, want 3", res.DrawCalls)
	}

	stride := uint64(r.InstanceFormat().Stride())
	draws := rec.Draws()
	wantCounts := []uint32{2, 2, 1}
	for i, d := range draws {
		if d.InstanceCount != wantCounts[i] {
			t.Errorf("draw %d count = %d, want %d", i, d.InstanceCount, wantCounts[i])
		}
		if d.InstancesOffset != draws[0].InstancesOffset+uint64(i)*2*stride {
			t.Errorf("draw %d offset = %d", i, d.InstancesOffset)
		}
	}
}

func TestDrawBindsGlobalsOnlyWhenChanged(t *testing.T) {
	r, rec := newTestRenderer(t)
	f := beginFrame(t, r)
	buf := NewInstanceBuffer(0)
	_ = buf.Append(InstanceRecord{Scale: Vec2{1, 1}})

	g := f.Globals(Identity())
	for range 3 {
		if _, err := r.Draw(f, buf, nil, g); err != nil {
			t.Fatal(err)
		}
	}
	if n := rec.Count("BindGlobals"); n != 1 {
		t.Errorf("BindGlobals calls = %d, want 1", n)
	}
	if n := rec.Count("BindTextureArray"); n != 1 {
		t.Errorf("BindTextureArray calls = %d, want 1", n)
	}

	if _, err := r.Draw(f, buf, nil, f.Globals(Translate(Vec2{5, 5}))); err != nil {
		t.Fatal(err)
	}
	if n := rec.Count("BindGlobals"); n != 2 {
		t.Errorf("BindGlobals calls = %d after change, want 2", n)
	}

	// A new frame binds again.
	if err := f.Present(); err != nil {
		t.Fatal(err)
	}
	f2, err := r.BeginFrame(f.Target(), Color{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Draw(f2, buf, nil, g); err != nil {
		t.Fatal(err)
	}
	if n := rec.Count("BindGlobals"); n != 3 {
		t.Errorf("BindGlobals calls = %d in new frame, want 3", n)
	}
}

func TestDrawRebindsAfterArrayRebuilt(t *testing.T) {
	r, rec := newTestRenderer(t)
	b, err := NewTextureArrayBatch(r, WithArrayDepth(1, 2), WithLayerSize(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var events []ArrayRebuilt
	b.Array().OnRebuilt(func(e ArrayRebuilt) { events = append(events, e) })

	regA, err := b.AddImage(solid(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	oldID := b.Array().ID()

	f := beginFrame(t, r)
	_ = b.Add(regA, Quad{Size: Vec2{4, 4}})
	if _, err := b.Draw(f, Vec2{}); err != nil {
		t.Fatal(err)
	}

	regB, err := b.AddImage(solid(t, 2))
	if err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	if len(events) != 1 || events[0].NewDepth != 2 {
		t.Fatalf("events = %+v, want one rebuild to depth 2", events)
	}
	newID := b.Array().ID()
	if newID == oldID {
		t.Fatal("array handle did not change after rebuild")
	}
	if _, ok := rec.TextureArray(oldID); !ok {
		t.Error("array read by this frame's draw destroyed before Present")
	}
	if rec.LayerUploads(newID, 0) != 1 || rec.LayerUploads(newID, 1) != 1 {
		t.Error("resident layers not uploaded to the new array")
	}

	_ = b.Add(regB, Quad{Size: Vec2{4, 4}})
	if _, err := b.Draw(f, Vec2{}); err != nil {
		t.Fatal(err)
	}
	var bound []uint64
	for _, c := range rec.Calls {
		if c.Op == "BindTextureArray" {
			bound = append(bound, c.ID)
		}
	}
	if len(bound) != 2 || bound[1] != uint64(newID) {
		t.Errorf("bound arrays = %v, want second bind of %d", bound, newID)
	}

	if err := f.Present(); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.TextureArray(oldID); ok {
		t.Error("replaced array still alive after Present")
	}
	if _, ok := rec.TextureArray(newID); !ok {
		t.Error("current array destroyed at Present")
	}
}

func TestDrawRejectsNilArguments(t *testing.T) {
	r, _ := newTestRenderer(t)
	if _, err := r.BeginFrame(nil, Color{}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("BeginFrame(nil) error = %v, want ErrInvalidTarget", err)
	}
	if _, err := r.ContinueFrame(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("ContinueFrame(nil) error = %v, want ErrInvalidTarget", err)
	}

	f := beginFrame(t, r)
	g := f.Globals(Identity())
	if _, err := r.Draw(f, nil, nil, g); !errors.Is(err, ErrNilBuffer) {
		t.Errorf("Draw(nil buffer) error = %v, want ErrNilBuffer", err)
	}
	buf := NewInstanceBuffer(0)
	_ = buf.Append(InstanceRecord{Source: FullRect, Scale: Vec2{1, 1}})
	if _, err := r.DrawMesh(f, nil, buf, nil, g); !errors.Is(err, ErrNilBuffer) {
		t.Errorf("DrawMesh(nil mesh) error = %v, want ErrNilBuffer", err)
	}
	if _, err := r.DrawMesh(f, NewMesh(), nil, nil, g); !errors.Is(err, ErrNilBuffer) {
		t.Errorf("DrawMesh(nil buffer) error = %v, want ErrNilBuffer", err)
	}
	if err := f.Present(); err != nil {
		t.Errorf("Present() after rejected draws error = %v", err)
	}
}

func TestGenerationChecksRejectStaleRegion(t *testing.T) {
	r, _ := newTestRenderer(t)
	b, err := NewTextureArrayBatch(r, WithArrayDepth(1, 1), WithLayerSize(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	old, _ := b.AddImage(solid(t, 1))
	b.ReleaseImage(old)
	if _, err := b.AddImage(solid(t, 2)); err != nil {
		t.Fatal(err)
	}

	if err := b.Add(old, Quad{}); !errors.Is(err, ErrStaleLayer) {
		t.Errorf("Add(stale) error = %v, want ErrStaleLayer", err)
	}

	unchecked, err := NewTextureArrayBatch(r, WithArrayDepth(1, 1), WithLayerSize(2, 2), WithGenerationChecks(false))
	if err != nil {
		t.Fatal(err)
	}
	defer unchecked.Close()
	stale, _ := unchecked.AddImage(solid(t, 1))
	unchecked.ReleaseImage(stale)
	if err := unchecked.Add(stale, Quad{}); err != nil {
		t.Errorf("Add() without checks error = %v", err)
	}
}

func TestCapacityExceededCountsSkipped(t *testing.T) {
	r, _ := newTestRenderer(t)
	b, err := NewTextureArrayBatch(r, WithArrayDepth(1, 1), WithLayerSize(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	reg, _ := b.AddImage(solid(t, 1))
	if _, err := b.AddImage(solid(t, 2)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("AddImage() error = %v, want ErrCapacityExceeded", err)
	}
	_ = b.Add(reg, Quad{Size: Vec2{1, 1}})

	f := beginFrame(t, r)
	res, err := b.Draw(f, Vec2{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Instances != 1 {
		t.Errorf("Draw() = %+v, want 1 instance and 1 skipped", res)
	}
}

func TestFrameProjectionFlipY(t *testing.T) {
	rec := gputest.NewRecorder()
	rec.Caps.FlipY = true
	r, err := NewRenderer(rec)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	f := beginFrame(t, r)
	// Top-left pixel maps to the bottom of clip space.
	p := f.Projection().Apply(Vec2{0, 0})
	if !approx(p.X, -1) || !approx(p.Y, -1) {
		t.Errorf("top-left = %v, want (-1,-1)", p)
	}
	if err := f.Present(); err != nil {
		t.Fatal(err)
	}

	// Presented targets keep the top-left origin.
	wrapped, err := r.BeginFrame(r.WrapTarget(99, 64, 64), Color{})
	if err != nil {
		t.Fatal(err)
	}
	p = wrapped.Projection().Apply(Vec2{0, 0})
	if !approx(p.X, -1) || !approx(p.Y, 1) {
		t.Errorf("wrapped top-left = %v, want (-1,1)", p)
	}

	rec2 := gputest.NewRecorder()
	r2, _ := NewRenderer(rec2)
	defer r2.Close()
	f2 := beginFrame(t, r2)
	p = f2.Projection().Apply(Vec2{0, 0})
	if !approx(p.X, -1) || !approx(p.Y, 1) {
		t.Errorf("top-left = %v, want (-1,1)", p)
	}
}

func approx(a, b float32) bool {
	d := a - b
	return d < 1e-5 && d > -1e-5
}

func TestDrawOutsideFrame(t *testing.T) {
	r, _ := newTestRenderer(t)
	buf := NewInstanceBuffer(0)
	_ = buf.Append(InstanceRecord{})

	if _, err := r.Draw(nil, buf, nil, gpucore.Globals{}); !errors.Is(err, gpucore.ErrNoFrame) {
		t.Errorf("Draw(nil frame) error = %v, want ErrNoFrame", err)
	}

	f := beginFrame(t, r)
	if _, err := r.BeginFrame(f.Target(), Color{}); !errors.Is(err, gpucore.ErrFrameInProgress) {
		t.Errorf("second BeginFrame() error = %v", err)
	}
	_ = f.Present()
	if _, err := r.Draw(f, buf, nil, gpucore.Globals{}); !errors.Is(err, gpucore.ErrNoFrame) {
		t.Errorf("Draw(presented frame) error = %v, want ErrNoFrame", err)
	}
	if err := f.Present(); !errors.Is(err, gpucore.ErrNoFrame) {
		t.Errorf("second Present() error = %v, want ErrNoFrame", err)
	}
}

func TestDrawDeviceLost(t *testing.T) {
	r, rec := newTestRenderer(t)
	rec.FailDraw = gpucore.ErrDeviceLost
	f := beginFrame(t, r)

	buf := NewInstanceBuffer(0)
	_ = buf.Append(InstanceRecord{})
	_, err := r.Draw(f, buf, nil, f.Globals(Identity()))
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Draw() error = %v, want ErrDeviceLost", err)
	}
	if rec.Count("DrawInstanced") != 0 {
		t.Error("failed draw was recorded")
	}
}

func TestStreamGrowthRetiresUntilPresent(t *testing.T) {
	r, rec := newTestRenderer(t, WithRendererConfig(RendererConfig{
		Instance:          gpucore.InstanceFormat{},
		InitialBufferSize: 256,
	}))
	f := beginFrame(t, r)
	live := rec.LiveBuffers()

	buf := NewInstanceBuffer(0)
	for range 4 {
		_ = buf.Append(InstanceRecord{Scale: Vec2{1, 1}})
	}
	// 4 x 36 bytes fits the first buffer; the second draw does not.
	for range 2 {
		if _, err := r.Draw(f, buf, nil, f.Globals(Identity())); err != nil {
			t.Fatal(err)
		}
	}
	draws := rec.Draws()
	if draws[0].Instances == draws[1].Instances {
		t.Fatal("second draw should use a grown buffer")
	}
	if len(r.instances.retired) != 1 {
		t.Fatalf("retired = %v, want one buffer", r.instances.retired)
	}
	if got := rec.Buffer(draws[0].Instances); len(got) != 256 {
		t.Errorf("retired buffer size = %d, want 256 while frame is open", len(got))
	}

	if err := f.Present(); err != nil {
		t.Fatal(err)
	}
	// Two instance buffers were created and the retired one destroyed.
	if got := rec.LiveBuffers(); got != live+1 {
		t.Errorf("LiveBuffers() = %d after Present, want %d", got, live+1)
	}
}

func TestDrawMesh(t *testing.T) {
	r, rec := newTestRenderer(t)
	m := NewMesh()
	m.Fill(Rectangle{Min: Vec2{0, 0}, Max: Vec2{4, 2}}, White)

	f := beginFrame(t, r)
	buf := NewInstanceBuffer(0)
	_ = buf.Append(InstanceRecord{Source: FullRect, Scale: Vec2{1, 1}})
	_ = buf.Append(InstanceRecord{Source: FullRect, Scale: Vec2{1, 1}, Translation: Vec2{10, 0}})

	res, err := r.DrawMesh(f, m, buf, nil, f.Globals(Identity()))
	if err != nil {
		t.Fatalf("DrawMesh() error = %v", err)
	}
	if res.DrawCalls != 1 || res.Instances != 2 {
		t.Errorf("DrawMesh() = %+v", res)
	}
	d := rec.Draws()[0]
	if d.IndexCount != 6 || d.InstanceCount != 2 {
		t.Errorf("draw = %+v, want 6 indices x 2 instances", d)
	}
	if d.Pipeline == r.quadPipeline || d.Pipeline != r.meshPipeline {
		t.Errorf("draw used pipeline %d, want mesh pipeline %d", d.Pipeline, r.meshPipeline)
	}
	wantBytes := uint64(4*gpucore.MeshVertexStride + 6*4 + 2*int(r.InstanceFormat().Stride()))
	if res.UploadedBytes != wantBytes {
		t.Errorf("UploadedBytes = %d, want %d", res.UploadedBytes, wantBytes)
	}

	// An empty mesh draws nothing.
	res, err = r.DrawMesh(f, NewMesh(), buf, nil, f.Globals(Identity()))
	if err != nil || res.DrawCalls != 0 {
		t.Errorf("DrawMesh(empty) = %+v, %v", res, err)
	}
}

func TestTargetReadUnsupported(t *testing.T) {
	r, _ := newTestRenderer(t)
	target, err := r.NewTarget(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer target.Close()
	if _, err := target.Read(); !errors.Is(err, ErrReadbackUnsupported) {
		t.Errorf("Read() error = %v, want ErrReadbackUnsupported", err)
	}
}

func TestBatchDrawAppliesPosition(t *testing.T) {
	r, rec := newTestRenderer(t)
	b, err := NewBatch(r, solid(t, 9))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	defer b.Close()
	if err := b.Add(Quad{Size: Vec2{2, 2}}); err != nil {
		t.Fatal(err)
	}

	f := beginFrame(t, r)
	if _, err := b.Draw(f, Vec2{3, 4}); err != nil {
		t.Fatal(err)
	}
	globals := rec.Globals()
	if len(globals) != 1 {
		t.Fatalf("globals bound %d times", len(globals))
	}
	want := f.Globals(Translate(Vec2{3, 4}))
	if globals[0] != want {
		t.Errorf("globals = %v, want %v", globals[0], want)
	}
	if got := b.Instances().At(0).Source; got != FullRect {
		t.Errorf("source = %v, want full image", got)
	}
}

func TestSpriteBatchNormalizesCells(t *testing.T) {
	r, _ := newTestRenderer(t)
	sheet := filled(t, 8, 4, 1)
	b, err := NewSpriteBatch(r, sheet)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	err = b.AddSprites([]Sprite{
		{Source: RectU16{X: 4, Y: 0, W: 4, H: 4}, Position: Vec2{1, 1}},
		{Source: RectU16{X: 0, Y: 2, W: 2, H: 2}, Scale: Vec2{3, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}

	first := b.Instances().At(0)
	if first.Source != (Rect{X: 0.5, Y: 0, W: 0.5, H: 1}) || first.Scale != (Vec2{4, 4}) {
		t.Errorf("first = %+v", *first)
	}
	second := b.Instances().At(1)
	if second.Source != (Rect{X: 0, Y: 0.5, W: 0.25, H: 0.5}) || second.Scale != (Vec2{6, 6}) {
		t.Errorf("second = %+v", *second)
	}
}

func TestFixedBatchBufferFull(t *testing.T) {
	r, _ := newTestRenderer(t)
	b, err := NewBatch(r, solid(t, 1), WithMaxInstances(1))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.Add(Quad{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(Quad{}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Add() error = %v, want ErrBufferFull", err)
	}
	b.Clear()
	if b.Len() != 0 || b.Instances().Cap() != 1 {
		t.Errorf("after Clear: Len=%d Cap=%d", b.Len(), b.Instances().Cap())
	}
}

func TestTextureArrayBatchLoadBuilder(t *testing.T) {
	r, rec := newTestRenderer(t)
	b, err := NewTextureArrayBatch(r, WithLayerSize(8, 8))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ab := NewArrayBuilder(8, 8, 0)
	hero, _ := ab.Add("hero", filled(t, 4, 4, 1))
	tree, _ := ab.Add("tree", filled(t, 8, 8, 2))
	if err := b.Load(ab); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := rec.Count("WriteLayer"); got != 2 {
		t.Errorf("WriteLayer calls = %d, want 2", got)
	}

	if err := b.AddIndexed(tree, Quad{Size: Vec2{8, 8}}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddIndexed(hero, Quad{Source: Rect{0.5, 0, 0.5, 1}, Size: Vec2{2, 4}}); err != nil {
		t.Fatal(err)
	}
	if got := b.Instances().At(0).Layer; got != 1 {
		t.Errorf("tree layer = %d, want 1", got)
	}
	if got := b.Instances().At(1).Source; got != (Rect{X: 0.25, Y: 0, W: 0.25, H: 0.5}) {
		t.Errorf("hero source = %v", got)
	}
	if err := b.AddIndexed(Index{Layer: 7}, Quad{}); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("AddIndexed(unknown layer) error = %v", err)
	}
}
