package main

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"log/slog"

	"github.com/gogpu/sprite"
	"github.com/gogpu/sprite/assets"
	"github.com/gogpu/sprite/gpucore"
)

// Result is a rendered scene.
type Result struct {
	Image   *image.RGBA
	Sprites sprite.DrawResult
	Shapes  sprite.DrawResult
	Layers  int
}

// Render draws sc on b. Image paths are resolved in files.
func Render(ctx context.Context, sc *Scene, files fs.FS, b gpucore.Backend, workers int) (*Result, error) {
	images, err := loadImages(ctx, sc, files, workers)
	if err != nil {
		return nil, err
	}

	r, err := sprite.NewRenderer(b)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	lw, lh := layerSize(sc, images)
	filter, _ := sc.filter()
	batch, err := sprite.NewTextureArrayBatch(r, sprite.WithLayerSize(lw, lh), sprite.WithFilter(filter))
	if err != nil {
		return nil, err
	}
	defer batch.Close()

	regions, layers, err := pack(batch, sc, images, lw, lh)
	if err != nil {
		return nil, err
	}

	set := sprite.NewProducerSet(workers)
	defer set.Close()
	for _, sp := range sc.Sprites {
		set.Register(spriteProducer(sp, regions[sp.Image], images[sp.Image]))
	}
	if err := set.Populate(batch.Instances()); err != nil {
		return nil, fmt.Errorf("populate sprites: %w", err)
	}

	mesh := sprite.NewMesh()
	for _, sh := range sc.Shapes {
		shape, _ := sh.shape()
		if sh.Fill != nil {
			mesh.Fill(shape, sh.Fill.Premultiplied())
		}
		if sh.Stroke != nil {
			mesh.Stroke(shape, sh.Stroke.Premultiplied(), max(sh.Width, 1))
		}
	}
	meshInstances := sprite.NewInstanceBuffer(1)
	if err := meshInstances.Append(sprite.InstanceRecord{
		Source: sprite.FullRect,
		Scale:  sprite.Vec2{X: 1, Y: 1},
	}); err != nil {
		return nil, err
	}

	target, err := r.NewTarget(sc.Width, sc.Height)
	if err != nil {
		return nil, err
	}
	defer target.Close()

	frame, err := r.BeginFrame(target, sc.Background.Premultiplied())
	if err != nil {
		return nil, err
	}
	res := &Result{Layers: layers}
	if res.Shapes, err = r.DrawMesh(frame, mesh, meshInstances, nil, frame.Globals(sprite.Identity())); err != nil {
		return nil, fmt.Errorf("draw shapes: %w", err)
	}
	if res.Sprites, err = batch.Draw(frame, sprite.Vec2{}); err != nil {
		return nil, fmt.Errorf("draw sprites: %w", err)
	}
	if err := frame.Present(); err != nil {
		return nil, err
	}
	slog.Debug("scene rendered", "sprites", res.Sprites, "shapes", res.Shapes, "layers", layers)

	if res.Image, err = target.Read(); err != nil {
		return nil, err
	}
	return res, nil
}

// loadImages decodes file images concurrently and generates the rest.
func loadImages(ctx context.Context, sc *Scene, files fs.FS, workers int) (map[string]*sprite.Image, error) {
	var paths []string
	for _, im := range sc.Images {
		if im.Path != "" {
			paths = append(paths, im.Path)
		}
	}
	loaded, err := assets.Load(ctx, files, paths, workers)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*sprite.Image, len(sc.Images))
	next := 0
	for _, im := range sc.Images {
		if im.Path != "" {
			out[im.Name] = loaded[next]
			next++
			continue
		}
		img, err := im.generate()
		if err != nil {
			return nil, err
		}
		out[im.Name] = img
	}
	return out, nil
}

// layerSize returns the configured layer size, or one that fits the
// largest image.
func layerSize(sc *Scene, images map[string]*sprite.Image) (int, int) {
	if sc.Layer[0] > 0 && sc.Layer[1] > 0 {
		return sc.Layer[0], sc.Layer[1]
	}
	w, h := 1, 1
	for _, img := range images {
		w, h = max(w, img.Width()), max(h, img.Height())
	}
	return w, h
}

// pack places every image in shared layers and uploads them.
func pack(batch *sprite.TextureArrayBatch, sc *Scene, images map[string]*sprite.Image, lw, lh int) (map[string]sprite.Region, int, error) {
	ab := sprite.NewArrayBuilder(lw, lh, 1)
	indices := make(map[string]sprite.Index, len(sc.Images))
	for _, im := range sc.Images {
		idx, err := ab.Add(im.Name, images[im.Name])
		if err != nil {
			return nil, 0, err
		}
		indices[im.Name] = idx
	}
	if err := batch.Load(ab); err != nil {
		return nil, 0, err
	}
	regions := make(map[string]sprite.Region, len(indices))
	for name, idx := range indices {
		reg, err := batch.Region(idx)
		if err != nil {
			return nil, 0, err
		}
		regions[name] = reg
	}
	return regions, ab.Layers(), nil
}

// spriteProducer emits the instances of one sprite group. Sprites without
// a size are drawn at the size of img.
func spriteProducer(sp SpriteSpec, reg sprite.Region, img *sprite.Image) sprite.Producer {
	size := sp.Size.vec()
	if size == (sprite.Vec2{}) {
		size = sprite.Vec2{X: float32(img.Width()), Y: float32(img.Height())}
	}
	return sprite.ProducerFunc(func(run *sprite.InstanceBuffer) error {
		tint := white
		if sp.Tint != nil {
			tint = *sp.Tint
		}
		pos := sp.At.vec()
		angle := sp.Angle
		for i := range max(sp.Repeat, 1) {
			q := sprite.Quad{
				Position: pos,
				Size:     size,
				Rotation: radians(angle),
				Color:    tint.shiftHue(sp.HueStep * float64(i)).Premultiplied(),
			}
			if err := run.Append(reg.Record(q)); err != nil {
				return err
			}
			pos = pos.Add(sp.Step.vec())
			angle += sp.Spin
		}
		return nil
	})
}
