// Package sprite draws large numbers of textured quads and small meshes
// with one instanced draw call per batch.
//
// # Overview
//
// Every image a batch samples lives in one layer of a texture array, so a
// single pipeline binding covers quads showing different images. Each quad
// is one instance record carrying its source rectangle, size, translation,
// rotation, layer and tint. A frame uploads the records once and issues
// one draw per batch, split only when a backend limit is exceeded.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/sprite"
//		_ "github.com/gogpu/sprite/backend/legacy/soft"
//	)
//
//	r, _ := sprite.NewDefaultRenderer()
//	batch, _ := sprite.NewTextureArrayBatch(r, sprite.WithLayerSize(64, 64))
//	hero, _ := batch.AddImage(img)
//	batch.Add(hero, sprite.Quad{Position: sprite.Vec2{X: 10, Y: 20}, Size: sprite.Vec2{X: 32, Y: 32}})
//
//	target, _ := r.NewTarget(320, 200)
//	frame, _ := r.BeginFrame(target, sprite.Color{A: 1})
//	batch.Draw(frame, sprite.Vec2{})
//	frame.Present()
//
// # Backends
//
// Rendering goes through a gpucore.Backend. Two families exist:
//   - legacy: named attribute and uniform slots resolved when a program
//     is linked, issued through an explicit Context.
//   - explicit: bind groups with fixed set and binding indices, separate
//     sampler and texture view objects, built on gogpu/wgpu.
//
// Backends register themselves with package backend when imported.
//
// # Texture Arrays
//
// TextureArray hands out layers with generation counters. Releasing a
// layer bumps its generation, so a stale LayerRef is detected before it
// samples someone else's image. Arrays grow by doubling up to a maximum
// depth; a full array reports ErrCapacityExceeded and the batch counts the
// image as skipped.
//
// # Producers
//
// ProducerSet fills instance buffers from many goroutines. Each producer
// writes to its own run and runs are merged in registration order, so
// the output does not depend on scheduling.
//
// # Coordinate System
//
// Positions are in target pixels:
//   - Origin (0,0) at top-left
//   - X increases right
//   - Y increases down
//   - Rotations in radians, clockwise on screen
package sprite
