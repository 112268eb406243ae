// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package legacy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/sprite/backend"
	"github.com/gogpu/sprite/gpucore"
)

// textureUnit is the unit the texture array is sampled from.
const textureUnit = 0

var errClosed = errors.New("legacy: backend closed")

// Config tunes the legacy backend.
type Config struct {
	// Swap presents the default framebuffer after a frame on a target
	// returned by DefaultTarget. Nil for headless contexts.
	Swap func() error

	// MaxInstancesPerDraw caps a single draw. Zero means 1<<16.
	MaxInstancesPerDraw uint32
}

// Backend implements gpucore.Backend on a Context.
//
// Bindings are resolved by name when a program links: every input and
// uniform is looked up through its slot name, and the texture array is
// sampled through unit 0 with the filter stored on the texture itself.
// All state changes go through the Context value the backend was built
// with.
type Backend struct {
	mu sync.Mutex

	ctx    Context
	cfg    Config
	limits Limits
	log    *slog.Logger

	nextID    uint64
	pipelines map[gpucore.PipelineID]*program
	buffers   map[gpucore.BufferID]*buffer
	arrays    map[gpucore.TextureArrayID]*textureArray
	targets   map[gpucore.TargetID]*target

	// Bindings currently set on ctx.
	current *program
	texture Texture

	frame  *frame
	closed bool
}

// New creates a backend drawing through ctx. The caller keeps ownership of
// the context; the context must stay current on the goroutine that draws.
func New(ctx Context, cfg Config) (*Backend, error) {
	if ctx == nil {
		return nil, fmt.Errorf("legacy: %w: nil context", backend.ErrBackendNotAvailable)
	}
	if cfg.MaxInstancesPerDraw == 0 {
		cfg.MaxInstancesPerDraw = 1 << 16
	}
	b := &Backend{
		ctx:       ctx,
		cfg:       cfg,
		limits:    ctx.Limits(),
		log:       slog.New(slog.DiscardHandler),
		pipelines: make(map[gpucore.PipelineID]*program),
		buffers:   make(map[gpucore.BufferID]*buffer),
		arrays:    make(map[gpucore.TextureArrayID]*textureArray),
		targets:   make(map[gpucore.TargetID]*target),
	}
	if err := ctx.Error(); err != nil {
		return nil, fmt.Errorf("legacy: context unusable: %w", err)
	}
	return b, nil
}

// SetLogger sets the backend logger. A nil logger disables logging.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = l
}

// Name returns "legacy".
func (b *Backend) Name() string { return backend.NameLegacy }

// Capabilities reports context limits. Offscreen framebuffers store their
// bottom row first, and samplers are texture state.
func (b *Backend) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{
		MaxTextureSize:      uint32(max(b.limits.MaxTextureSize, 0)),        //nolint:gosec // clamped
		MaxArrayLayers:      uint32(max(b.limits.MaxArrayTextureLayers, 0)), //nolint:gosec // clamped
		MaxInstancesPerDraw: b.cfg.MaxInstancesPerDraw,
		FlipY:               true,
		SeparateSamplers:    false,
	}
}

// Context returns the context the backend draws through.
func (b *Backend) Context() Context { return b.ctx }

func (b *Backend) id() uint64 {
	b.nextID++
	return b.nextID
}

// bindTexture makes t the texture of unit 0 unless it already is.
func (b *Backend) bindTexture(t Texture) {
	if b.texture == t {
		return
	}
	b.ctx.ActiveTexture(textureUnit)
	b.ctx.BindTexture(t)
	b.texture = t
}

// Close deletes every object the backend created. An open frame is
// dropped without presenting. The context itself is left alone.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.frame = nil
	for id, p := range b.pipelines {
		b.ctx.DeleteVertexArray(p.vao)
		b.ctx.DeleteProgram(p.handle)
		delete(b.pipelines, id)
	}
	for id, buf := range b.buffers {
		b.ctx.DeleteBuffer(buf.handle)
		delete(b.buffers, id)
	}
	for id, a := range b.arrays {
		b.ctx.DeleteTexture(a.handle)
		delete(b.arrays, id)
	}
	for id, t := range b.targets {
		if t.fb != 0 {
			b.ctx.DeleteFramebuffer(t.fb)
		}
		delete(b.targets, id)
	}
	b.current = nil
	b.texture = 0
	b.log.Debug("legacy: closed")
}

var (
	_ gpucore.Backend      = (*Backend)(nil)
	_ gpucore.TargetReader = (*Backend)(nil)
)
