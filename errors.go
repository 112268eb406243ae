package sprite

import (
	"errors"
	"fmt"

	"github.com/gogpu/sprite/gpucore"
)

// Errors returned by batching operations.
var (
	// ErrCapacityExceeded is returned when a texture array has no free layer
	// and cannot grow.
	ErrCapacityExceeded = errors.New("sprite: texture array capacity exceeded")

	// ErrBufferFull is returned when a fixed-capacity instance buffer is full.
	ErrBufferFull = errors.New("sprite: instance buffer full")

	// ErrStaleLayer is returned when a layer reference outlived a release of
	// its layer.
	ErrStaleLayer = errors.New("sprite: stale layer reference")

	// ErrInvalidImage is returned for images with no pixels or a pixel slice
	// that does not match the dimensions.
	ErrInvalidImage = errors.New("sprite: invalid image")

	// ErrInvalidTarget is returned when a frame is begun without a target.
	ErrInvalidTarget = errors.New("sprite: invalid target")

	// ErrNilBuffer is returned when a draw is given no instance buffer or
	// no mesh.
	ErrNilBuffer = errors.New("sprite: nil instance buffer or mesh")

	// ErrImageTooBig is returned when an image does not fit in one layer.
	ErrImageTooBig = errors.New("sprite: image larger than a texture layer")

	// ErrNoBackend is returned when no rendering backend is available.
	ErrNoBackend = errors.New("sprite: no backend available")

	// ErrClosed is returned when a closed renderer or array is used.
	ErrClosed = errors.New("sprite: use of closed resource")

	// ErrKeyNotFound is returned when an array builder key was never added.
	ErrKeyNotFound = errors.New("sprite: key not found")

	// ErrReadbackUnsupported is returned by Target.Read when the backend
	// cannot copy targets to host memory.
	ErrReadbackUnsupported = errors.New("sprite: target readback not supported")

	// ErrDeviceLost reports a fatal device-level failure. The frame is lost.
	ErrDeviceLost = gpucore.ErrDeviceLost
)

// CapacityError describes a failed layer allocation.
type CapacityError struct {
	Depth    int
	MaxDepth int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("sprite: texture array capacity exceeded (%d layers in use, max %d)", e.Depth, e.MaxDepth)
}

// Unwrap lets errors.Is match ErrCapacityExceeded.
func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }
