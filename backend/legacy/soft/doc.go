// Package soft runs the legacy backend's programs on the CPU.
//
// Context implements legacy.Context without a display or driver. It links
// the generated GLSL by reading its input and uniform declarations, runs
// the sprite vertex stage per instance and rasterizes with anti-aliased
// coverage from golang.org/x/image/vector. Importing the package registers
// a headless "legacy" backend:
//
//	import _ "github.com/gogpu/sprite/backend/legacy/soft"
//
//	b, err := backend.Get(backend.NameLegacy)
package soft
