// Package backend provides a registry of pluggable rendering backends.
//
// Two backend families implement gpucore.Backend:
//
//   - "explicit" (package backend/explicit): WebGPU-style binding through
//     gogpu/wgpu HAL. Bind group layouts, set and binding indices are fixed
//     when the pipeline is created; the sampler and the texture view are
//     separate objects.
//   - "legacy" (package backend/legacy): GL-style binding through an
//     explicit legacy.Context. Shader inputs are named slots resolved when
//     the program links; instance attributes advance with a divisor of one.
//
// # Backend Registration
//
// Backends are registered via init() functions or by the application and
// selected at runtime. The host-executed legacy context registers itself on
// import:
//
//	import _ "github.com/gogpu/sprite/backend/legacy/soft"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b, err := backend.Default()
//
//	// Or request a specific backend
//	b, err := backend.Get(backend.NameLegacy)
package backend
