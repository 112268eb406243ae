// Package gpucore provides the backend-agnostic contract for instanced sprite
// rendering.
//
// This package defines the [Backend] interface, which abstracts over graphics
// APIs with different resource binding models, allowing the same batching
// code to work with:
//   - legacy APIs with an implicit current context, where shader inputs are
//     named slots resolved when the program links (OpenGL 3.3 style)
//   - explicit APIs, where set and binding indices are fixed when the
//     pipeline is created and samplers are separate objects (WebGPU via HAL)
//
// # Architecture
//
//	               +-----------------+
//	               |  sprite.Renderer |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| legacy backend  |          | explicit backend |
//	| (named slots)   |          | (bind groups)    |
//	+--------+--------+          +--------+--------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| legacy.Context  |          |  gogpu/wgpu hal |
//	| (GL or soft)    |          |                 |
//	+-----------------+          +-----------------+
//
// # Wire Layout
//
// Globals is one column-major 4x4 float32 matrix (64 bytes). The quad
// vertex stream carries a position (8 bytes); the mesh vertex stream adds
// UV and color. The instance stream packs, in order: source rect (16),
// scale (8), translation (8), optional rotation (4), layer (4), optional
// color (16). See [InstanceFormat].
//
// # Resource Management
//
// Resources are addressed via opaque IDs ([BufferID], [TextureArrayID],
// [PipelineID], [TargetID]). Backends are responsible for tracking the
// mapping between IDs and API objects.
package gpucore
