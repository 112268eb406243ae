// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package explicit implements the sprite backend for APIs with explicit
// resource binding, on top of the gogpu/wgpu HAL.
//
// Every binding is declared with a group and binding index when the
// pipeline is created:
//
//	@group(0) @binding(0)  Globals uniform block (one 4x4 matrix)
//	@group(1) @binding(0)  texture_2d_array<f32>
//	@group(1) @binding(1)  sampler
//
// Samplers and texture views are separate objects. Each texture array owns
// a group 1 bind group built from its view and the shared sampler for its
// filter; recreating an array yields a new bind group, which the renderer
// picks up when it sees the new array ID.
//
// Vertex buffer 0 carries per-vertex geometry (the unit quad or a mesh)
// and vertex buffer 1 the per-instance records. A draw is a single
// DrawIndexed with the batch's instance count.
//
// Importing the package registers an "explicit" factory that opens a
// Vulkan device. Hosts that already own a device use New or
// NewFromProvider instead.
package explicit
