// Package legacy implements the sprite backend for OpenGL 3.3 style
// contexts, where shader inputs are resolved by name when a program links.
//
// Every call goes through a Context value instead of process-global
// state. A Context can be a real GL context (see the glcontext package,
// built with the "gl" tag) or the host-executed one in the soft package,
// which runs the same programs on the CPU and needs no display.
//
// Binding model:
//
//	a_Pos, a_UV, a_VertColor      per-vertex inputs, buffer 0
//	a_Src ... a_Color             per-instance inputs, divisor 1
//	u_MVP                         mat4 uniform, uploaded when it changes
//	t_Texture                     sampler2DArray on texture unit 0
//
// Sampling state lives on the texture, so each texture array carries its
// own filter. Offscreen framebuffers store their bottom row first; the
// backend reports FlipY and callers invert their projection for them.
package legacy
