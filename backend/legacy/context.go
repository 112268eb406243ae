package legacy

// Object names handed out by a Context. Zero is never a valid object,
// except for Framebuffer where it names the default (window) framebuffer.
type (
	Program     uint32
	Buffer      uint32
	VertexArray uint32
	Texture     uint32
	Framebuffer uint32
)

// BufferTarget selects the binding point of BindBuffer.
type BufferTarget uint8

// Buffer targets.
const (
	ArrayBuffer BufferTarget = iota
	ElementArrayBuffer
)

// AttribType is the scalar type of a vertex attribute.
type AttribType uint8

// Attribute types. UnsignedInt attributes are read as integers, not
// normalized or converted to float.
const (
	Float AttribType = iota
	UnsignedInt
)

// Limits reports context limits.
type Limits struct {
	MaxTextureSize        int32
	MaxArrayTextureLayers int32
}

// Context is an OpenGL 3.3 style graphics context made explicit.
//
// Every call acts on the state of the receiver only: current program,
// buffer and vertex array bindings, the texture bound to the active unit,
// the draw framebuffer, viewport, clear color and blending. Nothing is
// process global, so several backends can each own a context.
//
// Texture calls act on a 2D array texture; framebuffers have one RGBA8
// color attachment. Errors are latched like glGetError: Error returns the
// first error since the previous call and clears it.
type Context interface {
	Limits() Limits

	// CreateProgram compiles and links a vertex and fragment shader.
	CreateProgram(vertex, fragment string) (Program, error)
	DeleteProgram(p Program)
	// AttribLocation returns the location of a linked input, or -1.
	AttribLocation(p Program, name string) int32
	// UniformLocation returns the location of a linked uniform, or -1.
	UniformLocation(p Program, name string) int32
	UseProgram(p Program)
	UniformMatrix4(location int32, m *[16]float32)
	Uniform1i(location int32, v int32)

	CreateBuffer() Buffer
	BindBuffer(target BufferTarget, b Buffer)
	// BufferData allocates size zeroed bytes for the buffer bound to target.
	BufferData(target BufferTarget, size int)
	BufferSubData(target BufferTarget, offset int, data []byte)
	DeleteBuffer(b Buffer)

	CreateVertexArray() VertexArray
	BindVertexArray(v VertexArray)
	DeleteVertexArray(v VertexArray)
	EnableVertexAttribArray(location uint32)
	// VertexAttribPointer sources location from the buffer bound to
	// ArrayBuffer, starting at offset bytes.
	VertexAttribPointer(location uint32, size int32, typ AttribType, stride int32, offset int)
	VertexAttribDivisor(location, divisor uint32)

	CreateTexture() Texture
	ActiveTexture(unit uint32)
	BindTexture(t Texture)
	// TexStorage3D allocates RGBA8 storage for the bound texture.
	TexStorage3D(width, height, depth int32)
	// TexSubImage3D uploads tightly packed RGBA8 rows, top row first.
	TexSubImage3D(x, y, layer, width, height int32, pixels []byte)
	// TexFilter sets minification and magnification to linear or nearest.
	TexFilter(linear bool)
	DeleteTexture(t Texture)

	CreateFramebuffer(width, height int32) (Framebuffer, error)
	BindFramebuffer(f Framebuffer)
	DeleteFramebuffer(f Framebuffer)
	Viewport(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	Clear()
	// EnableBlend selects premultiplied source-over blending.
	EnableBlend()
	// DrawElementsInstanced draws count uint32 indices as triangles,
	// starting offset bytes into the element buffer of the bound vertex
	// array, instances times.
	DrawElementsInstanced(count int32, offset int, instances int32)
	// ReadPixels copies RGBA8 pixels from the bound framebuffer, bottom row
	// first.
	ReadPixels(x, y, width, height int32, dst []byte)
	Flush()
	Error() error
}
