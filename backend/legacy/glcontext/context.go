//go:build gl

// Package glcontext implements legacy.Context on an OpenGL 3.3 core
// context through go-gl.
//
// The host creates the window and GL context (GLFW, SDL or similar), makes
// it current on the drawing goroutine's locked OS thread and calls New.
// Every method assumes that context is current.
package glcontext

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v3.3-core/gl"

	"github.com/gogpu/sprite/backend/legacy"
)

// Context forwards legacy.Context calls to the current GL context.
type Context struct {
	limits legacy.Limits

	// color attachments of framebuffers created by CreateFramebuffer.
	colors map[legacy.Framebuffer]uint32
}

// New loads GL entry points and reads the context limits.
func New() (*Context, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("glcontext: init: %w", err)
	}
	var size, layers int32
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &size)
	gl.GetIntegerv(gl.MAX_ARRAY_TEXTURE_LAYERS, &layers)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	return &Context{
		limits: legacy.Limits{MaxTextureSize: size, MaxArrayTextureLayers: layers},
		colors: make(map[legacy.Framebuffer]uint32),
	}, nil
}

func (c *Context) Limits() legacy.Limits { return c.limits }

func compile(typ uint32, src string) (uint32, error) {
	sh := gl.CreateShader(typ)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(sh, 1, csrc, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(sh, n, nil, gl.Str(log))
		gl.DeleteShader(sh)
		return 0, errors.New(strings.TrimRight(log, "\x00"))
	}
	return sh, nil
}

func (c *Context) CreateProgram(vertex, fragment string) (legacy.Program, error) {
	vs, err := compile(gl.VERTEX_SHADER, vertex)
	if err != nil {
		return 0, fmt.Errorf("glcontext: vertex shader: %w", err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compile(gl.FRAGMENT_SHADER, fragment)
	if err != nil {
		return 0, fmt.Errorf("glcontext: fragment shader: %w", err)
	}
	defer gl.DeleteShader(fs)

	p := gl.CreateProgram()
	gl.AttachShader(p, vs)
	gl.AttachShader(p, fs)
	gl.LinkProgram(p)
	var status int32
	gl.GetProgramiv(p, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(p, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(p, n, nil, gl.Str(log))
		gl.DeleteProgram(p)
		return 0, fmt.Errorf("glcontext: link: %s", strings.TrimRight(log, "\x00"))
	}
	return legacy.Program(p), nil
}

func (c *Context) DeleteProgram(p legacy.Program) { gl.DeleteProgram(uint32(p)) }

func (c *Context) AttribLocation(p legacy.Program, name string) int32 {
	return gl.GetAttribLocation(uint32(p), gl.Str(name+"\x00"))
}

func (c *Context) UniformLocation(p legacy.Program, name string) int32 {
	return gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
}

func (c *Context) UseProgram(p legacy.Program) { gl.UseProgram(uint32(p)) }

func (c *Context) UniformMatrix4(location int32, m *[16]float32) {
	gl.UniformMatrix4fv(location, 1, false, &m[0])
}

func (c *Context) Uniform1i(location int32, v int32) { gl.Uniform1i(location, v) }

func bufferTarget(t legacy.BufferTarget) uint32 {
	if t == legacy.ElementArrayBuffer {
		return gl.ELEMENT_ARRAY_BUFFER
	}
	return gl.ARRAY_BUFFER
}

func (c *Context) CreateBuffer() legacy.Buffer {
	var b uint32
	gl.GenBuffers(1, &b)
	return legacy.Buffer(b)
}

func (c *Context) BindBuffer(target legacy.BufferTarget, b legacy.Buffer) {
	gl.BindBuffer(bufferTarget(target), uint32(b))
}

func (c *Context) BufferData(target legacy.BufferTarget, size int) {
	gl.BufferData(bufferTarget(target), size, nil, gl.DYNAMIC_DRAW)
}

func (c *Context) BufferSubData(target legacy.BufferTarget, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BufferSubData(bufferTarget(target), offset, len(data), gl.Ptr(data))
}

func (c *Context) DeleteBuffer(b legacy.Buffer) {
	h := uint32(b)
	gl.DeleteBuffers(1, &h)
}

func (c *Context) CreateVertexArray() legacy.VertexArray {
	var v uint32
	gl.GenVertexArrays(1, &v)
	return legacy.VertexArray(v)
}

func (c *Context) BindVertexArray(v legacy.VertexArray) { gl.BindVertexArray(uint32(v)) }

func (c *Context) DeleteVertexArray(v legacy.VertexArray) {
	h := uint32(v)
	gl.DeleteVertexArrays(1, &h)
}

func (c *Context) EnableVertexAttribArray(location uint32) { gl.EnableVertexAttribArray(location) }

func (c *Context) VertexAttribPointer(location uint32, size int32, typ legacy.AttribType, stride int32, offset int) {
	if typ == legacy.UnsignedInt {
		gl.VertexAttribIPointer(location, size, gl.UNSIGNED_INT, stride, gl.PtrOffset(offset))
		return
	}
	gl.VertexAttribPointer(location, size, gl.FLOAT, false, stride, gl.PtrOffset(offset))
}

func (c *Context) VertexAttribDivisor(location, divisor uint32) {
	gl.VertexAttribDivisor(location, divisor)
}

func (c *Context) CreateTexture() legacy.Texture {
	var t uint32
	gl.GenTextures(1, &t)
	return legacy.Texture(t)
}

func (c *Context) ActiveTexture(unit uint32) { gl.ActiveTexture(gl.TEXTURE0 + unit) }

func (c *Context) BindTexture(t legacy.Texture) { gl.BindTexture(gl.TEXTURE_2D_ARRAY, uint32(t)) }

// TexStorage3D allocates with TexImage3D; immutable storage is not core
// in 3.3.
func (c *Context) TexStorage3D(width, height, depth int32) {
	gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, gl.RGBA8, width, height, depth, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAX_LEVEL, 0)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
}

func (c *Context) TexSubImage3D(x, y, layer, width, height int32, pixels []byte) {
	gl.TexSubImage3D(gl.TEXTURE_2D_ARRAY, 0, x, y, layer, width, height, 1, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
}

func (c *Context) TexFilter(linear bool) {
	f := int32(gl.NEAREST)
	if linear {
		f = gl.LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, f)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, f)
}

func (c *Context) DeleteTexture(t legacy.Texture) {
	h := uint32(t)
	gl.DeleteTextures(1, &h)
}

// CreateFramebuffer attaches a new RGBA8 texture as color attachment 0.
// The default framebuffer binding is restored.
func (c *Context) CreateFramebuffer(width, height int32) (legacy.Framebuffer, error) {
	var tex, fb uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, width, height, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &fb)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, tex, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		gl.DeleteFramebuffers(1, &fb)
		gl.DeleteTextures(1, &tex)
		return 0, fmt.Errorf("glcontext: framebuffer incomplete: 0x%x", status)
	}
	c.colors[legacy.Framebuffer(fb)] = tex
	return legacy.Framebuffer(fb), nil
}

func (c *Context) BindFramebuffer(f legacy.Framebuffer) { gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(f)) }

func (c *Context) DeleteFramebuffer(f legacy.Framebuffer) {
	h := uint32(f)
	gl.DeleteFramebuffers(1, &h)
	if tex, ok := c.colors[f]; ok {
		gl.DeleteTextures(1, &tex)
		delete(c.colors, f)
	}
}

func (c *Context) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }

func (c *Context) ClearColor(r, g, b, a float32) { gl.ClearColor(r, g, b, a) }

func (c *Context) Clear() { gl.Clear(gl.COLOR_BUFFER_BIT) }

func (c *Context) EnableBlend() {
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
}

func (c *Context) DrawElementsInstanced(count int32, offset int, instances int32) {
	gl.DrawElementsInstanced(gl.TRIANGLES, count, gl.UNSIGNED_INT, gl.PtrOffset(offset), instances)
}

func (c *Context) ReadPixels(x, y, width, height int32, dst []byte) {
	gl.ReadPixels(x, y, width, height, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&dst[0]))
}

func (c *Context) Flush() { gl.Flush() }

var glErrors = map[uint32]string{
	gl.INVALID_ENUM:                  "invalid enum",
	gl.INVALID_VALUE:                 "invalid value",
	gl.INVALID_OPERATION:             "invalid operation",
	gl.INVALID_FRAMEBUFFER_OPERATION: "invalid framebuffer operation",
	gl.OUT_OF_MEMORY:                 "out of memory",
}

// Error returns the oldest GL error flag and drains the rest.
func (c *Context) Error() error {
	code := gl.GetError()
	if code == gl.NO_ERROR {
		return nil
	}
	for gl.GetError() != gl.NO_ERROR {
	}
	if msg, ok := glErrors[code]; ok {
		return fmt.Errorf("glcontext: %s", msg)
	}
	return fmt.Errorf("glcontext: error 0x%x", code)
}

var _ legacy.Context = (*Context)(nil)
