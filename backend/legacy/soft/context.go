package soft

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/sprite/backend/legacy"
)

// Errors latched by a Context and returned by Error.
var (
	ErrInvalidEnum                 = errors.New("soft: invalid enum")
	ErrInvalidValue                = errors.New("soft: invalid value")
	ErrInvalidOperation            = errors.New("soft: invalid operation")
	ErrInvalidFramebufferOperation = errors.New("soft: invalid framebuffer operation")
)

// Limits of every Context.
const (
	MaxTextureSize        = 4096
	MaxArrayTextureLayers = 256
	MaxTextureUnits       = 8
)

type bufferObject struct {
	data []byte
}

type attrib struct {
	enabled bool
	buffer  legacy.Buffer
	size    int
	typ     legacy.AttribType
	stride  int
	offset  int
	divisor uint32
}

type vertexArray struct {
	attribs map[uint32]*attrib
	element legacy.Buffer
}

func (v *vertexArray) attrib(loc uint32) *attrib {
	a, ok := v.attribs[loc]
	if !ok {
		a = &attrib{}
		v.attribs[loc] = a
	}
	return a
}

// texture is a 2D array texture, layer-major RGBA8, top row first.
type texture struct {
	width, height, depth int
	pix                  []byte
	linear               bool
}

// framebuffer is an RGBA8 color buffer, bottom row first.
type framebuffer struct {
	width, height int
	pix           []byte
}

func newFramebuffer(w, h int) *framebuffer {
	return &framebuffer{width: w, height: h, pix: make([]byte, w*h*4)}
}

// Context is a legacy.Context executed on the host.
//
// It links the GLSL programs generated by the legacy backend by reading
// their declarations, then runs the sprite vertex stage and rasterizes on
// the CPU. Output matches a GL driver closely enough for tests and
// headless rendering; it is not a general GLSL implementation.
//
// A Context is not safe for concurrent use.
type Context struct {
	err  error
	next uint32

	programs     map[legacy.Program]*program
	buffers      map[legacy.Buffer]*bufferObject
	vertexArrays map[legacy.VertexArray]*vertexArray
	textures     map[legacy.Texture]*texture
	framebuffers map[legacy.Framebuffer]*framebuffer

	program     *program
	arrayBuffer legacy.Buffer
	vao         *vertexArray
	unit        uint32
	units       [MaxTextureUnits]legacy.Texture
	fb          legacy.Framebuffer
	viewport    image.Rectangle
	clear       [4]float32
	blend       bool
}

// New returns a context whose default framebuffer is width x height.
// Zero dimensions give a context with no usable default framebuffer.
func New(width, height int) *Context {
	c := &Context{
		programs:     make(map[legacy.Program]*program),
		buffers:      make(map[legacy.Buffer]*bufferObject),
		vertexArrays: make(map[legacy.VertexArray]*vertexArray),
		textures:     make(map[legacy.Texture]*texture),
		framebuffers: make(map[legacy.Framebuffer]*framebuffer),
	}
	c.framebuffers[0] = newFramebuffer(max(width, 0), max(height, 0))
	c.viewport = image.Rect(0, 0, width, height)
	return c
}

// Resize replaces the default framebuffer with a cleared one.
func (c *Context) Resize(width, height int) {
	c.framebuffers[0] = newFramebuffer(max(width, 0), max(height, 0))
}

// Window returns a copy of the default framebuffer, top row first.
func (c *Context) Window() *image.RGBA {
	fb := c.framebuffers[0]
	img := image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
	stride := fb.width * 4
	for y := range fb.height {
		src := fb.pix[(fb.height-1-y)*stride : (fb.height-y)*stride]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}

func (c *Context) fail(err error, format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
}

func (c *Context) name() uint32 {
	c.next++
	return c.next
}

// Error returns the first error since the previous call and clears it.
func (c *Context) Error() error {
	err := c.err
	c.err = nil
	return err
}

// Limits reports the fixed limits of the context.
func (c *Context) Limits() legacy.Limits {
	return legacy.Limits{MaxTextureSize: MaxTextureSize, MaxArrayTextureLayers: MaxArrayTextureLayers}
}

// Flush is a no-op: every call completes before it returns.
func (c *Context) Flush() {}

// === Buffers ===

func (c *Context) CreateBuffer() legacy.Buffer {
	b := legacy.Buffer(c.name())
	c.buffers[b] = &bufferObject{}
	return b
}

func (c *Context) BindBuffer(target legacy.BufferTarget, b legacy.Buffer) {
	if b != 0 {
		if _, ok := c.buffers[b]; !ok {
			c.fail(ErrInvalidValue, "BindBuffer: unknown buffer %d", b)
			return
		}
	}
	switch target {
	case legacy.ArrayBuffer:
		c.arrayBuffer = b
	case legacy.ElementArrayBuffer:
		if c.vao == nil {
			c.fail(ErrInvalidOperation, "BindBuffer: element buffer without vertex array")
			return
		}
		c.vao.element = b
	default:
		c.fail(ErrInvalidEnum, "BindBuffer: target %d", target)
	}
}

func (c *Context) bound(target legacy.BufferTarget) *bufferObject {
	var b legacy.Buffer
	switch target {
	case legacy.ArrayBuffer:
		b = c.arrayBuffer
	case legacy.ElementArrayBuffer:
		if c.vao != nil {
			b = c.vao.element
		}
	default:
		c.fail(ErrInvalidEnum, "buffer target %d", target)
		return nil
	}
	obj := c.buffers[b]
	if obj == nil {
		c.fail(ErrInvalidOperation, "no buffer bound to target %d", target)
	}
	return obj
}

func (c *Context) BufferData(target legacy.BufferTarget, size int) {
	if size < 0 {
		c.fail(ErrInvalidValue, "BufferData: size %d", size)
		return
	}
	if obj := c.bound(target); obj != nil {
		obj.data = make([]byte, size)
	}
}

func (c *Context) BufferSubData(target legacy.BufferTarget, offset int, data []byte) {
	obj := c.bound(target)
	if obj == nil {
		return
	}
	if offset < 0 || offset+len(data) > len(obj.data) {
		c.fail(ErrInvalidValue, "BufferSubData: %d bytes at %d exceed %d", len(data), offset, len(obj.data))
		return
	}
	copy(obj.data[offset:], data)
}

func (c *Context) DeleteBuffer(b legacy.Buffer) {
	delete(c.buffers, b)
	if c.arrayBuffer == b {
		c.arrayBuffer = 0
	}
}

// === Vertex arrays ===

func (c *Context) CreateVertexArray() legacy.VertexArray {
	v := legacy.VertexArray(c.name())
	c.vertexArrays[v] = &vertexArray{attribs: make(map[uint32]*attrib)}
	return v
}

func (c *Context) BindVertexArray(v legacy.VertexArray) {
	if v == 0 {
		c.vao = nil
		return
	}
	vao, ok := c.vertexArrays[v]
	if !ok {
		c.fail(ErrInvalidOperation, "BindVertexArray: unknown vertex array %d", v)
		return
	}
	c.vao = vao
}

func (c *Context) DeleteVertexArray(v legacy.VertexArray) {
	if vao, ok := c.vertexArrays[v]; ok && c.vao == vao {
		c.vao = nil
	}
	delete(c.vertexArrays, v)
}

func (c *Context) EnableVertexAttribArray(location uint32) {
	if c.vao == nil {
		c.fail(ErrInvalidOperation, "EnableVertexAttribArray: no vertex array bound")
		return
	}
	c.vao.attrib(location).enabled = true
}

func (c *Context) VertexAttribPointer(location uint32, size int32, typ legacy.AttribType, stride int32, offset int) {
	if c.vao == nil || c.arrayBuffer == 0 {
		c.fail(ErrInvalidOperation, "VertexAttribPointer: no vertex array or array buffer bound")
		return
	}
	if size < 1 || size > 4 || stride < 0 || offset < 0 {
		c.fail(ErrInvalidValue, "VertexAttribPointer: size %d stride %d offset %d", size, stride, offset)
		return
	}
	if typ != legacy.Float && typ != legacy.UnsignedInt {
		c.fail(ErrInvalidEnum, "VertexAttribPointer: type %d", typ)
		return
	}
	a := c.vao.attrib(location)
	a.buffer = c.arrayBuffer
	a.size = int(size)
	a.typ = typ
	a.stride = int(stride)
	a.offset = offset
}

func (c *Context) VertexAttribDivisor(location, divisor uint32) {
	if c.vao == nil {
		c.fail(ErrInvalidOperation, "VertexAttribDivisor: no vertex array bound")
		return
	}
	c.vao.attrib(location).divisor = divisor
}

// === Textures ===

func (c *Context) CreateTexture() legacy.Texture {
	t := legacy.Texture(c.name())
	c.textures[t] = &texture{}
	return t
}

func (c *Context) ActiveTexture(unit uint32) {
	if unit >= MaxTextureUnits {
		c.fail(ErrInvalidEnum, "ActiveTexture: unit %d", unit)
		return
	}
	c.unit = unit
}

func (c *Context) BindTexture(t legacy.Texture) {
	if t != 0 {
		if _, ok := c.textures[t]; !ok {
			c.fail(ErrInvalidValue, "BindTexture: unknown texture %d", t)
			return
		}
	}
	c.units[c.unit] = t
}

func (c *Context) boundTexture(call string) *texture {
	t := c.textures[c.units[c.unit]]
	if t == nil {
		c.fail(ErrInvalidOperation, "%s: no texture bound to unit %d", call, c.unit)
	}
	return t
}

func (c *Context) TexStorage3D(width, height, depth int32) {
	t := c.boundTexture("TexStorage3D")
	if t == nil {
		return
	}
	if t.pix != nil {
		c.fail(ErrInvalidOperation, "TexStorage3D: storage is immutable")
		return
	}
	if width < 1 || height < 1 || depth < 1 ||
		width > MaxTextureSize || height > MaxTextureSize || depth > MaxArrayTextureLayers {
		c.fail(ErrInvalidValue, "TexStorage3D: %dx%dx%d", width, height, depth)
		return
	}
	t.width, t.height, t.depth = int(width), int(height), int(depth)
	t.pix = make([]byte, t.width*t.height*t.depth*4)
}

func (c *Context) TexSubImage3D(x, y, layer, width, height int32, pixels []byte) {
	t := c.boundTexture("TexSubImage3D")
	if t == nil {
		return
	}
	if t.pix == nil {
		c.fail(ErrInvalidOperation, "TexSubImage3D: texture has no storage")
		return
	}
	if x < 0 || y < 0 || layer < 0 || width < 0 || height < 0 ||
		int(x+width) > t.width || int(y+height) > t.height || int(layer) >= t.depth {
		c.fail(ErrInvalidValue, "TexSubImage3D: region %d,%d %dx%d layer %d", x, y, width, height, layer)
		return
	}
	row := int(width) * 4
	if len(pixels) < row*int(height) {
		c.fail(ErrInvalidValue, "TexSubImage3D: %d bytes for %dx%d", len(pixels), width, height)
		return
	}
	for r := range int(height) {
		off := ((int(layer)*t.height+int(y)+r)*t.width + int(x)) * 4
		copy(t.pix[off:off+row], pixels[r*row:])
	}
}

func (c *Context) TexFilter(linear bool) {
	if t := c.boundTexture("TexFilter"); t != nil {
		t.linear = linear
	}
}

func (c *Context) DeleteTexture(t legacy.Texture) {
	delete(c.textures, t)
	for i := range c.units {
		if c.units[i] == t {
			c.units[i] = 0
		}
	}
}

// === Framebuffers ===

func (c *Context) CreateFramebuffer(width, height int32) (legacy.Framebuffer, error) {
	if width < 1 || height < 1 || width > MaxTextureSize || height > MaxTextureSize {
		return 0, fmt.Errorf("%w: framebuffer %dx%d", ErrInvalidValue, width, height)
	}
	f := legacy.Framebuffer(c.name())
	c.framebuffers[f] = newFramebuffer(int(width), int(height))
	return f, nil
}

func (c *Context) BindFramebuffer(f legacy.Framebuffer) {
	if _, ok := c.framebuffers[f]; !ok {
		c.fail(ErrInvalidOperation, "BindFramebuffer: unknown framebuffer %d", f)
		return
	}
	c.fb = f
}

func (c *Context) DeleteFramebuffer(f legacy.Framebuffer) {
	if f == 0 {
		return
	}
	delete(c.framebuffers, f)
	if c.fb == f {
		c.fb = 0
	}
}

// drawBuffer returns the bound framebuffer, latching an error if it has
// no pixels.
func (c *Context) drawBuffer(call string) *framebuffer {
	fb := c.framebuffers[c.fb]
	if fb == nil || fb.width == 0 || fb.height == 0 {
		c.fail(ErrInvalidFramebufferOperation, "%s: framebuffer %d incomplete", call, c.fb)
		return nil
	}
	return fb
}

func (c *Context) Viewport(x, y, width, height int32) {
	if width < 0 || height < 0 {
		c.fail(ErrInvalidValue, "Viewport: %dx%d", width, height)
		return
	}
	c.viewport = image.Rect(int(x), int(y), int(x+width), int(y+height))
}

func (c *Context) ClearColor(r, g, b, a float32) {
	c.clear = [4]float32{clamp01(r), clamp01(g), clamp01(b), clamp01(a)}
}

// Clear fills the whole color buffer; the viewport does not apply.
func (c *Context) Clear() {
	fb := c.drawBuffer("Clear")
	if fb == nil {
		return
	}
	px := [4]byte{unorm(c.clear[0]), unorm(c.clear[1]), unorm(c.clear[2]), unorm(c.clear[3])}
	for i := 0; i < len(fb.pix); i += 4 {
		copy(fb.pix[i:i+4], px[:])
	}
}

func (c *Context) EnableBlend() { c.blend = true }

func (c *Context) ReadPixels(x, y, width, height int32, dst []byte) {
	fb := c.drawBuffer("ReadPixels")
	if fb == nil {
		return
	}
	if x < 0 || y < 0 || width < 0 || height < 0 || int(x+width) > fb.width || int(y+height) > fb.height {
		c.fail(ErrInvalidValue, "ReadPixels: region %d,%d %dx%d", x, y, width, height)
		return
	}
	row := int(width) * 4
	if len(dst) < row*int(height) {
		c.fail(ErrInvalidValue, "ReadPixels: %d bytes for %dx%d", len(dst), width, height)
		return
	}
	for r := range int(height) {
		off := ((int(y)+r)*fb.width + int(x)) * 4
		copy(dst[r*row:(r+1)*row], fb.pix[off:off+row])
	}
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func unorm(v float32) byte {
	return byte(clamp01(v)*255 + 0.5)
}

var _ legacy.Context = (*Context)(nil)
