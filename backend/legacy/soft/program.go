package soft

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gogpu/sprite/backend/legacy"
	"github.com/gogpu/sprite/gpucore"
)

var (
	inputDecl   = regexp.MustCompile(`(?m)^\s*in\s+(\w+)\s+(\w+)\s*;`)
	uniformDecl = regexp.MustCompile(`(?m)^\s*uniform\s+(\w+)\s+(\w+)\s*;`)
)

// inputTypes are the vertex inputs the sprite kernel knows how to run.
var inputTypes = map[string]string{
	gpucore.SlotPosition:    "vec2",
	gpucore.SlotUV:          "vec2",
	gpucore.SlotVertexColor: "vec4",
	gpucore.SlotSource:      "vec4",
	gpucore.SlotScale:       "vec2",
	gpucore.SlotTranslation: "vec2",
	gpucore.SlotRotation:    "float",
	gpucore.SlotLayer:       "uint",
	gpucore.SlotColor:       "vec4",
}

var uniformTypes = map[string]string{
	gpucore.SlotGlobals: "mat4",
	gpucore.SlotTexture: "sampler2DArray",
}

var requiredInputs = []string{
	gpucore.SlotPosition, gpucore.SlotSource, gpucore.SlotScale,
	gpucore.SlotTranslation, gpucore.SlotLayer,
}

// program is a linked program: its active inputs and uniforms in
// declaration order, and the kernel variant they select.
type program struct {
	inputs   map[string]int32
	uniforms map[string]int32

	mesh     bool
	rotation bool
	color    bool

	mvp     [16]float32
	sampler int32
}

// link checks the sources and assigns locations by declaration order.
func link(vertex, fragment string) (*program, error) {
	for _, src := range []struct{ stage, text string }{{"vertex", vertex}, {"fragment", fragment}} {
		if !strings.HasPrefix(strings.TrimSpace(src.text), "#version 330") {
			return nil, fmt.Errorf("%s shader: want #version 330", src.stage)
		}
		if !strings.Contains(src.text, "void main()") {
			return nil, fmt.Errorf("%s shader: no main", src.stage)
		}
	}

	p := &program{inputs: make(map[string]int32), uniforms: make(map[string]int32)}
	for _, m := range inputDecl.FindAllStringSubmatch(vertex, -1) {
		typ, name := m[1], m[2]
		want, ok := inputTypes[name]
		if !ok {
			return nil, fmt.Errorf("vertex shader: unsupported input %q", name)
		}
		if typ != want {
			return nil, fmt.Errorf("vertex shader: input %q is %s, want %s", name, typ, want)
		}
		if _, dup := p.inputs[name]; dup {
			return nil, fmt.Errorf("vertex shader: input %q redeclared", name)
		}
		p.inputs[name] = int32(len(p.inputs)) //nolint:gosec // a handful of inputs
	}
	for _, name := range requiredInputs {
		if _, ok := p.inputs[name]; !ok {
			return nil, fmt.Errorf("vertex shader: missing input %q", name)
		}
	}
	_, p.mesh = p.inputs[gpucore.SlotUV]
	_, hasVertColor := p.inputs[gpucore.SlotVertexColor]
	if p.mesh != hasVertColor {
		return nil, fmt.Errorf("vertex shader: %q and %q must be declared together", gpucore.SlotUV, gpucore.SlotVertexColor)
	}
	_, p.rotation = p.inputs[gpucore.SlotRotation]
	_, p.color = p.inputs[gpucore.SlotColor]

	for _, m := range uniformDecl.FindAllStringSubmatch(vertex+"\n"+fragment, -1) {
		typ, name := m[1], m[2]
		want, ok := uniformTypes[name]
		if !ok {
			return nil, fmt.Errorf("unsupported uniform %q", name)
		}
		if typ != want {
			return nil, fmt.Errorf("uniform %q is %s, want %s", name, typ, want)
		}
		if _, dup := p.uniforms[name]; !dup {
			p.uniforms[name] = int32(len(p.uniforms)) //nolint:gosec // two uniforms
		}
	}
	for name := range uniformTypes {
		if _, ok := p.uniforms[name]; !ok {
			return nil, fmt.Errorf("missing uniform %q", name)
		}
	}
	return p, nil
}

// CreateProgram links vertex and fragment. Link failures are returned,
// not latched.
func (c *Context) CreateProgram(vertex, fragment string) (legacy.Program, error) {
	p, err := link(vertex, fragment)
	if err != nil {
		return 0, fmt.Errorf("soft: link: %w", err)
	}
	h := legacy.Program(c.name())
	c.programs[h] = p
	return h, nil
}

func (c *Context) DeleteProgram(h legacy.Program) {
	if p, ok := c.programs[h]; ok && c.program == p {
		c.program = nil
	}
	delete(c.programs, h)
}

func (c *Context) AttribLocation(h legacy.Program, name string) int32 {
	p, ok := c.programs[h]
	if !ok {
		c.fail(ErrInvalidOperation, "AttribLocation: unknown program %d", h)
		return -1
	}
	if loc, ok := p.inputs[name]; ok {
		return loc
	}
	return -1
}

func (c *Context) UniformLocation(h legacy.Program, name string) int32 {
	p, ok := c.programs[h]
	if !ok {
		c.fail(ErrInvalidOperation, "UniformLocation: unknown program %d", h)
		return -1
	}
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	return -1
}

func (c *Context) UseProgram(h legacy.Program) {
	if h == 0 {
		c.program = nil
		return
	}
	p, ok := c.programs[h]
	if !ok {
		c.fail(ErrInvalidOperation, "UseProgram: unknown program %d", h)
		return
	}
	c.program = p
}

// uniform validates that location names the uniform want of the current
// program. Location -1 is silently ignored.
func (c *Context) uniform(call string, location int32, want string) bool {
	if location == -1 {
		return false
	}
	if c.program == nil {
		c.fail(ErrInvalidOperation, "%s: no program in use", call)
		return false
	}
	if loc, ok := c.program.uniforms[want]; !ok || loc != location {
		c.fail(ErrInvalidOperation, "%s: location %d is not a %s uniform", call, location, uniformTypes[want])
		return false
	}
	return true
}

func (c *Context) UniformMatrix4(location int32, m *[16]float32) {
	if c.uniform("UniformMatrix4", location, gpucore.SlotGlobals) {
		c.program.mvp = *m
	}
}

func (c *Context) Uniform1i(location int32, v int32) {
	if !c.uniform("Uniform1i", location, gpucore.SlotTexture) {
		return
	}
	if v < 0 || v >= MaxTextureUnits {
		c.fail(ErrInvalidValue, "Uniform1i: texture unit %d", v)
		return
	}
	c.program.sampler = v
}
