package soft

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/chewxy/math32"
	"golang.org/x/image/vector"

	"github.com/gogpu/sprite/backend/legacy"
	"github.com/gogpu/sprite/gpucore"
)

// source is an input bound to its buffer data.
type source struct {
	data    []byte
	attr    *attrib
	divisor uint32
}

// fetch reads element i, converting unsigned integers exactly.
func (s source) fetch(i int) ([4]float32, uint32, bool) {
	stride := s.attr.stride
	if stride == 0 {
		stride = s.attr.size * 4
	}
	off := s.attr.offset + i*stride
	if off < 0 || off+s.attr.size*4 > len(s.data) {
		return [4]float32{}, 0, false
	}
	var v [4]float32
	var u uint32
	for k := range s.attr.size {
		bits := binary.LittleEndian.Uint32(s.data[off+4*k:])
		if s.attr.typ == legacy.UnsignedInt {
			if k == 0 {
				u = bits
			}
			v[k] = float32(bits)
		} else {
			v[k] = math.Float32frombits(bits)
		}
	}
	return v, u, true
}

// vertex is the output of the vertex stage in window coordinates.
type vertex struct {
	x, y  float32
	uv    [2]float32
	color [4]float32
	layer uint32
}

// inputs is one program's view of the bound vertex array.
type inputs struct {
	byName map[string]source
}

func (in inputs) get(name string, vtx, inst int) ([4]float32, uint32, bool) {
	s, ok := in.byName[name]
	if !ok {
		return [4]float32{}, 0, false
	}
	i := vtx
	if s.divisor > 0 {
		i = inst / int(s.divisor)
	}
	return s.fetch(i)
}

// resolveInputs pairs every active input of p with the vertex array's
// enabled attribute at its location.
func (c *Context) resolveInputs(p *program) (inputs, bool) {
	in := inputs{byName: make(map[string]source, len(p.inputs))}
	for name, loc := range p.inputs {
		a, ok := c.vao.attribs[uint32(loc)] //nolint:gosec // locations are small
		if !ok || !a.enabled || a.buffer == 0 {
			c.fail(ErrInvalidOperation, "DrawElementsInstanced: input %q has no enabled array", name)
			return inputs{}, false
		}
		buf := c.buffers[a.buffer]
		if buf == nil {
			c.fail(ErrInvalidOperation, "DrawElementsInstanced: input %q reads a deleted buffer", name)
			return inputs{}, false
		}
		in.byName[name] = source{data: buf.data, attr: a, divisor: a.divisor}
	}
	return in, true
}

// shade runs the sprite vertex stage for vertex vtx of instance inst.
func (c *Context) shade(p *program, in inputs, vtx, inst int) (vertex, bool) {
	pos, _, ok1 := in.get(gpucore.SlotPosition, vtx, inst)
	src, _, ok2 := in.get(gpucore.SlotSource, vtx, inst)
	scale, _, ok3 := in.get(gpucore.SlotScale, vtx, inst)
	tr, _, ok4 := in.get(gpucore.SlotTranslation, vtx, inst)
	_, layer, ok5 := in.get(gpucore.SlotLayer, vtx, inst)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return vertex{}, false
	}

	px, py := pos[0]*scale[0], pos[1]*scale[1]
	if p.rotation {
		rot, _, ok := in.get(gpucore.SlotRotation, vtx, inst)
		if !ok {
			return vertex{}, false
		}
		var cx, cy float32
		if !p.mesh {
			cx, cy = scale[0]*0.5, scale[1]*0.5
		}
		s, co := math32.Sincos(rot[0])
		dx, dy := px-cx, py-cy
		px, py = dx*co-dy*s+cx, dx*s+dy*co+cy
	}
	px += tr[0]
	py += tr[1]

	out := vertex{layer: layer, color: [4]float32{1, 1, 1, 1}}
	uv := [2]float32{pos[0], pos[1]}
	if p.color {
		col, _, ok := in.get(gpucore.SlotColor, vtx, inst)
		if !ok {
			return vertex{}, false
		}
		out.color = col
	}
	if p.mesh {
		muv, _, ok1 := in.get(gpucore.SlotUV, vtx, inst)
		vc, _, ok2 := in.get(gpucore.SlotVertexColor, vtx, inst)
		if !ok1 || !ok2 {
			return vertex{}, false
		}
		uv = [2]float32{muv[0], muv[1]}
		for k := range out.color {
			out.color[k] *= vc[k]
		}
	}
	out.uv = [2]float32{src[0] + uv[0]*src[2], src[1] + uv[1]*src[3]}

	m := &p.mvp
	cx := m[0]*px + m[4]*py + m[12]
	cy := m[1]*px + m[5]*py + m[13]
	cw := m[3]*px + m[7]*py + m[15]
	if cw == 0 {
		cw = 1
	}
	vp := c.viewport
	out.x = (cx/cw+1)*0.5*float32(vp.Dx()) + float32(vp.Min.X)
	out.y = (cy/cw+1)*0.5*float32(vp.Dy()) + float32(vp.Min.Y)
	return out, true
}

// DrawElementsInstanced runs every instance through the vertex stage and
// rasterizes its triangles as one coverage mask, so edges shared between
// triangles of an instance leave no seam. Pixels are shaded from the
// triangle containing their center and blended source-over.
func (c *Context) DrawElementsInstanced(count int32, offset int, instances int32) {
	const call = "DrawElementsInstanced"
	p := c.program
	if p == nil || c.vao == nil {
		c.fail(ErrInvalidOperation, "%s: no program or vertex array bound", call)
		return
	}
	if count < 0 || instances < 0 || offset < 0 || offset%4 != 0 {
		c.fail(ErrInvalidValue, "%s: count %d offset %d instances %d", call, count, offset, instances)
		return
	}
	fb := c.drawBuffer(call)
	if fb == nil {
		return
	}
	elems := c.buffers[c.vao.element]
	if elems == nil {
		c.fail(ErrInvalidOperation, "%s: no element buffer", call)
		return
	}
	if offset+int(count)*4 > len(elems.data) {
		c.fail(ErrInvalidOperation, "%s: %d indices at %d exceed element buffer", call, count, offset)
		return
	}
	tex := c.textures[c.units[p.sampler]]
	if tex == nil || tex.pix == nil {
		c.fail(ErrInvalidOperation, "%s: no complete texture on unit %d", call, p.sampler)
		return
	}
	in, ok := c.resolveInputs(p)
	if !ok {
		return
	}

	indices := make([]int, count)
	for i := range indices {
		indices[i] = int(binary.LittleEndian.Uint32(elems.data[offset+4*i:]))
	}
	clip := c.viewport.Intersect(image.Rect(0, 0, fb.width, fb.height))
	if clip.Empty() {
		return
	}

	var r raster
	verts := make([]vertex, len(indices))
	for inst := range int(instances) {
		for i, idx := range indices {
			v, ok := c.shade(p, in, idx, inst)
			if !ok {
				c.fail(ErrInvalidOperation, "%s: vertex %d of instance %d reads past its buffer", call, idx, inst)
				return
			}
			verts[i] = v
		}
		r.instance(fb, clip, tex, verts, c.blend)
	}
}

// raster holds scratch state reused across instances.
type raster struct {
	z    vector.Rasterizer
	mask image.Alpha
	pix  []byte
	tris []triangle
}

type triangle struct {
	a, b, c vertex
	area    float32
}

// bary returns the barycentric weights of (x, y).
func (t *triangle) bary(x, y float32) (w0, w1, w2 float32) {
	w0 = ((t.b.x-x)*(t.c.y-y) - (t.c.x-x)*(t.b.y-y)) / t.area
	w1 = ((t.c.x-x)*(t.a.y-y) - (t.a.x-x)*(t.c.y-y)) / t.area
	return w0, w1, 1 - w0 - w1
}

func (r *raster) instance(fb *framebuffer, clip image.Rectangle, tex *texture, verts []vertex, blend bool) {
	r.tris = r.tris[:0]
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for i := 0; i+2 < len(verts); i += 3 {
		t := triangle{a: verts[i], b: verts[i+1], c: verts[i+2]}
		t.area = (t.b.x-t.a.x)*(t.c.y-t.a.y) - (t.c.x-t.a.x)*(t.b.y-t.a.y)
		if math32.Abs(t.area) < 1e-6 {
			continue
		}
		if t.area < 0 {
			t.b, t.c = t.c, t.b
			t.area = -t.area
		}
		for _, v := range [3]vertex{t.a, t.b, t.c} {
			minX, minY = min(minX, v.x), min(minY, v.y)
			maxX, maxY = max(maxX, v.x), max(maxY, v.y)
		}
		r.tris = append(r.tris, t)
	}
	if len(r.tris) == 0 {
		return
	}
	box := image.Rect(
		int(math32.Floor(minX)), int(math32.Floor(minY)),
		int(math32.Ceil(maxX)), int(math32.Ceil(maxY)),
	).Intersect(clip)
	if box.Empty() {
		return
	}

	w, h := box.Dx(), box.Dy()
	r.z.Reset(w, h)
	ox, oy := float32(box.Min.X), float32(box.Min.Y)
	for _, t := range r.tris {
		r.z.MoveTo(t.a.x-ox, t.a.y-oy)
		r.z.LineTo(t.b.x-ox, t.b.y-oy)
		r.z.LineTo(t.c.x-ox, t.c.y-oy)
		r.z.ClosePath()
	}
	if cap(r.pix) < w*h {
		r.pix = make([]byte, w*h)
	}
	r.mask = image.Alpha{Pix: r.pix[:w*h], Stride: w, Rect: image.Rect(0, 0, w, h)}
	clear(r.mask.Pix)
	r.z.Draw(&r.mask, r.mask.Rect, image.Opaque, image.Point{})

	for y := range h {
		for x := range w {
			cov := r.mask.Pix[y*w+x]
			if cov == 0 {
				continue
			}
			fx, fy := float32(box.Min.X+x)+0.5, float32(box.Min.Y+y)+0.5
			src := r.shadePixel(tex, fx, fy)
			k := float32(cov) / 255
			for i := range src {
				src[i] *= k
			}
			off := ((box.Min.Y+y)*fb.width + box.Min.X + x) * 4
			writePixel(fb.pix[off:off+4], src, blend)
		}
	}
}

// shadePixel interpolates the varyings of the triangle containing the
// pixel center, or the nearest one for edge pixels, and samples.
func (r *raster) shadePixel(tex *texture, x, y float32) [4]float32 {
	best := &r.tris[0]
	var bw [3]float32
	bestMin := float32(math.Inf(-1))
	for i := range r.tris {
		t := &r.tris[i]
		w0, w1, w2 := t.bary(x, y)
		m := min(w0, w1, w2)
		if m > bestMin {
			best, bw, bestMin = t, [3]float32{w0, w1, w2}, m
		}
		if m >= 0 {
			break
		}
	}
	if bestMin < 0 {
		var sum float32
		for i := range bw {
			bw[i] = max(bw[i], 0)
			sum += bw[i]
		}
		for i := range bw {
			bw[i] /= sum
		}
	}
	a, b, c := &best.a, &best.b, &best.c
	u := bw[0]*a.uv[0] + bw[1]*b.uv[0] + bw[2]*c.uv[0]
	v := bw[0]*a.uv[1] + bw[1]*b.uv[1] + bw[2]*c.uv[1]
	texel := tex.sample(u, v, int(c.layer))
	var out [4]float32
	for i := range out {
		out[i] = texel[i] * (bw[0]*a.color[i] + bw[1]*b.color[i] + bw[2]*c.color[i])
	}
	return out
}

// sample reads layer at normalized (u, v) with clamp-to-edge addressing.
// Layers out of range clamp like GL array textures.
func (t *texture) sample(u, v float32, layer int) [4]float32 {
	layer = min(max(layer, 0), t.depth-1)
	if !t.linear {
		return t.texel(int(math32.Floor(u*float32(t.width))), int(math32.Floor(v*float32(t.height))), layer)
	}
	fx, fy := u*float32(t.width)-0.5, v*float32(t.height)-0.5
	x0, y0 := math32.Floor(fx), math32.Floor(fy)
	ax, ay := fx-x0, fy-y0
	ix, iy := int(x0), int(y0)
	t00, t10 := t.texel(ix, iy, layer), t.texel(ix+1, iy, layer)
	t01, t11 := t.texel(ix, iy+1, layer), t.texel(ix+1, iy+1, layer)
	var out [4]float32
	for i := range out {
		top := t00[i] + (t10[i]-t00[i])*ax
		bot := t01[i] + (t11[i]-t01[i])*ax
		out[i] = top + (bot-top)*ay
	}
	return out
}

func (t *texture) texel(x, y, layer int) [4]float32 {
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)
	off := ((layer*t.height+y)*t.width + x) * 4
	p := t.pix[off : off+4]
	return [4]float32{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

// writePixel stores premultiplied src, blending over dst when enabled.
func writePixel(dst []byte, src [4]float32, blend bool) {
	if blend {
		inv := 1 - src[3]
		for i := range src {
			src[i] += float32(dst[i]) / 255 * inv
		}
	}
	for i := range src {
		dst[i] = unorm(src[i])
	}
}
