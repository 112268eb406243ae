//go:build !nogpu

package explicit

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gogpu/sprite/gpucore"
)

// Bind group layout shared by every pipeline:
//
//	group 0, binding 0: Globals (uniform, vertex)
//	group 1, binding 0: texture_2d_array<f32> (fragment)
//	group 1, binding 1: sampler (fragment)
//
// Vertex buffer 0 steps per vertex, vertex buffer 1 per instance.
const (
	groupGlobals = 0
	groupTexture = 1

	bindingGlobals = 0
	bindingView    = 0
	bindingSampler = 1

	slotVertices  = 0
	slotInstances = 1
)

var spriteWGSL = template.Must(template.New("sprite.wgsl").Parse(`// {{.Label}}
struct Globals {
    mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> globals: Globals;
@group(1) @binding(0) var t_array: texture_2d_array<f32>;
@group(1) @binding(1) var s_array: sampler;

struct VertexInput {
    @location({{.Loc.Position}}) pos: vec2<f32>,
{{- if .Mesh}}
    @location({{.Loc.UV}}) uv: vec2<f32>,
    @location({{.Loc.VertexColor}}) vert_color: vec4<f32>,
{{- end}}
    @location({{.Loc.Source}}) src: vec4<f32>,
    @location({{.Loc.Scale}}) scale: vec2<f32>,
    @location({{.Loc.Translation}}) translation: vec2<f32>,
{{- if .Rotation}}
    @location({{.Loc.Rotation}}) rotation: f32,
{{- end}}
    @location({{.Loc.Layer}}) layer: u32,
{{- if .Color}}
    @location({{.Loc.Color}}) color: vec4<f32>,
{{- end}}
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) @interpolate(flat) layer: u32,
    @location(2) color: vec4<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var p = in.pos * in.scale;
{{- if .Rotation}}
{{- if .Mesh}}
    let pivot = vec2<f32>(0.0, 0.0);
{{- else}}
    let pivot = in.scale * 0.5;
{{- end}}
    let c = cos(in.rotation);
    let s = sin(in.rotation);
    let d = p - pivot;
    p = vec2<f32>(d.x * c - d.y * s, d.x * s + d.y * c) + pivot;
{{- end}}
    p = p + in.translation;

    var out: VertexOutput;
    out.position = globals.mvp * vec4<f32>(p, 0.0, 1.0);
{{- if .Mesh}}
    out.uv = in.src.xy + in.uv * in.src.zw;
{{- else}}
    out.uv = in.src.xy + in.pos * in.src.zw;
{{- end}}
    out.layer = in.layer;
    var color = vec4<f32>(1.0, 1.0, 1.0, 1.0);
{{- if .Color}}
    color = in.color;
{{- end}}
{{- if .Mesh}}
    color = color * in.vert_color;
{{- end}}
    out.color = color;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(t_array, s_array, in.uv, in.layer) * in.color;
}
`))

type shaderLocations struct {
	Position, Source, Scale, Translation, Rotation, Layer, Color, UV, VertexColor uint32
}

type shaderParams struct {
	Label    string
	Mesh     bool
	Rotation bool
	Color    bool
	Loc      shaderLocations
}

// ShaderSource returns the WGSL module for desc. Both entry points are
// named vs_main and fs_main.
func ShaderSource(desc gpucore.PipelineDesc) (string, error) {
	label := desc.Label
	if label == "" {
		label = "sprite " + desc.Kind.String()
	}
	params := shaderParams{
		Label:    label,
		Mesh:     desc.Kind == gpucore.PipelineMesh,
		Rotation: desc.Instance.Rotation,
		Color:    desc.Instance.Color,
		Loc: shaderLocations{
			Position:    gpucore.LocPosition,
			Source:      gpucore.LocSource,
			Scale:       gpucore.LocScale,
			Translation: gpucore.LocTranslation,
			Rotation:    gpucore.LocRotation,
			Layer:       gpucore.LocLayer,
			Color:       gpucore.LocColor,
			UV:          gpucore.LocUV,
			VertexColor: gpucore.LocVertexColor,
		},
	}
	var buf bytes.Buffer
	if err := spriteWGSL.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("explicit: render %s shader: %w", label, err)
	}
	return buf.String(), nil
}
