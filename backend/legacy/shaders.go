package legacy

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/gogpu/sprite/gpucore"
)

//go:embed shaders/*.glsl
var shaderFS embed.FS

var shaders = template.Must(template.ParseFS(shaderFS, "shaders/*.glsl"))

type shaderParams struct {
	Mesh     bool
	Rotation bool
	Color    bool
}

// ShaderSource returns the GLSL 330 vertex and fragment sources for desc.
// Inputs and uniforms carry the gpucore slot names; nothing is bound by
// location.
func ShaderSource(desc gpucore.PipelineDesc) (vertex, fragment string, err error) {
	params := shaderParams{
		Mesh:     desc.Kind == gpucore.PipelineMesh,
		Rotation: desc.Instance.Rotation,
		Color:    desc.Instance.Color,
	}
	var vs, fs bytes.Buffer
	if err := shaders.ExecuteTemplate(&vs, "sprite.vert.glsl", params); err != nil {
		return "", "", fmt.Errorf("legacy: render vertex shader: %w", err)
	}
	if err := shaders.ExecuteTemplate(&fs, "sprite.frag.glsl", params); err != nil {
		return "", "", fmt.Errorf("legacy: render fragment shader: %w", err)
	}
	return vs.String(), fs.String(), nil
}
