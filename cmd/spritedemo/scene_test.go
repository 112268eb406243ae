package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gogpu/sprite"
	"github.com/gogpu/sprite/backend/legacy"
	"github.com/gogpu/sprite/backend/legacy/soft"
)

func softBackend(t *testing.T) *legacy.Backend {
	t.Helper()
	b, err := legacy.New(soft.New(0, 0), legacy.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want sprite.Color
	}{
		{"#ff0000", sprite.Color{R: 1, A: 1}},
		{"#0f0", sprite.Color{G: 1, A: 1}},
		{"#ffffff80", sprite.Color{R: 128.0 / 255, G: 128.0 / 255, B: 128.0 / 255, A: 128.0 / 255}},
	}
	for _, tt := range tests {
		c, err := ParseColor(tt.in)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", tt.in, err)
		}
		got := c.Premultiplied()
		if !closeColor(got, tt.want) {
			t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"red", "#12345", "#ff0000zz"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) succeeded", bad)
		}
	}
}

func closeColor(a, b sprite.Color) bool {
	const eps = 1e-3
	return math.Abs(float64(a.R-b.R)) < eps && math.Abs(float64(a.G-b.G)) < eps &&
		math.Abs(float64(a.B-b.B)) < eps && math.Abs(float64(a.A-b.A)) < eps
}

func TestReadSceneRejects(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		want  string
	}{
		{"size", "width: 0\nheight: 4\n", "must be positive"},
		{"unknown field", "width: 4\nheight: 4\nzoom: 2\n", "zoom"},
		{"filter", "width: 4\nheight: 4\nfilter: cubic\n", "unknown filter"},
		{"color", "width: 4\nheight: 4\nbackground: \"#nothex\"\n", "line 3"},
		{"image source", "width: 4\nheight: 4\nimages:\n  - name: a\n", "exactly one of path and generate"},
		{"duplicate image", "width: 4\nheight: 4\nimages:\n  - {name: a, path: a.png}\n  - {name: a, path: b.png}\n", "duplicate"},
		{"sprite image", "width: 4\nheight: 4\nsprites:\n  - image: missing\n", "unknown image"},
		{"shape kind", "width: 4\nheight: 4\nshapes:\n  - {kind: star, fill: \"#fff\"}\n", "unknown shape kind"},
		{"shape paint", "width: 4\nheight: 4\nshapes:\n  - {kind: circle, radius: 2}\n", "needs fill or stroke"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadScene(strings.NewReader(tt.scene))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadScene error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSpriteProducerRepeats(t *testing.T) {
	red, _ := ParseColor("#ff0000")
	sp := SpriteSpec{
		Image:   "a",
		At:      Point{1, 2},
		Repeat:  3,
		Step:    Point{10, 0},
		Spin:    90,
		Tint:    &red,
		HueStep: 120,
	}
	img, err := sprite.NewImage(4, 2, make([]byte, 4*2*4))
	if err != nil {
		t.Fatal(err)
	}
	reg := sprite.Region{Ref: sprite.LayerRef{Layer: 3}, Source: sprite.Rect{X: 0.5, Y: 0, W: 0.5, H: 0.5}}

	run := sprite.NewInstanceBuffer(0)
	if err := spriteProducer(sp, reg, img).Produce(run); err != nil {
		t.Fatal(err)
	}
	if run.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", run.Len())
	}

	hues := []sprite.Color{{R: 1, A: 1}, {G: 1, A: 1}, {B: 1, A: 1}}
	for i, rec := range run.Records() {
		if want := (sprite.Vec2{X: 1 + 10*float32(i), Y: 2}); rec.Translation != want {
			t.Errorf("instance %d translation = %v, want %v", i, rec.Translation, want)
		}
		if want := (sprite.Vec2{X: 4, Y: 2}); rec.Scale != want {
			t.Errorf("instance %d scale = %v, want image size %v", i, rec.Scale, want)
		}
		if want := float32(i) * math.Pi / 2; math.Abs(float64(rec.Rotation-want)) > 1e-5 {
			t.Errorf("instance %d rotation = %v, want %v", i, rec.Rotation, want)
		}
		if rec.Layer != 3 || rec.Source != reg.Source {
			t.Errorf("instance %d samples layer %d %v, want layer 3 %v", i, rec.Layer, rec.Source, reg.Source)
		}
		if !closeColor(rec.Color, hues[i]) {
			t.Errorf("instance %d color = %+v, want %+v", i, rec.Color, hues[i])
		}
	}
}

const testScene = `
width: 32
height: 16
background: "#000000"
layer: [12, 8]
images:
  - name: red
    path: red.png
  - name: blue
    generate: gradient
    size: [4, 4]
    colors: ["#0000ff", "#0000ff"]
shapes:
  - kind: rect
    min: [20, 0]
    max: [30, 10]
    fill: "#00ff00"
sprites:
  - image: red
    at: [2, 2]
  - image: blue
    at: [10, 10]
    size: [4, 4]
`

func encodeSolidPNG(w io.Writer, width, height int, c color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return png.Encode(w, img)
}

func TestRenderScene(t *testing.T) {
	var red bytes.Buffer
	if err := encodeSolidPNG(&red, 4, 4, color.RGBA{R: 255, A: 255}); err != nil {
		t.Fatal(err)
	}
	files := fstest.MapFS{"red.png": {Data: red.Bytes()}}

	sc, err := ReadScene(strings.NewReader(testScene))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Render(context.Background(), sc, files, softBackend(t), 2)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := res.Image.Bounds().Size(); got.X != 32 || got.Y != 16 {
		t.Fatalf("image size = %v, want 32x16", got)
	}
	if res.Sprites.Instances != 2 || res.Sprites.DrawCalls != 1 {
		t.Errorf("sprites = %+v, want 2 instances in 1 draw", res.Sprites)
	}
	if res.Shapes.DrawCalls != 1 {
		t.Errorf("shapes = %+v, want 1 draw", res.Shapes)
	}
	if res.Layers != 1 {
		t.Errorf("Layers = %d, want both images packed in 1", res.Layers)
	}

	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{3, 3, color.RGBA{R: 255, A: 255}},
		{11, 11, color.RGBA{B: 255, A: 255}},
		{25, 5, color.RGBA{G: 255, A: 255}},
		{15, 5, color.RGBA{A: 255}},
		{1, 1, color.RGBA{A: 255}},
	}
	for _, tt := range tests {
		if got := res.Image.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRunDefaultScene(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	res, err := run(context.Background(), "", out, "legacy", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Image.Bounds().Size(); got.X != 320 || got.Y != 200 {
		t.Errorf("image size = %v, want 320x200", got)
	}
	if res.Sprites.Instances != 17 {
		t.Errorf("sprite instances = %d, want 17", res.Sprites.Instances)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		t.Errorf("output not written: %v", err)
	}
}
