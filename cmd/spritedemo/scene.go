package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/sprite"
	"github.com/gogpu/sprite/assets"
	"github.com/gogpu/sprite/gpucore"
)

// Scene is a YAML scene description.
type Scene struct {
	Width      int          `yaml:"width"`
	Height     int          `yaml:"height"`
	Background Color        `yaml:"background"`
	Filter     string       `yaml:"filter"`
	Layer      [2]int       `yaml:"layer"`
	Images     []ImageSpec  `yaml:"images"`
	Sprites    []SpriteSpec `yaml:"sprites"`
	Shapes     []ShapeSpec  `yaml:"shapes"`
}

// ImageSpec names an image loaded from Path or generated.
type ImageSpec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`

	// Generate is one of checker, gradient or disc.
	Generate string  `yaml:"generate"`
	Size     [2]int  `yaml:"size"`
	Colors   []Color `yaml:"colors"`
}

// SpriteSpec places Repeat copies of an image, each Step further along,
// turned Spin degrees more and shifted HueStep degrees around the hue
// circle.
type SpriteSpec struct {
	Image   string  `yaml:"image"`
	At      Point   `yaml:"at"`
	Size    Point   `yaml:"size"`
	Angle   float32 `yaml:"angle"`
	Tint    *Color  `yaml:"tint"`
	Repeat  int     `yaml:"repeat"`
	Step    Point   `yaml:"step"`
	Spin    float32 `yaml:"spin"`
	HueStep float64 `yaml:"hue_step"`
}

// ShapeSpec is a filled or stroked shape drawn beneath the sprites.
type ShapeSpec struct {
	// Kind is one of rect, circle, ellipse or polyline.
	Kind   string  `yaml:"kind"`
	Min    Point   `yaml:"min"`
	Max    Point   `yaml:"max"`
	Center Point   `yaml:"center"`
	Radius float32 `yaml:"radius"`
	Radii  Point   `yaml:"radii"`
	Angle  float32 `yaml:"angle"`
	Points []Point `yaml:"points"`
	Closed bool    `yaml:"closed"`
	Fill   *Color  `yaml:"fill"`
	Stroke *Color  `yaml:"stroke"`
	Width  float32 `yaml:"width"`
}

// Point is an [x, y] pair.
type Point [2]float32

func (p Point) vec() sprite.Vec2 { return sprite.Vec2{X: p[0], Y: p[1]} }

// Color is a "#rgb", "#rrggbb" or "#rrggbbaa" color.
type Color struct {
	c colorful.Color
	a float64
}

// ParseColor parses a hex color with optional alpha.
func ParseColor(s string) (Color, error) {
	a := 1.0
	if len(s) == 9 {
		v, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: alpha: %w", s, err)
		}
		a, s = float64(v)/255, s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{c: c, a: a}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*c = parsed
	return nil
}

// Premultiplied returns c as a renderer color.
func (c Color) Premultiplied() sprite.Color {
	cl := c.c.Clamped()
	a := float32(c.a)
	return sprite.Color{R: float32(cl.R) * a, G: float32(cl.G) * a, B: float32(cl.B) * a, A: a}
}

// shiftHue rotates c around the HSV hue circle.
func (c Color) shiftHue(degrees float64) Color {
	if degrees == 0 {
		return c
	}
	h, s, v := c.c.Hsv()
	return Color{c: colorful.Hsv(math.Mod(h+degrees+360, 360), s, v), a: c.a}
}

func (c Color) nrgba() color.NRGBA {
	r, g, b := c.c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(c.a * 255))}
}

var (
	white = Color{c: colorful.Color{R: 1, G: 1, B: 1}, a: 1}
	black = Color{c: colorful.Color{}, a: 1}
)

// ReadScene decodes a scene and checks it for consistency.
func ReadScene(r io.Reader) (*Scene, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scene
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scene) validate() error {
	if sc.Width <= 0 || sc.Height <= 0 {
		return fmt.Errorf("scene size %dx%d must be positive", sc.Width, sc.Height)
	}
	if _, err := sc.filter(); err != nil {
		return err
	}
	names := make(map[string]bool, len(sc.Images))
	for i, im := range sc.Images {
		switch {
		case im.Name == "":
			return fmt.Errorf("image %d: missing name", i)
		case names[im.Name]:
			return fmt.Errorf("image %q: duplicate name", im.Name)
		case (im.Path == "") == (im.Generate == ""):
			return fmt.Errorf("image %q: exactly one of path and generate is required", im.Name)
		case im.Generate != "" && (im.Size[0] <= 0 || im.Size[1] <= 0):
			return fmt.Errorf("image %q: generated images need a positive size", im.Name)
		}
		names[im.Name] = true
	}
	for i, sp := range sc.Sprites {
		if !names[sp.Image] {
			return fmt.Errorf("sprite %d: unknown image %q", i, sp.Image)
		}
		if sp.Repeat < 0 {
			return fmt.Errorf("sprite %d: negative repeat", i)
		}
	}
	for i, sh := range sc.Shapes {
		if _, err := sh.shape(); err != nil {
			return fmt.Errorf("shape %d: %w", i, err)
		}
		if sh.Fill == nil && sh.Stroke == nil {
			return fmt.Errorf("shape %d: needs fill or stroke", i)
		}
	}
	return nil
}

func (sc *Scene) filter() (gpucore.Filter, error) {
	switch strings.ToLower(sc.Filter) {
	case "", "nearest":
		return gpucore.FilterNearest, nil
	case "linear":
		return gpucore.FilterLinear, nil
	}
	return 0, fmt.Errorf("unknown filter %q", sc.Filter)
}

func (sh ShapeSpec) shape() (sprite.Shape, error) {
	switch sh.Kind {
	case "rect":
		return sprite.Rectangle{Min: sh.Min.vec(), Max: sh.Max.vec()}, nil
	case "circle":
		return sprite.Circle{Center: sh.Center.vec(), Radius: sh.Radius}, nil
	case "ellipse":
		return sprite.Ellipse{Center: sh.Center.vec(), Radii: sh.Radii.vec(), Rotation: radians(sh.Angle)}, nil
	case "polyline":
		if len(sh.Points) < 2 {
			return nil, errors.New("polyline needs two points")
		}
		pts := make([]sprite.Vec2, len(sh.Points))
		for i, p := range sh.Points {
			pts[i] = p.vec()
		}
		return sprite.Polyline{Points: pts, Loop: sh.Closed}, nil
	}
	return nil, fmt.Errorf("unknown shape kind %q", sh.Kind)
}

func radians(degrees float32) float32 { return degrees * math.Pi / 180 }

// generate draws a procedural image.
func (im ImageSpec) generate() (*sprite.Image, error) {
	w, h := im.Size[0], im.Size[1]
	c0, c1 := white, black
	if len(im.Colors) > 0 {
		c0 = im.Colors[0]
	}
	if len(im.Colors) > 1 {
		c1 = im.Colors[1]
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	switch im.Generate {
	case "checker":
		cell := max(min(w, h)/4, 1)
		for y := range h {
			for x := range w {
				c := c0
				if (x/cell+y/cell)%2 == 1 {
					c = c1
				}
				dst.SetNRGBA(x, y, c.nrgba())
			}
		}
	case "gradient":
		for x := range w {
			t := 0.0
			if w > 1 {
				t = float64(x) / float64(w-1)
			}
			c := Color{c: c0.c.BlendLab(c1.c, t), a: c0.a + (c1.a-c0.a)*t}
			for y := range h {
				dst.SetNRGBA(x, y, c.nrgba())
			}
		}
	case "disc":
		cx, cy := float64(w)/2, float64(h)/2
		r := math.Min(cx, cy)
		for y := range h {
			for x := range w {
				d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
				cover := math.Max(0, math.Min(1, r-d+0.5))
				c := c0
				c.a *= cover
				dst.SetNRGBA(x, y, c.nrgba())
			}
		}
	default:
		return nil, fmt.Errorf("image %q: unknown generator %q", im.Name, im.Generate)
	}
	img, err := sprite.ImageFrom(dst)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", im.Name, err)
	}
	return img.WithKey(assets.Key(im.Name)), nil
}
