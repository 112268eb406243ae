package sprite

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
)

const eps = 1e-5

func near(a, b float32) bool { return math32.Abs(a-b) <= eps }

func nearVec(a, b Vec2) bool { return near(a.X, b.X) && near(a.Y, b.Y) }

func TestComposeDecomposeRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		scale       Vec2
		rotation    float32
		translation Vec2
	}{
		{"identity", Vec2{1, 1}, 0, Vec2{}},
		{"scale only", Vec2{32, 16}, 0, Vec2{}},
		{"translate only", Vec2{1, 1}, 0, Vec2{-12.5, 400}},
		{"quarter turn", Vec2{2, 3}, math.Pi / 2, Vec2{10, 20}},
		{"negative angle", Vec2{0.5, 4}, -1.2, Vec2{-3, 7}},
		{"near half turn", Vec2{8, 8}, 3.1, Vec2{100, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compose(tt.scale, tt.rotation, tt.translation, PivotCorner)
			s, r, tr, ok := m.Decompose()
			if !ok {
				t.Fatal("Decompose() ok = false")
			}
			if !nearVec(s, tt.scale) {
				t.Errorf("scale = %v, want %v", s, tt.scale)
			}
			if !near(r, tt.rotation) {
				t.Errorf("rotation = %v, want %v", r, tt.rotation)
			}
			if !nearVec(tr, tt.translation) {
				t.Errorf("translation = %v, want %v", tr, tt.translation)
			}
		})
	}
}

func TestDecomposeDegenerate(t *testing.T) {
	if _, _, _, ok := Scale(Vec2{0, 5}).Decompose(); ok {
		t.Error("Decompose() of zero-width scale should fail")
	}
}

func TestRotateQuarterTurn(t *testing.T) {
	got := Rotate(math.Pi / 2).Apply(Vec2{1, 0})
	if !nearVec(got, Vec2{0, 1}) {
		t.Errorf("Rotate(π/2).Apply(1,0) = %v, want (0,1)", got)
	}
}

func TestComposeRotatesAboutCenter(t *testing.T) {
	// Unit quad, quarter turn about its center: the right-middle edge
	// point moves to the bottom-middle.
	m := Compose(Vec2{1, 1}, math.Pi/2, Vec2{}, PivotCenter)
	if got := m.Apply(Vec2{1, 0.5}); !nearVec(got, Vec2{0.5, 1}) {
		t.Errorf("Apply(1,0.5) = %v, want (0.5,1)", got)
	}
	// The center stays fixed.
	if got := m.Apply(Vec2{0.5, 0.5}); !nearVec(got, Vec2{0.5, 0.5}) {
		t.Errorf("Apply(center) = %v, want (0.5,0.5)", got)
	}
}

func TestComposeOrder(t *testing.T) {
	// Scale first, then translate: corner (1,1) lands at translation+scale.
	m := Compose(Vec2{10, 20}, 0, Vec2{5, 7}, PivotCorner)
	if got := m.Apply(Vec2{1, 1}); !nearVec(got, Vec2{15, 27}) {
		t.Errorf("Apply(1,1) = %v, want (15,27)", got)
	}
}

func TestComposeZeroRotationIgnoresPivot(t *testing.T) {
	a := Compose(Vec2{3, 4}, 0, Vec2{1, 2}, PivotCorner)
	b := Compose(Vec2{3, 4}, 0, Vec2{1, 2}, PivotCenter)
	if !a.ApproxEqual(b, eps) {
		t.Error("pivot should not matter without rotation")
	}
}

func TestOrthographic(t *testing.T) {
	p := Orthographic(800, 600)
	tests := []struct {
		in, want Vec2
	}{
		{Vec2{0, 0}, Vec2{-1, 1}},
		{Vec2{800, 600}, Vec2{1, -1}},
		{Vec2{400, 300}, Vec2{0, 0}},
	}
	for _, tt := range tests {
		if got := p.Apply(tt.in); !nearVec(got, tt.want) {
			t.Errorf("Orthographic.Apply(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProjectAppliesInstanceFirst(t *testing.T) {
	inst := Compose(Vec2{100, 100}, 0, Vec2{100, 100}, PivotCorner)
	vp := Orthographic(200, 200)
	got := Project(inst, vp).Apply(Vec2{1, 1})
	if !nearVec(got, Vec2{1, -1}) {
		t.Errorf("Project().Apply(1,1) = %v, want (1,-1)", got)
	}
}

func TestAxisInversion(t *testing.T) {
	inv := AxisInversion()
	if got := inv.Apply(Vec2{0.25, 0.5}); !nearVec(got, Vec2{0.25, -0.5}) {
		t.Errorf("AxisInversion().Apply = %v, want (0.25,-0.5)", got)
	}
	if !inv.Mul(inv).ApproxEqual(Identity(), eps) {
		t.Error("AxisInversion applied twice should be identity")
	}
}

func TestTransformArrayColumnMajor(t *testing.T) {
	a := Translate(Vec2{3, 4}).Array()
	if a[12] != 3 || a[13] != 4 {
		t.Errorf("translation at [12],[13] = %v,%v, want 3,4", a[12], a[13])
	}
}
