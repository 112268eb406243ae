package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"
)

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"a.png":       {Data: pngBytes(t, 2, 3, color.RGBA{R: 255, A: 255})},
		"dir/b.png":   {Data: pngBytes(t, 4, 1, color.RGBA{B: 255, A: 255})},
		"broken.png":  {Data: []byte("not a png")},
		"other/c.png": {Data: pngBytes(t, 1, 1, color.RGBA{R: 255, A: 255})},
	}

	imgs, err := Load(context.Background(), fsys, []string{"dir/b.png", "a.png"}, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if imgs[0].Width() != 4 || imgs[0].Height() != 1 {
		t.Errorf("first image is %dx%d, want 4x1", imgs[0].Width(), imgs[0].Height())
	}
	if imgs[1].Width() != 2 || imgs[1].Pix()[0] != 255 {
		t.Errorf("second image = %dx%d pix %v", imgs[1].Width(), imgs[1].Height(), imgs[1].Pix()[:4])
	}
	if Key("a.png") == Key("other/c.png") {
		t.Error("distinct names share a key")
	}

	again, err := Load(context.Background(), fsys, []string{"a.png"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Key() != imgs[1].Key() {
		t.Error("reloading an unchanged file changed its key")
	}
	fsys["a.png"] = &fstest.MapFile{Data: pngBytes(t, 2, 3, color.RGBA{G: 255, A: 255})}
	edited, err := Load(context.Background(), fsys, []string{"a.png"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if edited[0].Key() == imgs[1].Key() {
		t.Error("edited file reloaded under the same name kept its key")
	}
	same, err := Load(context.Background(), fsys, []string{"other/c.png"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if same[0].Key() == imgs[1].Key() {
		t.Error("distinct files share a key")
	}

	if _, err := Load(context.Background(), fsys, []string{"a.png", "broken.png"}, 0); err == nil {
		t.Error("Load with a corrupt file succeeded")
	}
	if _, err := Load(context.Background(), fsys, []string{"missing.png"}, 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, fsys, []string{"a.png"}, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled load error = %v", err)
	}
}
