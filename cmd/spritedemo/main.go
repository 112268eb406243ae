// Command spritedemo renders a YAML scene with the sprite batch renderer
// and writes it as a PNG.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"fmt"
	"image/png"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gogpu/sprite"
	"github.com/gogpu/sprite/backend"
	_ "github.com/gogpu/sprite/backend/explicit"   // Register the explicit backend.
	_ "github.com/gogpu/sprite/backend/legacy/soft" // Register the software legacy backend.
)

//go:embed default.yaml
var defaultScene []byte

func main() {
	var (
		scene   = flag.String("scene", "", "scene file (default: built-in scene)")
		output  = flag.String("output", "sprites.png", "output file")
		name    = flag.String("backend", backend.NameLegacy, "backend: "+backend.NameLegacy+" or "+backend.NameExplicit)
		workers = flag.Int("workers", 0, "producer and loader goroutines (0: GOMAXPROCS)")
		verbose = flag.Bool("v", false, "log renderer activity")
	)
	flag.Parse()

	if *verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(l)
		sprite.SetLogger(l)
	}

	res, err := run(context.Background(), *scene, *output, *name, *workers)
	if err != nil {
		log.Fatalf("spritedemo: %v", err)
	}
	log.Printf("Scene saved to %s (%d instances, %d draw calls, %d layers)\n",
		*output, res.Sprites.Instances+res.Shapes.Instances, res.Sprites.DrawCalls+res.Shapes.DrawCalls, res.Layers)
}

func run(ctx context.Context, scenePath, output, backendName string, workers int) (*Result, error) {
	data, files := defaultScene, fs.FS(os.DirFS("."))
	if scenePath != "" {
		var err error
		if data, err = os.ReadFile(scenePath); err != nil {
			return nil, err
		}
		files = os.DirFS(filepath.Dir(scenePath))
	}
	sc, err := ReadScene(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b, err := backend.Get(backendName)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	res, err := Render(ctx, sc, files, b, workers)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	if err := png.Encode(f, res.Image); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode %s: %w", output, err)
	}
	return res, f.Close()
}
