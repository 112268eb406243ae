// Package assets decodes image files into sprite images. It sits outside
// the batching core, which only consumes decoded pixels.
package assets

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/jpeg" // Register JPEG decoding.
	_ "image/png"  // Register PNG decoding.
	"io/fs"
	"runtime"

	_ "golang.org/x/image/bmp"  // Register BMP decoding.
	_ "golang.org/x/image/webp" // Register WebP decoding.
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/sprite"
)

// Load decodes the named files of fsys concurrently, using at most
// limit goroutines (GOMAXPROCS if limit <= 0). Results are in name order.
// Each image is keyed by its name and decoded content (see FileKey), so
// reloading an unchanged file reuses its layer and an edited one does not.
//
// The first failure cancels the remaining decodes and is returned.
func Load(ctx context.Context, fsys fs.FS, names []string, limit int) ([]*sprite.Image, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	out := make([]*sprite.Image, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := loadImage(fsys, name)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sprite.Logger().Debug("images loaded", "count", len(names), "workers", limit)
	return out, nil
}

func loadImage(fsys fs.FS, name string) (*sprite.Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	img, err := sprite.ImageFrom(src)
	if err != nil {
		return nil, fmt.Errorf("convert %s (%s): %w", name, format, err)
	}
	return img.WithKey(FileKey(name, img)), nil
}

// Key returns the image key for a procedural image name. Regenerating
// under the same name reuses the layer, so generators must be
// deterministic.
func Key(name string) sprite.ImageKey {
	h := fnv.New64a()
	h.Write([]byte("name:" + name))
	return sprite.ImageKey(h.Sum64())
}

// FileKey returns the key of a decoded file: its name combined with the
// content hash of img.
func FileKey(name string, img *sprite.Image) sprite.ImageKey {
	h := fnv.New64a()
	h.Write([]byte("file:" + name))
	h.Write(binary.LittleEndian.AppendUint64(nil, uint64(img.Key())))
	return sprite.ImageKey(h.Sum64())
}
