package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"path"
	"strings"

	"github.com/manoloenriquez/vault7641/internal/traits"
)

// ErrMissingAsset means a resolved trait has no pre-authored layer. A
// silently skipped layer would corrupt the final image without detection,
// so this is fatal for the request and a deployment defect.
var ErrMissingAsset = errors.New("missing visual asset")

// AssetSet is the immutable registry of pre-authored layers, one per
// (category, value). Loaded once at startup; shared read-only across
// renders.
type AssetSet struct {
	layers map[string]image.Image
}

// Slug maps a trait category or value to its on-disk name:
// "Cyan Grid" -> "cyan-grid". Traits with no visible layer (value "None")
// still carry a fully transparent asset so every draw is uniform.
func Slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func layerKey(category, value string) string {
	return Slug(category) + "/" + Slug(value)
}

// LoadAssets reads every <category>/<value>.png under the root of fsys.
func LoadAssets(fsys fs.FS) (*AssetSet, error) {
	layers := make(map[string]image.Image)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".png") {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("open asset %s: %w", p, err)
		}
		defer f.Close()

		img, err := png.Decode(f)
		if err != nil {
			return fmt.Errorf("decode asset %s: %w", p, err)
		}
		key := path.Dir(p) + "/" + strings.TrimSuffix(path.Base(p), ".png")
		layers[key] = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AssetSet{layers: layers}, nil
}

// Layer returns the asset for one resolved trait.
func (a *AssetSet) Layer(category, value string) (image.Image, bool) {
	img, ok := a.layers[layerKey(category, value)]
	return img, ok
}

// Len reports the number of loaded layers.
func (a *AssetSet) Len() int { return len(a.layers) }

// Validate proves every candidate the table can ever draw has a layer of
// the canonical dimensions. Run at startup next to Table.Validate; a gap
// found here is a deployment defect, not a runtime fallback.
func (a *AssetSet) Validate(table *traits.Table, size int) error {
	for key, cands := range table.Buckets {
		for _, c := range cands {
			img, ok := a.Layer(key.Category, c.Value)
			if !ok {
				return fmt.Errorf("%w: (%s, %s)", ErrMissingAsset, key.Category, c.Value)
			}
			b := img.Bounds()
			if b.Dx() != size || b.Dy() != size {
				return fmt.Errorf("asset (%s, %s): %dx%d, want %dx%d",
					key.Category, c.Value, b.Dx(), b.Dy(), size, size)
			}
		}
	}
	return nil
}
