package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/manoloenriquez/vault7641/internal/traits"
)

// Compositor renders the raster frame for an instance. The trait resolver
// is the single source of truth for layer selection; the compositor never
// derives traits on its own, so attributes and pixels cannot disagree.
type Compositor struct {
	resolver *traits.Resolver
	assets   *AssetSet
	size     int
	enc      png.Encoder
}

func New(resolver *traits.Resolver, assets *AssetSet, size int) *Compositor {
	return &Compositor{
		resolver: resolver,
		assets:   assets,
		size:     size,
		// Fixed compression level: output bytes are part of the
		// determinism contract.
		enc: png.Encoder{CompressionLevel: png.BestCompression},
	}
}

// Render produces the encoded frame for (instanceID, guild, gender, seed).
// Output is byte-identical across calls for identical inputs against an
// unchanged asset set. Each call owns its canvas; nothing mutable is
// shared between concurrent renders.
func (c *Compositor) Render(instanceID uint64, guild traits.Guild, gender traits.Gender, seed uint64) ([]byte, error) {
	attrs, err := c.resolver.Resolve(instanceID, guild, gender, seed)
	if err != nil {
		return nil, err
	}
	return c.renderLayers(attrs)
}

func (c *Compositor) renderLayers(attrs []traits.Attribute) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	for _, a := range attrs {
		layer, ok := c.assets.Layer(a.TraitType, a.Value)
		if !ok {
			return nil, fmt.Errorf("%w: (%s, %s)", ErrMissingAsset, a.TraitType, a.Value)
		}
		draw.Draw(canvas, canvas.Bounds(), layer, layer.Bounds().Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := c.enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
