package core

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/uuid"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestTextureHandlerAddAndSample(t *testing.T) {
	h := NewTextureHandler(64)
	red := uuid.New()
	idx := h.Add(red, solidImage(16, 16, color.RGBA{255, 0, 0, 255}))
	if idx != 0 {
		t.Fatalf("first texture index %d, want 0", idx)
	}
	if h.Index(red) != 0 {
		t.Errorf("Index lookup failed for a registered id")
	}
	if h.Index(uuid.New()) != InvalidIndex {
		t.Errorf("unknown id should resolve to InvalidIndex")
	}

	c := h.Sample(0, 0.5, 0.5)
	if c[0] != 1 || c[1] != 0 || c[2] != 0 || c[3] != 1 {
		t.Errorf("sampled %v, want solid red", c)
	}
}

func TestTextureHandlerRepeatWrap(t *testing.T) {
	h := NewTextureHandler(32)
	h.Add(uuid.New(), solidImage(32, 32, color.RGBA{0, 255, 0, 255}))

	for _, uv := range [][2]float32{{1.25, 0.5}, {-0.75, 0.5}, {0.5, 3.5}} {
		c := h.Sample(0, uv[0], uv[1])
		if c[1] != 1 {
			t.Errorf("uv (%f,%f) sampled %v, want green", uv[0], uv[1], c)
		}
	}
}

func TestTextureHandlerDedupAndData(t *testing.T) {
	h := NewTextureHandler(64)
	id := uuid.New()
	first := h.Add(id, solidImage(8, 8, color.RGBA{0, 0, 255, 255}))
	second := h.Add(id, solidImage(8, 8, color.RGBA{255, 255, 255, 255}))
	if first != second {
		t.Errorf("same id registered twice: %d != %d", first, second)
	}
	if len(h.Data()) != 1 {
		t.Errorf("%d TextureData records, want 1", len(h.Data()))
	}

	d := h.Data()[0]
	if d.AtlasIndex != 0 || d.LayerIndex != 0 {
		t.Errorf("first texture placed at atlas %d layer %d, want 0/0", d.AtlasIndex, d.LayerIndex)
	}
	if d.Area[2] != 8.0/64.0 || d.Area[3] != 8.0/64.0 {
		t.Errorf("sub-rectangle area %v, want 1/8 of the layer", d.Area)
	}
}

func TestTextureHandlerOversizedImageIsScaled(t *testing.T) {
	h := NewTextureHandler(16)
	h.Add(uuid.New(), solidImage(64, 64, color.RGBA{128, 128, 128, 255}))

	d := h.Data()[0]
	if d.Area[2] != 1 || d.Area[3] != 1 {
		t.Errorf("oversized texture should fill the layer, area %v", d.Area)
	}
	c := h.Sample(0, 0.5, 0.5)
	if c[0] < 0.4 || c[0] > 0.6 {
		t.Errorf("scaled sample %v, want mid gray", c)
	}
}

func TestSampleUnknownIndexIsWhite(t *testing.T) {
	h := NewTextureHandler(16)
	c := h.Sample(InvalidIndex, 0.5, 0.5)
	if c != [4]float32{1, 1, 1, 1} {
		t.Errorf("invalid index sampled %v, want white", c)
	}
}
