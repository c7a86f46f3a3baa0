package core

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
)

// TextureData locates one logical texture inside the atlas set: which
// atlas, which array layer, and the normalized sub-rectangle it occupies.
// Every sample resolves through this record before touching texels.
type TextureData struct {
	AtlasIndex  uint32
	LayerIndex  uint32
	Area        [4]float32 // x, y, width, height, normalized
	TotalWidth  uint32
	TotalHeight uint32
}

const TextureDataByteSize = 32

func (t *TextureData) ToBytes() []byte {
	buf := make([]byte, TextureDataByteSize)
	binary.LittleEndian.PutUint32(buf[0:], t.AtlasIndex)
	binary.LittleEndian.PutUint32(buf[4:], t.LayerIndex)
	for i, v := range t.Area {
		binary.LittleEndian.PutUint32(buf[8+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[24:], t.TotalWidth)
	binary.LittleEndian.PutUint32(buf[28:], t.TotalHeight)
	return buf
}

// TextureAtlas is one fixed-size layered RGBA surface. Layers are filled
// one texture per layer; images smaller than the layer occupy a
// sub-rectangle recorded in the TextureData.
type TextureAtlas struct {
	Width  uint32
	Height uint32
	Layers []*image.RGBA
}

// TextureHandler owns the atlas set and hands out TextureData records.
// Textures are keyed by uuid, mirroring how meshes and materials register.
type TextureHandler struct {
	AtlasSize uint32
	Atlases   []*TextureAtlas

	indices map[uuid.UUID]int
	data    []TextureData
}

func NewTextureHandler(atlasSize uint32) *TextureHandler {
	return &TextureHandler{
		AtlasSize: atlasSize,
		indices:   make(map[uuid.UUID]int),
	}
}

// Add copies img into a free atlas layer (converting to RGBA if needed)
// and returns the texture's index into the TextureData array.
func (h *TextureHandler) Add(id uuid.UUID, img image.Image) int {
	if idx, ok := h.indices[id]; ok {
		return idx
	}

	b := img.Bounds()
	w, h2 := b.Dx(), b.Dy()
	if uint32(w) > h.AtlasSize || uint32(h2) > h.AtlasSize {
		w = int(h.AtlasSize)
		h2 = int(h.AtlasSize)
	}

	layer := image.NewRGBA(image.Rect(0, 0, int(h.AtlasSize), int(h.AtlasSize)))
	xdraw.NearestNeighbor.Scale(layer, image.Rect(0, 0, w, h2), img, b, xdraw.Src, nil)

	atlasIdx := len(h.Atlases) - 1
	if atlasIdx < 0 || len(h.Atlases[atlasIdx].Layers) >= maxAtlasLayers {
		h.Atlases = append(h.Atlases, &TextureAtlas{Width: h.AtlasSize, Height: h.AtlasSize})
		atlasIdx = len(h.Atlases) - 1
	}
	atlas := h.Atlases[atlasIdx]
	atlas.Layers = append(atlas.Layers, layer)

	data := TextureData{
		AtlasIndex: uint32(atlasIdx),
		LayerIndex: uint32(len(atlas.Layers) - 1),
		Area: [4]float32{
			0, 0,
			float32(w) / float32(h.AtlasSize),
			float32(h2) / float32(h.AtlasSize),
		},
		TotalWidth:  h.AtlasSize,
		TotalHeight: h.AtlasSize,
	}

	idx := len(h.data)
	h.data = append(h.data, data)
	h.indices[id] = idx
	return idx
}

// Index returns the texture index for id, or InvalidIndex if unknown.
func (h *TextureHandler) Index(id uuid.UUID) int32 {
	if idx, ok := h.indices[id]; ok {
		return int32(idx)
	}
	return InvalidIndex
}

// Data returns the packed TextureData array consumed by the resolve pass.
func (h *TextureHandler) Data() []TextureData {
	return h.data
}

// Sample fetches the texel at normalized (u, v) of texture index, with
// repeat wrapping and nearest filtering, resolving through the atlas
// indirection. The CPU resolve pass samples through this.
func (h *TextureHandler) Sample(index int32, u, v float32) [4]float32 {
	if index < 0 || int(index) >= len(h.data) {
		return [4]float32{1, 1, 1, 1}
	}
	t := &h.data[index]
	atlas := h.Atlases[t.AtlasIndex]
	layer := atlas.Layers[t.LayerIndex]

	u -= float32(math.Floor(float64(u)))
	v -= float32(math.Floor(float64(v)))

	// Map into the texture's sub-rectangle of the layer.
	px := (t.Area[0] + u*t.Area[2]) * float32(t.TotalWidth)
	py := (t.Area[1] + v*t.Area[3]) * float32(t.TotalHeight)
	x := int(px)
	y := int(py)
	if x >= int(t.TotalWidth) {
		x = int(t.TotalWidth) - 1
	}
	if y >= int(t.TotalHeight) {
		y = int(t.TotalHeight) - 1
	}

	c := layer.RGBAAt(x, y)
	return [4]float32{
		float32(c.R) / 255,
		float32(c.G) / 255,
		float32(c.B) / 255,
		float32(c.A) / 255,
	}
}

const maxAtlasLayers = 256
