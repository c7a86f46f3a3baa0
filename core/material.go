package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// TextureType enumerates the material texture slots.
type TextureType int

const (
	TextureBaseColor TextureType = iota
	TextureMetallicRoughness
	TextureNormal
	TextureEmissive
	TextureOcclusion
	TextureSpecularGlossiness
	TextureDiffuse
	TextureEmptyForPadding
	TextureCount
)

// AlphaMode selects how the resolve pass treats the material's alpha.
type AlphaMode uint32

const (
	AlphaModeOpaque AlphaMode = iota
	AlphaModeMask
	AlphaModeBlend
)

// Material is the packed shading description. A texture index of
// InvalidIndex means the slot is absent and sampling is skipped.
type Material struct {
	TexturesIndices   [TextureCount]int32
	TexturesCoordSet  [TextureCount]uint32
	RoughnessFactor   float32
	MetallicFactor    float32
	AlphaCutoff       float32
	AlphaMode         AlphaMode
	BaseColor         mgl32.Vec4
	EmissiveColor     mgl32.Vec3
	OcclusionStrength float32
	DiffuseColor      mgl32.Vec4
	SpecularColor     mgl32.Vec4
}

// NewMaterial returns a material with every slot absent and neutral factors.
func NewMaterial() Material {
	m := Material{
		AlphaCutoff:   1,
		AlphaMode:     AlphaModeOpaque,
		BaseColor:     mgl32.Vec4{1, 1, 1, 1},
		EmissiveColor: mgl32.Vec3{0, 0, 0},
		DiffuseColor:  mgl32.Vec4{1, 1, 1, 1},
		SpecularColor: mgl32.Vec4{1, 1, 1, 1},
	}
	for i := range m.TexturesIndices {
		m.TexturesIndices[i] = InvalidIndex
	}
	return m
}

// HasTexture reports whether a slot references a texture.
func (m *Material) HasTexture(t TextureType) bool {
	return m.TexturesIndices[t] != InvalidIndex
}

const MaterialByteSize = 144

func (m *Material) ToBytes() []byte {
	buf := make([]byte, MaterialByteSize)
	for i, v := range m.TexturesIndices {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	for i, v := range m.TexturesCoordSet {
		binary.LittleEndian.PutUint32(buf[32+i*4:], v)
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(m.RoughnessFactor))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(m.MetallicFactor))
	binary.LittleEndian.PutUint32(buf[72:], math.Float32bits(m.AlphaCutoff))
	binary.LittleEndian.PutUint32(buf[76:], uint32(m.AlphaMode))
	putVec4(buf[80:], m.BaseColor)
	putVec3(buf[96:], m.EmissiveColor)
	binary.LittleEndian.PutUint32(buf[108:], math.Float32bits(m.OcclusionStrength))
	putVec4(buf[112:], m.DiffuseColor)
	putVec4(buf[128:], m.SpecularColor)
	return buf
}
