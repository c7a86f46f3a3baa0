package codec

// VisibilityNone is the packed id of a pixel covered by no geometry.
const VisibilityNone uint32 = 0

// MaxMeshletPrimitives bounds the per-meshlet triangle count: the primitive
// ordinal must fit the low 8 bits of the visibility id. The upstream
// clustering step must respect this.
const MaxMeshletPrimitives = 256

// PackVisibility encodes a global meshlet index and a primitive ordinal
// within that meshlet into one 32-bit id. The meshlet index is stored
// +1-biased so that 0 stays reserved for "no geometry".
func PackVisibility(meshletIndex uint32, primitiveIndex uint32) uint32 {
	return (meshletIndex+1)<<8 | primitiveIndex&0xFF
}

// UnpackVisibility decodes a non-zero visibility id. ok is false for
// VisibilityNone.
func UnpackVisibility(id uint32) (meshletIndex uint32, primitiveIndex uint32, ok bool) {
	if id == VisibilityNone {
		return 0, 0, false
	}
	return id>>8 - 1, id & 0xFF, true
}

// VisibilityToColor stores a visibility id through the 4x8 unorm packing so
// it survives a standard 8-bit-per-channel color target unchanged.
func VisibilityToColor(id uint32) (r, g, b, a float32) {
	return UnpackUnormTo4F32(id)
}

// ColorToVisibility is the inverse of VisibilityToColor.
func ColorToVisibility(r, g, b, a float32) uint32 {
	return Pack4F32ToUnorm(r, g, b, a)
}
