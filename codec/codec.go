// Package codec implements the quantization and packing formats shared
// between the offline asset producer and the runtime pipeline. All layouts
// here are fixed binary contracts: changing a bit width or field order
// breaks every serialized scene.
package codec

import "math"

// QuantizeUnorm maps v in [0,1] to an n-bit unsigned code. 0.0 and 1.0 map
// exactly to the two boundary codes; interior values round to the nearest
// bucket center. Input must be pre-clamped by the caller.
func QuantizeUnorm(v float32, n uint32) uint32 {
	scale := float32(int32(1)<<n - 1)
	return uint32(v*scale + 0.5)
}

// DecodeUnorm is the inverse of QuantizeUnorm up to half a code of error.
func DecodeUnorm(i uint32, n uint32) float32 {
	scale := float32(int32(1)<<n - 1)
	return float32(i) / scale
}

// QuantizeSnorm maps v in [-1,1] to a sign bit plus an (n-1)-bit magnitude.
// Input must be pre-clamped by the caller.
func QuantizeSnorm(v float32, n uint32) uint32 {
	c := uint32(1) << (n - 1)
	scale := float32(c - 1)
	if v < 0 {
		return uint32(-v*scale+0.5) | c
	}
	return uint32(v*scale + 0.5)
}

// DecodeSnorm inverts QuantizeSnorm; sign is preserved except at zero.
func DecodeSnorm(i uint32, n uint32) float32 {
	c := uint32(1) << (n - 1)
	scale := float32(c - 1)
	mag := float32(i&(c-1)) / scale
	if i&c != 0 {
		return -mag
	}
	return mag
}

// Pack4F32ToUnorm packs four pre-clamped [0,1] channels at 8 bits each,
// x in the low byte.
func Pack4F32ToUnorm(x, y, z, w float32) uint32 {
	return QuantizeUnorm(x, 8) |
		QuantizeUnorm(y, 8)<<8 |
		QuantizeUnorm(z, 8)<<16 |
		QuantizeUnorm(w, 8)<<24
}

// UnpackUnormTo4F32 is the inverse of Pack4F32ToUnorm.
func UnpackUnormTo4F32(p uint32) (x, y, z, w float32) {
	x = DecodeUnorm(p&0xFF, 8)
	y = DecodeUnorm(p>>8&0xFF, 8)
	z = DecodeUnorm(p>>16&0xFF, 8)
	w = DecodeUnorm(p>>24&0xFF, 8)
	return
}

// PackNormalizedVec3 stores three [0,1] channels at 10 bits each,
// x in the high bits: x<<20 | y<<10 | z. Two bits stay unused.
func PackNormalizedVec3(x, y, z float32) uint32 {
	return QuantizeUnorm(x, 10)<<20 | QuantizeUnorm(y, 10)<<10 | QuantizeUnorm(z, 10)
}

// UnpackNormalizedVec3 is the inverse of PackNormalizedVec3.
func UnpackNormalizedVec3(p uint32) (x, y, z float32) {
	x = DecodeUnorm(p>>20&0x3FF, 10)
	y = DecodeUnorm(p>>10&0x3FF, 10)
	z = DecodeUnorm(p&0x3FF, 10)
	return
}

// QuantizeHalf converts a float32 to IEEE binary16 bits. Overflow goes to
// infinity, subnormals flush through the standard rounding path.
func QuantizeHalf(v float32) uint16 {
	ui := math.Float32bits(v)
	s := uint16(ui>>16) & 0x8000
	em := ui & 0x7FFFFFFF

	// Round-to-nearest-even to 10 mantissa bits.
	h := (em - (112 << 23) + (1 << 12)) >> 13
	if em < 113<<23 {
		h = 0
	}
	if em >= 143<<23 {
		h = 0x7C00
	}
	if em > 255<<23 {
		h = 0x7E00 // NaN
	}
	return s | uint16(h)
}

// DecodeHalf converts IEEE binary16 bits back to float32.
func DecodeHalf(h uint16) float32 {
	s := uint32(h&0x8000) << 16
	em := uint32(h & 0x7FFF)

	r := (em + (112 << 10)) << 13
	if em < 1<<10 {
		// Denormal or zero: renormalize through a float multiply.
		r = math.Float32bits(float32(em) * (1.0 / (1 << 24)))
	}
	if em >= 31<<10 {
		r = em<<13 | 0x7F800000
	}
	return math.Float32frombits(s | r)
}

// PackUV stores two texture coordinates as half floats, u in the low word.
func PackUV(u, v float32) uint32 {
	return uint32(QuantizeHalf(u)) | uint32(QuantizeHalf(v))<<16
}

// UnpackUV is the inverse of PackUV.
func UnpackUV(p uint32) (u, v float32) {
	return DecodeHalf(uint16(p)), DecodeHalf(uint16(p >> 16))
}
