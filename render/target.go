// Package render is the CPU reference implementation of the visibility
// pipeline: the visibility rasterizer, the deferred resolve pass and the
// ray visibility pass all operate on the same packed buffers the GPU
// pipeline consumes, which keeps every pass testable off-device.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/codec"
)

// VisibilityBuffer stores one packed visibility id per pixel plus the
// depth the rasterizer resolved it at.
type VisibilityBuffer struct {
	Width  int
	Height int
	IDs    []uint32
	Depth  []float32
}

func NewVisibilityBuffer(width, height int) *VisibilityBuffer {
	vb := &VisibilityBuffer{
		Width:  width,
		Height: height,
		IDs:    make([]uint32, width*height),
		Depth:  make([]float32, width*height),
	}
	vb.Clear()
	return vb
}

// Clear resets every pixel to the background sentinel and maximum depth.
func (vb *VisibilityBuffer) Clear() {
	for i := range vb.IDs {
		vb.IDs[i] = codec.VisibilityNone
		vb.Depth[i] = math.MaxFloat32
	}
}

// At returns the visibility id at (x, y).
func (vb *VisibilityBuffer) At(x, y int) uint32 {
	return vb.IDs[y*vb.Width+x]
}

// ToBytes serializes the id plane for comparison with a GPU readback.
func (vb *VisibilityBuffer) ToBytes() []byte {
	buf := make([]byte, len(vb.IDs)*4)
	for i, id := range vb.IDs {
		buf[i*4] = byte(id)
		buf[i*4+1] = byte(id >> 8)
		buf[i*4+2] = byte(id >> 16)
		buf[i*4+3] = byte(id >> 24)
	}
	return buf
}

// ColorBuffer is the shaded output target of the resolve pass.
type ColorBuffer struct {
	Width  int
	Height int
	Pixels []mgl32.Vec4
}

func NewColorBuffer(width, height int) *ColorBuffer {
	return &ColorBuffer{
		Width:  width,
		Height: height,
		Pixels: make([]mgl32.Vec4, width*height),
	}
}

// At returns the color at (x, y).
func (cb *ColorBuffer) At(x, y int) mgl32.Vec4 {
	return cb.Pixels[y*cb.Width+x]
}

// Set writes the color at (x, y).
func (cb *ColorBuffer) Set(x, y int, c mgl32.Vec4) {
	cb.Pixels[y*cb.Width+x] = c
}

// Image converts the target to an 8-bit image, clamping channels.
func (cb *ColorBuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cb.Width, cb.Height))
	for y := 0; y < cb.Height; y++ {
		for x := 0; x < cb.Width; x++ {
			p := cb.At(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(mgl32.Clamp(p.X(), 0, 1)*255 + 0.5),
				G: uint8(mgl32.Clamp(p.Y(), 0, 1)*255 + 0.5),
				B: uint8(mgl32.Clamp(p.Z(), 0, 1)*255 + 0.5),
				A: uint8(mgl32.Clamp(p.W(), 0, 1)*255 + 0.5),
			})
		}
	}
	return img
}
