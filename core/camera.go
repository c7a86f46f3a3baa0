package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Frame feature flags.
const (
	FrameFlagNone            uint32 = 0
	FrameFlagDisplayMeshlets uint32 = 1 << 0
)

// FrameData is the per-frame camera and feature block every pass receives
// explicitly. No pass reads ambient device state.
type FrameData struct {
	View         mgl32.Mat4
	Proj         mgl32.Mat4
	InvViewProj  mgl32.Mat4
	ScreenWidth  float32
	ScreenHeight float32
	Flags        uint32
}

// NewFrameData derives the inverse view-projection from view and proj.
func NewFrameData(view, proj mgl32.Mat4, width, height uint32, flags uint32) FrameData {
	return FrameData{
		View:         view,
		Proj:         proj,
		InvViewProj:  proj.Mul4(view).Inv(),
		ScreenWidth:  float32(width),
		ScreenHeight: float32(height),
		Flags:        flags,
	}
}

// ViewProj returns projection * view.
func (f *FrameData) ViewProj() mgl32.Mat4 {
	return f.Proj.Mul4(f.View)
}

// CameraPosition extracts the world-space eye position from the view matrix.
func (f *FrameData) CameraPosition() mgl32.Vec3 {
	inv := f.View.Inv()
	return mgl32.Vec3{inv.At(0, 3), inv.At(1, 3), inv.At(2, 3)}
}

// PixelRay builds the world-space ray through the center of pixel (x, y)
// using the inverse view-projection, the construction the ray visibility
// pass uses for every pixel.
func (f *FrameData) PixelRay(x, y int) Ray {
	ndcX := (float32(x)+0.5)/f.ScreenWidth*2 - 1
	ndcY := 1 - (float32(y)+0.5)/f.ScreenHeight*2

	near := f.InvViewProj.Mul4x1(mgl32.Vec4{ndcX, ndcY, -1, 1})
	far := f.InvViewProj.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1, 1})
	nearP := near.Vec3().Mul(1 / near.W())
	farP := far.Vec3().Mul(1 / far.W())

	return Ray{
		Origin:    nearP,
		TMin:      0,
		Direction: farP.Sub(nearP).Normalize(),
		TMax:      math.MaxFloat32,
	}
}

const FrameDataByteSize = 208

func (f *FrameData) ToBytes() []byte {
	buf := make([]byte, FrameDataByteSize)
	putMat4(buf[0:], f.View)
	putMat4(buf[64:], f.Proj)
	putMat4(buf[128:], f.InvViewProj)
	binary.LittleEndian.PutUint32(buf[192:], math.Float32bits(f.ScreenWidth))
	binary.LittleEndian.PutUint32(buf[196:], math.Float32bits(f.ScreenHeight))
	binary.LittleEndian.PutUint32(buf[200:], f.Flags)
	return buf
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(m[i]))
	}
}

// ExtractFrustum extracts the six planes of the frustum from a
// view-projection matrix, in the order left, right, bottom, top, near,
// far. Each plane is Ax + By + Cz + D = 0 with a normalized normal.
func ExtractFrustum(vp mgl32.Mat4) [6]mgl32.Vec4 {
	var planes [6]mgl32.Vec4

	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(i, 0), vp.At(i, 1), vp.At(i, 2), vp.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planes[0] = r3.Add(r0)
	planes[1] = r3.Sub(r0)
	planes[2] = r3.Add(r1)
	planes[3] = r3.Sub(r1)
	planes[4] = r3.Add(r2)
	planes[5] = r3.Sub(r2)

	for i := range planes {
		length := planes[i].Vec3().Len()
		if length > 0 {
			planes[i] = planes[i].Mul(1 / length)
		}
	}
	return planes
}

// AABBInFrustum reports whether a world-space box intersects the frustum.
// Conservative: boxes straddling a plane count as visible.
func AABBInFrustum(aabb [2]mgl32.Vec3, planes [6]mgl32.Vec4) bool {
	for _, p := range planes {
		// Positive vertex of the box for this plane normal.
		v := mgl32.Vec3{aabb[0].X(), aabb[0].Y(), aabb[0].Z()}
		if p.X() >= 0 {
			v[0] = aabb[1].X()
		}
		if p.Y() >= 0 {
			v[1] = aabb[1].Y()
		}
		if p.Z() >= 0 {
			v[2] = aabb[1].Z()
		}
		if p.Vec3().Dot(v)+p.W() < 0 {
			return false
		}
	}
	return true
}
