package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a world-space ray with its valid parametric interval.
type Ray struct {
	Origin    mgl32.Vec3
	TMin      float32
	Direction mgl32.Vec3
	TMax      float32
}

// At returns the point at parameter t.
func (r *Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Transformed maps the ray through a matrix, used to carry a world ray
// into a mesh's local space before BVH traversal. The direction is not
// re-normalized so that t values stay comparable across spaces only when
// the transform is rigid; callers that scale must compare hits in world
// space.
func (r *Ray) Transformed(m mgl32.Mat4) Ray {
	o := m.Mul4x1(r.Origin.Vec4(1)).Vec3()
	d := m.Mul4x1(r.Direction.Vec4(0)).Vec3()
	return Ray{Origin: o, TMin: r.TMin, Direction: d, TMax: r.TMax}
}

const RayByteSize = 32

func (r *Ray) ToBytes() []byte {
	buf := make([]byte, RayByteSize)
	putVec3(buf[0:], r.Origin)
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(r.TMin))
	putVec3(buf[16:], r.Direction)
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(r.TMax))
	return buf
}
