package bvh

import "github.com/go-gl/mathgl/mgl32"

const triangleEpsilon = 1e-7

// IntersectTriangle runs the Möller–Trumbore ray/triangle test. On a hit
// it returns the ray parameter t and the barycentric coordinates (u, v)
// of the hit point with respect to (v1, v2). Back faces count as hits;
// degenerate and parallel configurations miss.
func IntersectTriangle(origin, dir, v0, v1, v2 mgl32.Vec3) (t, u, v float32, hit bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -triangleEpsilon && det < triangleEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(q) * invDet
	if t < triangleEpsilon {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
