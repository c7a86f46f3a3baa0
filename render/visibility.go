package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/codec"
	"github.com/krios3d/krios/core"
)

// RenderVisibility rasterizes every surviving indirect draw command into
// the visibility buffer: no shading, one packed id per covered pixel.
// Vertices run through the exact transform chain the resolve pass re-runs,
// so the two passes agree bit-for-bit on geometry.
func RenderVisibility(rb *core.RenderBuffers, frame *core.FrameData, vb *VisibilityBuffer) {
	viewProj := frame.ViewProj()

	for c := range rb.Commands {
		cmd := &rb.Commands[c]
		if cmd.InstanceCount == 0 || cmd.VertexCount == 0 {
			continue
		}
		meshletIndex := cmd.BaseInstance
		meshlet := &rb.Meshlets[meshletIndex]
		mesh := &rb.Meshes[meshlet.MeshIndex]
		world := mesh.Transform()
		wvp := viewProj.Mul4(world)

		primitives := cmd.VertexCount / 3
		for prim := uint32(0); prim < primitives; prim++ {
			i0, i1, i2 := rb.TriangleVertexIndices(meshletIndex, prim)
			c0 := wvp.Mul4x1(rb.VertexLocalPosition(i0).Vec4(1))
			c1 := wvp.Mul4x1(rb.VertexLocalPosition(i1).Vec4(1))
			c2 := wvp.Mul4x1(rb.VertexLocalPosition(i2).Vec4(1))

			id := codec.PackVisibility(meshletIndex, prim)
			rasterizeTriangle(vb, frame, c0, c1, c2, id)
		}
	}
}

// ScreenVertex projects a clip-space position to pixel coordinates.
// Returns ok=false behind the near plane; triangles with any such vertex
// are dropped rather than clipped, an accepted simplification of the
// reference rasterizer.
func ScreenVertex(frame *core.FrameData, clip mgl32.Vec4) (sx, sy, z float32, ok bool) {
	if clip.W() <= 0 {
		return 0, 0, 0, false
	}
	invW := 1 / clip.W()
	ndcX := clip.X() * invW
	ndcY := clip.Y() * invW
	z = clip.Z() * invW
	sx = (ndcX*0.5 + 0.5) * frame.ScreenWidth
	sy = (1 - (ndcY*0.5 + 0.5)) * frame.ScreenHeight
	return sx, sy, z, true
}

func rasterizeTriangle(vb *VisibilityBuffer, frame *core.FrameData, c0, c1, c2 mgl32.Vec4, id uint32) {
	x0, y0, z0, ok0 := ScreenVertex(frame, c0)
	x1, y1, z1, ok1 := ScreenVertex(frame, c1)
	x2, y2, z2, ok2 := ScreenVertex(frame, c2)
	if !ok0 || !ok1 || !ok2 {
		return
	}

	area := edge(x0, y0, x1, y1, x2, y2)
	if area == 0 {
		return
	}

	minX := int(floor3(x0, x1, x2))
	maxX := int(ceil3(x0, x1, x2))
	minY := int(floor3(y0, y1, y2))
	maxY := int(ceil3(y0, y1, y2))
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > vb.Width-1 {
		maxX = vb.Width - 1
	}
	if maxY > vb.Height-1 {
		maxY = vb.Height - 1
	}

	invArea := 1 / area
	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5

			w0 := edge(x1, y1, x2, y2, px, py) * invArea
			w1 := edge(x2, y2, x0, y0, px, py) * invArea
			w2 := edge(x0, y0, x1, y1, px, py) * invArea
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			// NDC depth is linear in screen space.
			z := w0*z0 + w1*z1 + w2*z2
			idx := y*vb.Width + x
			if z < vb.Depth[idx] {
				vb.Depth[idx] = z
				vb.IDs[idx] = id
			}
		}
	}
}

// edge is the signed doubled area of triangle (a, b, p); its sign tells
// which side of ab the point p lies on.
func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func floor3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func ceil3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
