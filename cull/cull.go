// Package cull implements the per-meshlet visibility culling pass: one
// work item per meshlet instance, a cone test against the camera, and an
// in-place rewrite of the indirect draw-argument list. This is the CPU
// reference of the compute dispatch in shaders/culling.wgsl.
package cull

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/bvh"
	"github.com/krios3d/krios/core"
)

// Config selects optional behavior of the pass. The cone test always
// runs; frustum rejection is opt-in and works on the meshlet bounds
// gathered through a box-mode BVH walk per mesh.
type Config struct {
	FrustumCull bool
}

// Run evaluates every meshlet instance and zeroes the draw-argument
// record of each culled one, leaving the command list length unchanged.
// It also maintains the per-32-meshlet visibility bitmask words.
// The caller must have reset the culling result before the dispatch.
func Run(rb *core.RenderBuffers, frame *core.FrameData, cfg Config) {
	cameraPos := frame.CameraPosition()

	var inFrustum []bool
	if cfg.FrustumCull {
		inFrustum = frustumVisibleMeshlets(rb, frame)
	}

	for i := range rb.Meshlets {
		meshlet := &rb.Meshlets[i]
		mesh := &rb.Meshes[meshlet.MeshIndex]
		cone := &rb.Cones[i]

		visible := ConeVisible(cone, mesh, cameraPos)
		if visible && inFrustum != nil {
			visible = inFrustum[i]
		}

		if !visible {
			rb.Commands[i] = core.DrawIndexedCommand{}
			rb.CullingResult[i/32] &^= 1 << (uint(i) % 32)
			continue
		}

		rb.Commands[i] = core.DrawIndexedCommand{
			VertexCount:   meshlet.IndicesCount,
			InstanceCount: 1,
			BaseIndex:     mesh.IndicesOffset + meshlet.IndicesOffset,
			VertexOffset:  int32(mesh.VertexOffset),
			BaseInstance:  uint32(i),
		}
		rb.CullingResult[i/32] |= 1 << (uint(i) % 32)
	}
}

// ConeVisible applies the backface-cluster cone test. The cone center and
// axis are carried in mesh local space and transformed against the
// instance's placement; the test compares the camera-to-center direction
// with the cone axis: the meshlet survives when
// dot(cameraPos - center, axis) >= cutoff * |cameraPos - center|.
// Evaluated against the true camera position, so it stays correct under
// perspective.
func ConeVisible(cone *core.ConeCulling, mesh *core.Mesh, cameraPos mgl32.Vec3) bool {
	m := mesh.Transform()
	center := m.Mul4x1(cone.Center.Vec4(1)).Vec3()
	axis := m.Mul4x1(cone.Axis().Vec4(0)).Vec3()
	if l := axis.Len(); l > 0 {
		axis = axis.Mul(1 / l)
	}

	direction := cameraPos.Sub(center)
	return direction.Dot(axis) >= cone.Cutoff()*direction.Len()
}

// frustumVisibleMeshlets walks each mesh's BVH in box mode against the
// frustum's world-space bound and flags the meshlets whose leaves were
// reached, a coarse pre-filter ahead of the per-plane test.
func frustumVisibleMeshlets(rb *core.RenderBuffers, frame *core.FrameData) []bool {
	planes := core.ExtractFrustum(frame.ViewProj())
	frustumMin, frustumMax := frustumAABB(frame)

	visible := make([]bool, len(rb.Meshlets))
	for mi := range rb.Meshes {
		mesh := &rb.Meshes[mi]
		nodes := rb.MeshNodes(mesh)
		world := mesh.Transform()
		inv := world.Inv()

		// Carry the frustum box into mesh local space for the walk.
		localMin, localMax := core.TransformAABB(inv, frustumMin, frustumMax)

		bvh.TraverseBox(nodes, localMin, localMax, 0, func(ref int32) bool {
			global := mesh.MeshletsOffset + uint32(ref)
			node := &nodes[rb.Meshlets[global].BVHIndex]
			wMin, wMax := core.TransformAABB(world, node.Min, node.Max)
			visible[global] = core.AABBInFrustum([2]mgl32.Vec3{wMin, wMax}, planes)
			return true
		})
	}
	return visible
}

// frustumAABB bounds the view frustum in world space through the inverse
// view-projection of its eight corners.
func frustumAABB(frame *core.FrameData) (mgl32.Vec3, mgl32.Vec3) {
	inf := float32(1e30)
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for _, x := range []float32{-1, 1} {
		for _, y := range []float32{-1, 1} {
			for _, z := range []float32{-1, 1} {
				c := frame.InvViewProj.Mul4x1(mgl32.Vec4{x, y, z, 1})
				p := c.Vec3().Mul(1 / c.W())
				for a := 0; a < 3; a++ {
					if p[a] < minB[a] {
						minB[a] = p[a]
					}
					if p[a] > maxB[a] {
						maxB[a] = p[a]
					}
				}
			}
		}
	}
	return minB, maxB
}
