package render

import (
	"math"
	"sync"

	"github.com/krios3d/krios/bvh"
	"github.com/krios3d/krios/codec"
	"github.com/krios3d/krios/core"
	"github.com/krios3d/krios/jobs"
)

// TileSize is the square pixel tile one ray job covers.
const TileSize = 16

// RayStepBudget caps the per-node walk of each BVH traversal in the ray
// pipeline; exceeding it reports "no hit" instead of looping on corrupt
// miss links.
const RayStepBudget = 4096

// RenderRayVisibility produces the visibility buffer by ray casting: for
// every pixel a camera ray walks the top-level BVH, then each candidate
// mesh's BVH, then the triangles of each candidate meshlet. The resulting
// ids are encoded exactly as the rasterization path encodes them.
//
// Work is distributed to workers as fixed-size pixel tiles; claiming a
// tile goes through the lock-free bitmask allocator, one slot per tile.
func RenderRayVisibility(rb *core.RenderBuffers, frame *core.FrameData, vb *VisibilityBuffer, workers int) {
	if workers < 1 {
		workers = 1
	}

	tilesX := (vb.Width + TileSize - 1) / TileSize
	tilesY := (vb.Height + TileSize - 1) / TileSize
	pool := jobs.NewAllocator(tilesX * tilesY)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tile := pool.FindEmptyAtomic()
				if tile == jobs.NoJob {
					return
				}
				tx := int(tile) % tilesX
				ty := int(tile) / tilesX
				renderTile(rb, frame, vb, tx*TileSize, ty*TileSize)
			}
		}()
	}
	wg.Wait()
}

func renderTile(rb *core.RenderBuffers, frame *core.FrameData, vb *VisibilityBuffer, x0, y0 int) {
	for y := y0; y < y0+TileSize && y < vb.Height; y++ {
		for x := x0; x < x0+TileSize && x < vb.Width; x++ {
			ray := frame.PixelRay(x, y)
			id, depth := CastVisibilityRay(rb, &ray)
			idx := y*vb.Width + x
			vb.IDs[idx] = id
			vb.Depth[idx] = depth
		}
	}
}

// CastVisibilityRay traces one world-space ray against the whole scene
// and returns the packed visibility id of the nearest hit, or the
// background sentinel with maximum depth. Ties resolve to the first hit
// in traversal order, deterministic for a fixed buffer layout.
func CastVisibilityRay(rb *core.RenderBuffers, ray *core.Ray) (uint32, float32) {
	bestID := codec.VisibilityNone
	bestT := ray.TMax

	bvh.TraverseRay(rb.TLAS, ray.Origin, ray.Direction, ray.TMin, bestT, RayStepBudget, func(meshRef int32) bool {
		mesh := &rb.Meshes[meshRef]
		world := mesh.Transform()
		inv := world.Inv()
		local := ray.Transformed(inv)

		nodes := rb.MeshNodes(mesh)
		bvh.TraverseRay(nodes, local.Origin, local.Direction, 0, 1e30, RayStepBudget, func(meshletRef int32) bool {
			global := mesh.MeshletsOffset + uint32(meshletRef)
			meshlet := &rb.Meshlets[global]

			primitives := meshlet.IndicesCount / 3
			for prim := uint32(0); prim < primitives; prim++ {
				i0, i1, i2 := rb.TriangleVertexIndices(global, prim)
				v0 := rb.VertexLocalPosition(i0)
				v1 := rb.VertexLocalPosition(i1)
				v2 := rb.VertexLocalPosition(i2)

				tLocal, _, _, hit := bvh.IntersectTriangle(local.Origin, local.Direction, v0, v1, v2)
				if !hit {
					continue
				}

				// Compare hit distances in world space so instances
				// with different scales stay ordered correctly.
				worldHit := world.Mul4x1(local.At(tLocal).Vec4(1)).Vec3()
				t := worldHit.Sub(ray.Origin).Dot(ray.Direction)
				if t > ray.TMin && t < bestT {
					bestT = t
					bestID = codec.PackVisibility(global, prim)
				}
			}
			return true
		})
		return true
	})

	if bestID == codec.VisibilityNone {
		return codec.VisibilityNone, math.MaxFloat32
	}
	return bestID, bestT
}
