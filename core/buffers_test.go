package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/krios3d/krios/codec"
)

// twoMeshletQuads builds a mesh with two unit quads, each its own meshlet,
// side by side along x in a [-1,1] box.
func twoMeshletQuads() *MeshData {
	// 8 vertices, quad 0 on the left half, quad 1 on the right half.
	type pv struct{ x, y float32 }
	pts := []pv{
		{0, 0}, {0.5, 0}, {0.5, 1}, {0, 1},
		{0.5, 0}, {1, 0}, {1, 1}, {0.5, 1},
	}
	positions := make([]uint32, len(pts))
	normals := make([]uint32, len(pts))
	vertices := make([]Vertex, len(pts))
	for i, p := range pts {
		positions[i] = codec.PackNormalizedVec3(p.x, p.y, 0.5)
		normals[i] = codec.PackNormalizedVec3(0.5, 0.5, 1)
		vertices[i] = Vertex{
			PositionAndColorOffset: uint32(i),
			NormalOffset:           int32(i),
			TangentOffset:          InvalidIndex,
			UVOffset:               [MaxTextureCoordSets]int32{-1, -1, -1, -1},
		}
	}
	return &MeshData{
		AABBMin:   mgl32.Vec3{-1, -1, 0},
		AABBMax:   mgl32.Vec3{1, 1, 0},
		Vertices:  vertices,
		Indices:   []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7},
		Positions: positions,
		Normals:   normals,
		Meshlets: []MeshletData{
			{
				IndicesOffset: 0, IndicesCount: 6,
				AABBMin:    mgl32.Vec3{-1, -1, 0},
				AABBMax:    mgl32.Vec3{0, 1, 0},
				ConeAxis:   mgl32.Vec3{0, 0, 1},
				ConeCutoff: 0,
			},
			{
				IndicesOffset: 6, IndicesCount: 6,
				AABBMin:    mgl32.Vec3{0, -1, 0},
				AABBMax:    mgl32.Vec3{1, 1, 0},
				ConeAxis:   mgl32.Vec3{0, 0, 1},
				ConeCutoff: 0,
			},
		},
	}
}

func TestAddMeshRebasesOffsets(t *testing.T) {
	rb := NewRenderBuffers()
	first := rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	second := rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	if first != 0 || second != 1 {
		t.Fatalf("mesh indices %d, %d; want 0, 1", first, second)
	}
	m0, m1 := &rb.Meshes[0], &rb.Meshes[1]
	if m1.VertexOffset != 8 || m1.IndicesOffset != 12 || m1.MeshletsOffset != 2 {
		t.Errorf("second mesh bases = %d/%d/%d, want 8/12/2",
			m1.VertexOffset, m1.IndicesOffset, m1.MeshletsOffset)
	}
	if m1.BVHIndex <= m0.BVHIndex {
		t.Errorf("second mesh BVH range must start after the first")
	}

	for i, v := range rb.Vertices {
		wantMesh := uint32(0)
		if i >= 8 {
			wantMesh = 1
		}
		if v.MeshIndex != wantMesh {
			t.Fatalf("vertex %d owned by mesh %d, want %d", i, v.MeshIndex, wantMesh)
		}
	}
	// Attribute offsets of the second mesh point past the first mesh's data.
	if got := rb.Vertices[8].PositionAndColorOffset; got != 8 {
		t.Errorf("second mesh position offset %d, want 8", got)
	}
	if got := rb.Vertices[8].NormalOffset; got != 8 {
		t.Errorf("second mesh normal offset %d, want 8", got)
	}
}

func TestCommandsOnePerMeshlet(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	if len(rb.Commands) != 4 {
		t.Fatalf("%d commands, want one per meshlet (4)", len(rb.Commands))
	}
	for i, cmd := range rb.Commands {
		meshlet := &rb.Meshlets[i]
		mesh := &rb.Meshes[meshlet.MeshIndex]
		if cmd.BaseInstance != uint32(i) {
			t.Errorf("command %d BaseInstance %d, want the global meshlet index", i, cmd.BaseInstance)
		}
		if cmd.VertexCount != meshlet.IndicesCount {
			t.Errorf("command %d VertexCount %d, want %d", i, cmd.VertexCount, meshlet.IndicesCount)
		}
		if cmd.BaseIndex != mesh.IndicesOffset+meshlet.IndicesOffset {
			t.Errorf("command %d BaseIndex %d, want rebased %d",
				i, cmd.BaseIndex, mesh.IndicesOffset+meshlet.IndicesOffset)
		}
		if cmd.InstanceCount != 1 {
			t.Errorf("command %d InstanceCount %d, want 1", i, cmd.InstanceCount)
		}
	}
}

func TestRemoveMeshCompacts(t *testing.T) {
	rb := NewRenderBuffers()
	firstID := uuid.New()
	rb.AddMesh(firstID, twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	rb.RemoveMesh(firstID)

	if len(rb.Meshes) != 1 {
		t.Fatalf("%d meshes after removal, want 1", len(rb.Meshes))
	}
	m := &rb.Meshes[0]
	if m.VertexOffset != 0 || m.IndicesOffset != 0 || m.MeshletsOffset != 0 || m.BVHIndex != 0 {
		t.Errorf("surviving mesh not rebased to zero: %+v", m)
	}
	if m.Position != (mgl32.Vec3{5, 0, 0}) {
		t.Errorf("wrong mesh survived: position %v", m.Position)
	}
	if len(rb.Vertices) != 8 || len(rb.Indices) != 12 || len(rb.Meshlets) != 2 {
		t.Errorf("buffers not compacted: %d vertices, %d indices, %d meshlets",
			len(rb.Vertices), len(rb.Indices), len(rb.Meshlets))
	}
	if len(rb.Commands) != 2 {
		t.Errorf("%d commands after removal, want 2", len(rb.Commands))
	}

	// Removing an unknown id is a no-op.
	rb.RemoveMesh(uuid.New())
	if len(rb.Meshes) != 1 {
		t.Errorf("no-op removal changed the mesh count")
	}
}

func TestCullingResultSizingAndReset(t *testing.T) {
	rb := NewRenderBuffers()
	// 17 meshes x 2 meshlets = 34 meshlets, needing two words.
	for i := 0; i < 17; i++ {
		rb.AddMesh(uuid.New(), twoMeshletQuads(),
			mgl32.Vec3{float32(i) * 3, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	}
	if len(rb.CullingResult) != 2 {
		t.Fatalf("%d culling words for 34 meshlets, want 2", len(rb.CullingResult))
	}
	rb.CullingResult[0] = 0
	rb.CullingResult[1] = 0
	rb.ResetCullingResult()
	for i, w := range rb.CullingResult {
		if w != 0xFFFFFFFF {
			t.Errorf("word %d = %08x after reset, want all ones", i, w)
		}
	}
}

func TestMeshNodesRangesDisjoint(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	n0 := rb.MeshNodes(&rb.Meshes[0])
	n1 := rb.MeshNodes(&rb.Meshes[1])
	if len(n0)+len(n1) != len(rb.Nodes) {
		t.Errorf("node ranges do not cover the arena: %d + %d != %d",
			len(n0), len(n1), len(rb.Nodes))
	}
	// The root of each range carries the mesh decode box.
	if n0[0].Min != (mgl32.Vec3{-1, -1, 0}) || n0[0].Max != (mgl32.Vec3{1, 1, 0}) {
		t.Errorf("mesh 0 root box %v..%v, want the mesh AABB", n0[0].Min, n0[0].Max)
	}
}

func TestMeshletBVHIndexPointsAtLeaf(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	for i := range rb.Meshlets {
		meshlet := &rb.Meshlets[i]
		mesh := &rb.Meshes[meshlet.MeshIndex]
		node := rb.MeshNodes(mesh)[meshlet.BVHIndex]
		local := int32(i) - int32(mesh.MeshletsOffset)
		if node.Reference != local {
			t.Errorf("meshlet %d BVHIndex leads to reference %d, want %d",
				i, node.Reference, local)
		}
	}
}

func TestTriangleVertexIndices(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	// Second triangle of the second meshlet of the second mesh:
	// local indices 4, 6, 7 rebased by the 8-vertex first mesh.
	a, b, c := rb.TriangleVertexIndices(3, 1)
	if a != 12 || b != 14 || c != 15 {
		t.Errorf("got (%d,%d,%d), want (12,14,15)", a, b, c)
	}
}

func TestVertexAttributeDefaults(t *testing.T) {
	data := twoMeshletQuads()
	data.Normals = nil
	for i := range data.Vertices {
		data.Vertices[i].NormalOffset = InvalidIndex
	}
	// No colors either: registration fills opaque white.
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), data, mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	if got := rb.VertexNormal(0); got != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("default normal %v, want +Z", got)
	}
	if got := rb.VertexColor(0); got != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Errorf("default color %v, want opaque white", got)
	}
	if got := rb.VertexUV(0, 0); got != (mgl32.Vec2{}) {
		t.Errorf("absent UV decodes to %v, want zero", got)
	}
	if got := rb.VertexUV(0, MaxTextureCoordSets); got != (mgl32.Vec2{}) {
		t.Errorf("out-of-range UV set decodes to %v, want zero", got)
	}
}

func TestVertexLocalPositionDecode(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddMesh(uuid.New(), twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	// Vertex 0 packs normalized (0, 0, 0.5) against the box [-1,1]x[-1,1]x{0}.
	p := rb.VertexLocalPosition(0)
	if p.X() != -1 || p.Y() != -1 || p.Z() != 0 {
		t.Errorf("decoded %v, want (-1,-1,0)", p)
	}
	// Vertex 5 packs normalized (1, 0, 0.5).
	p = rb.VertexLocalPosition(5)
	if p.X() != 1 || p.Y() != -1 || p.Z() != 0 {
		t.Errorf("decoded %v, want (1,-1,0)", p)
	}
}

func TestSetTransformRefitsTLAS(t *testing.T) {
	rb := NewRenderBuffers()
	id := uuid.New()
	rb.AddMesh(id, twoMeshletQuads(),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	rb.SetTransform(id, mgl32.Vec3{100, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	root := rb.TLAS[0]
	if root.Min.X() < 98 || root.Max.X() > 102 {
		t.Errorf("TLAS root %v..%v does not follow the moved mesh", root.Min, root.Max)
	}
}

func TestLightSentinelContract(t *testing.T) {
	rb := NewRenderBuffers()
	rb.AddLight(uuid.New(), Light{Type: LightDirectional, Intensity: 1})
	rb.AddLight(uuid.New(), Light{Type: LightPoint, Intensity: 2})

	active := rb.ActiveLights()
	if len(active) != 2 {
		t.Fatalf("%d active lights, want 2", len(active))
	}

	packed := rb.LightsWithSentinel()
	if len(packed) != 3 {
		t.Fatalf("%d packed lights, want 2 + sentinel", len(packed))
	}
	if packed[2].Type != LightNone {
		t.Errorf("packed list not sentinel-terminated")
	}

	// A stored sentinel cuts the active list short.
	rb.AddLight(uuid.New(), Light{Type: LightNone})
	rb.AddLight(uuid.New(), Light{Type: LightSpot})
	if got := len(rb.ActiveLights()); got != 2 {
		t.Errorf("%d active lights after sentinel, want 2", got)
	}
}

func TestAddMaterialUpdatesInPlace(t *testing.T) {
	rb := NewRenderBuffers()
	id := uuid.New()
	m := NewMaterial()
	idx := rb.AddMaterial(id, m)

	m.BaseColor = mgl32.Vec4{1, 0, 0, 1}
	again := rb.AddMaterial(id, m)
	if again != idx {
		t.Fatalf("re-adding the same id allocated a new slot %d", again)
	}
	if rb.Materials[idx].BaseColor != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Errorf("material not updated in place")
	}
	if len(rb.Materials) != 1 {
		t.Errorf("%d materials, want 1", len(rb.Materials))
	}
}
