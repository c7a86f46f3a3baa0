package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/krios3d/krios/bvh"
	"github.com/krios3d/krios/codec"
)

// MeshletData is the offline producer's description of one meshlet:
// an index sub-range of the owning mesh, a local-space bound and the
// aggregate visibility cone.
type MeshletData struct {
	IndicesOffset uint32 // relative to the mesh's index range
	IndicesCount  uint32
	AABBMin       mgl32.Vec3
	AABBMax       mgl32.Vec3
	ConeCenter    mgl32.Vec3
	ConeAxis      mgl32.Vec3
	ConeCutoff    float32
}

// MeshData is the offline producer's serialized mesh: quantized attribute
// arrays, deduplicating vertices, a mesh-local index list and the meshlet
// decomposition. All offsets inside are mesh-local; registration rebases
// them into the shared global buffers.
type MeshData struct {
	AABBMin       mgl32.Vec3
	AABBMax       mgl32.Vec3
	Vertices      []Vertex
	Indices       []uint32 // local vertex indices
	Positions     []uint32 // packed 10:10:10 unorm against the AABB
	Colors        []uint32 // packed 4x8 unorm, parallel to Positions
	Normals       []uint32 // packed 10:10:10 unorm of (n+1)/2
	UVs           []uint32 // packed half pairs
	Meshlets      []MeshletData
	MaterialIndex int32
}

type meshSource struct {
	id          uuid.UUID
	data        *MeshData
	position    mgl32.Vec3
	orientation mgl32.Quat
	scale       mgl32.Vec3
}

// RenderBuffers owns every flattened global array the passes consume.
// Each registered mesh holds contiguous, disjoint sub-ranges of the
// vertex, index, meshlet and BVH arrays; the Mesh records carry the base
// offsets that mesh-relative indices are rebased with.
type RenderBuffers struct {
	Meshes   []Mesh
	Meshlets []Meshlet
	Cones    []ConeCulling
	Nodes    []bvh.Node // all per-mesh trees, one contiguous range each
	TLAS     []bvh.Node // top-level tree over mesh world bounds

	Vertices  []Vertex
	Indices   []uint32
	Positions []uint32
	Colors    []uint32
	Normals   []uint32
	UVs       []uint32

	Materials []Material
	Textures  []TextureData
	Lights    []Light

	// Commands is rewritten in place by the culling pass each frame; its
	// length is fixed between registrations. CullingResult carries one
	// visibility bit per meshlet, 32 meshlets per word.
	Commands      []DrawIndexedCommand
	CullingResult []uint32

	sources   []*meshSource
	meshIndex map[uuid.UUID]int
	materials map[uuid.UUID]int
	lights    map[uuid.UUID]int
}

func NewRenderBuffers() *RenderBuffers {
	return &RenderBuffers{
		meshIndex: make(map[uuid.UUID]int),
		materials: make(map[uuid.UUID]int),
		lights:    make(map[uuid.UUID]int),
	}
}

// AddMesh registers a mesh instance and returns its index into the global
// mesh array. The meshlet, BVH and attribute sub-ranges are allocated
// here and stay valid until the mesh is removed.
func (rb *RenderBuffers) AddMesh(id uuid.UUID, data *MeshData, position mgl32.Vec3, orientation mgl32.Quat, scale mgl32.Vec3) uint32 {
	if _, ok := rb.meshIndex[id]; ok {
		rb.RemoveMesh(id)
	}
	src := &meshSource{
		id:          id,
		data:        data,
		position:    position,
		orientation: orientation,
		scale:       scale,
	}
	rb.sources = append(rb.sources, src)
	index := rb.appendMesh(src)
	rb.meshIndex[id] = int(index)
	rb.rebuildDerived()
	return index
}

// RemoveMesh unregisters a mesh and compacts the global buffers. Indices
// of the remaining meshes shift; callers must not hold on to them.
func (rb *RenderBuffers) RemoveMesh(id uuid.UUID) {
	idx, ok := rb.meshIndex[id]
	if !ok {
		return
	}
	rb.sources = append(rb.sources[:idx], rb.sources[idx+1:]...)
	rb.rebuildAll()
}

// SetTransform updates an instance's world placement and refits the TLAS.
func (rb *RenderBuffers) SetTransform(id uuid.UUID, position mgl32.Vec3, orientation mgl32.Quat, scale mgl32.Vec3) {
	idx, ok := rb.meshIndex[id]
	if !ok {
		return
	}
	src := rb.sources[idx]
	src.position = position
	src.orientation = orientation
	src.scale = scale

	m := &rb.Meshes[idx]
	m.Position = position
	m.Orientation = orientation
	m.Scale = scale
	rb.rebuildTLAS()
}

// appendMesh allocates this mesh's ranges at the current ends of the
// global arrays and writes the rebased records.
func (rb *RenderBuffers) appendMesh(src *meshSource) uint32 {
	data := src.data
	meshIndex := uint32(len(rb.Meshes))

	vertexBase := uint32(len(rb.Vertices))
	indexBase := uint32(len(rb.Indices))
	posBase := int32(len(rb.Positions))
	normalBase := int32(len(rb.Normals))
	uvBase := int32(len(rb.UVs))
	meshletBase := uint32(len(rb.Meshlets))
	nodeBase := uint32(len(rb.Nodes))

	rb.Positions = append(rb.Positions, data.Positions...)
	if len(data.Colors) == len(data.Positions) {
		rb.Colors = append(rb.Colors, data.Colors...)
	} else {
		// Colors share the position offset; keep the arrays parallel.
		for range data.Positions {
			rb.Colors = append(rb.Colors, 0xFFFFFFFF)
		}
	}
	rb.Normals = append(rb.Normals, data.Normals...)
	rb.UVs = append(rb.UVs, data.UVs...)

	for _, v := range data.Vertices {
		v.PositionAndColorOffset += uint32(posBase)
		if v.NormalOffset != InvalidIndex {
			v.NormalOffset += normalBase
		}
		// Tangent data is not carried by MeshData yet.
		v.TangentOffset = InvalidIndex
		for i := range v.UVOffset {
			if v.UVOffset[i] != InvalidIndex {
				v.UVOffset[i] += uvBase
			}
		}
		v.MeshIndex = meshIndex
		rb.Vertices = append(rb.Vertices, v)
	}
	rb.Indices = append(rb.Indices, data.Indices...)

	items := make([]bvh.AABBItem, len(data.Meshlets))
	for i, md := range data.Meshlets {
		rb.Meshlets = append(rb.Meshlets, Meshlet{
			MeshIndex:     meshIndex,
			IndicesOffset: md.IndicesOffset,
			IndicesCount:  md.IndicesCount,
		})
		rb.Cones = append(rb.Cones, NewConeCulling(md.ConeCenter, md.ConeAxis.Normalize(), md.ConeCutoff))
		items[i] = bvh.NewAABBItem(md.AABBMin, md.AABBMax, int32(i))
	}

	nodes := bvh.Build(items)
	// The root box doubles as the decode box for quantized positions.
	nodes[0].Min = data.AABBMin
	nodes[0].Max = data.AABBMax
	// Point each meshlet at its leaf bound, mesh-relative.
	for pos := range nodes {
		if ref := nodes[pos].Reference; ref >= 0 {
			rb.Meshlets[meshletBase+uint32(ref)].BVHIndex = uint32(pos)
		}
	}
	rb.Nodes = append(rb.Nodes, nodes...)

	rb.Meshes = append(rb.Meshes, Mesh{
		VertexOffset:   vertexBase,
		IndicesOffset:  indexBase,
		MaterialIndex:  data.MaterialIndex,
		BVHIndex:       nodeBase,
		Position:       src.position,
		MeshletsOffset: meshletBase,
		Scale:          src.scale,
		MeshletsCount:  uint32(len(data.Meshlets)),
		Orientation:    src.orientation,
		AABBMin:        data.AABBMin,
		AABBMax:        data.AABBMax,
	})
	return meshIndex
}

// rebuildAll recreates every mesh-derived global array from the sources.
func (rb *RenderBuffers) rebuildAll() {
	rb.Meshes = rb.Meshes[:0]
	rb.Meshlets = rb.Meshlets[:0]
	rb.Cones = rb.Cones[:0]
	rb.Nodes = rb.Nodes[:0]
	rb.Vertices = rb.Vertices[:0]
	rb.Indices = rb.Indices[:0]
	rb.Positions = rb.Positions[:0]
	rb.Colors = rb.Colors[:0]
	rb.Normals = rb.Normals[:0]
	rb.UVs = rb.UVs[:0]

	rb.meshIndex = make(map[uuid.UUID]int)
	for _, src := range rb.sources {
		rb.meshIndex[src.id] = int(rb.appendMesh(src))
	}
	rb.rebuildDerived()
}

// rebuildDerived refreshes everything that depends on the meshlet count:
// the per-meshlet indirect draw list, the culling result words and the
// top-level BVH.
func (rb *RenderBuffers) rebuildDerived() {
	rb.Commands = rb.Commands[:0]
	for i := range rb.Meshlets {
		meshlet := &rb.Meshlets[i]
		mesh := &rb.Meshes[meshlet.MeshIndex]
		rb.Commands = append(rb.Commands, DrawIndexedCommand{
			VertexCount:   meshlet.IndicesCount,
			InstanceCount: 1,
			BaseIndex:     mesh.IndicesOffset + meshlet.IndicesOffset,
			VertexOffset:  int32(mesh.VertexOffset),
			BaseInstance:  uint32(i),
		})
	}

	words := (len(rb.Meshlets) + 31) / 32
	rb.CullingResult = make([]uint32, words)
	rb.ResetCullingResult()

	rb.rebuildTLAS()
}

// ResetCullingResult marks every meshlet visible, the caller-side reset
// the culling dispatch expects.
func (rb *RenderBuffers) ResetCullingResult() {
	for i := range rb.CullingResult {
		rb.CullingResult[i] = 0xFFFFFFFF
	}
}

// rebuildTLAS rebuilds the top-level tree over the meshes' world bounds.
func (rb *RenderBuffers) rebuildTLAS() {
	if len(rb.Meshes) == 0 {
		rb.TLAS = []bvh.Node{{Miss: bvh.InvalidNode, Reference: bvh.InvalidNode}}
		return
	}
	items := make([]bvh.AABBItem, len(rb.Meshes))
	for i := range rb.Meshes {
		m := &rb.Meshes[i]
		wMin, wMax := TransformAABB(m.Transform(), m.AABBMin, m.AABBMax)
		items[i] = bvh.NewAABBItem(wMin, wMax, int32(i))
	}
	rb.TLAS = bvh.Build(items)
}

// MeshNodes returns the node sub-range of one mesh's BVH.
func (rb *RenderBuffers) MeshNodes(m *Mesh) []bvh.Node {
	start := m.BVHIndex
	end := uint32(len(rb.Nodes))
	// A mesh's range ends where the next mesh's begins.
	for i := range rb.Meshes {
		b := rb.Meshes[i].BVHIndex
		if b > start && b < end {
			end = b
		}
	}
	return rb.Nodes[start:end]
}

// TriangleVertexIndices resolves (global meshlet, primitive) to the three
// global vertex indices, applying the mesh base offsets.
func (rb *RenderBuffers) TriangleVertexIndices(meshletIndex uint32, primitive uint32) (uint32, uint32, uint32) {
	meshlet := &rb.Meshlets[meshletIndex]
	mesh := &rb.Meshes[meshlet.MeshIndex]
	base := mesh.IndicesOffset + meshlet.IndicesOffset + primitive*3
	return mesh.VertexOffset + rb.Indices[base],
		mesh.VertexOffset + rb.Indices[base+1],
		mesh.VertexOffset + rb.Indices[base+2]
}

// VertexLocalPosition decodes a vertex's quantized position into the
// owning mesh's local space.
func (rb *RenderBuffers) VertexLocalPosition(vertexIndex uint32) mgl32.Vec3 {
	v := &rb.Vertices[vertexIndex]
	mesh := &rb.Meshes[v.MeshIndex]
	return mesh.DecodePosition(rb.Positions[v.PositionAndColorOffset])
}

// VertexColor decodes a vertex color, defaulting to opaque white.
func (rb *RenderBuffers) VertexColor(vertexIndex uint32) mgl32.Vec4 {
	v := &rb.Vertices[vertexIndex]
	r, g, b, a := codec.UnpackUnormTo4F32(rb.Colors[v.PositionAndColorOffset])
	return mgl32.Vec4{r, g, b, a}
}

// VertexNormal decodes a vertex normal back into [-1,1] space, or the +Z
// default when absent.
func (rb *RenderBuffers) VertexNormal(vertexIndex uint32) mgl32.Vec3 {
	v := &rb.Vertices[vertexIndex]
	if v.NormalOffset == InvalidIndex {
		return mgl32.Vec3{0, 0, 1}
	}
	x, y, z := codec.UnpackNormalizedVec3(rb.Normals[v.NormalOffset])
	return mgl32.Vec3{x*2 - 1, y*2 - 1, z*2 - 1}
}

// VertexUV decodes one UV set, or zero when the set is absent.
func (rb *RenderBuffers) VertexUV(vertexIndex uint32, set uint32) mgl32.Vec2 {
	v := &rb.Vertices[vertexIndex]
	if set >= MaxTextureCoordSets || v.UVOffset[set] == InvalidIndex {
		return mgl32.Vec2{}
	}
	u, vv := codec.UnpackUV(rb.UVs[v.UVOffset[set]])
	return mgl32.Vec2{u, vv}
}

// AddMaterial registers a material and returns its index.
func (rb *RenderBuffers) AddMaterial(id uuid.UUID, m Material) int32 {
	if idx, ok := rb.materials[id]; ok {
		rb.Materials[idx] = m
		return int32(idx)
	}
	idx := len(rb.Materials)
	rb.Materials = append(rb.Materials, m)
	rb.materials[id] = idx
	return int32(idx)
}

// AddLight appends a light before the terminating sentinel.
func (rb *RenderBuffers) AddLight(id uuid.UUID, l Light) int32 {
	if idx, ok := rb.lights[id]; ok {
		rb.Lights[idx] = l
		return int32(idx)
	}
	idx := len(rb.Lights)
	rb.Lights = append(rb.Lights, l)
	rb.lights[id] = idx
	return int32(idx)
}

// ActiveLights returns the light list terminated by the first sentinel,
// the iteration contract of the shading loop. The returned slice always
// ends before any LightNone entry.
func (rb *RenderBuffers) ActiveLights() []Light {
	for i := range rb.Lights {
		if rb.Lights[i].Type == LightNone {
			return rb.Lights[:i]
		}
	}
	return rb.Lights
}

// LightsWithSentinel returns the packed light array to upload: the active
// lights plus one trailing sentinel entry.
func (rb *RenderBuffers) LightsWithSentinel() []Light {
	out := make([]Light, 0, len(rb.Lights)+1)
	out = append(out, rb.ActiveLights()...)
	out = append(out, Light{Type: LightNone})
	return out
}
