// Package core holds the data model shared by every pass of the pipeline:
// meshes, meshlets, quantized vertex attributes, materials, textures,
// lights and the per-frame camera block. All GPU-visible records carry a
// fixed little-endian binary layout; the ToBytes methods are the contract
// with the shaders and with the offline producer.
package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/codec"
)

// InvalidIndex marks an absent reference in any of the packed records.
const InvalidIndex int32 = -1

// MaxTextureCoordSets is the number of UV channels a vertex can address.
const MaxTextureCoordSets = 4

// Mesh is one mesh instance. All offsets are bases into the shared global
// buffers; the meshlet range and the BVH node range of a mesh are disjoint
// contiguous blocks in those buffers.
type Mesh struct {
	VertexOffset   uint32
	IndicesOffset  uint32
	MaterialIndex  int32
	BVHIndex       uint32
	Position       mgl32.Vec3
	MeshletsOffset uint32
	Scale          mgl32.Vec3
	MeshletsCount  uint32
	Orientation    mgl32.Quat

	// Local-space bounding box the quantized positions decode against.
	// Not serialized: on the GPU side the same box is read from the root
	// node of the mesh's BVH range, which must be kept identical.
	AABBMin mgl32.Vec3
	AABBMax mgl32.Vec3
}

// Transform returns the local-to-world matrix of the instance.
func (m *Mesh) Transform() mgl32.Mat4 {
	return TransformMatrix(m.Position, m.Orientation, m.Scale)
}

// DecodePosition expands a packed 10:10:10 local position against the mesh
// bounding box and applies no transform; the result is mesh-local.
func (m *Mesh) DecodePosition(packed uint32) mgl32.Vec3 {
	x, y, z := codec.UnpackNormalizedVec3(packed)
	size := m.AABBMax.Sub(m.AABBMin)
	return mgl32.Vec3{
		m.AABBMin.X() + x*size.X(),
		m.AABBMin.Y() + y*size.Y(),
		m.AABBMin.Z() + z*size.Z(),
	}
}

const MeshByteSize = 64

func (m *Mesh) ToBytes() []byte {
	buf := make([]byte, MeshByteSize)
	binary.LittleEndian.PutUint32(buf[0:], m.VertexOffset)
	binary.LittleEndian.PutUint32(buf[4:], m.IndicesOffset)
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.MaterialIndex))
	binary.LittleEndian.PutUint32(buf[12:], m.BVHIndex)
	putVec3(buf[16:], m.Position)
	binary.LittleEndian.PutUint32(buf[28:], m.MeshletsOffset)
	putVec3(buf[32:], m.Scale)
	binary.LittleEndian.PutUint32(buf[44:], m.MeshletsCount)
	binary.LittleEndian.PutUint32(buf[48:], math.Float32bits(m.Orientation.V.X()))
	binary.LittleEndian.PutUint32(buf[52:], math.Float32bits(m.Orientation.V.Y()))
	binary.LittleEndian.PutUint32(buf[56:], math.Float32bits(m.Orientation.V.Z()))
	binary.LittleEndian.PutUint32(buf[60:], math.Float32bits(m.Orientation.W))
	return buf
}

// Meshlet is a small triangle cluster of one mesh. IndicesOffset and
// IndicesCount are relative to the owning mesh's index range; BVHIndex is
// the meshlet's leaf bound, relative to the owning mesh's BVH node range.
type Meshlet struct {
	MeshIndex     uint32
	IndicesOffset uint32
	IndicesCount  uint32
	BVHIndex      uint32
}

const MeshletByteSize = 16

func (m *Meshlet) ToBytes() []byte {
	buf := make([]byte, MeshletByteSize)
	binary.LittleEndian.PutUint32(buf[0:], m.MeshIndex)
	binary.LittleEndian.PutUint32(buf[4:], m.IndicesOffset)
	binary.LittleEndian.PutUint32(buf[8:], m.IndicesCount)
	binary.LittleEndian.PutUint32(buf[12:], m.BVHIndex)
	return buf
}

// ConeCulling is the visibility cone of one meshlet: apex center in mesh
// local space and a snorm8-quantized (axis, cutoff) word.
type ConeCulling struct {
	Center         mgl32.Vec3
	ConeAxisCutoff [4]int8
}

// NewConeCulling quantizes a unit axis and a cutoff into the packed form.
func NewConeCulling(center, axis mgl32.Vec3, cutoff float32) ConeCulling {
	return ConeCulling{
		Center: center,
		ConeAxisCutoff: [4]int8{
			int8(codec.QuantizeSnorm(axis.X(), 8)),
			int8(codec.QuantizeSnorm(axis.Y(), 8)),
			int8(codec.QuantizeSnorm(axis.Z(), 8)),
			int8(codec.QuantizeSnorm(cutoff, 8)),
		},
	}
}

// Axis decodes the quantized cone axis.
func (c *ConeCulling) Axis() mgl32.Vec3 {
	return mgl32.Vec3{
		codec.DecodeSnorm(uint32(uint8(c.ConeAxisCutoff[0])), 8),
		codec.DecodeSnorm(uint32(uint8(c.ConeAxisCutoff[1])), 8),
		codec.DecodeSnorm(uint32(uint8(c.ConeAxisCutoff[2])), 8),
	}
}

// Cutoff decodes the quantized cone cutoff.
func (c *ConeCulling) Cutoff() float32 {
	return codec.DecodeSnorm(uint32(uint8(c.ConeAxisCutoff[3])), 8)
}

const ConeCullingByteSize = 16

func (c *ConeCulling) ToBytes() []byte {
	buf := make([]byte, ConeCullingByteSize)
	putVec3(buf[0:], c.Center)
	buf[12] = byte(c.ConeAxisCutoff[0])
	buf[13] = byte(c.ConeAxisCutoff[1])
	buf[14] = byte(c.ConeAxisCutoff[2])
	buf[15] = byte(c.ConeAxisCutoff[3])
	return buf
}

// Vertex references deduplicated attribute values through per-attribute
// offsets instead of storing them inline. Offsets are into the global
// attribute buffers; InvalidIndex marks an absent attribute.
type Vertex struct {
	PositionAndColorOffset uint32
	NormalOffset           int32
	TangentOffset          int32
	MeshIndex              uint32
	UVOffset               [MaxTextureCoordSets]int32
}

const VertexByteSize = 32

func (v *Vertex) ToBytes() []byte {
	buf := make([]byte, VertexByteSize)
	binary.LittleEndian.PutUint32(buf[0:], v.PositionAndColorOffset)
	binary.LittleEndian.PutUint32(buf[4:], uint32(v.NormalOffset))
	binary.LittleEndian.PutUint32(buf[8:], uint32(v.TangentOffset))
	binary.LittleEndian.PutUint32(buf[12:], v.MeshIndex)
	for i, o := range v.UVOffset {
		binary.LittleEndian.PutUint32(buf[16+i*4:], uint32(o))
	}
	return buf
}

// DrawIndexedCommand is one indirect draw-argument record. The culling
// pass zeroes it in place to skip a meshlet; the array length never
// changes across frames.
type DrawIndexedCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	BaseIndex     uint32
	VertexOffset  int32
	BaseInstance  uint32
}

const DrawIndexedCommandByteSize = 20

func (d *DrawIndexedCommand) ToBytes() []byte {
	buf := make([]byte, DrawIndexedCommandByteSize)
	binary.LittleEndian.PutUint32(buf[0:], d.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:], d.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], d.BaseIndex)
	binary.LittleEndian.PutUint32(buf[12:], uint32(d.VertexOffset))
	binary.LittleEndian.PutUint32(buf[16:], d.BaseInstance)
	return buf
}

func putVec3(buf []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v.Z()))
}

func putVec4(buf []byte, v mgl32.Vec4) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v.Z()))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(v.W()))
}
