// Package bvh implements the flattened bounding-volume hierarchy shared by
// the culling and ray passes: a pre-order node array where each node
// carries a "miss" index that skips its subtree, so traversal needs no
// stack. All indices inside a node are relative to the owning mesh's node
// and meshlet ranges; lookups take the base offsets explicitly.
package bvh

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InvalidNode terminates a miss chain.
const InvalidNode int32 = -1

// Node is one flattened BVH node, 32 bytes on the wire.
// Reference is -1 for an inner node; >= 0 is the leaf's item index
// (mesh-relative for a per-mesh tree, mesh index for the top-level tree).
type Node struct {
	Min       mgl32.Vec3
	Miss      int32
	Max       mgl32.Vec3
	Reference int32
}

// IsLeaf reports whether the node references an item.
func (n *Node) IsLeaf() bool {
	return n.Reference >= 0
}

const NodeByteSize = 32

func (n *Node) ToBytes() []byte {
	buf := make([]byte, NodeByteSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(n.Miss))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:], uint32(n.Reference))
	return buf
}

// NodesToBytes serializes a node range in array order.
func NodesToBytes(nodes []Node) []byte {
	out := make([]byte, 0, len(nodes)*NodeByteSize)
	for i := range nodes {
		out = append(out, nodes[i].ToBytes()...)
	}
	return out
}
