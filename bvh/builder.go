package bvh

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// AABBItem is one leaf candidate: a bounding box plus the index of the
// item it bounds (meshlet index for a per-mesh tree, mesh index for the
// top-level tree).
type AABBItem struct {
	Min      mgl32.Vec3
	Max      mgl32.Vec3
	Centroid mgl32.Vec3
	Index    int32
}

// NewAABBItem fills in the centroid.
func NewAABBItem(minB, maxB mgl32.Vec3, index int32) AABBItem {
	return AABBItem{
		Min:      minB,
		Max:      maxB,
		Centroid: minB.Add(maxB).Mul(0.5),
		Index:    index,
	}
}

// buildNode is the temporary pointer form used only while building;
// Build flattens it into the stackless array layout before returning.
type buildNode struct {
	min, max    mgl32.Vec3
	left, right *buildNode
	reference   int32
}

// Build constructs a BVH over the items by recursive median split on the
// longest axis and returns it flattened in pre-order with miss links set.
// The root box of the result is the union of all item boxes. An empty
// item list yields a single degenerate leaf-free node.
func Build(items []AABBItem) []Node {
	if len(items) == 0 {
		return []Node{{Miss: InvalidNode, Reference: InvalidNode}}
	}

	scratch := make([]AABBItem, len(items))
	copy(scratch, items)
	root := buildRecursive(scratch)

	nodes := make([]Node, 0, 2*len(items))
	nodes = flatten(root, nodes)

	// Miss links: pre-order layout means a node's subtree occupies a
	// contiguous run; the miss target is the first node after that run.
	linkMisses(root, &nodes, 0, InvalidNode)
	return nodes
}

func buildRecursive(items []AABBItem) *buildNode {
	n := &buildNode{reference: InvalidNode}

	inf := float32(math.Inf(1))
	n.min = mgl32.Vec3{inf, inf, inf}
	n.max = mgl32.Vec3{-inf, -inf, -inf}
	for i := range items {
		n.min = mgl32.Vec3{min(n.min.X(), items[i].Min.X()), min(n.min.Y(), items[i].Min.Y()), min(n.min.Z(), items[i].Min.Z())}
		n.max = mgl32.Vec3{max(n.max.X(), items[i].Max.X()), max(n.max.Y(), items[i].Max.Y()), max(n.max.Z(), items[i].Max.Z())}
	}

	if len(items) == 1 {
		n.reference = items[0].Index
		return n
	}

	extent := n.max.Sub(n.min)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Centroid[axis] < items[j].Centroid[axis]
	})

	mid := len(items) / 2
	n.left = buildRecursive(items[:mid])
	n.right = buildRecursive(items[mid:])
	return n
}

func flatten(n *buildNode, nodes []Node) []Node {
	nodes = append(nodes, Node{
		Min:       n.min,
		Max:       n.max,
		Miss:      InvalidNode,
		Reference: n.reference,
	})
	if n.left != nil {
		nodes = flatten(n.left, nodes)
		nodes = flatten(n.right, nodes)
	}
	return nodes
}

// linkMisses assigns each node the index to jump to when its box test
// fails: the first node after its subtree in pre-order. For a left child
// that is its right sibling; for a right child it bubbles up to the
// nearest ancestor's untaken branch.
func linkMisses(n *buildNode, nodes *[]Node, pos int32, miss int32) {
	(*nodes)[pos].Miss = miss
	if n.left == nil {
		return
	}
	rightPos := pos + 1 + subtreeSize(n.left)
	linkMisses(n.left, nodes, pos+1, rightPos)
	linkMisses(n.right, nodes, rightPos, miss)
}

func subtreeSize(n *buildNode) int32 {
	if n.left == nil {
		return 1
	}
	return 1 + subtreeSize(n.left) + subtreeSize(n.right)
}

func min(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
