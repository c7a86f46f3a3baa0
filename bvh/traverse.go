package bvh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultBudgetFactor bounds a traversal to factor*len(nodes) steps when
// no explicit budget is given. Malformed miss links can form cycles; the
// budget turns a would-be hang into "no hit".
const DefaultBudgetFactor = 2

// budgetFor resolves an explicit or default step budget.
func budgetFor(nodes []Node, budget int) int {
	if budget > 0 {
		return budget
	}
	return DefaultBudgetFactor * len(nodes)
}

// TraverseRay walks the node range with a ray in the nodes' local space,
// calling visit for every leaf whose box the ray enters. visit returns
// false to stop the walk early. The return value is false when the step
// budget was exhausted before the walk finished.
func TraverseRay(nodes []Node, origin, dir mgl32.Vec3, tMin, tMax float32, budget int, visit func(reference int32) bool) bool {
	invDir := mgl32.Vec3{safeInv(dir.X()), safeInv(dir.Y()), safeInv(dir.Z())}
	steps := budgetFor(nodes, budget)

	i := int32(0)
	for i >= 0 && int(i) < len(nodes) {
		if steps--; steps < 0 {
			return false
		}
		n := &nodes[i]
		if !RayHitsAABB(origin, invDir, tMin, tMax, n.Min, n.Max) {
			i = n.Miss
			continue
		}
		if n.IsLeaf() {
			if !visit(n.Reference) {
				return true
			}
			i = n.Miss
			continue
		}
		i++
	}
	return true
}

// TraverseBox walks the node range with an axis-aligned box in the nodes'
// local space, calling visit for every leaf whose box overlaps it.
func TraverseBox(nodes []Node, boxMin, boxMax mgl32.Vec3, budget int, visit func(reference int32) bool) bool {
	steps := budgetFor(nodes, budget)

	i := int32(0)
	for i >= 0 && int(i) < len(nodes) {
		if steps--; steps < 0 {
			return false
		}
		n := &nodes[i]
		if !BoxesOverlap(n.Min, n.Max, boxMin, boxMax) {
			i = n.Miss
			continue
		}
		if n.IsLeaf() {
			if !visit(n.Reference) {
				return true
			}
			i = n.Miss
			continue
		}
		i++
	}
	return true
}

// RayHitsAABB is the slab test against [boxMin, boxMax] over the ray's
// [tMin, tMax] interval. invDir components may be +-Inf for axis-aligned
// rays; the min/max folding handles the resulting NaN-free comparisons.
func RayHitsAABB(origin, invDir mgl32.Vec3, tMin, tMax float32, boxMin, boxMax mgl32.Vec3) bool {
	t0 := tMin
	t1 := tMax
	for a := 0; a < 3; a++ {
		tNear := (boxMin[a] - origin[a]) * invDir[a]
		tFar := (boxMax[a] - origin[a]) * invDir[a]
		if tNear > tFar {
			tNear, tFar = tFar, tNear
		}
		if tNear > t0 {
			t0 = tNear
		}
		if tFar < t1 {
			t1 = tFar
		}
		if t0 > t1 {
			return false
		}
	}
	return true
}

// BoxesOverlap reports whether two AABBs intersect (touching counts).
func BoxesOverlap(aMin, aMax, bMin, bMax mgl32.Vec3) bool {
	return aMin.X() <= bMax.X() && aMax.X() >= bMin.X() &&
		aMin.Y() <= bMax.Y() && aMax.Y() >= bMin.Y() &&
		aMin.Z() <= bMax.Z() && aMax.Z() >= bMin.Z()
}

func safeInv(v float32) float32 {
	if v == 0 {
		return float32(math.Inf(1))
	}
	return 1 / v
}
