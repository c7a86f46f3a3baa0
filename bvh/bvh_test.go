package bvh

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func gridItems(n int) []AABBItem {
	items := make([]AABBItem, 0, n*n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			minB := mgl32.Vec3{float32(x), float32(y), 0}
			maxB := mgl32.Vec3{float32(x) + 1, float32(y) + 1, 1}
			items = append(items, NewAABBItem(minB, maxB, int32(len(items))))
		}
	}
	return items
}

func TestBuildRootBounds(t *testing.T) {
	nodes := Build(gridItems(4))
	root := nodes[0]
	if root.Min != (mgl32.Vec3{0, 0, 0}) || root.Max != (mgl32.Vec3{4, 4, 1}) {
		t.Errorf("root bounds %v %v, want full grid", root.Min, root.Max)
	}
	if root.Miss != InvalidNode {
		t.Errorf("root miss should terminate, got %d", root.Miss)
	}
	if root.IsLeaf() {
		t.Error("root of a multi-item tree should be inner")
	}
}

func TestBuildSingleItem(t *testing.T) {
	nodes := Build([]AABBItem{NewAABBItem(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}, 7)})
	if len(nodes) != 1 {
		t.Fatalf("single item should flatten to one node, got %d", len(nodes))
	}
	if !nodes[0].IsLeaf() || nodes[0].Reference != 7 {
		t.Errorf("leaf reference = %d, want 7", nodes[0].Reference)
	}
}

func TestMissLinksSkipSubtrees(t *testing.T) {
	nodes := Build(gridItems(4))

	// Every inner node's miss target must be the first node after its
	// subtree, so walking only miss links from any node terminates.
	for i := range nodes {
		seen := 0
		for j := int32(i); j != InvalidNode; j = nodes[j].Miss {
			seen++
			if seen > len(nodes) {
				t.Fatalf("miss chain from node %d cycles", i)
			}
			if nodes[j].Miss != InvalidNode && nodes[j].Miss <= j {
				t.Fatalf("node %d: miss %d goes backwards", j, nodes[j].Miss)
			}
		}
	}
}

func TestTraverseBoxFindsOverlaps(t *testing.T) {
	items := gridItems(8)
	nodes := Build(items)

	// Query a box covering cells (2..4)x(2..4).
	found := map[int32]bool{}
	ok := TraverseBox(nodes, mgl32.Vec3{2.25, 2.25, 0}, mgl32.Vec3{3.75, 3.75, 1}, 0, func(ref int32) bool {
		found[ref] = true
		return true
	})
	if !ok {
		t.Fatal("traversal should finish within budget")
	}

	for _, it := range items {
		want := BoxesOverlap(it.Min, it.Max, mgl32.Vec3{2.25, 2.25, 0}, mgl32.Vec3{3.75, 3.75, 1})
		if found[it.Index] != want {
			t.Errorf("item %d: found=%v want=%v", it.Index, found[it.Index], want)
		}
	}
}

func TestTraverseRayHitsExpectedLeaves(t *testing.T) {
	nodes := Build(gridItems(8))

	// Ray along +X through the middle of row y=3.
	found := map[int32]bool{}
	TraverseRay(nodes, mgl32.Vec3{-1, 3.5, 0.5}, mgl32.Vec3{1, 0, 0}, 0, 1e30, 0, func(ref int32) bool {
		found[ref] = true
		return true
	})

	// Items are laid out x-major: index = x*8 + y.
	for x := int32(0); x < 8; x++ {
		if !found[x*8+3] {
			t.Errorf("ray should enter cell x=%d y=3", x)
		}
	}
	if len(found) != 8 {
		t.Errorf("ray hit %d leaves, want 8", len(found))
	}
}

func TestTraverseTerminatesOnAdversarialLinks(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	nodes := Build(gridItems(8))

	for trial := 0; trial < 100; trial++ {
		bad := make([]Node, len(nodes))
		copy(bad, nodes)
		for i := range bad {
			bad[i].Miss = int32(r.Intn(len(bad)+2)) - 1
			if r.Intn(4) == 0 {
				bad[i].Reference = int32(r.Intn(len(bad))) - 1
			}
		}

		visits := 0
		TraverseRay(bad, mgl32.Vec3{4, 4, -1}, mgl32.Vec3{0, 0, 1}, 0, 1e30, 0, func(ref int32) bool {
			visits++
			return true
		})
		if visits > DefaultBudgetFactor*len(bad) {
			t.Fatalf("trial %d: visited %d leaves, budget should have bounded the walk", trial, visits)
		}

		TraverseBox(bad, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{8, 8, 1}, 16, func(ref int32) bool {
			return true
		})
	}
}

func TestTraverseEarlyStop(t *testing.T) {
	nodes := Build(gridItems(8))
	visits := 0
	TraverseBox(nodes, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{8, 8, 1}, 0, func(ref int32) bool {
		visits++
		return visits < 3
	})
	if visits != 3 {
		t.Errorf("visit=false should stop the walk, got %d visits", visits)
	}
}

func TestIntersectTriangle(t *testing.T) {
	v0 := mgl32.Vec3{0, 0, 0}
	v1 := mgl32.Vec3{1, 0, 0}
	v2 := mgl32.Vec3{0, 1, 0}

	tests := []struct {
		name   string
		origin mgl32.Vec3
		dir    mgl32.Vec3
		hit    bool
		wantT  float32
	}{
		{"center hit", mgl32.Vec3{0.25, 0.25, -1}, mgl32.Vec3{0, 0, 1}, true, 1},
		{"miss outside", mgl32.Vec3{0.75, 0.75, -1}, mgl32.Vec3{0, 0, 1}, false, 0},
		{"parallel", mgl32.Vec3{0.25, 0.25, -1}, mgl32.Vec3{1, 0, 0}, false, 0},
		{"behind origin", mgl32.Vec3{0.25, 0.25, 1}, mgl32.Vec3{0, 0, 1}, false, 0},
		{"backface hit", mgl32.Vec3{0.25, 0.25, 1}, mgl32.Vec3{0, 0, -1}, true, 1},
	}
	for _, tc := range tests {
		gotT, u, v, hit := IntersectTriangle(tc.origin, tc.dir, v0, v1, v2)
		if hit != tc.hit {
			t.Errorf("%s: hit=%v want %v", tc.name, hit, tc.hit)
			continue
		}
		if hit {
			if mgl32.Abs(gotT-tc.wantT) > 1e-5 {
				t.Errorf("%s: t=%f want %f", tc.name, gotT, tc.wantT)
			}
			if u < 0 || v < 0 || u+v > 1 {
				t.Errorf("%s: barycentrics out of range: %f %f", tc.name, u, v)
			}
		}
	}
}

func TestNodeSerialization(t *testing.T) {
	n := Node{
		Min:       mgl32.Vec3{1, 2, 3},
		Miss:      InvalidNode,
		Max:       mgl32.Vec3{4, 5, 6},
		Reference: 12,
	}
	buf := n.ToBytes()
	if len(buf) != NodeByteSize {
		t.Fatalf("node should serialize to %d bytes, got %d", NodeByteSize, len(buf))
	}
	if buf[12] != 0xFF || buf[13] != 0xFF || buf[14] != 0xFF || buf[15] != 0xFF {
		t.Error("miss -1 should serialize as all-ones")
	}
	if buf[28] != 12 {
		t.Error("reference should land at byte 28")
	}
}
