package cull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/krios3d/krios/codec"
	"github.com/krios3d/krios/core"
)

// quadMesh builds a unit quad in the XY plane at z=0 as one meshlet with
// the given cone axis.
func quadMesh(axis mgl32.Vec3, cutoff float32) *core.MeshData {
	positions := []uint32{
		codec.PackNormalizedVec3(0, 0, 0),
		codec.PackNormalizedVec3(1, 0, 0),
		codec.PackNormalizedVec3(1, 1, 0),
		codec.PackNormalizedVec3(0, 1, 0),
	}
	vertices := make([]core.Vertex, 4)
	for i := range vertices {
		vertices[i] = core.Vertex{
			PositionAndColorOffset: uint32(i),
			NormalOffset:           core.InvalidIndex,
			TangentOffset:          core.InvalidIndex,
			UVOffset:               [core.MaxTextureCoordSets]int32{-1, -1, -1, -1},
		}
	}
	return &core.MeshData{
		AABBMin:   mgl32.Vec3{-0.5, -0.5, 0},
		AABBMax:   mgl32.Vec3{0.5, 0.5, 0},
		Vertices:  vertices,
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Positions: positions,
		Meshlets: []core.MeshletData{{
			IndicesOffset: 0,
			IndicesCount:  6,
			AABBMin:       mgl32.Vec3{-0.5, -0.5, 0},
			AABBMax:       mgl32.Vec3{0.5, 0.5, 0},
			ConeCenter:    mgl32.Vec3{0, 0, 0},
			ConeAxis:      axis,
			ConeCutoff:    cutoff,
		}},
		MaterialIndex: core.InvalidIndex,
	}
}

func frameAt(eye mgl32.Vec3) core.FrameData {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(eye, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	return core.NewFrameData(view, proj, 64, 64, core.FrameFlagNone)
}

func TestConeCullingScenarios(t *testing.T) {
	// Camera on +Z looking at the origin.
	frame := frameAt(mgl32.Vec3{0, 0, 5})

	tests := []struct {
		name    string
		axis    mgl32.Vec3
		cutoff  float32
		visible bool
	}{
		{"facing camera", mgl32.Vec3{0, 0, 1}, 0, true},
		{"facing away", mgl32.Vec3{0, 0, -1}, 0, false},
		{"sideways with open cone", mgl32.Vec3{1, 0, 0}, -1, true},
	}
	for _, tc := range tests {
		rb := core.NewRenderBuffers()
		rb.AddMesh(uuid.New(), quadMesh(tc.axis, tc.cutoff),
			mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

		Run(rb, &frame, Config{})

		drawn := rb.Commands[0].InstanceCount == 1
		if drawn != tc.visible {
			t.Errorf("%s: drawn=%v want %v", tc.name, drawn, tc.visible)
		}
		wantBit := uint32(0)
		if tc.visible {
			wantBit = 1
		}
		if rb.CullingResult[0]&1 != wantBit {
			t.Errorf("%s: culling result bit %d, want %d", tc.name, rb.CullingResult[0]&1, wantBit)
		}
	}
}

func TestCulledCommandIsZeroedNotRemoved(t *testing.T) {
	frame := frameAt(mgl32.Vec3{0, 0, 5})

	rb := core.NewRenderBuffers()
	rb.AddMesh(uuid.New(), quadMesh(mgl32.Vec3{0, 0, -1}, 0),
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	before := len(rb.Commands)
	Run(rb, &frame, Config{})

	if len(rb.Commands) != before {
		t.Fatalf("command list length changed: %d -> %d", before, len(rb.Commands))
	}
	cmd := rb.Commands[0]
	if cmd.VertexCount != 0 || cmd.InstanceCount != 0 || cmd.BaseIndex != 0 ||
		cmd.VertexOffset != 0 || cmd.BaseInstance != 0 {
		t.Errorf("culled command should be fully zeroed, got %+v", cmd)
	}
}

func TestConeTestFollowsInstanceOrientation(t *testing.T) {
	frame := frameAt(mgl32.Vec3{0, 0, 5})

	// The cone faces away in mesh space, but the instance is flipped
	// around Y so it ends up facing the camera.
	rb := core.NewRenderBuffers()
	flip := mgl32.QuatRotate(mgl32.DegToRad(180), mgl32.Vec3{0, 1, 0})
	rb.AddMesh(uuid.New(), quadMesh(mgl32.Vec3{0, 0, -1}, 0),
		mgl32.Vec3{}, flip, mgl32.Vec3{1, 1, 1})

	Run(rb, &frame, Config{})
	if rb.Commands[0].InstanceCount != 1 {
		t.Error("flipped instance should survive the cone test")
	}
}

func TestFrustumCullRejectsOffscreenMeshlet(t *testing.T) {
	frame := frameAt(mgl32.Vec3{0, 0, 5})

	rb := core.NewRenderBuffers()
	// Facing the camera but far outside the view volume.
	rb.AddMesh(uuid.New(), quadMesh(mgl32.Vec3{0, 0, 1}, 0),
		mgl32.Vec3{500, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})

	Run(rb, &frame, Config{})
	if rb.Commands[0].InstanceCount != 1 {
		t.Fatal("cone-only culling should keep the offscreen meshlet")
	}

	rb.ResetCullingResult()
	Run(rb, &frame, Config{FrustumCull: true})
	if rb.Commands[0].InstanceCount != 0 {
		t.Error("frustum culling should reject the offscreen meshlet")
	}
}
