package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func u32At(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func TestMeshLayout(t *testing.T) {
	m := Mesh{
		VertexOffset:   3,
		IndicesOffset:  9,
		MaterialIndex:  -1,
		BVHIndex:       7,
		Position:       mgl32.Vec3{1, 2, 3},
		MeshletsOffset: 5,
		Scale:          mgl32.Vec3{2, 2, 2},
		MeshletsCount:  4,
		Orientation:    mgl32.QuatIdent(),
	}
	buf := m.ToBytes()
	if len(buf) != MeshByteSize {
		t.Fatalf("len %d, want %d", len(buf), MeshByteSize)
	}
	if u32At(buf, 0) != 3 || u32At(buf, 4) != 9 {
		t.Errorf("offsets misplaced")
	}
	if int32(u32At(buf, 8)) != -1 {
		t.Errorf("material index not two's complement at byte 8")
	}
	if f32At(buf, 16) != 1 || f32At(buf, 20) != 2 || f32At(buf, 24) != 3 {
		t.Errorf("position misplaced")
	}
	if u32At(buf, 28) != 5 || u32At(buf, 44) != 4 {
		t.Errorf("meshlet range misplaced")
	}
	if f32At(buf, 60) != 1 {
		t.Errorf("quaternion w not at byte 60")
	}
}

func TestConeCullingLayout(t *testing.T) {
	c := NewConeCulling(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 1}, -0.5)
	buf := c.ToBytes()
	if len(buf) != ConeCullingByteSize {
		t.Fatalf("len %d, want %d", len(buf), ConeCullingByteSize)
	}
	if f32At(buf, 0) != 1 || f32At(buf, 8) != 3 {
		t.Errorf("center misplaced")
	}
	if int8(buf[14]) != 127 {
		t.Errorf("axis z byte %d, want quantized 1.0 (127)", int8(buf[14]))
	}
	if int8(buf[15]) >= 0 {
		t.Errorf("negative cutoff lost its sign: byte %d", int8(buf[15]))
	}
	if got := c.Cutoff(); got > -0.49 || got < -0.51 {
		t.Errorf("cutoff decoded to %f, want about -0.5", got)
	}
	axis := c.Axis()
	if axis.Z() != 1 || axis.X() != 0 || axis.Y() != 0 {
		t.Errorf("axis decoded to %v, want +Z", axis)
	}
}

func TestRecordSizes(t *testing.T) {
	meshlet := Meshlet{}
	vertex := Vertex{}
	cmd := DrawIndexedCommand{}
	light := Light{}
	mat := NewMaterial()
	tex := TextureData{}
	frame := FrameData{}
	ray := Ray{}

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"meshlet", len(meshlet.ToBytes()), MeshletByteSize},
		{"vertex", len(vertex.ToBytes()), VertexByteSize},
		{"command", len(cmd.ToBytes()), DrawIndexedCommandByteSize},
		{"light", len(light.ToBytes()), LightByteSize},
		{"material", len(mat.ToBytes()), MaterialByteSize},
		{"texture", len(tex.ToBytes()), TextureDataByteSize},
		{"frame", len(frame.ToBytes()), FrameDataByteSize},
		{"ray", len(ray.ToBytes()), RayByteSize},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s serializes to %d bytes, want %d", c.name, c.got, c.want)
		}
	}
}

func TestDrawCommandLayout(t *testing.T) {
	cmd := DrawIndexedCommand{
		VertexCount:   96,
		InstanceCount: 1,
		BaseIndex:     300,
		VertexOffset:  -4,
		BaseInstance:  17,
	}
	buf := cmd.ToBytes()
	if u32At(buf, 0) != 96 || u32At(buf, 4) != 1 || u32At(buf, 8) != 300 {
		t.Errorf("draw argument head misplaced")
	}
	if int32(u32At(buf, 12)) != -4 {
		t.Errorf("vertex offset not signed at byte 12")
	}
	if u32At(buf, 16) != 17 {
		t.Errorf("base instance not at byte 16")
	}
}

func TestVertexLayoutSignedOffsets(t *testing.T) {
	v := Vertex{
		PositionAndColorOffset: 10,
		NormalOffset:           InvalidIndex,
		TangentOffset:          InvalidIndex,
		MeshIndex:              2,
		UVOffset:               [MaxTextureCoordSets]int32{0, -1, -1, -1},
	}
	buf := v.ToBytes()
	if int32(u32At(buf, 4)) != -1 || int32(u32At(buf, 8)) != -1 {
		t.Errorf("invalid offsets not preserved as -1")
	}
	if int32(u32At(buf, 20)) != -1 {
		t.Errorf("UV set 1 not -1 at byte 20")
	}
}

func TestFrameDataLayout(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	f := NewFrameData(view, proj, 1920, 1080, FrameFlagDisplayMeshlets)

	buf := f.ToBytes()
	if f32At(buf, 0) != view[0] {
		t.Errorf("view matrix not at byte 0")
	}
	if f32At(buf, 64) != proj[0] {
		t.Errorf("projection matrix not at byte 64")
	}
	if f32At(buf, 192) != 1920 || f32At(buf, 196) != 1080 {
		t.Errorf("screen size misplaced")
	}
	if u32At(buf, 200) != FrameFlagDisplayMeshlets {
		t.Errorf("flags misplaced")
	}
}
