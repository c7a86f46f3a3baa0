package main

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/krios3d/krios/app"
	"github.com/krios3d/krios/codec"
	"github.com/krios3d/krios/core"
)

// cubeMeshData builds a unit cube with one meshlet per face. Each face
// carries a visibility cone along its normal, so orbiting the camera
// exercises the culling pass on real geometry.
func cubeMeshData() *core.MeshData {
	min := mgl32.Vec3{-1, -1, -1}
	max := mgl32.Vec3{1, 1, 1}

	type face struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
		color   mgl32.Vec4
	}
	faces := []face{
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}, mgl32.Vec4{0.9, 0.3, 0.3, 1}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}}, mgl32.Vec4{0.3, 0.9, 0.3, 1}},
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, -1, 1}, {1, -1, -1}, {1, 1, -1}, {1, 1, 1}}, mgl32.Vec4{0.3, 0.3, 0.9, 1}},
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}}, mgl32.Vec4{0.9, 0.9, 0.3, 1}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-1, 1, 1}, {1, 1, 1}, {1, 1, -1}, {-1, 1, -1}}, mgl32.Vec4{0.9, 0.3, 0.9, 1}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}}, mgl32.Vec4{0.3, 0.9, 0.9, 1}},
	}

	data := &core.MeshData{
		AABBMin:       min,
		AABBMax:       max,
		MaterialIndex: 0,
	}
	extent := max.Sub(min)

	for _, f := range faces {
		base := uint32(len(data.Vertices))
		for _, c := range f.corners {
			attr := uint32(len(data.Positions))
			data.Positions = append(data.Positions, codec.PackNormalizedVec3(
				(c.X()-min.X())/extent.X(),
				(c.Y()-min.Y())/extent.Y(),
				(c.Z()-min.Z())/extent.Z(),
			))
			data.Colors = append(data.Colors, codec.Pack4F32ToUnorm(
				f.color.X(), f.color.Y(), f.color.Z(), f.color.W()))
			data.Normals = append(data.Normals, codec.PackNormalizedVec3(
				(f.normal.X()+1)/2, (f.normal.Y()+1)/2, (f.normal.Z()+1)/2))

			v := core.Vertex{
				PositionAndColorOffset: attr,
				NormalOffset:           int32(attr),
				TangentOffset:          core.InvalidIndex,
			}
			for i := range v.UVOffset {
				v.UVOffset[i] = core.InvalidIndex
			}
			data.Vertices = append(data.Vertices, v)
		}

		indicesOffset := uint32(len(data.Indices))
		data.Indices = append(data.Indices,
			base, base+1, base+2,
			base, base+2, base+3,
		)

		faceMin := f.corners[0]
		faceMax := f.corners[0]
		for _, c := range f.corners[1:] {
			faceMin = mgl32.Vec3{minf(faceMin.X(), c.X()), minf(faceMin.Y(), c.Y()), minf(faceMin.Z(), c.Z())}
			faceMax = mgl32.Vec3{maxf(faceMax.X(), c.X()), maxf(faceMax.Y(), c.Y()), maxf(faceMax.Z(), c.Z())}
		}

		data.Meshlets = append(data.Meshlets, core.MeshletData{
			IndicesOffset: indicesOffset,
			IndicesCount:  6,
			AABBMin:       faceMin,
			AABBMax:       faceMax,
			ConeCenter:    f.normal,
			ConeAxis:      f.normal,
			ConeCutoff:    0,
		})
	}
	return data
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// populateScene registers the demo geometry, a material and two lights.
func populateScene(a *app.App) {
	cube := cubeMeshData()

	a.Buffers.AddMaterial(uuid.New(), core.NewMaterial())

	positions := []mgl32.Vec3{
		{0, 0, 0},
		{3.5, 0, 0},
		{-3.5, 0, 0},
		{0, 0, -4},
	}
	for _, p := range positions {
		a.Buffers.AddMesh(uuid.New(), cube, p, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	}

	a.Buffers.AddLight(uuid.New(), core.Light{
		Position:  mgl32.Vec3{-0.5, -1, -0.3},
		Type:      core.LightDirectional,
		Color:     mgl32.Vec3{1, 1, 0.95},
		Intensity: 2.0,
	})
	a.Buffers.AddLight(uuid.New(), core.Light{
		Position:  mgl32.Vec3{0, 4, 4},
		Type:      core.LightPoint,
		Color:     mgl32.Vec3{0.4, 0.6, 1},
		Intensity: 30.0,
		Range:     25.0,
	})
}
