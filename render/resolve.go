package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/codec"
	"github.com/krios3d/krios/core"
)

// Resolver is the deferred shading pass: it consumes a visibility buffer
// and reconstructs full shading per pixel from the packed scene buffers.
// The visibility buffer may have a different resolution than the output;
// it is nearest-sampled.
type Resolver struct {
	Buffers    *core.RenderBuffers
	Textures   *core.TextureHandler // nil disables texture sampling
	ClearColor mgl32.Vec4
	Ambient    mgl32.Vec3
}

// Resolve shades every pixel of out from the visibility buffer.
func (r *Resolver) Resolve(frame *core.FrameData, vb *VisibilityBuffer, out *ColorBuffer) {
	for y := 0; y < out.Height; y++ {
		vy := y * vb.Height / out.Height
		for x := 0; x < out.Width; x++ {
			vx := x * vb.Width / out.Width
			id := vb.At(vx, vy)
			out.Set(x, y, r.ShadePixel(frame, x, y, id))
		}
	}
}

// ShadePixel reconstructs and shades the surface behind one visibility id
// at output pixel (x, y). Id 0 short-circuits to the clear color.
func (r *Resolver) ShadePixel(frame *core.FrameData, x, y int, id uint32) mgl32.Vec4 {
	meshletIndex, primitive, ok := codec.UnpackVisibility(id)
	if !ok {
		return r.ClearColor
	}
	if frame.Flags&core.FrameFlagDisplayMeshlets != 0 {
		return meshletDebugColor(meshletIndex)
	}

	rb := r.Buffers
	meshlet := &rb.Meshlets[meshletIndex]
	mesh := &rb.Meshes[meshlet.MeshIndex]

	// Rebuild the triangle exactly as the visibility pass did.
	i0, i1, i2 := rb.TriangleVertexIndices(meshletIndex, primitive)
	world := mesh.Transform()
	wvp := frame.ViewProj().Mul4(world)

	p0 := rb.VertexLocalPosition(i0)
	p1 := rb.VertexLocalPosition(i1)
	p2 := rb.VertexLocalPosition(i2)
	c0 := wvp.Mul4x1(p0.Vec4(1))
	c1 := wvp.Mul4x1(p1.Vec4(1))
	c2 := wvp.Mul4x1(p2.Vec4(1))

	bary, ok := Barycentrics(frame, c0, c1, c2, float32(x)+0.5, float32(y)+0.5)
	if !ok {
		return r.ClearColor
	}

	// Interpolate attributes with the recovered weights.
	col0, col1, col2 := rb.VertexColor(i0), rb.VertexColor(i1), rb.VertexColor(i2)
	vertexColor := col0.Mul(bary[0]).Add(col1.Mul(bary[1])).Add(col2.Mul(bary[2]))

	n0, n1, n2 := rb.VertexNormal(i0), rb.VertexNormal(i1), rb.VertexNormal(i2)
	localNormal := n0.Mul(bary[0]).Add(n1.Mul(bary[1])).Add(n2.Mul(bary[2]))

	w0 := world.Mul4x1(p0.Vec4(1)).Vec3()
	w1 := world.Mul4x1(p1.Vec4(1)).Vec3()
	w2 := world.Mul4x1(p2.Vec4(1)).Vec3()
	worldPos := w0.Mul(bary[0]).Add(w1.Mul(bary[1])).Add(w2.Mul(bary[2]))

	normalMatrix := world.Inv().Transpose()
	normal := normalMatrix.Mul4x1(localNormal.Vec4(0)).Vec3()
	if l := normal.Len(); l > 0 {
		normal = normal.Mul(1 / l)
	}

	material := core.NewMaterial()
	if mesh.MaterialIndex != core.InvalidIndex {
		material = rb.Materials[mesh.MaterialIndex]
	}

	var uvs [core.MaxTextureCoordSets]mgl32.Vec2
	for set := uint32(0); set < core.MaxTextureCoordSets; set++ {
		uv0 := rb.VertexUV(i0, set)
		uv1 := rb.VertexUV(i1, set)
		uv2 := rb.VertexUV(i2, set)
		uvs[set] = uv0.Mul(bary[0]).Add(uv1.Mul(bary[1])).Add(uv2.Mul(bary[2]))
	}

	return r.shade(frame, &material, worldPos, normal, vertexColor, uvs)
}

func (r *Resolver) sampleSlot(m *core.Material, slot core.TextureType, uvs *[core.MaxTextureCoordSets]mgl32.Vec2) ([4]float32, bool) {
	if r.Textures == nil || !m.HasTexture(slot) {
		return [4]float32{1, 1, 1, 1}, false
	}
	uv := uvs[m.TexturesCoordSet[slot]]
	return r.Textures.Sample(m.TexturesIndices[slot], uv.X(), uv.Y()), true
}

func (r *Resolver) shade(frame *core.FrameData, m *core.Material, worldPos, normal mgl32.Vec3, vertexColor mgl32.Vec4, uvs [core.MaxTextureCoordSets]mgl32.Vec2) mgl32.Vec4 {
	base := m.BaseColor
	if tex, ok := r.sampleSlot(m, core.TextureBaseColor, &uvs); ok {
		base = mgl32.Vec4{base.X() * tex[0], base.Y() * tex[1], base.Z() * tex[2], base.W() * tex[3]}
	}
	base = mgl32.Vec4{
		base.X() * vertexColor.X(),
		base.Y() * vertexColor.Y(),
		base.Z() * vertexColor.Z(),
		base.W() * vertexColor.W(),
	}

	roughness := m.RoughnessFactor
	metallic := m.MetallicFactor
	if tex, ok := r.sampleSlot(m, core.TextureMetallicRoughness, &uvs); ok {
		roughness *= tex[1]
		metallic *= tex[2]
	}
	roughness = mgl32.Clamp(roughness, 0.04, 1)

	// Alpha policy before any lighting work.
	alpha := base.W()
	switch m.AlphaMode {
	case core.AlphaModeOpaque:
		alpha = 1
	case core.AlphaModeMask:
		if base.W() < m.AlphaCutoff {
			// Local discard: the pixel contributes nothing.
			return r.ClearColor
		}
		alpha = 1
	case core.AlphaModeBlend:
		alpha = mgl32.Clamp(min(base.W(), vertexColor.W()), 0, 1)
	}

	albedo := base.Vec3()
	cameraPos := frame.CameraPosition()
	v := cameraPos.Sub(worldPos)
	if l := v.Len(); l > 0 {
		v = v.Mul(1 / l)
	}

	color := mgl32.Vec3{
		albedo.X() * r.Ambient.X(),
		albedo.Y() * r.Ambient.Y(),
		albedo.Z() * r.Ambient.Z(),
	}

	emissive := m.EmissiveColor
	if tex, ok := r.sampleSlot(m, core.TextureEmissive, &uvs); ok {
		emissive = mgl32.Vec3{emissive.X() * tex[0], emissive.Y() * tex[1], emissive.Z() * tex[2]}
	}
	color = color.Add(emissive)

	// The light array contract: stop at the first sentinel entry.
	for i := range r.Buffers.Lights {
		light := &r.Buffers.Lights[i]
		if light.Type == core.LightNone {
			break
		}
		l, radiance := lightSample(light, worldPos)
		if radiance == (mgl32.Vec3{}) {
			continue
		}
		color = color.Add(evalBRDF(normal, v, l, albedo, metallic, roughness, radiance))
	}

	return mgl32.Vec4{color.X(), color.Y(), color.Z(), alpha}
}

// lightSample returns the unit direction towards the light and its
// attenuated radiance at the shaded point.
func lightSample(light *core.Light, worldPos mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	switch light.Type {
	case core.LightDirectional:
		// Position doubles as the (negated) travel direction.
		dir := light.Position
		if l := dir.Len(); l > 0 {
			dir = dir.Mul(1 / l)
		}
		return dir, light.Color.Mul(light.Intensity)

	case core.LightPoint, core.LightSpot:
		toLight := light.Position.Sub(worldPos)
		dist := toLight.Len()
		if dist <= 0 || (light.Range > 0 && dist > light.Range) {
			return mgl32.Vec3{}, mgl32.Vec3{}
		}
		dir := toLight.Mul(1 / dist)
		atten := 1 / (dist * dist)
		if light.Range > 0 {
			falloff := mgl32.Clamp(1-dist/light.Range, 0, 1)
			atten *= falloff * falloff
		}
		if light.Type == core.LightSpot {
			cosAngle := dir.Mul(-1).Dot(spotDirection(light))
			inner := cos32(light.InnerConeAngle)
			outer := cos32(light.OuterConeAngle)
			spot := mgl32.Clamp((cosAngle-outer)/maxf(inner-outer, 1e-4), 0, 1)
			atten *= spot * spot
		}
		return dir, light.Color.Mul(light.Intensity * atten)
	}
	return mgl32.Vec3{}, mgl32.Vec3{}
}

// spotDirection points from the light into the scene; spot lights aim at
// the origin of their cone, encoded by the producer as pointing down -Y
// unless overridden via the position convention.
func spotDirection(light *core.Light) mgl32.Vec3 {
	d := light.Position.Mul(-1)
	if l := d.Len(); l > 0 {
		return d.Mul(1 / l)
	}
	return mgl32.Vec3{0, -1, 0}
}

// Barycentrics recovers the perspective-correct barycentric weights of a
// screen point against a triangle given only the three clip-space vertex
// positions, reconstructing what a hardware interpolator would provide.
func Barycentrics(frame *core.FrameData, c0, c1, c2 mgl32.Vec4, px, py float32) (mgl32.Vec3, bool) {
	x0, y0, _, ok0 := ScreenVertex(frame, c0)
	x1, y1, _, ok1 := ScreenVertex(frame, c1)
	x2, y2, _, ok2 := ScreenVertex(frame, c2)
	if !ok0 || !ok1 || !ok2 {
		return mgl32.Vec3{}, false
	}

	area := edge(x0, y0, x1, y1, x2, y2)
	if area == 0 {
		return mgl32.Vec3{}, false
	}
	invArea := 1 / area

	// Affine weights in screen space.
	w0 := edge(x1, y1, x2, y2, px, py) * invArea
	w1 := edge(x2, y2, x0, y0, px, py) * invArea
	w2 := edge(x0, y0, x1, y1, px, py) * invArea

	// Perspective correction through the clip-space w of each vertex.
	w0 /= c0.W()
	w1 /= c1.W()
	w2 /= c2.W()
	sum := w0 + w1 + w2
	if sum == 0 {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{w0 / sum, w1 / sum, w2 / sum}, true
}

// meshletDebugColor hashes a meshlet index into a stable display color.
func meshletDebugColor(meshletIndex uint32) mgl32.Vec4 {
	h := meshletIndex + 1
	h ^= h >> 16
	h *= 0x7FEB352D
	h ^= h >> 15
	h *= 0x846CA68B
	h ^= h >> 16
	return mgl32.Vec4{
		float32(h&0xFF) / 255,
		float32(h>>8&0xFF) / 255,
		float32(h>>16&0xFF) / 255,
		1,
	}
}

func cos32(a float32) float32 {
	return float32(math.Cos(float64(a)))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
