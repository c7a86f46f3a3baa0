package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Microfacet BRDF terms: GGX normal distribution, Schlick-GGX geometry,
// Schlick Fresnel. Inputs are pre-clamped cosines.

func distributionGGX(nDotH, roughness float32) float32 {
	a := roughness * roughness
	a2 := a * a
	denom := nDotH*nDotH*(a2-1) + 1
	return a2 / (math.Pi * denom * denom)
}

func geometrySchlickGGX(nDotV, roughness float32) float32 {
	r := roughness + 1
	k := r * r / 8
	return nDotV / (nDotV*(1-k) + k)
}

func geometrySmith(nDotV, nDotL, roughness float32) float32 {
	return geometrySchlickGGX(nDotV, roughness) * geometrySchlickGGX(nDotL, roughness)
}

func fresnelSchlick(cosTheta float32, f0 mgl32.Vec3) mgl32.Vec3 {
	f := float32(math.Pow(float64(mgl32.Clamp(1-cosTheta, 0, 1)), 5))
	return f0.Add(mgl32.Vec3{1 - f0.X(), 1 - f0.Y(), 1 - f0.Z()}.Mul(f))
}

// evalBRDF returns the outgoing radiance contribution of one light sample:
// Cook-Torrance specular plus energy-conserving Lambert diffuse.
func evalBRDF(n, v, l mgl32.Vec3, albedo mgl32.Vec3, metallic, roughness float32, radiance mgl32.Vec3) mgl32.Vec3 {
	nDotL := n.Dot(l)
	if nDotL <= 0 {
		return mgl32.Vec3{}
	}
	nDotV := mgl32.Clamp(n.Dot(v), 1e-4, 1)
	h := v.Add(l).Normalize()
	nDotH := mgl32.Clamp(n.Dot(h), 0, 1)
	hDotV := mgl32.Clamp(h.Dot(v), 0, 1)

	f0 := mgl32.Vec3{0.04, 0.04, 0.04}
	f0 = mgl32.Vec3{
		mix(f0.X(), albedo.X(), metallic),
		mix(f0.Y(), albedo.Y(), metallic),
		mix(f0.Z(), albedo.Z(), metallic),
	}

	d := distributionGGX(nDotH, roughness)
	g := geometrySmith(nDotV, nDotL, roughness)
	f := fresnelSchlick(hDotV, f0)

	spec := f.Mul(d * g / (4*nDotV*nDotL + 1e-4))

	kd := mgl32.Vec3{1 - f.X(), 1 - f.Y(), 1 - f.Z()}.Mul(1 - metallic)
	diffuse := mgl32.Vec3{
		kd.X() * albedo.X() / math.Pi,
		kd.Y() * albedo.Y() / math.Pi,
		kd.Z() * albedo.Z() / math.Pi,
	}

	out := diffuse.Add(spec).Mul(nDotL)
	return mgl32.Vec3{out.X() * radiance.X(), out.Y() * radiance.Y(), out.Z() * radiance.Z()}
}

func mix(a, b, t float32) float32 {
	return a + (b-a)*t
}
