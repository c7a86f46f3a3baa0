// Package shaders embeds the WGSL sources. The pass shaders share the
// struct declarations and decode helpers in common.wgsl, prepended at
// package init since WGSL has no include mechanism.
package shaders

import (
	_ "embed"
)

//go:embed common.wgsl
var commonWGSL string

//go:embed culling.wgsl
var cullingWGSL string

//go:embed visibility.wgsl
var visibilityWGSL string

//go:embed resolve.wgsl
var resolveWGSL string

//go:embed ray.wgsl
var rayWGSL string

//go:embed blit.wgsl
var BlitWGSL string

var (
	CullingWGSL    = commonWGSL + cullingWGSL
	VisibilityWGSL = commonWGSL + visibilityWGSL
	ResolveWGSL    = commonWGSL + resolveWGSL
	RayWGSL        = commonWGSL + rayWGSL
)
