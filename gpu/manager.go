// Package gpu owns the device buffers and bind groups of the pipeline.
// Every upload goes through the byte-exact serializers in core, so the
// WGSL structs and the Go records can never drift apart silently.
package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/bvh"
	"github.com/krios3d/krios/core"
	"github.com/krios3d/krios/jobs"
)

const (
	HeadroomGeometry = 1024 * 1024
	HeadroomTables   = 64 * 1024
)

type BufferManager struct {
	Device *wgpu.Device

	FrameBuf         *wgpu.Buffer
	ResolveParamsBuf *wgpu.Buffer

	MeshesBuf    *wgpu.Buffer
	MeshletsBuf  *wgpu.Buffer
	ConesBuf     *wgpu.Buffer
	NodesBuf     *wgpu.Buffer
	TLASBuf      *wgpu.Buffer
	IndicesBuf   *wgpu.Buffer
	VerticesBuf  *wgpu.Buffer
	PositionsBuf *wgpu.Buffer
	ColorsBuf    *wgpu.Buffer
	NormalsBuf   *wgpu.Buffer
	UVsBuf       *wgpu.Buffer

	MaterialsBuf *wgpu.Buffer
	TexturesBuf  *wgpu.Buffer
	LightsBuf    *wgpu.Buffer

	CommandsBuf      *wgpu.Buffer
	CullingResultBuf *wgpu.Buffer
	JobWordsBuf      *wgpu.Buffer

	// Identity index buffer: entry i holds i, sized to the global index
	// array. The visibility pass draws through it so the vertex shader
	// sees global index positions and can pull vertices itself.
	IdentityIndexBuf *wgpu.Buffer

	AtlasTexture *wgpu.Texture
	AtlasView    *wgpu.TextureView

	CullingBindGroup0 *wgpu.BindGroup
	CullingBindGroup1 *wgpu.BindGroup

	VisibilityBindGroup *wgpu.BindGroup

	ResolveBindGroup0 *wgpu.BindGroup
	ResolveBindGroup1 *wgpu.BindGroup
	ResolveBindGroup2 *wgpu.BindGroup

	RayBindGroup0 *wgpu.BindGroup
	RayBindGroup1 *wgpu.BindGroup

	CommandCount  uint32
	MeshletCount  uint32
	IndexCount    uint32
	identityCount uint32
}

func NewBufferManager(device *wgpu.Device) *BufferManager {
	return &BufferManager{Device: device}
}

func (m *BufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) bool {
	neededSize := uint64(len(data) + headroom)
	if neededSize == 0 {
		neededSize = 64
	}
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}

		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  neededSize,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		*buf = newBuf

		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		return true
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false
}

// UpdateFrame uploads the per-frame camera block.
func (m *BufferManager) UpdateFrame(frame *core.FrameData) {
	if m.FrameBuf == nil {
		buf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "FrameUB",
			Size:  core.FrameDataByteSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		m.FrameBuf = buf
	}
	m.Device.GetQueue().WriteBuffer(m.FrameBuf, 0, frame.ToBytes())
}

// UpdateResolveParams uploads the resolve pass constants.
func (m *BufferManager) UpdateResolveParams(clearColor mgl32.Vec4, ambient mgl32.Vec3) {
	buf := make([]byte, 32)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(clearColor[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(ambient[i]))
	}

	if m.ResolveParamsBuf == nil {
		b, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "ResolveParamsUB",
			Size:  32,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		m.ResolveParamsBuf = b
	}
	m.Device.GetQueue().WriteBuffer(m.ResolveParamsBuf, 0, buf)
}

// UpdateScene uploads every global array. Returns true when any buffer
// was recreated and the bind groups must be rebuilt.
func (m *BufferManager) UpdateScene(rb *core.RenderBuffers) bool {
	recreated := false

	ensure := func(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) {
		if m.ensureBuffer(name, buf, data, usage, headroom) {
			recreated = true
		}
	}

	ensure("MeshesBuf", &m.MeshesBuf, core.MeshesToBytes(rb.Meshes), wgpu.BufferUsageStorage, HeadroomTables)
	ensure("MeshletsBuf", &m.MeshletsBuf, core.MeshletsToBytes(rb.Meshlets), wgpu.BufferUsageStorage, HeadroomTables)
	ensure("ConesBuf", &m.ConesBuf, core.ConesToBytes(rb.Cones), wgpu.BufferUsageStorage, HeadroomTables)
	ensure("NodesBuf", &m.NodesBuf, bvh.NodesToBytes(rb.Nodes), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("TLASBuf", &m.TLASBuf, bvh.NodesToBytes(rb.TLAS), wgpu.BufferUsageStorage, HeadroomTables)
	ensure("IndicesBuf", &m.IndicesBuf, core.U32ToBytes(rb.Indices), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("VerticesBuf", &m.VerticesBuf, core.VerticesToBytes(rb.Vertices), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("PositionsBuf", &m.PositionsBuf, core.U32ToBytes(rb.Positions), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("ColorsBuf", &m.ColorsBuf, core.U32ToBytes(rb.Colors), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("NormalsBuf", &m.NormalsBuf, core.U32ToBytes(rb.Normals), wgpu.BufferUsageStorage, HeadroomGeometry)
	ensure("UVsBuf", &m.UVsBuf, core.U32ToBytes(rb.UVs), wgpu.BufferUsageStorage, HeadroomGeometry)

	ensure("MaterialsBuf", &m.MaterialsBuf, core.MaterialsToBytes(rb.Materials), wgpu.BufferUsageStorage, 0)
	ensure("TexturesBuf", &m.TexturesBuf, core.TexturesToBytes(rb.Textures), wgpu.BufferUsageStorage, 0)
	ensure("LightsBuf", &m.LightsBuf, core.LightsToBytes(rb.LightsWithSentinel()), wgpu.BufferUsageStorage, 0)

	ensure("CommandsBuf", &m.CommandsBuf, core.CommandsToBytes(rb.Commands),
		wgpu.BufferUsageStorage|wgpu.BufferUsageIndirect, HeadroomTables)
	ensure("CullingResultBuf", &m.CullingResultBuf, core.U32ToBytes(rb.CullingResult),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, 0)

	if m.ensureIdentityIndices(uint32(len(rb.Indices))) {
		recreated = true
	}

	m.CommandCount = uint32(len(rb.Commands))
	m.MeshletCount = uint32(len(rb.Meshlets))
	m.IndexCount = uint32(len(rb.Indices))
	return recreated
}

// ensureIdentityIndices grows the identity index buffer to count entries.
func (m *BufferManager) ensureIdentityIndices(count uint32) bool {
	if count <= m.identityCount && m.IdentityIndexBuf != nil {
		return false
	}
	identity := make([]uint32, count)
	for i := range identity {
		identity[i] = uint32(i)
	}
	m.identityCount = count
	return m.ensureBuffer("IdentityIndexBuf", &m.IdentityIndexBuf, core.U32ToBytes(identity),
		wgpu.BufferUsageIndex, 0)
}

// ResetJobWords uploads a cleared job pool for tileCount tiles, with the
// bits past the last tile pre-claimed so the shader can never take them.
func (m *BufferManager) ResetJobWords(tileCount int) bool {
	alloc := jobs.NewAllocator(tileCount)
	return m.ensureBuffer("JobWordsBuf", &m.JobWordsBuf, alloc.ToBytesSealed(),
		wgpu.BufferUsageStorage, 0)
}

// UploadAtlases copies the first texture atlas into a layered GPU texture
// for the resolve pass. A one-pixel white fallback is used when no
// texture has been registered.
func (m *BufferManager) UploadAtlases(handler *core.TextureHandler) {
	if m.AtlasTexture != nil {
		m.AtlasTexture.Release()
	}

	width, height, layers := uint32(1), uint32(1), 1
	var atlas *core.TextureAtlas
	if handler != nil && len(handler.Atlases) > 0 {
		atlas = handler.Atlases[0]
		width, height = atlas.Width, atlas.Height
		layers = len(atlas.Layers)
	}

	tex, err := m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "TextureAtlas",
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: uint32(layers)},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}
	m.AtlasTexture = tex

	writeLayer := func(layer uint32, pix []byte) {
		m.Device.GetQueue().WriteTexture(
			&wgpu.ImageCopyTexture{
				Texture:  tex,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: layer},
				Aspect:   wgpu.TextureAspectAll,
			},
			pix,
			&wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  width * 4,
				RowsPerImage: height,
			},
			&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		)
	}
	if atlas != nil {
		for layer, img := range atlas.Layers {
			writeLayer(uint32(layer), img.Pix)
		}
	} else {
		writeLayer(0, []byte{255, 255, 255, 255})
	}

	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2DArray,
		Format:          wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount:   1,
		ArrayLayerCount: uint32(layers),
	})
	if err != nil {
		panic(err)
	}
	m.AtlasView = view
}

func (m *BufferManager) CreateCullingBindGroups(pipeline *wgpu.ComputePipeline) {
	var err error
	m.CullingBindGroup0, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.FrameBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.MeshesBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.MeshletsBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.ConesBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
	m.CullingBindGroup1, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.CommandsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.CullingResultBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
}

func (m *BufferManager) CreateVisibilityBindGroup(pipeline *wgpu.RenderPipeline) {
	var err error
	m.VisibilityBindGroup, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.FrameBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.MeshesBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.MeshletsBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.NodesBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: m.IndicesBuf, Size: wgpu.WholeSize},
			{Binding: 5, Buffer: m.VerticesBuf, Size: wgpu.WholeSize},
			{Binding: 6, Buffer: m.PositionsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
}

func (m *BufferManager) CreateResolveBindGroups(pipeline *wgpu.ComputePipeline, visibilityView, outputView *wgpu.TextureView) {
	var err error
	m.ResolveBindGroup0, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.FrameBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.MeshesBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.MeshletsBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.NodesBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: m.IndicesBuf, Size: wgpu.WholeSize},
			{Binding: 5, Buffer: m.VerticesBuf, Size: wgpu.WholeSize},
			{Binding: 6, Buffer: m.PositionsBuf, Size: wgpu.WholeSize},
			{Binding: 7, Buffer: m.ColorsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
	m.ResolveBindGroup1, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.NormalsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.UVsBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.MaterialsBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.TexturesBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: m.LightsBuf, Size: wgpu.WholeSize},
			{Binding: 5, TextureView: m.AtlasView},
		},
	})
	if err != nil {
		panic(err)
	}
	m.ResolveBindGroup2, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(2),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: visibilityView},
			{Binding: 1, TextureView: outputView},
			{Binding: 2, Buffer: m.ResolveParamsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
}

func (m *BufferManager) CreateRayBindGroups(pipeline *wgpu.ComputePipeline, outputView *wgpu.TextureView) {
	var err error
	m.RayBindGroup0, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.FrameBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.MeshesBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.MeshletsBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.NodesBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: m.IndicesBuf, Size: wgpu.WholeSize},
			{Binding: 5, Buffer: m.VerticesBuf, Size: wgpu.WholeSize},
			{Binding: 6, Buffer: m.PositionsBuf, Size: wgpu.WholeSize},
			{Binding: 7, Buffer: m.TLASBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
	m.RayBindGroup1, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.JobWordsBuf, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: outputView},
		},
	})
	if err != nil {
		panic(err)
	}
}
