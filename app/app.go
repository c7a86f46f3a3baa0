// Package app owns the window surface and the frame loop. Each frame
// runs cone culling, rasterizes meshlet ids into the visibility buffer,
// shades it in a resolve pass and blits the result to the swapchain.
package app

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/krios3d/krios/core"
	"github.com/krios3d/krios/gpu"
	"github.com/krios3d/krios/shaders"
)

const rayTileSize = 16

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	CullingPipeline    *wgpu.ComputePipeline
	VisibilityPipeline *wgpu.RenderPipeline
	ResolvePipeline    *wgpu.ComputePipeline
	RayPipeline        *wgpu.ComputePipeline
	BlitPipeline       *wgpu.RenderPipeline

	VisibilityTexture *wgpu.Texture
	VisibilityView    *wgpu.TextureView
	DepthTexture      *wgpu.Texture
	DepthView         *wgpu.TextureView
	OutputTexture     *wgpu.Texture
	OutputView        *wgpu.TextureView
	Sampler           *wgpu.Sampler
	BlitBindGroup     *wgpu.BindGroup

	BufferManager *gpu.BufferManager
	Buffers       *core.RenderBuffers
	Textures      *core.TextureHandler
	Camera        *CameraState
	Log           Logger

	ClearColor mgl32.Vec4
	Ambient    mgl32.Vec3

	DisplayMeshlets bool
	UseRayPath      bool
	MouseCaptured   bool

	LastTime       float64
	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, logger Logger) *App {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &App{
		Window:     window,
		Camera:     NewCameraState(),
		Buffers:    core.NewRenderBuffers(),
		Textures:   core.NewTextureHandler(1024),
		Log:        logger,
		ClearColor: mgl32.Vec4{0.05, 0.05, 0.08, 1},
		Ambient:    mgl32.Vec3{0.1, 0.1, 0.1},
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	if err := a.createPipelines(format); err != nil {
		return err
	}

	a.Sampler, err = a.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	a.BufferManager = gpu.NewBufferManager(a.Device)
	a.setupTextures(width, height)

	frame := core.NewFrameData(mgl32.Ident4(), mgl32.Ident4(),
		uint32(width), uint32(height), core.FrameFlagNone)
	a.BufferManager.UpdateFrame(&frame)
	a.BufferManager.UpdateResolveParams(a.ClearColor, a.Ambient)
	a.BufferManager.UploadAtlases(a.Textures)
	a.Buffers.Textures = a.Textures.Data()
	a.BufferManager.UpdateScene(a.Buffers)
	a.BufferManager.ResetJobWords(a.rayTileCount())
	a.createBindGroups()

	a.LastTime = glfw.GetTime()
	a.Log.Infof("initialized %dx%d, surface format %v", width, height, format)
	return nil
}

func (a *App) createPipelines(surfaceFormat wgpu.TextureFormat) error {
	cullMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Cone Culling CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.CullingWGSL},
	})
	if err != nil {
		return err
	}
	a.CullingPipeline, err = a.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Cone Culling Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cullMod,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return err
	}

	visMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Visibility VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.VisibilityWGSL},
	})
	if err != nil {
		return err
	}
	a.VisibilityPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Visibility Pipeline",
		Vertex: wgpu.VertexState{
			Module:     visMod,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     visMod,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    wgpu.TextureFormatR32Uint,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
			CullMode: wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	resolveMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Resolve CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.ResolveWGSL},
	})
	if err != nil {
		return err
	}
	a.ResolvePipeline, err = a.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Resolve Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     resolveMod,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return err
	}

	rayMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Ray Visibility CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.RayWGSL},
	})
	if err != nil {
		return err
	}
	a.RayPipeline, err = a.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Ray Visibility Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     rayMod,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return err
	}

	blitMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Blit VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.BlitWGSL},
	})
	if err != nil {
		return err
	}
	a.BlitPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     blitMod,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     blitMod,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	return err
}

func (a *App) setupTextures(w, h int) {
	if w == 0 || h == 0 {
		return
	}

	if a.VisibilityTexture != nil {
		a.VisibilityTexture.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}
	if a.OutputTexture != nil {
		a.OutputTexture.Release()
	}

	var err error
	a.VisibilityTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Visibility Tex",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Uint,
		Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageStorageBinding,
	})
	if err != nil {
		panic(err)
	}
	a.VisibilityView, err = a.VisibilityTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}

	a.DepthTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Visibility Depth",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		panic(err)
	}
	a.DepthView, err = a.DepthTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}

	a.OutputTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Shaded Output Tex",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		panic(err)
	}
	a.OutputView, err = a.OutputTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}
}

func (a *App) createBindGroups() {
	a.BufferManager.CreateCullingBindGroups(a.CullingPipeline)
	a.BufferManager.CreateVisibilityBindGroup(a.VisibilityPipeline)
	a.BufferManager.CreateResolveBindGroups(a.ResolvePipeline, a.VisibilityView, a.OutputView)
	a.BufferManager.CreateRayBindGroups(a.RayPipeline, a.VisibilityView)

	var err error
	a.BlitBindGroup, err = a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: a.BlitPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: a.OutputView},
			{Binding: 1, Sampler: a.Sampler},
		},
	})
	if err != nil {
		panic(err)
	}
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		a.setupTextures(w, h)
		a.BufferManager.ResetJobWords(a.rayTileCount())
		a.createBindGroups()
	}
}

func (a *App) rayTileCount() int {
	tx := (int(a.Config.Width) + rayTileSize - 1) / rayTileSize
	ty := (int(a.Config.Height) + rayTileSize - 1) / rayTileSize
	return tx * ty
}

func (a *App) frameFlags() uint32 {
	flags := core.FrameFlagNone
	if a.DisplayMeshlets {
		flags |= core.FrameFlagDisplayMeshlets
	}
	return flags
}

func (a *App) Update() {
	view := a.Camera.GetViewMatrix()
	aspect := float32(a.Config.Width) / float32(a.Config.Height)
	if aspect == 0 {
		aspect = 1.0
	}
	proj := mgl32.Perspective(mgl32.DegToRad(60), aspect, 0.1, 1000.0)

	frame := core.NewFrameData(view, proj, a.Config.Width, a.Config.Height, a.frameFlags())

	a.Buffers.Textures = a.Textures.Data()
	if a.BufferManager.UpdateScene(a.Buffers) {
		a.createBindGroups()
	}
	a.BufferManager.UpdateFrame(&frame)
	a.BufferManager.UpdateResolveParams(a.ClearColor, a.Ambient)
	if a.UseRayPath {
		a.BufferManager.ResetJobWords(a.rayTileCount())
	}
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Log.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Log.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Log.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}

	mgr := a.BufferManager

	// Cone culling rewrites the indirect commands in place.
	if mgr.MeshletCount > 0 {
		cPass := encoder.BeginComputePass(nil)
		cPass.SetPipeline(a.CullingPipeline)
		cPass.SetBindGroup(0, mgr.CullingBindGroup0, nil)
		cPass.SetBindGroup(1, mgr.CullingBindGroup1, nil)
		cPass.DispatchWorkgroups((mgr.MeshletCount+31)/32, 1, 1)
		if err := cPass.End(); err != nil {
			a.Log.Errorf("culling pass End failed: %v", err)
		}
	}

	if a.UseRayPath {
		a.encodeRayPass(encoder)
	} else {
		a.encodeVisibilityPass(encoder)
	}

	// Resolve shades the visibility buffer into the output texture.
	rPassC := encoder.BeginComputePass(nil)
	rPassC.SetPipeline(a.ResolvePipeline)
	rPassC.SetBindGroup(0, mgr.ResolveBindGroup0, nil)
	rPassC.SetBindGroup(1, mgr.ResolveBindGroup1, nil)
	rPassC.SetBindGroup(2, mgr.ResolveBindGroup2, nil)
	rPassC.DispatchWorkgroups((a.Config.Width+7)/8, (a.Config.Height+7)/8, 1)
	if err := rPassC.End(); err != nil {
		a.Log.Errorf("resolve pass End failed: %v", err)
	}

	// Blit to swapchain.
	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rPass.SetPipeline(a.BlitPipeline)
	rPass.SetBindGroup(0, a.BlitBindGroup, nil)
	rPass.Draw(3, 1, 0, 0)
	if err := rPass.End(); err != nil {
		a.Log.Errorf("blit pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Log.Errorf("encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()

	now := glfw.GetTime()
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			if a.Log.DebugEnabled() {
				a.Log.Debugf("fps %.1f", a.FPS)
			}
		}
	}
	a.LastRenderTime = now
}

// encodeVisibilityPass rasterizes every surviving indirect command into
// the r32uint visibility target. The identity index buffer lets the
// vertex stage recover the global index position and pull its own
// vertex data.
func (a *App) encodeVisibilityPass(encoder *wgpu.CommandEncoder) {
	mgr := a.BufferManager

	vPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       a.VisibilityView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            a.DepthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	if mgr.CommandCount > 0 && mgr.IndexCount > 0 {
		vPass.SetPipeline(a.VisibilityPipeline)
		vPass.SetBindGroup(0, mgr.VisibilityBindGroup, nil)
		vPass.SetIndexBuffer(mgr.IdentityIndexBuf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		for i := uint32(0); i < mgr.CommandCount; i++ {
			vPass.DrawIndexedIndirect(mgr.CommandsBuf, uint64(i)*core.DrawIndexedCommandByteSize)
		}
	}
	if err := vPass.End(); err != nil {
		a.Log.Errorf("visibility pass End failed: %v", err)
	}
}

// encodeRayPass traces visibility ids instead of rasterizing them. The
// workgroups drain a shared tile pool, so the dispatch size only caps
// parallelism.
func (a *App) encodeRayPass(encoder *wgpu.CommandEncoder) {
	tiles := a.rayTileCount()
	if tiles == 0 {
		return
	}

	mgr := a.BufferManager
	cPass := encoder.BeginComputePass(nil)
	cPass.SetPipeline(a.RayPipeline)
	cPass.SetBindGroup(0, mgr.RayBindGroup0, nil)
	cPass.SetBindGroup(1, mgr.RayBindGroup1, nil)
	cPass.DispatchWorkgroups(uint32(tiles), 1, 1)
	if err := cPass.End(); err != nil {
		a.Log.Errorf("ray pass End failed: %v", err)
	}
}

func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	switch key {
	case glfw.KeyTab:
		a.MouseCaptured = !a.MouseCaptured
		if a.MouseCaptured {
			a.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		} else {
			a.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	case glfw.KeyM:
		a.DisplayMeshlets = !a.DisplayMeshlets
	case glfw.KeyR:
		a.UseRayPath = !a.UseRayPath
	case glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	}
}

func (a *App) HandleCursor(xpos, ypos float64, lastX, lastY float64) {
	if !a.MouseCaptured {
		return
	}
	dx := float32(xpos - lastX)
	dy := float32(ypos - lastY)
	a.Camera.Yaw += dx * a.Camera.Sensitivity
	a.Camera.Pitch -= dy * a.Camera.Sensitivity
	if a.Camera.Pitch > 1.5 {
		a.Camera.Pitch = 1.5
	}
	if a.Camera.Pitch < -1.5 {
		a.Camera.Pitch = -1.5
	}
}

func (a *App) MoveCamera(dt float32) {
	forward := a.Camera.GetForward()
	right := a.Camera.GetRight()
	step := a.Camera.Speed * dt

	if a.Window.GetKey(glfw.KeyW) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Add(forward.Mul(step))
	}
	if a.Window.GetKey(glfw.KeyS) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Sub(forward.Mul(step))
	}
	if a.Window.GetKey(glfw.KeyD) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Add(right.Mul(step))
	}
	if a.Window.GetKey(glfw.KeyA) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Sub(right.Mul(step))
	}
	if a.Window.GetKey(glfw.KeySpace) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Add(mgl32.Vec3{0, step, 0})
	}
	if a.Window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		a.Camera.Position = a.Camera.Position.Sub(mgl32.Vec3{0, step, 0})
	}
}
