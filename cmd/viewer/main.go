package main

import (
	"flag"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/krios3d/krios/app"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging and the FPS counter")
	meshlets := flag.Bool("meshlets", false, "Start with the meshlet debug display on")
	ray := flag.Bool("ray", false, "Start on the ray visibility path")
	flag.Parse()

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Krios Viewer", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	logger := app.NewDefaultLogger("viewer", *debug)
	application := app.NewApp(window, logger)
	application.DisplayMeshlets = *meshlets
	application.UseRayPath = *ray

	populateScene(application)

	if err := application.Init(); err != nil {
		panic(err)
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	var lastX, lastY float64
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleCursor(xpos, ypos, lastX, lastY)
		lastX, lastY = xpos, ypos
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		dt := float32(now - application.LastTime)
		application.LastTime = now

		application.MoveCamera(dt)
		application.Update()
		application.Render()
	}
}
