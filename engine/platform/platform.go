package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/abdes/oxygen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

/**
 * @brief The GLFW window plus the input pump feeding the core input and
 * event systems. One window per process.
 */
type Platform struct {
	window *glfw.Window
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(title string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initializing glfw: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	// No client API; the surface belongs to Vulkan.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("creating window: %w", err)
	}
	p.window = window

	window.SetKeyCallback(keyCallback)
	window.SetMouseButtonCallback(mouseButtonCallback)
	window.SetCursorPosCallback(cursorPosCallback)
	window.SetScrollCallback(scrollCallback)
	window.SetFramebufferSizeCallback(framebufferSizeCallback)
	window.SetPos(int(x), int(y))
	window.Show()

	core.LogInfo("window %q up at %dx%d", title, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.window != nil {
		p.window.Destroy()
		p.window = nil
	}
	glfw.Terminate()
	return nil
}

/** @brief Polls window events. Returns false once the window wants to close. */
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.window.ShouldClose()
}

/** @brief The underlying window, for swapchain surface creation. */
func (p *Platform) Window() *glfw.Window { return p.window }

/** @brief Instance extensions the window system needs for a surface. */
func (p *Platform) GetRequiredExtensionNames() []string {
	return glfw.GetRequiredInstanceExtensions()
}

func (p *Platform) FramebufferExtent() (uint32, uint32) {
	width, height := p.window.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (p *Platform) SetTitle(title string) {
	p.window.SetTitle(title)
}

func GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := translateKey(key)
	if !ok {
		return
	}
	switch action {
	case glfw.Press, glfw.Repeat:
		core.InputProcessKey(code, true)
	case glfw.Release:
		core.InputProcessKey(code, false)
	}
}

func mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var translated core.Button
	switch button {
	case glfw.MouseButtonLeft:
		translated = core.ButtonLeft
	case glfw.MouseButtonRight:
		translated = core.ButtonRight
	case glfw.MouseButtonMiddle:
		translated = core.ButtonMiddle
	default:
		return
	}
	core.InputProcessButton(translated, action == glfw.Press)
}

func cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	core.InputProcessMouseMove(int32(xpos), int32(ypos))
}

func scrollCallback(w *glfw.Window, xoff, yoff float64) {
	switch {
	case yoff > 0:
		core.InputProcessMouseWheel(1)
	case yoff < 0:
		core.InputProcessMouseWheel(-1)
	}
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.EventFire(core.EventCodeResized, nil, core.ResizeEvent{
		Width:  uint32(width),
		Height: uint32(height),
	})
}

func translateKey(key glfw.Key) (core.KeyCode, bool) {
	if key >= glfw.KeyA && key <= glfw.KeyZ {
		return core.KeyA + core.KeyCode(key-glfw.KeyA), true
	}
	switch key {
	case glfw.KeyEscape:
		return core.KeyEscape, true
	case glfw.KeyEnter:
		return core.KeyEnter, true
	case glfw.KeyTab:
		return core.KeyTab, true
	case glfw.KeyBackspace:
		return core.KeyBackspace, true
	case glfw.KeySpace:
		return core.KeySpace, true
	case glfw.KeyLeftShift, glfw.KeyRightShift:
		return core.KeyShift, true
	case glfw.KeyLeftControl, glfw.KeyRightControl:
		return core.KeyControl, true
	case glfw.KeyLeft:
		return core.KeyLeft, true
	case glfw.KeyRight:
		return core.KeyRight, true
	case glfw.KeyUp:
		return core.KeyUp, true
	case glfw.KeyDown:
		return core.KeyDown, true
	case glfw.KeyHome:
		return core.KeyHome, true
	case glfw.KeyEnd:
		return core.KeyEnd, true
	case glfw.KeyDelete:
		return core.KeyDelete, true
	}
	return 0, false
}
