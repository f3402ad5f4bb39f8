package engine

import (
	"fmt"

	"github.com/abdes/oxygen/engine/assets"
	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/platform"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/renderer/passes"
	"github.com/abdes/oxygen/engine/renderer/vulkan"
	"github.com/abdes/oxygen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine completed construction and is ready to be initialized
	EngineStageCreated
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

/**
 * @brief Hosts a Game: owns the platform window, the graphics backend,
 * the asset manager and the system manager, and drives the frame loop.
 */
type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     bool
	isSuspended   bool
	platform      *platform.Platform
	backend       *vulkan.Backend
	surface       *vulkan.VulkanSurface
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock
	lastTime      float64
	viewId        metadata.ViewId
	width         uint32
	height        uint32
}

func New(g *Game) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine needs a game instance")
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	if g.FnScene == nil {
		return nil, fmt.Errorf("game %q provides no scene", g.ApplicationConfig.Name)
	}
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	return &Engine{
		currentStage: EngineStageCreated,
		gameInstance: g,
		platform:     platform.New(),
		clock:        core.NewClock(),
		viewId:       metadata.NewViewId(),
		width:        g.ApplicationConfig.Window.Width,
		height:       g.ApplicationConfig.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageCreated {
		return fmt.Errorf("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing
	config := e.gameInstance.ApplicationConfig

	core.InputInitialize()
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EventCodeApplicationQuit, e, e.onEvent)
	core.EventRegister(core.EventCodeResized, e, e.onResized)
	core.EventRegister(core.EventCodeAssetChanged, e, e.onAssetChanged)

	if err := e.platform.Startup(config.Name,
		config.Window.PosX, config.Window.PosY,
		config.Window.Width, config.Window.Height); err != nil {
		return err
	}

	backend, err := vulkan.NewBackend(e.platform, vulkan.Config{
		AppName: config.Name,
		Debug:   config.Render.Validation,
	})
	if err != nil {
		return err
	}
	e.backend = backend

	surface, err := backend.CreateSurface(e.platform, "main_window")
	if err != nil {
		return err
	}
	e.surface = surface

	am, err := assets.NewAssetManager(assets.Config{
		Root:      config.Assets.Root,
		HotReload: config.Assets.HotReload,
	})
	if err != nil {
		return err
	}
	e.assetManager = am

	var eviction systems.MeshEvictionPolicy
	if config.Render.MeshMaxAgeFrames > 0 {
		eviction = systems.NewLruMeshEviction(config.Render.MeshMaxAgeFrames)
	}
	sm, err := systems.NewSystemManager(backend, surface, systems.SystemManagerConfig{
		FramesInFlight:  config.Render.FramesInFlight,
		WorkerCount:     config.Render.WorkerCount,
		TextureLoad:     am.LoadTexture,
		TextureName:     am.TextureName,
		MeshEviction:    eviction,
		StagingCapacity: config.Render.StagingPartitionBytes,
	})
	if err != nil {
		return err
	}
	e.systemManager = sm

	if err := e.registerPasses(); err != nil {
		return err
	}

	e.gameInstance.SystemManager = sm
	e.gameInstance.AssetManager = am
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.isRunning = true
	e.currentStage = EngineStageInitialized
	return nil
}

// Frame order: depth prime, opaque shading, sky fill, debug overlay.
func (e *Engine) registerPasses() error {
	sm := e.systemManager
	depth, err := passes.NewDepthPrePass(sm.Meshes())
	if err != nil {
		return err
	}
	opaque, err := passes.NewOpaquePass(sm.Meshes(), sm.Lights(), sm.Textures())
	if err != nil {
		return err
	}
	sky, err := passes.NewSkyPass(sm.Sky(), sm.Ibl())
	if err != nil {
		return err
	}
	sm.Renderer().AddPass(depth)
	sm.Renderer().AddPass(opaque)
	sm.Renderer().AddPass(sky)

	if e.gameInstance.FnOverlayText == nil {
		return nil
	}
	font, err := e.assetManager.LoadFont(e.gameInstance.ApplicationConfig.Assets.OverlayFont)
	if err != nil {
		core.LogWarn("overlay disabled: %s", err.Error())
		return nil
	}
	overlay, err := passes.NewOverlayPass(e.backend, sm.Frames(), font, e.gameInstance.FnOverlayText)
	if err != nil {
		return err
	}
	sm.Renderer().AddPass(overlay)
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine not initialized")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	titleTimer := 0.0

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err.Error())
				e.isRunning = false
				break
			}
		}

		camera := e.systemManager.Cameras().GetDefault()
		if e.gameInstance.FnCamera != nil {
			camera = e.gameInstance.FnCamera()
		}
		view := e.systemManager.Cameras().BuildView(e.viewId, camera, systems.ViewConfig{
			Viewport: metadata.Viewport{
				Width:    float32(e.surface.Width()),
				Height:   float32(e.surface.Height()),
				MaxDepth: 1,
			},
		})

		if err := e.systemManager.Frame(e.gameInstance.FnScene(), view); err != nil {
			core.LogError("frame failed, shutting down: %s", err.Error())
			e.isRunning = false
			break
		}

		frameElapsedTime := platform.GetAbsoluteTime() - frameStartTime
		core.MetricsUpdate(frameElapsedTime)

		titleTimer += delta
		if titleTimer >= 1.0 {
			titleTimer = 0
			e.platform.SetTitle(fmt.Sprintf("%s | %.1f fps",
				e.gameInstance.ApplicationConfig.Name, core.MetricsFPS()))
		}

		// Input state rotates last so the frame saw a stable snapshot.
		core.InputUpdate()
		e.lastTime = currentTime
	}

	return e.Shutdown()
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageUninitialized {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown: %s", err.Error())
		}
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			core.LogError("system shutdown: %s", err.Error())
		}
	}
	if e.assetManager != nil {
		e.assetManager.Shutdown()
	}
	if e.surface != nil {
		e.surface.Destroy()
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			core.LogError("backend shutdown: %s", err.Error())
		}
	}
	if err := e.platform.Shutdown(); err != nil {
		core.LogError("platform shutdown: %s", err.Error())
	}
	core.InputShutdown()
	if err := core.EventShutdown(); err != nil {
		core.LogError("event shutdown: %s", err.Error())
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, payload interface{}) bool {
	if code == core.EventCodeApplicationQuit {
		core.LogInfo("application quit requested, shutting down")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, payload interface{}) bool {
	event, ok := payload.(core.ResizeEvent)
	if !ok {
		return false
	}
	if event.Width == e.width && event.Height == e.height {
		return false
	}
	e.width = event.Width
	e.height = event.Height

	if event.Width == 0 || event.Height == 0 {
		core.LogInfo("window minimized, suspending")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}

	e.surface.NoteResize(event.Width, event.Height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(event.Width, event.Height); err != nil {
			core.LogError("game resize: %s", err.Error())
		}
	}
	return false
}

func (e *Engine) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, payload interface{}) bool {
	event, ok := payload.(core.AssetChangedEvent)
	if !ok {
		return false
	}
	name, ok := e.assetManager.AssetName(event.Path)
	if !ok {
		return false
	}
	core.LogInfo("asset %q changed on disk, reloading", name)
	e.systemManager.Textures().Reload(metadata.ResourceKeyFromName(name))
	return false
}
