package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief The knobs the application may override before startup. */
type SystemManagerConfig struct {
	FramesInFlight int
	WorkerCount    int
	TextureLoad    TextureLoadFunc
	/** @brief Optional resource-key reverse lookup for material textures. */
	TextureName     func(key metadata.ResourceKey) (string, bool)
	MeshEviction    MeshEvictionPolicy
	Lights          LightSystemConfig
	Ibl             IblSystemConfig
	Sky             SkyLutSystemConfig
	ScenePrep       *ScenePrepConfig
	StagingCapacity uint64
}

/**
 * @brief Owns every engine system and the renderer core they share, in
 * dependency order. Construction wires the whole graph against one
 * graphics backend and one surface; Shutdown tears it down in reverse.
 */
type SystemManager struct {
	jobSystem    *JobSystem
	cameraSystem *CameraSystem

	frames   *renderer.FrameResourceManager
	staging  *renderer.RingBufferStaging
	uploads  *renderer.UploadCoordinator
	bindless *renderer.BindlessAllocator

	textureSystem  *TextureSystem
	meshSystem     *MeshSystem
	lightSystem    *LightSystem
	iblSystem      *IblSystem
	skySystem      *SkyLutSystem
	scenePrep      *ScenePrepPipeline
	rendererSystem *RendererSystem
}

func NewSystemManager(
	backend renderer.GraphicsBackend,
	surface renderer.Surface,
	config SystemManagerConfig,
) (*SystemManager, error) {
	if backend == nil || surface == nil {
		return nil, fmt.Errorf("system manager needs a backend and a surface")
	}
	if config.FramesInFlight == 0 {
		config.FramesInFlight = surface.BackBufferCount()
	}
	if config.WorkerCount == 0 {
		config.WorkerCount = 2
	}
	if config.TextureLoad == nil {
		return nil, fmt.Errorf("system manager needs a texture loader")
	}

	js, err := NewJobSystem(config.WorkerCount, 64)
	if err != nil {
		return nil, err
	}
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 16})
	if err != nil {
		return nil, err
	}

	frames, err := renderer.NewFrameResourceManager(config.FramesInFlight)
	if err != nil {
		return nil, err
	}
	staging, err := renderer.NewRingBufferStaging(backend, renderer.StagingConfig{
		SlotCount:     config.FramesInFlight,
		PartitionSize: config.StagingCapacity,
	})
	if err != nil {
		return nil, err
	}
	uploads, err := renderer.NewUploadCoordinator(backend, staging)
	if err != nil {
		return nil, err
	}
	bindless, err := renderer.NewBindlessAllocator(backend.DescriptorTable(), frames, 0)
	if err != nil {
		return nil, err
	}

	ts, err := NewTextureSystem(backend, bindless, uploads, frames, js, TextureSystemConfig{
		Load:        config.TextureLoad,
		ResolveName: config.TextureName,
	})
	if err != nil {
		return nil, err
	}
	ms, err := NewMeshSystem(backend, uploads, frames, config.MeshEviction)
	if err != nil {
		return nil, err
	}
	ls, err := NewLightSystem(backend, bindless, uploads, frames, config.Lights)
	if err != nil {
		return nil, err
	}
	ibl, err := NewIblSystem(backend, bindless, frames, config.Ibl)
	if err != nil {
		return nil, err
	}
	sky, err := NewSkyLutSystem(backend, bindless, config.Sky)
	if err != nil {
		return nil, err
	}
	prep, err := NewScenePrepPipeline(config.ScenePrep)
	if err != nil {
		return nil, err
	}
	rs, err := NewRendererSystem(backend, surface, frames, staging, uploads, RendererSystemConfig{
		FramesInFlight: config.FramesInFlight,
	})
	if err != nil {
		return nil, err
	}

	core.LogInfo("systems online: %d frame slots, %d workers", config.FramesInFlight, config.WorkerCount)
	return &SystemManager{
		jobSystem:      js,
		cameraSystem:   cs,
		frames:         frames,
		staging:        staging,
		uploads:        uploads,
		bindless:       bindless,
		textureSystem:  ts,
		meshSystem:     ms,
		lightSystem:    ls,
		iblSystem:      ibl,
		skySystem:      sky,
		scenePrep:      prep,
		rendererSystem: rs,
	}, nil
}

func (sm *SystemManager) Jobs() *JobSystem                       { return sm.jobSystem }
func (sm *SystemManager) Cameras() *CameraSystem                 { return sm.cameraSystem }
func (sm *SystemManager) Frames() *renderer.FrameResourceManager { return sm.frames }
func (sm *SystemManager) Textures() *TextureSystem               { return sm.textureSystem }
func (sm *SystemManager) Meshes() *MeshSystem                    { return sm.meshSystem }
func (sm *SystemManager) Lights() *LightSystem                   { return sm.lightSystem }
func (sm *SystemManager) Ibl() *IblSystem                        { return sm.iblSystem }
func (sm *SystemManager) Sky() *SkyLutSystem                     { return sm.skySystem }
func (sm *SystemManager) ScenePrep() *ScenePrepPipeline          { return sm.scenePrep }
func (sm *SystemManager) Renderer() *RendererSystem              { return sm.rendererSystem }
func (sm *SystemManager) Bindless() *renderer.BindlessAllocator  { return sm.bindless }

/**
 * @brief Runs one whole frame against the scene: opens the frame slot,
 * ticks the resource systems, collects lights, preps the scene for the
 * view, executes the passes and closes the frame.
 */
func (sm *SystemManager) Frame(s scene.Scene, view metadata.View) error {
	rs := sm.rendererSystem
	if err := rs.BeginFrame(); err != nil {
		return err
	}
	sm.textureSystem.OnFrameStart()
	sm.meshSystem.OnFrameStart(rs.FrameIndex())

	// Light upload happens in the opaque pass's prepare phase, so the
	// manager only collects here.
	sm.lightSystem.BeginFrame()
	sm.lightSystem.Collect(s)

	items, geometries, stats := sm.scenePrep.Prepare(s, view)
	if stats.CulledByFrustum > 0 || stats.SubmeshesCulled > 0 {
		core.LogDebug("scene prep: %d items, %d nodes culled, %d submeshes culled",
			stats.ItemsEmitted, stats.CulledByFrustum, stats.SubmeshesCulled)
	}

	if err := rs.Render(view, items, geometries); err != nil {
		return err
	}
	return rs.EndFrame()
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.rendererSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.skySystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.iblSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.lightSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.meshSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.textureSystem.Shutdown(); err != nil {
		return err
	}
	sm.frames.OnRendererShutdown()
	sm.staging.Destroy()
	if err := sm.cameraSystem.Shutdown(); err != nil {
		return err
	}
	return sm.jobSystem.Shutdown()
}
