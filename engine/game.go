package engine

import (
	"github.com/abdes/oxygen/engine/assets"
	"github.com/abdes/oxygen/engine/renderer/components"
	"github.com/abdes/oxygen/engine/scene"
	"github.com/abdes/oxygen/engine/systems"
)

/**
 * @brief The application hosted by the engine. The engine owns the
 * platform, backend and systems; the game owns the scene and reacts to
 * the callbacks. SystemManager and AssetManager are populated before
 * FnInitialize runs.
 */
type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	AssetManager      *assets.AssetManager
	State             interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown

	/** @brief The scene rendered each frame. Must never return nil after FnInitialize. */
	FnScene Scene
	/** @brief The camera the frame's view is built from. Nil falls back to the default camera. */
	FnCamera Camera
	/** @brief Optional overlay text source. Nil disables the overlay pass. */
	FnOverlayText OverlayText
}

type Initialize func() error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
type Scene func() scene.Scene
type Camera func() *components.Camera
type OverlayText func(frame *systems.FrameContext) string
