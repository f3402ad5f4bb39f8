package engine

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/abdes/oxygen/engine/core"
)

/**
 * @brief Application configuration, loaded from a TOML file with every
 * field optional. Missing fields keep their defaults.
 */
type ApplicationConfig struct {
	Name string `toml:"name"`
	/** @brief Log level name: debug, info, warn, error. */
	LogLevel string       `toml:"log_level"`
	Window   WindowConfig `toml:"window"`
	Render   RenderConfig `toml:"render"`
	Assets   AssetConfig  `toml:"assets"`
}

type WindowConfig struct {
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RenderConfig struct {
	/** @brief Frame slots in flight. Zero means one per swapchain image. */
	FramesInFlight int `toml:"frames_in_flight"`
	/** @brief Per-slot staging partition bytes. Zero keeps the built-in default. */
	StagingPartitionBytes uint64 `toml:"staging_partition_bytes"`
	/** @brief Asset decode workers. */
	WorkerCount int `toml:"worker_count"`
	/** @brief Frames a mesh may go untouched before eviction. */
	MeshMaxAgeFrames uint64 `toml:"mesh_max_age_frames"`
	/** @brief Enables the graphics API validation layer. */
	Validation bool `toml:"validation"`
}

type AssetConfig struct {
	/** @brief Asset tree root, relative to the working directory. */
	Root string `toml:"root"`
	/** @brief Reload assets when their files change on disk. */
	HotReload bool `toml:"hot_reload"`
	/** @brief Bitmap font asset used by the debug overlay. */
	OverlayFont string `toml:"overlay_font"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:     "oxygen",
		LogLevel: "info",
		Window: WindowConfig{
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
		Render: RenderConfig{
			WorkerCount: 2,
		},
		Assets: AssetConfig{
			Root:        "assets",
			HotReload:   true,
			OverlayFont: "debug",
		},
	}
}

/**
 * @brief Loads the configuration at path over the defaults. A missing
 * file is not an error; a malformed one is.
 */
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config at %s, using defaults", path)
			return config, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	core.LogInfo("loaded config from %s", path)
	return config, nil
}

func (c *ApplicationConfig) validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window extent %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Render.FramesInFlight < 0 || c.Render.FramesInFlight > 8 {
		return fmt.Errorf("frames_in_flight %d out of range [0, 8]", c.Render.FramesInFlight)
	}
	if c.Render.WorkerCount < 0 {
		return fmt.Errorf("worker_count %d is negative", c.Render.WorkerCount)
	}
	return nil
}
