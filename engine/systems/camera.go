package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/components"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/** @brief The maximum number of named cameras the system manages. */
	MaxCameraCount uint16
}

type cameraEntry struct {
	camera     *components.Camera
	references uint16
}

/**
 * @brief Manages named, reference counted cameras plus one default
 * camera that always exists, and derives per-frame view state from them.
 */
type CameraSystem struct {
	config        *CameraSystemConfig
	cameras       map[string]*cameraEntry
	defaultCamera *components.Camera
}

func NewCameraSystem(config *CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &CameraSystem{
		config:        config,
		cameras:       make(map[string]*cameraEntry, config.MaxCameraCount),
		defaultCamera: components.NewCamera(),
	}, nil
}

func (cs *CameraSystem) Shutdown() error {
	cs.cameras = make(map[string]*cameraEntry)
	return nil
}

/**
 * @brief Acquires a camera by name, creating it on first acquire. The
 * internal reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == components.DefaultCameraName {
		return cs.defaultCamera, nil
	}
	entry, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= int(cs.config.MaxCameraCount) {
			err := fmt.Errorf("camera system is full (%d cameras); adjust MaxCameraCount", cs.config.MaxCameraCount)
			core.LogError(err.Error())
			return nil, err
		}
		core.LogDebug("creating new camera named '%s'", name)
		entry = &cameraEntry{camera: components.NewCamera()}
		cs.cameras[name] = entry
	}
	entry.references++
	return entry.camera, nil
}

/**
 * @brief Releases a camera by name. When the reference counter reaches
 * zero the camera is reset and its name becomes available again.
 */
func (cs *CameraSystem) Release(name string) {
	if name == components.DefaultCameraName {
		core.LogDebug("cannot release default camera, nothing was done")
		return
	}
	entry, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("release of unknown camera '%s', nothing was done", name)
		return
	}
	entry.references--
	if entry.references < 1 {
		entry.camera.Reset()
		delete(cs.cameras, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.defaultCamera
}

/** @brief Projection parameters for building a view from a camera. */
type ViewConfig struct {
	/** @brief Vertical field of view in radians. Zero defaults to 45 degrees. */
	FovYRadians float32
	NearClip    float32
	FarClip     float32
	Viewport    metadata.Viewport
}

/**
 * @brief Derives the frame view state for a camera: matrices, frustum
 * and the vertical focal length in pixels that drives screen-space-error
 * LOD selection.
 */
func (cs *CameraSystem) BuildView(id metadata.ViewId, camera *components.Camera, config ViewConfig) metadata.View {
	if config.FovYRadians == 0 {
		config.FovYRadians = math.DegToRad(45.0)
	}
	if config.NearClip == 0 {
		config.NearClip = 0.1
	}
	if config.FarClip == 0 {
		config.FarClip = 1000.0
	}

	aspect := float32(1)
	if config.Viewport.Height > 0 {
		aspect = config.Viewport.Width / config.Viewport.Height
	}
	projection := math.NewMat4Perspective(config.FovYRadians, aspect, config.NearClip, config.FarClip)
	view := camera.GetView()
	viewProjection := projection.Mul(view)

	return metadata.View{
		ID:               id,
		ViewMatrix:       view,
		ProjectionMatrix: projection,
		ViewProjection:   viewProjection,
		CameraPosition:   camera.GetPosition(),
		FocalLengthPx:    math.FocalLengthPixels(config.FovYRadians, config.Viewport.Height),
		Viewport:         config.Viewport,
		Frustum:          math.NewFrustumFromViewProjection(viewProjection),
	}
}
