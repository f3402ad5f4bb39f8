package metadata

import (
	"github.com/google/uuid"

	"github.com/abdes/oxygen/engine/math"
)

/** @brief Stable identity of a rendered view (camera + viewport pairing). */
type ViewId string

func NewViewId() ViewId {
	return ViewId(uuid.New().String())
}

/** @brief The viewport rectangle in pixels. */
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

/**
 * @brief Derived camera state for one frame. Views are value types built
 * by the camera system and treated as read-only by everything downstream.
 */
type View struct {
	ID               ViewId
	ViewMatrix       math.Mat4
	ProjectionMatrix math.Mat4
	ViewProjection   math.Mat4
	CameraPosition   math.Vec3
	/** @brief Vertical focal length expressed in pixels; drives screen-space error LOD. */
	FocalLengthPx float32
	Viewport      Viewport
	Frustum       math.Frustum
}
