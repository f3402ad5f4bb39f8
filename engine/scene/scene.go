package scene

import (
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Read surface the frame preparation pipeline walks. Implementors
 * keep their own node storage; the pipeline only ever iterates.
 */
type Scene interface {
	Name() string
	/** @brief Visits every node. Returning false stops the walk. */
	EachNode(fn func(Node) bool)
	/** @brief Visits every light. Returning false stops the walk. */
	EachLight(fn func(Light) bool)
}

/** @brief One placed object in a scene. */
type Node interface {
	Name() string
	Visible() bool
	WorldTransform() math.Mat4
	CastsShadows() bool
	ReceivesShadows() bool
	/** @brief Nil for nodes that carry no drawable geometry. */
	Renderable() *Renderable
}

/** @brief Strategy for picking a geometry level of detail. */
type LodPolicy uint8

const (
	/** @brief Always use FixedLod. */
	LodPolicyFixed LodPolicy = iota
	/** @brief Pick by camera distance against LodThresholds. */
	LodPolicyDistance
	/** @brief Pick by projected size in pixels against PixelThresholds. */
	LodPolicyScreenSpaceError
)

func (p LodPolicy) String() string {
	switch p {
	case LodPolicyFixed:
		return "fixed"
	case LodPolicyDistance:
		return "distance"
	case LodPolicyScreenSpaceError:
		return "screen_space_error"
	}
	return "unknown"
}

/** @brief Every submesh selected; the zero mask means the same. */
const AllSubmeshes uint64 = ^uint64(0)

/**
 * @brief Drawable payload of a node: which geometry, how its level of
 * detail is chosen, which submeshes show, and an optional material that
 * overrides every submesh material.
 *
 * The renderable owns its LOD decision: callers feed a policy selector
 * through SelectLod once per frame and read the result back through
 * ActiveLod. Switching is sticky around the thresholds so a selector
 * hovering on a boundary does not flip levels every frame.
 */
type Renderable struct {
	Geometry Geometry
	/** @brief Wins over submesh materials when set. */
	MaterialOverride *metadata.Material
	/** @brief Bit i selects submesh i of the active LOD. Zero selects all. */
	SubmeshMask uint64

	Policy   LodPolicy
	FixedLod int
	/** @brief Ascending normalized distances (in bounding radii); LOD i applies while below [i]. */
	LodThresholds []float32
	/** @brief Minimum projected pixels per LOD, finest first. */
	PixelThresholds []float32

	activeLod int
	/** @brief False until the first SelectLod, which adopts its candidate outright. */
	lodSettled bool
}

/** @brief Relative margin a selector must clear before the active LOD switches. */
const lodHysteresisMargin = 0.05

/**
 * @brief Updates the active level of detail from a policy selector. The
 * distance policy expects the camera distance in bounding radii and
 * walks LodThresholds ascending; the screen-space-error policy expects
 * the projected size in pixels and takes the finest level whose minimum
 * coverage is met. A switch only happens when the selector clears the
 * boundary threshold by the hysteresis margin.
 */
func (r *Renderable) SelectLod(selector float64) {
	lodCount := 0
	if r.Geometry != nil {
		lodCount = r.Geometry.LodCount()
	}
	if lodCount == 0 {
		r.activeLod = 0
		r.lodSettled = false
		return
	}

	candidate := clampLodIndex(r.lodFor(selector), lodCount)
	if !r.lodSettled {
		r.activeLod = candidate
		r.lodSettled = true
		return
	}
	current := clampLodIndex(r.activeLod, lodCount)
	if candidate == current {
		r.activeLod = current
		return
	}
	if r.clearsBoundary(selector, current, candidate) {
		r.activeLod = candidate
	} else {
		r.activeLod = current
	}
}

/** @brief The level the last SelectLod settled on. */
func (r *Renderable) ActiveLod() int { return r.activeLod }

func (r *Renderable) lodFor(selector float64) int {
	switch r.Policy {
	case LodPolicyDistance:
		for i, threshold := range r.LodThresholds {
			if selector < float64(threshold) {
				return i
			}
		}
		if n := len(r.LodThresholds); n > 0 {
			return n
		}
		return 0

	case LodPolicyScreenSpaceError:
		for i, minPx := range r.PixelThresholds {
			if selector >= float64(minPx) {
				return i
			}
		}
		if n := len(r.PixelThresholds); n > 0 {
			return n - 1
		}
		return 0

	default:
		return r.FixedLod
	}
}

// The boundary between the current and candidate levels is the
// threshold the selector just crossed; re-test it widened by the
// margin in the direction of travel.
func (r *Renderable) clearsBoundary(selector float64, current, candidate int) bool {
	switch r.Policy {
	case LodPolicyDistance:
		if candidate > current {
			// Coarser: the selector grew past the current level's limit.
			if current >= len(r.LodThresholds) {
				return true
			}
			return selector >= float64(r.LodThresholds[current])*(1+lodHysteresisMargin)
		}
		// Finer: the selector shrank below the candidate's limit.
		if candidate >= len(r.LodThresholds) {
			return true
		}
		return selector <= float64(r.LodThresholds[candidate])*(1-lodHysteresisMargin)

	case LodPolicyScreenSpaceError:
		if candidate < current {
			// Finer: the projection grew past the candidate's minimum.
			if candidate >= len(r.PixelThresholds) {
				return true
			}
			return selector >= float64(r.PixelThresholds[candidate])*(1+lodHysteresisMargin)
		}
		// Coarser: the projection shrank below the current minimum.
		if current >= len(r.PixelThresholds) {
			return true
		}
		return selector <= float64(r.PixelThresholds[current])*(1-lodHysteresisMargin)
	}
	return true
}

func clampLodIndex(index, lodCount int) int {
	if index < 0 {
		return 0
	}
	if index >= lodCount {
		return lodCount - 1
	}
	return index
}

/** @brief True when submesh index passes the renderable's mask. */
func (r *Renderable) SubmeshSelected(index int) bool {
	if r.SubmeshMask == 0 || r.SubmeshMask == AllSubmeshes {
		return true
	}
	if index >= 64 {
		return true
	}
	return r.SubmeshMask&(1<<uint(index)) != 0
}

/** @brief A multi-LOD mesh asset as the preparation pipeline sees it. */
type Geometry interface {
	ID() metadata.MeshID
	Name() string
	/** @brief Object-space bounds covering every LOD. */
	BoundingSphere() math.Sphere
	LodCount() int
	Lod(index int) *MeshLod
}

/** @brief One level of detail: shared vertex/index data plus submesh ranges. */
type MeshLod struct {
	Vertices  []math.Vertex3D
	Indices   []uint32
	Submeshes []Submesh
}

/** @brief A drawable index range of a LOD with its own material and bounds. */
type Submesh struct {
	Name         string
	IndexOffset  uint32
	IndexCount   uint32
	VertexOffset uint32
	/** @brief Nil falls back to the renderable override or the default material. */
	Material *metadata.Material
	/** @brief Object-space box for per-submesh culling. Nil means use the mesh sphere. */
	Bounds *math.Extents3D
}

/** @brief A light source as the preparation pipeline sees it. */
type Light interface {
	Name() string
	Visible() bool
	/** @brief False removes the light from shading without hiding its owner. */
	AffectsWorld() bool
	Mobility() metadata.LightMobility
	Kind() metadata.LightType
	Color() math.Vec3
	Intensity() float32
	/** @brief The light's own shadow casting property. */
	CastsShadows() bool
	/** @brief The owning node's effective shadow flag. Shadows need both. */
	NodeCastsShadows() bool
	WorldTransform() math.Mat4
	/** @brief Attenuation range for positional lights. */
	Range() float32
	/** @brief Inner and outer cone angles in radians. Spot lights only. */
	ConeAngles() (float32, float32)
}
