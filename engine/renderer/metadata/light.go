package metadata

import "github.com/abdes/oxygen/engine/math"

/** @brief The type of a light source. */
type LightType uint8

const (
	LightTypeDirectional LightType = iota
	LightTypePoint
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	}
	return "unknown"
}

/** @brief Update mobility of a light. Baked lights never reach the GPU lists. */
type LightMobility uint8

const (
	LightMobilityStatic LightMobility = iota
	LightMobilityStationary
	LightMobilityMovable
	LightMobilityBaked
)

/** @brief Sentinel for "no shadow map assigned". */
const InvalidShadowIndex uint32 = InvalidID

/**
 * @brief One collected directional light in its GPU layout. Field order and
 * padding match the structured buffer the shaders index, 16 byte rows.
 */
type GpuDirectionalLight struct {
	Direction math.Vec3
	Pad0      float32
	Color     math.Vec3
	Intensity float32
	/** @brief Index into the directional shadow list, InvalidShadowIndex when unlit by shadow. */
	ShadowIndex  uint32
	CastsShadows uint32
	Pad1         uint32
	Pad2         uint32
}

/** @brief Per shadow-casting directional light data in GPU layout. */
type GpuDirectionalShadow struct {
	ViewProjection math.Mat4
	TexelSize      math.Vec2
	DepthBias      float32
	Pad0           float32
}

/**
 * @brief One collected point or spot light in its GPU layout.
 */
type GpuPositionalLight struct {
	Position  math.Vec3
	Range     float32
	Color     math.Vec3
	Intensity float32
	Direction math.Vec3
	/** @brief Cosine of the inner cone angle; unused for point lights. */
	InnerConeCos float32
	/** @brief Cosine of the outer cone angle; unused for point lights. */
	OuterConeCos float32
	/** @brief 0 point, 1 spot. */
	Kind        uint32
	ShadowIndex uint32
	Pad0        uint32
}
