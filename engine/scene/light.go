package scene

import (
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief Construction parameters of a light source. */
type LightConfig struct {
	Name         string
	Kind         metadata.LightType
	Mobility     metadata.LightMobility
	Color        math.Vec3
	Intensity    float32
	Visible      bool
	AffectsWorld bool
	CastsShadows bool
	/** @brief The owning node's effective shadow flag. */
	NodeCastsShadows bool
	/** @brief Attenuation range, positional lights only. */
	Range float32
	/** @brief Cone angles in radians, spot lights only. */
	InnerConeAngle float32
	OuterConeAngle float32
}

/**
 * @brief The concrete light used by the testbed and the tests. Position
 * and orientation come from the transform; a directional light's
 * direction is its rotated forward axis.
 */
type LightSource struct {
	config    LightConfig
	transform *math.Transform
}

func NewLightSource(config LightConfig) *LightSource {
	if config.Intensity == 0 {
		config.Intensity = 1
	}
	if config.Color == math.NewVec3Zero() {
		config.Color = math.NewVec3One()
	}
	return &LightSource{
		config:    config,
		transform: math.TransformCreate(),
	}
}

func (l *LightSource) Name() string                     { return l.config.Name }
func (l *LightSource) Visible() bool                    { return l.config.Visible }
func (l *LightSource) SetVisible(visible bool)          { l.config.Visible = visible }
func (l *LightSource) AffectsWorld() bool               { return l.config.AffectsWorld }
func (l *LightSource) SetAffectsWorld(affects bool)     { l.config.AffectsWorld = affects }
func (l *LightSource) Mobility() metadata.LightMobility { return l.config.Mobility }
func (l *LightSource) Kind() metadata.LightType         { return l.config.Kind }
func (l *LightSource) Color() math.Vec3                 { return l.config.Color }
func (l *LightSource) Intensity() float32               { return l.config.Intensity }
func (l *LightSource) CastsShadows() bool               { return l.config.CastsShadows }
func (l *LightSource) SetCastsShadows(casts bool)       { l.config.CastsShadows = casts }
func (l *LightSource) NodeCastsShadows() bool           { return l.config.NodeCastsShadows }
func (l *LightSource) SetNodeCastsShadows(casts bool)   { l.config.NodeCastsShadows = casts }
func (l *LightSource) Range() float32                   { return l.config.Range }
func (l *LightSource) Transform() *math.Transform       { return l.transform }
func (l *LightSource) WorldTransform() math.Mat4        { return l.transform.GetWorld() }

func (l *LightSource) ConeAngles() (float32, float32) {
	return l.config.InnerConeAngle, l.config.OuterConeAngle
}
