package metadata

import "github.com/abdes/oxygen/engine/math"

/** @brief The render domain a material participates in. */
type RenderDomain uint8

const (
	RenderDomainOpaque RenderDomain = iota
	RenderDomainAlphaTested
	RenderDomainTransparent
)

func (d RenderDomain) String() string {
	switch d {
	case RenderDomainOpaque:
		return "opaque"
	case RenderDomainAlphaTested:
		return "alpha_tested"
	case RenderDomainTransparent:
		return "transparent"
	}
	return "unknown"
}

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/**
 * @brief A resolved material: texture keys into the binder plus scalar
 * factors. Materials are shared and immutable once published.
 */
type Material struct {
	Name   string
	Domain RenderDomain
	/** @brief Binder keys. ResourceKeyPlaceholder selects the placeholder texture. */
	BaseColorKey         ResourceKey
	NormalKey            ResourceKey
	MetallicRoughnessKey ResourceKey
	EmissiveKey          ResourceKey
	BaseColorFactor      math.Vec4
	MetallicFactor       float32
	RoughnessFactor      float32
	EmissiveFactor       math.Vec3
	/** @brief Alpha cutoff for the alpha-tested domain. */
	AlphaCutoff float32
	TwoSided    bool
}

// NewDefaultMaterial returns the material used when neither an override
// nor a submesh material is present.
func NewDefaultMaterial() *Material {
	return &Material{
		Name:            DefaultMaterialName,
		Domain:          RenderDomainOpaque,
		BaseColorFactor: math.Vec4{X: 1, Y: 1, Z: 1, W: 1},
		MetallicFactor:  0,
		RoughnessFactor: 1,
		AlphaCutoff:     0.5,
	}
}
