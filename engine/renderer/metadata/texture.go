package metadata

import "math/bits"

/** @brief Represents various types of textures. */
type TextureType uint8

const (
	/** @brief A standard two-dimensional texture. */
	TextureType2D TextureType = iota
	/** @brief A volume texture. */
	TextureType3D
	/** @brief A cube texture, used for cubemaps. Always 6 array slices. */
	TextureTypeCube
)

func (t TextureType) String() string {
	switch t {
	case TextureType2D:
		return "2d"
	case TextureType3D:
		return "3d"
	case TextureTypeCube:
		return "cube"
	}
	return "unknown"
}

/** @brief Holds usage bit flags for textures. */
type TextureUsage uint8

const (
	/** @brief The texture is sampled by shaders. */
	TextureUsageShaderResource TextureUsage = 0x1
	/** @brief The texture is written by compute via UAVs. */
	TextureUsageUnorderedAccess TextureUsage = 0x2
	/** @brief The texture is a color render target. */
	TextureUsageRenderTarget TextureUsage = 0x4
	/** @brief The texture is a depth target. */
	TextureUsageDepthStencil TextureUsage = 0x8
	/** @brief The texture receives upload copies. */
	TextureUsageCopyDest TextureUsage = 0x10
)

/** @brief Creation-time description of a texture resource. */
type TextureDesc struct {
	Name   string
	Type   TextureType
	Format TextureFormat
	Width  uint32
	Height uint32
	/** @brief Depth for 3d textures, 1 otherwise. */
	Depth uint32
	/** @brief Array size. 6 for cube textures. */
	ArraySize uint32
	MipLevels uint32
	Usage     TextureUsage
}

// FullMipCount returns floor(log2(max(w,h)))+1, the count of a complete
// mip chain for the given extent.
func FullMipCount(width, height uint32) uint32 {
	m := width
	if height > m {
		m = height
	}
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// MipExtent halves an extent per mip level, clamping at 1.
func MipExtent(extent, mip uint32) uint32 {
	e := extent >> mip
	if e == 0 {
		return 1
	}
	return e
}
