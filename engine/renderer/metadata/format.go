package metadata

import "fmt"

/** @brief Pixel formats understood by the upload and binder layers. */
type TextureFormat uint8

const (
	FormatUnknown TextureFormat = iota
	/** @brief 8-bit RGBA, unsigned normalized. */
	FormatRGBA8Unorm
	/** @brief 8-bit BGRA, unsigned normalized. Swapchain friendly. */
	FormatBGRA8Unorm
	/** @brief 16-bit float RGBA. */
	FormatRGBA16Float
	/** @brief 32-bit float RGBA. */
	FormatRGBA32Float
	/** @brief Single channel 8-bit. */
	FormatR8Unorm
	/** @brief Two channel 8-bit. */
	FormatRG8Unorm
	/** @brief 32-bit float depth. */
	FormatD32Float
	/** @brief Block-compressed BC1 (DXT1), 8 bytes per 4x4 block. */
	FormatBC1Unorm
	/** @brief Block-compressed BC3 (DXT5), 16 bytes per 4x4 block. */
	FormatBC3Unorm
	/** @brief Block-compressed BC5 two-channel, 16 bytes per 4x4 block. */
	FormatBC5Unorm
	/** @brief Block-compressed BC7, 16 bytes per 4x4 block. */
	FormatBC7Unorm
)

/**
 * @brief Describes the memory layout of one format: the pixel block it is
 * encoded in and the bytes one block occupies. Uncompressed formats use a
 * 1x1 block.
 */
type FormatInfo struct {
	BlockWidth    uint32
	BlockHeight   uint32
	BytesPerBlock uint32
}

var formatTable = map[TextureFormat]FormatInfo{
	FormatRGBA8Unorm:  {1, 1, 4},
	FormatBGRA8Unorm:  {1, 1, 4},
	FormatRGBA16Float: {1, 1, 8},
	FormatRGBA32Float: {1, 1, 16},
	FormatR8Unorm:     {1, 1, 1},
	FormatRG8Unorm:    {1, 1, 2},
	FormatD32Float:    {1, 1, 4},
	FormatBC1Unorm:    {4, 4, 8},
	FormatBC3Unorm:    {4, 4, 16},
	FormatBC5Unorm:    {4, 4, 16},
	FormatBC7Unorm:    {4, 4, 16},
}

// InfoForFormat returns the layout of f, or an error for formats the
// upload path does not understand.
func InfoForFormat(f TextureFormat) (FormatInfo, error) {
	info, ok := formatTable[f]
	if !ok {
		return FormatInfo{}, fmt.Errorf("no layout information for format %d", f)
	}
	return info, nil
}

func (f TextureFormat) IsCompressed() bool {
	info, ok := formatTable[f]
	return ok && info.BlockWidth > 1
}

func (f TextureFormat) IsDepth() bool {
	return f == FormatD32Float
}

// RowBytes returns the tightly packed byte size of one row of blocks for a
// surface width in texels. Compressed formats round the width up to whole
// blocks.
func (info FormatInfo) RowBytes(width uint32) uint32 {
	blocks := (width + info.BlockWidth - 1) / info.BlockWidth
	if blocks == 0 {
		blocks = 1
	}
	return blocks * info.BytesPerBlock
}

// RowCount returns the number of block rows covering a surface height in
// texels.
func (info FormatInfo) RowCount(height uint32) uint32 {
	rows := (height + info.BlockHeight - 1) / info.BlockHeight
	if rows == 0 {
		rows = 1
	}
	return rows
}

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "rgba8_unorm"
	case FormatBGRA8Unorm:
		return "bgra8_unorm"
	case FormatRGBA16Float:
		return "rgba16_float"
	case FormatRGBA32Float:
		return "rgba32_float"
	case FormatR8Unorm:
		return "r8_unorm"
	case FormatRG8Unorm:
		return "rg8_unorm"
	case FormatD32Float:
		return "d32_float"
	case FormatBC1Unorm:
		return "bc1_unorm"
	case FormatBC3Unorm:
		return "bc3_unorm"
	case FormatBC5Unorm:
		return "bc5_unorm"
	case FormatBC7Unorm:
		return "bc7_unorm"
	}
	return "unknown"
}
