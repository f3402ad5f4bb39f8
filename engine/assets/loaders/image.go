package loaders

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Decodes a source image (png, jpeg) and cooks it into the
 * aligned RGBA8 layout with a full mip chain.
 */
func LoadImage(path, name string) (*metadata.CookedTexture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return CookImage(name, decoded)
}

/**
 * @brief Cooks a decoded image into a CookedTexture: RGBA8, a complete
 * mip chain synthesized by Catmull-Rom downscaling, rows padded to the
 * 256 byte pitch and each mip starting on a 512 byte boundary.
 */
func CookImage(name string, source image.Image) (*metadata.CookedTexture, error) {
	bounds := source.Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image %q is empty", name)
	}

	base := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.Draw(base, base.Bounds(), source, bounds.Min, draw.Src)

	mipLevels := metadata.FullMipCount(width, height)
	mips := make([]metadata.CookedMip, mipLevels)

	// Lay the chain out first so the payload is allocated once.
	cursor := uint64(0)
	for level := uint32(0); level < mipLevels; level++ {
		mipWidth := metadata.MipExtent(width, level)
		mipHeight := metadata.MipExtent(height, level)
		rowPitch := uint32(metadata.GetAligned(uint64(4*mipWidth), uint64(metadata.RowPitchAlignment)))
		cursor = metadata.GetAligned(cursor, uint64(metadata.PlacementAlignment))
		mips[level] = metadata.CookedMip{
			Offset:   cursor,
			RowPitch: rowPitch,
			Width:    mipWidth,
			Height:   mipHeight,
		}
		cursor += uint64(rowPitch) * uint64(mipHeight)
	}
	payload := make([]byte, cursor)

	for level := uint32(0); level < mipLevels; level++ {
		mip := mips[level]
		surface := base
		if level > 0 {
			surface = image.NewRGBA(image.Rect(0, 0, int(mip.Width), int(mip.Height)))
			xdraw.CatmullRom.Scale(surface, surface.Bounds(), base, base.Bounds(), xdraw.Src, nil)
		}
		rowBytes := int(4 * mip.Width)
		for row := 0; row < int(mip.Height); row++ {
			src := surface.Pix[row*surface.Stride : row*surface.Stride+rowBytes]
			dst := mip.Offset + uint64(row)*uint64(mip.RowPitch)
			copy(payload[dst:dst+uint64(rowBytes)], src)
		}
	}

	cooked := &metadata.CookedTexture{
		Desc: metadata.TextureDesc{
			Name:      name,
			Type:      metadata.TextureType2D,
			Format:    metadata.FormatRGBA8Unorm,
			Width:     width,
			Height:    height,
			Depth:     1,
			ArraySize: 1,
			MipLevels: mipLevels,
			Usage:     metadata.TextureUsageShaderResource,
		},
		Mips:    mips,
		Payload: payload,
	}
	if err := cooked.ValidateLayout(); err != nil {
		return nil, err
	}
	return cooked, nil
}
