package metadata

import "fmt"

/** @brief Layout of one mip in a cooked texture payload. */
type CookedMip struct {
	/** @brief Byte offset of the mip inside Payload. Must be 512 aligned. */
	Offset uint64
	/** @brief Stride between rows. Must be 256 aligned. */
	RowPitch uint32
	Width    uint32
	Height   uint32
}

/**
 * @brief A texture asset in its cooked, upload-ready form: the creation
 * description plus a payload whose mips already honor the staging
 * alignment contract. Mips are ordered from 0 (largest) upward.
 */
type CookedTexture struct {
	Desc    TextureDesc
	Mips    []CookedMip
	Payload []byte
}

/**
 * @brief Checks the cooked layout contract: every mip's rows are 256
 * byte aligned, every mip's starting offset is 512 byte aligned, mips
 * shrink monotonically and the payload covers every declared mip. A
 * violation means the asset was cooked wrong; callers reject it without
 * issuing any GPU work.
 */
func (c *CookedTexture) ValidateLayout() error {
	if len(c.Mips) == 0 {
		return fmt.Errorf("cooked texture %q declares no mips", c.Desc.Name)
	}
	if uint32(len(c.Mips)) != c.Desc.MipLevels {
		return fmt.Errorf("cooked texture %q declares %d mips, desc says %d",
			c.Desc.Name, len(c.Mips), c.Desc.MipLevels)
	}
	info, err := InfoForFormat(c.Desc.Format)
	if err != nil {
		return fmt.Errorf("cooked texture %q: %s", c.Desc.Name, err.Error())
	}
	for i, mip := range c.Mips {
		if !IsAligned(uint64(mip.RowPitch), uint64(RowPitchAlignment)) {
			return fmt.Errorf("cooked texture %q mip %d: row pitch %d is not %d aligned",
				c.Desc.Name, i, mip.RowPitch, RowPitchAlignment)
		}
		if !IsAligned(mip.Offset, uint64(PlacementAlignment)) {
			return fmt.Errorf("cooked texture %q mip %d: offset %d is not %d aligned",
				c.Desc.Name, i, mip.Offset, PlacementAlignment)
		}
		if mip.Width != MipExtent(c.Desc.Width, uint32(i)) || mip.Height != MipExtent(c.Desc.Height, uint32(i)) {
			return fmt.Errorf("cooked texture %q mip %d: extent %dx%d does not follow the mip chain",
				c.Desc.Name, i, mip.Width, mip.Height)
		}
		if mip.RowPitch < info.RowBytes(mip.Width) {
			return fmt.Errorf("cooked texture %q mip %d: row pitch %d smaller than a packed row (%d)",
				c.Desc.Name, i, mip.RowPitch, info.RowBytes(mip.Width))
		}
		end := mip.Offset + uint64(mip.RowPitch)*uint64(info.RowCount(mip.Height))
		if end > uint64(len(c.Payload)) {
			return fmt.Errorf("cooked texture %q mip %d: payload ends at %d, mip needs %d",
				c.Desc.Name, i, len(c.Payload), end)
		}
	}
	return nil
}

/**
 * @brief Extracts the tightly packed texel stream of every mip, in mip
 * order, from an aligned cooked payload. The result feeds the upload
 * coordinator which repacks to its own staging layout.
 */
func (c *CookedTexture) PackedTexels() ([]byte, error) {
	info, err := InfoForFormat(c.Desc.Format)
	if err != nil {
		return nil, err
	}
	total := uint64(0)
	for _, mip := range c.Mips {
		total += uint64(info.RowBytes(mip.Width)) * uint64(info.RowCount(mip.Height))
	}
	packed := make([]byte, 0, total)
	for _, mip := range c.Mips {
		rowBytes := uint64(info.RowBytes(mip.Width))
		rows := uint64(info.RowCount(mip.Height))
		for row := uint64(0); row < rows; row++ {
			start := mip.Offset + row*uint64(mip.RowPitch)
			packed = append(packed, c.Payload[start:start+rowBytes]...)
		}
	}
	return packed, nil
}
