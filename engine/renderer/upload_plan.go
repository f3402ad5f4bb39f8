package renderer

import (
	"fmt"

	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Computes the staging layout for a full texture upload. Regions
 * come out ordered by (mip, then arraySlice). Every region's row pitch is
 * aligned to 256 and its buffer offset to 512; TotalBytes is the exact
 * end of the last region, so a staging allocation of that size holds the
 * whole plan.
 */
func PlanTextureUpload(desc metadata.TextureDesc) (metadata.TextureUploadPlan, error) {
	switch desc.Type {
	case metadata.TextureType2D:
		return PlanTexture2D(desc)
	case metadata.TextureType3D:
		return PlanTexture3D(desc)
	case metadata.TextureTypeCube:
		return PlanTextureCube(desc)
	}
	return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: unknown texture type %d: %w",
		desc.Name, desc.Type, ErrInvalidRequest)
}

func PlanTexture2D(desc metadata.TextureDesc) (metadata.TextureUploadPlan, error) {
	arraySlices := desc.ArraySize
	if arraySlices == 0 {
		arraySlices = 1
	}
	return planSubresources(desc, arraySlices, false)
}

func PlanTexture3D(desc metadata.TextureDesc) (metadata.TextureUploadPlan, error) {
	if desc.ArraySize > 1 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: 3d textures have no array slices: %w",
			desc.Name, ErrInvalidRequest)
	}
	if desc.Depth == 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: 3d texture with zero depth: %w",
			desc.Name, ErrInvalidRequest)
	}
	return planSubresources(desc, 1, true)
}

func PlanTextureCube(desc metadata.TextureDesc) (metadata.TextureUploadPlan, error) {
	arraySlices := desc.ArraySize
	if arraySlices == 0 {
		arraySlices = 6
	}
	if arraySlices%6 != 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: cube array size %d is not a multiple of 6: %w",
			desc.Name, arraySlices, ErrInvalidRequest)
	}
	return planSubresources(desc, arraySlices, false)
}

/**
 * @brief Computes the staging layout for an explicit subresource list.
 * Regions come out in request order, one per subresource, with the same
 * pitch and placement alignment as the full-chain planners. A zero
 * extent selects the subresource's full mip extent from its offset.
 */
func PlanTextureSubresources(desc metadata.TextureDesc, subs []metadata.UploadSubresource) (metadata.TextureUploadPlan, error) {
	if len(subs) == 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: empty subresource list: %w",
			desc.Name, ErrInvalidRequest)
	}
	if desc.Width == 0 || desc.Height == 0 || desc.MipLevels == 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: zero extent or mip count: %w",
			desc.Name, ErrInvalidRequest)
	}
	if desc.Format.IsDepth() {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: depth format %s is not uploadable: %w",
			desc.Name, desc.Format, ErrUnsupportedFormat)
	}
	info, err := metadata.InfoForFormat(desc.Format)
	if err != nil {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: %s: %w",
			desc.Name, err.Error(), ErrUnsupportedFormat)
	}
	arraySlices := desc.ArraySize
	if arraySlices == 0 {
		arraySlices = 1
		if desc.Type == metadata.TextureTypeCube {
			arraySlices = 6
		}
	}
	volume := desc.Type == metadata.TextureType3D

	var plan metadata.TextureUploadPlan
	plan.Regions = make([]metadata.TextureUploadRegion, 0, len(subs))
	offset := uint64(0)
	for i, sub := range subs {
		if sub.Mip >= desc.MipLevels {
			return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: subresource %d mip %d out of %d: %w",
				desc.Name, i, sub.Mip, desc.MipLevels, ErrInvalidRequest)
		}
		if sub.ArraySlice >= arraySlices {
			return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: subresource %d slice %d out of %d: %w",
				desc.Name, i, sub.ArraySlice, arraySlices, ErrInvalidRequest)
		}
		mipW := metadata.MipExtent(desc.Width, sub.Mip)
		mipH := metadata.MipExtent(desc.Height, sub.Mip)
		mipD := uint32(1)
		if volume {
			mipD = metadata.MipExtent(desc.Depth, sub.Mip)
		}

		width, height, depth := sub.Width, sub.Height, sub.Depth
		if width == 0 {
			width = mipW - sub.X
		}
		if height == 0 {
			height = mipH - sub.Y
		}
		if depth == 0 {
			depth = mipD - sub.Z
		}
		if sub.X+width > mipW || sub.Y+height > mipH || sub.Z+depth > mipD {
			return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: subresource %d region %dx%dx%d at (%d,%d,%d) exceeds mip extent %dx%dx%d: %w",
				desc.Name, i, width, height, depth, sub.X, sub.Y, sub.Z, mipW, mipH, mipD, ErrInvalidRequest)
		}

		rowPitch := uint32(metadata.GetAligned(uint64(info.RowBytes(width)), uint64(metadata.RowPitchAlignment)))
		slicePitch := rowPitch * info.RowCount(height)
		offset = metadata.GetAligned(offset, uint64(metadata.PlacementAlignment))
		plan.Regions = append(plan.Regions, metadata.TextureUploadRegion{
			BufferOffset:  offset,
			RowPitch:      rowPitch,
			SlicePitch:    slicePitch,
			DstMip:        sub.Mip,
			DstArraySlice: sub.ArraySlice,
			DstX:          sub.X,
			DstY:          sub.Y,
			DstZ:          sub.Z,
			Width:         width,
			Height:        height,
			Depth:         depth,
		})
		offset += uint64(slicePitch) * uint64(depth)
	}
	plan.TotalBytes = offset
	return plan, nil
}

func planSubresources(desc metadata.TextureDesc, arraySlices uint32, volume bool) (metadata.TextureUploadPlan, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: zero extent %dx%d: %w",
			desc.Name, desc.Width, desc.Height, ErrInvalidRequest)
	}
	if desc.MipLevels == 0 {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: zero mip levels: %w",
			desc.Name, ErrInvalidRequest)
	}
	if desc.Format.IsDepth() {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: depth format %s is not uploadable: %w",
			desc.Name, desc.Format, ErrUnsupportedFormat)
	}
	info, err := metadata.InfoForFormat(desc.Format)
	if err != nil {
		return metadata.TextureUploadPlan{}, fmt.Errorf("planning upload for %q: %s: %w",
			desc.Name, err.Error(), ErrUnsupportedFormat)
	}

	var plan metadata.TextureUploadPlan
	plan.Regions = make([]metadata.TextureUploadRegion, 0, int(desc.MipLevels)*int(arraySlices))
	offset := uint64(0)
	for mip := uint32(0); mip < desc.MipLevels; mip++ {
		width := metadata.MipExtent(desc.Width, mip)
		height := metadata.MipExtent(desc.Height, mip)
		depth := uint32(1)
		if volume {
			depth = metadata.MipExtent(desc.Depth, mip)
		}

		rowPitch := uint32(metadata.GetAligned(uint64(info.RowBytes(width)), uint64(metadata.RowPitchAlignment)))
		slicePitch := rowPitch * info.RowCount(height)

		for slice := uint32(0); slice < arraySlices; slice++ {
			offset = metadata.GetAligned(offset, uint64(metadata.PlacementAlignment))
			plan.Regions = append(plan.Regions, metadata.TextureUploadRegion{
				BufferOffset:  offset,
				RowPitch:      rowPitch,
				SlicePitch:    slicePitch,
				DstMip:        mip,
				DstArraySlice: slice,
				Width:         width,
				Height:        height,
				Depth:         depth,
			})
			offset += uint64(slicePitch) * uint64(depth)
		}
	}
	plan.TotalBytes = offset
	return plan, nil
}
