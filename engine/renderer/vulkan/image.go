package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief A VkImage with bound memory and a full-resource view. */
type Image struct {
	device *Device
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	desc   metadata.TextureDesc
	format vk.Format
	// Swapchain images are owned by the swapchain, not destroyed here.
	owned bool
}

func translateFormat(format metadata.TextureFormat) (vk.Format, error) {
	switch format {
	case metadata.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case metadata.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, nil
	case metadata.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat, nil
	case metadata.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat, nil
	case metadata.FormatR8Unorm:
		return vk.FormatR8Unorm, nil
	case metadata.FormatRG8Unorm:
		return vk.FormatR8g8Unorm, nil
	case metadata.FormatD32Float:
		return vk.FormatD32Sfloat, nil
	case metadata.FormatBC1Unorm:
		return vk.FormatBc1RgbaUnormBlock, nil
	case metadata.FormatBC3Unorm:
		return vk.FormatBc3UnormBlock, nil
	case metadata.FormatBC5Unorm:
		return vk.FormatBc5UnormBlock, nil
	case metadata.FormatBC7Unorm:
		return vk.FormatBc7UnormBlock, nil
	}
	return vk.FormatUndefined, fmt.Errorf("unsupported texture format %d", format)
}

func (b *Backend) CreateTexture(desc metadata.TextureDesc) (renderer.Texture, error) {
	format, err := translateFormat(desc.Format)
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q: zero extent", desc.Name)
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.ArraySize == 0 {
		desc.ArraySize = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}

	imageType := vk.ImageType2d
	if desc.Type == metadata.TextureType3D {
		imageType = vk.ImageType3d
	}
	var flags vk.ImageCreateFlags
	if desc.Type == metadata.TextureTypeCube {
		desc.ArraySize = 6
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	usage := vk.ImageUsageFlagBits(0)
	if desc.Usage&metadata.TextureUsageShaderResource != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	if desc.Usage&metadata.TextureUsageUnorderedAccess != 0 {
		usage |= vk.ImageUsageStorageBit
	}
	if desc.Usage&metadata.TextureUsageRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if desc.Usage&metadata.TextureUsageDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if desc.Usage&metadata.TextureUsageCopyDest != 0 {
		usage |= vk.ImageUsageTransferDstBit
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: imageType,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.Depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArraySize,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(b.device.Logical, &createInfo, b.device.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("texture %q: create: %s", desc.Name, resultString(res))
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device.Logical, handle, &requirements)
	requirements.Deref()
	memoryIndex := b.device.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	if memoryIndex < 0 {
		vk.DestroyImage(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("texture %q: no compatible memory type", desc.Name)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device.Logical, &allocateInfo, b.device.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("texture %q: allocate: %s", desc.Name, resultString(res))
	}
	if res := vk.BindImageMemory(b.device.Logical, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(b.device.Logical, memory, b.device.Allocator)
		vk.DestroyImage(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("texture %q: bind: %s", desc.Name, resultString(res))
	}

	image := &Image{
		device: b.device,
		handle: handle,
		memory: memory,
		desc:   desc,
		format: format,
		owned:  true,
	}
	if err := image.createView(); err != nil {
		image.Destroy()
		return nil, err
	}
	return image, nil
}

func (img *Image) createView() error {
	viewType := vk.ImageViewType2d
	switch img.desc.Type {
	case metadata.TextureType3D:
		viewType = vk.ImageViewType3d
	case metadata.TextureTypeCube:
		viewType = vk.ImageViewTypeCube
	}
	aspect := vk.ImageAspectFlagBits(vk.ImageAspectColorBit)
	if img.desc.Usage&metadata.TextureUsageDepthStencil != 0 {
		aspect = vk.ImageAspectDepthBit
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   img.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: img.desc.MipLevels,
			LayerCount: img.desc.ArraySize,
		},
	}
	if res := vk.CreateImageView(img.device.Logical, &viewInfo, img.device.Allocator, &img.view); res != vk.Success {
		return fmt.Errorf("texture %q: view: %s", img.desc.Name, resultString(res))
	}
	return nil
}

func (img *Image) Name() string { return img.desc.Name }

func (img *Image) Desc() metadata.TextureDesc { return img.desc }

func (img *Image) Handle() vk.Image { return img.handle }

func (img *Image) View() vk.ImageView { return img.view }

func (img *Image) Destroy() {
	if img.handle == vk.NullImage {
		core.LogWarn("texture %q destroyed twice", img.desc.Name)
		return
	}
	if img.view != vk.NullImageView {
		vk.DestroyImageView(img.device.Logical, img.view, img.device.Allocator)
		img.view = vk.NullImageView
	}
	if img.owned {
		vk.DestroyImage(img.device.Logical, img.handle, img.device.Allocator)
		if img.memory != vk.NullDeviceMemory {
			vk.FreeMemory(img.device.Logical, img.memory, img.device.Allocator)
		}
	}
	img.handle = vk.NullImage
}
